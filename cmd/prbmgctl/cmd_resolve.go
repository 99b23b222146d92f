package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/Manonp59/prbmg/internal/config"
	"github.com/Manonp59/prbmg/internal/registry"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newResolveCmd() *cobra.Command {
	var cfg config.RegistryConfig

	cmd := &cobra.Command{
		Use:   "resolve MODEL_NAME",
		Short: "Show the run the registry would serve for a model name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return resolve(cmd.Context(), cmd.OutOrStdout(), cfg, args[0])
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.Backend, "backend", envOr("REGISTRY_BACKEND", "mlflow"), "Registry backend: mlflow or local")
	f.StringVar(&cfg.TrackingURI, "tracking-uri", envOr("MLFLOW_TRACKING_URI", ""), "MLflow tracking server")
	f.StringVar(&cfg.ExperimentName, "experiment", envOr("MLFLOW_EXPERIMENT_NAME", "incidents_clustering"), "MLflow experiment")
	f.StringVar(&cfg.QualityMetric, "metric", envOr("REGISTRY_QUALITY_METRIC", "silhouette score"), "Run quality metric")
	f.StringVar(&cfg.LocalDir, "local-dir", envOr("REGISTRY_LOCAL_DIR", ""), "Directory holding runs.yaml")
	f.DurationVar(&cfg.Timeout, "timeout", 15*time.Second, "Tracking server request timeout")
	cfg.Username = envOr("MLFLOW_TRACKING_USERNAME", "")
	cfg.Password = envOr("MLFLOW_TRACKING_PASSWORD", "")
	return cmd
}

type resolveOutput struct {
	Name       string    `yaml:"name"`
	Backend    string    `yaml:"backend"`
	RunID      string    `yaml:"run_id"`
	Locator    string    `yaml:"locator"`
	Score      float64   `yaml:"score"`
	RecordedAt time.Time `yaml:"recorded_at,omitempty"`
}

func resolve(ctx context.Context, w io.Writer, cfg config.RegistryConfig, name string) error {
	var backend registry.Backend
	switch cfg.Backend {
	case "mlflow":
		if cfg.TrackingURI == "" {
			return fmt.Errorf("--tracking-uri or MLFLOW_TRACKING_URI is required for the mlflow backend")
		}
		backend = registry.NewMLflowBackend(cfg.TrackingURI, cfg.ExperimentName, cfg.QualityMetric,
			cfg.Username, cfg.Password, cfg.Timeout)
	case "local":
		if cfg.LocalDir == "" {
			return fmt.Errorf("--local-dir or REGISTRY_LOCAL_DIR is required for the local backend")
		}
		backend = registry.NewLocalBackend(cfg.LocalDir)
	default:
		return fmt.Errorf("unknown backend %q", cfg.Backend)
	}

	resolved, err := registry.New(backend, time.Minute).Resolve(ctx, name)
	if err != nil {
		return err
	}

	enc := yaml.NewEncoder(w)
	defer enc.Close()
	return enc.Encode(resolveOutput{
		Name:       resolved.Name,
		Backend:    backend.Name(),
		RunID:      resolved.RunID,
		Locator:    resolved.Locator,
		Score:      resolved.Score,
		RecordedAt: resolved.RecordedAt,
	})
}
