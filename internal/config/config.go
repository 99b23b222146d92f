package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the prbmg prediction server.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Registry  RegistryConfig
	Model     ModelConfig
	Embedding EmbeddingConfig
}

type ServerConfig struct {
	Port             int
	Env              string
	RateLimitPerMin  int
	BatchConcurrency int
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	MigrationsDir   string
}

type RedisConfig struct {
	URL string
}

type AuthConfig struct {
	APIKey          string
	TokenSecret     string
	TokenTTL        time.Duration
	AllowedSubjects []string
}

type RegistryConfig struct {
	Backend        string
	TrackingURI    string
	Username       string
	Password       string
	ExperimentName string
	QualityMetric  string
	LocalDir       string
	CacheTTL       time.Duration
	Timeout        time.Duration
}

type ModelConfig struct {
	Name          string
	LoadTimeout   time.Duration
	TitleCacheTTL time.Duration
}

type EmbeddingConfig struct {
	ModelPath      string
	VocabPath      string
	ProjectionPath string
	LibraryPath    string
	Threads        int
	WarmOnStart    bool
}

var validBackends = map[string]bool{
	"mlflow": true,
	"local":  true,
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:             envInt("PRBMG_PORT", 8080),
			Env:              envString("PRBMG_ENV", "development"),
			RateLimitPerMin:  envInt("RATE_LIMIT_PER_MINUTE", 600),
			BatchConcurrency: envInt("BATCH_CONCURRENCY", 4),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
			MigrationsDir:   envString("DATABASE_MIGRATIONS_DIR", "migrations"),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Auth: AuthConfig{
			APIKey:          os.Getenv("API_IA_SECRET_KEY"),
			TokenSecret:     os.Getenv("AUTH_TOKEN_SECRET"),
			TokenTTL:        envDuration("AUTH_TOKEN_TTL", 30*time.Minute),
			AllowedSubjects: envList("AUTH_ALLOWED_SUBJECTS", []string{"admin"}),
		},
		Registry: RegistryConfig{
			Backend:        envString("REGISTRY_BACKEND", "mlflow"),
			TrackingURI:    os.Getenv("MLFLOW_TRACKING_URI"),
			Username:       os.Getenv("MLFLOW_TRACKING_USERNAME"),
			Password:       os.Getenv("MLFLOW_TRACKING_PASSWORD"),
			ExperimentName: envString("MLFLOW_EXPERIMENT_NAME", "incidents_clustering"),
			QualityMetric:  envString("REGISTRY_QUALITY_METRIC", "silhouette score"),
			LocalDir:       os.Getenv("REGISTRY_LOCAL_DIR"),
			CacheTTL:       envDuration("REGISTRY_CACHE_TTL", 10*time.Minute),
			Timeout:        envDuration("REGISTRY_TIMEOUT", 15*time.Second),
		},
		Model: ModelConfig{
			Name:          envString("MODEL_NAME", "kmeans_40"),
			LoadTimeout:   envDurationSecs("MODEL_LOAD_TIMEOUT_SECS", 120*time.Second),
			TitleCacheTTL: envDuration("TITLE_CACHE_TTL", 5*time.Minute),
		},
		Embedding: EmbeddingConfig{
			ModelPath:      os.Getenv("EMBEDDING_MODEL_PATH"),
			VocabPath:      os.Getenv("EMBEDDING_VOCAB_PATH"),
			ProjectionPath: os.Getenv("EMBEDDING_PROJECTION_PATH"),
			LibraryPath:    os.Getenv("EMBEDDING_ORT_LIBRARY"),
			Threads:        envInt("EMBEDDING_THREADS", 1),
			WarmOnStart:    envBool("EMBEDDING_WARM_ON_START", true),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Auth.APIKey == "" {
		return fmt.Errorf("API_IA_SECRET_KEY is required")
	}
	if c.Auth.TokenSecret == "" {
		return fmt.Errorf("AUTH_TOKEN_SECRET is required")
	}
	if len(c.Auth.AllowedSubjects) == 0 {
		return fmt.Errorf("AUTH_ALLOWED_SUBJECTS must name at least one subject")
	}

	if !validBackends[c.Registry.Backend] {
		return fmt.Errorf("REGISTRY_BACKEND must be one of mlflow, local; got %q", c.Registry.Backend)
	}
	if c.Registry.Backend == "mlflow" {
		if c.Registry.TrackingURI == "" {
			return fmt.Errorf("MLFLOW_TRACKING_URI is required when REGISTRY_BACKEND is mlflow")
		}
		if !strings.HasPrefix(c.Registry.TrackingURI, "http://") && !strings.HasPrefix(c.Registry.TrackingURI, "https://") {
			return fmt.Errorf("MLFLOW_TRACKING_URI must start with http:// or https://, got %q", c.Registry.TrackingURI)
		}
	}
	if c.Registry.Backend == "local" && c.Registry.LocalDir == "" {
		return fmt.Errorf("REGISTRY_LOCAL_DIR is required when REGISTRY_BACKEND is local")
	}
	if c.Registry.CacheTTL <= 0 {
		return fmt.Errorf("REGISTRY_CACHE_TTL must be positive")
	}

	if c.Model.Name == "" {
		return fmt.Errorf("MODEL_NAME is required")
	}
	if c.Model.LoadTimeout <= 0 {
		return fmt.Errorf("MODEL_LOAD_TIMEOUT_SECS must be positive")
	}

	if c.Embedding.ModelPath == "" || c.Embedding.VocabPath == "" {
		return fmt.Errorf("EMBEDDING_MODEL_PATH and EMBEDDING_VOCAB_PATH are required")
	}

	if c.Server.BatchConcurrency <= 0 {
		return fmt.Errorf("BATCH_CONCURRENCY must be positive, got %d", c.Server.BatchConcurrency)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}

// envList splits a comma-separated variable, dropping blanks.
func envList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
