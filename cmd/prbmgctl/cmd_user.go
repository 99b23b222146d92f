package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Manonp59/prbmg/internal/auth"
	"github.com/Manonp59/prbmg/internal/config"
	"github.com/Manonp59/prbmg/internal/store"
	"github.com/Manonp59/prbmg/pkg/models"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

type userCreator interface {
	CreateUser(ctx context.Context, user *models.User) error
}

func newCreateUserCmd() *cobra.Command {
	var flags struct {
		databaseURL string
		username    string
		email       string
		fullName    string
		password    string
	}

	cmd := &cobra.Command{
		Use:   "create-user",
		Short: "Create an account that can request bearer tokens",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if flags.databaseURL == "" {
				return fmt.Errorf("--database-url or DATABASE_URL is required")
			}

			ctx := cmd.Context()
			pool, err := store.Connect(ctx, config.DatabaseConfig{
				URL:             flags.databaseURL,
				MaxOpenConns:    2,
				ConnMaxLifetime: time.Minute,
			})
			if err != nil {
				return fmt.Errorf("connect database: %w", err)
			}
			defer pool.Close()

			user, err := createUser(ctx, store.NewPostgresStore(pool),
				flags.username, flags.email, flags.fullName, flags.password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created user %s (%s)\n", user.Username, user.ID)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.databaseURL, "database-url", envOr("DATABASE_URL", ""), "Postgres connection URL")
	f.StringVar(&flags.username, "username", "", "Login name (required)")
	f.StringVar(&flags.email, "email", "", "Contact email")
	f.StringVar(&flags.fullName, "full-name", "", "Display name")
	f.StringVar(&flags.password, "password", envOr("PRBMG_USER_PASSWORD", ""), "Password, defaults to PRBMG_USER_PASSWORD")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func createUser(ctx context.Context, users userCreator, username, email, fullName, password string) (*models.User, error) {
	if username == "" {
		return nil, fmt.Errorf("username is required")
	}
	if len(password) < 8 {
		return nil, fmt.Errorf("password must be at least 8 characters")
	}

	hashed, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		ID:             uuid.New(),
		Username:       username,
		Email:          email,
		FullName:       fullName,
		HashedPassword: hashed,
		CreatedAt:      time.Now().UTC(),
	}
	if err := users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			return nil, fmt.Errorf("user %q already exists", username)
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}
