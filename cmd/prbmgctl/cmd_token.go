package main

import (
	"fmt"
	"time"

	"github.com/Manonp59/prbmg/internal/auth"
	"github.com/spf13/cobra"
)

func newMintTokenCmd() *cobra.Command {
	var flags struct {
		secret  string
		subject string
		ttl     time.Duration
	}

	cmd := &cobra.Command{
		Use:   "mint-token",
		Short: "Issue a bearer token without a password login",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if flags.secret == "" {
				return fmt.Errorf("--secret or AUTH_TOKEN_SECRET is required")
			}
			tokens := auth.NewTokenAuth([]byte(flags.secret), flags.ttl, []string{flags.subject})
			tok, exp, err := tokens.Issue(flags.subject)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, tok)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", exp.UTC().Format(time.RFC3339))
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.secret, "secret", envOr("AUTH_TOKEN_SECRET", ""), "HMAC signing secret")
	f.StringVar(&flags.subject, "subject", "admin", "Token subject")
	f.DurationVar(&flags.ttl, "ttl", 30*time.Minute, "Token lifetime")
	return cmd
}
