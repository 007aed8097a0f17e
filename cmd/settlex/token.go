package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mmynk/settlex/internal/auth"
	"github.com/mmynk/settlex/internal/models"
)

func tokenCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "token [principal]",
		Short: "Issue a bearer token for a principal",
		Long: `Issue a bearer token signed with the server's jwt_secret.

Use it with --token or SETTLEX_TOKEN to record payments as that principal.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.JWTSecret == "" {
				return errors.New("jwt_secret is required to issue tokens (set SETTLEX_JWT_SECRET)")
			}
			token, err := auth.NewJWTManager(a.cfg.JWTSecret, a.cfg.TokenTTL).Generate(models.Principal(args[0]))
			if err != nil {
				return fmt.Errorf("failed to issue token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
}
