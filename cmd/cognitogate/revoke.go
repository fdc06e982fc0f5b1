package main

import (
	"context"
	"fmt"
	"time"

	"github.com/ggoodman/cognito-auth-go/revocation"
	"github.com/spf13/cobra"
)

// Cognito's default refresh token lifetime.
const defaultRevokeTTL = 30 * 24 * time.Hour

func newRevokeCmd() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "revoke <token-id>...",
		Short: "Deny tokens by jti or origin_jti",
		Long: "Add token ids to the shared revocation store. Revoking a refresh token's origin_jti " +
			"denies every access token minted from it. Requires revocation.backend=redis.",
		Example: "  cognitogate revoke 3f1c2b9e-0000-4000-8000-000000000000 --ttl 720h",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.Revocation.Backend != "redis" {
				return fmt.Errorf("revoke requires revocation.backend=redis, got %q (the memory backend is seeded from revocation.deny_ids at serve startup)", cfg.Revocation.Backend)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			store, err := openStore(ctx, cfg.Revocation)
			if err != nil {
				return err
			}
			defer store.Close()
			return revokeAll(ctx, store, args, time.Now().Add(ttl), cmd)
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", defaultRevokeTTL, "how long the ids stay denied")
	return cmd
}

func revokeAll(ctx context.Context, store revocation.Store, ids []string, until time.Time, cmd *cobra.Command) error {
	for _, id := range ids {
		if err := store.Revoke(ctx, id, until); err != nil {
			return fmt.Errorf("revoke %s: %w", id, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "revoked %s until %s\n", id, until.UTC().Format(time.RFC3339))
	}
	return nil
}
