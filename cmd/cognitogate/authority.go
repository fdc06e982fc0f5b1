package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

type authorityReport struct {
	Authority    string `json:"authority"`
	Region       string `json:"region"`
	RegionSource string `json:"region_source"`
	UserPoolID   string `json:"user_pool_id"`
	JWKSURL      string `json:"jwks_uri"`
	DiscoveryURL string `json:"discovery_url"`
	Mismatch     bool   `json:"pool_region_mismatch,omitempty"`
}

func newAuthorityCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "authority",
		Short: "Print the resolved token issuer",
		Long: "Resolve the Cognito authority from configuration and the environment and print it " +
			"together with the source the region was taken from.",
		Example: "  AWS_REGION=eu-west-1 cognitogate authority --user-pool-id eu-west-1_AbC",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			a, err := cfg.Authority()
			if err != nil {
				return err
			}
			rep := authorityReport{
				Authority:    a.String(),
				Region:       a.Region().SystemName,
				RegionSource: string(a.RegionSource()),
				UserPoolID:   a.UserPoolID(),
				JWKSURL:      a.JWKSURL(),
				DiscoveryURL: a.DiscoveryURL(),
				Mismatch:     a.PoolRegionMismatch(),
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(rep)
			}
			fmt.Fprintf(out, "authority:  %s\n", rep.Authority)
			fmt.Fprintf(out, "region:     %s (from %s)\n", rep.Region, rep.RegionSource)
			fmt.Fprintf(out, "jwks:       %s\n", rep.JWKSURL)
			fmt.Fprintf(out, "discovery:  %s\n", rep.DiscoveryURL)
			if rep.Mismatch {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: user pool id %q does not belong to region %s\n", rep.UserPoolID, rep.Region)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}
