package main

import (
	"io"
	"log/slog"
	"strings"

	"github.com/ggoodman/cognito-auth-go/config"
	"github.com/ggoodman/cognito-auth-go/internal/logctx"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "cognitogate",
		Short: "Bearer-token gate for Amazon Cognito access tokens",
		Long: "cognitogate validates Cognito user pool access tokens in front of HTTP services. " +
			"It derives the expected issuer from the pool id and region and rejects ID tokens.",
		Example: "  cognitogate serve --user-pool-id us-east-2_AbCdEf123\n" +
			"  cognitogate authority --config gate.yaml",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	config.RegisterFlags(root.PersistentFlags())
	root.AddCommand(newServeCmd())
	root.AddCommand(newAuthorityCmd())
	root.AddCommand(newConfigCmd())
	root.AddCommand(newRevokeCmd())
	return root
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString(config.FlagConfig)
	return config.Load(path, cmd.Flags())
}

func newLogger(level string, w io.Writer) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(logctx.Handler{Handler: slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})})
}
