package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/luma/mrcp/cmd/gen"
	"github.com/luma/mrcp/internal/env"
)

var RootCmd = &cobra.Command{
	Use:   "mrcpctl",
	Short: "Talk to MRCPv2 speech resources",
	Long: `mrcpctl sends MRCPv2 requests to a speech server over a control
channel that has already been negotiated, and reports the responses and
events the resource produces.

Connection settings are read from the environment (MRCP_HOST, MRCP_PORT,
MRCP_CHANNEL_ID, ...) and from .env.local. A TOML profile given with
--config overrides the environment, and flags override both.`,
	SilenceUsage: true,
}

// profilePath is the TOML profile to load on top of the environment
var profilePath string

func init() {
	RootCmd.PersistentFlags().StringVar(&profilePath, "config", "", "A TOML profile with connection settings")

	RootCmd.AddCommand(SendCmd)
	RootCmd.AddCommand(BridgeCmd)
	RootCmd.AddCommand(VersionCmd)
	RootCmd.AddCommand(gen.RootCmd)
}

// Execute runs the command line and exits non-zero on failure.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads the configuration and builds the logger every command uses.
func setup(ctx context.Context) (*env.Config, *zap.Logger, error) {
	conf, err := env.LoadConfig(ctx)
	if err != nil {
		return nil, nil, err
	}

	if profilePath != "" {
		if err := conf.LoadProfile(profilePath); err != nil {
			return nil, nil, err
		}
	}

	log, err := env.MakeLogger(conf.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("Invalid MRCP_LOG_LEVEL %q: %w", conf.LogLevel, err)
	}

	return conf, log, nil
}
