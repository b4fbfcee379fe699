package cli

import (
	"github.com/spf13/cobra"

	"github.com/stellar-expert/relgraph/pkg/buildinfo"
)

// RootCommand creates the root cobra command with all subcommands registered.
//
// The persistent --config and --network flags are resolved in
// PersistentPreRunE, so every subcommand sees the loaded configuration.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   appName,
		Short: "relgraph explores relations between Stellar accounts",
		Long: `relgraph fetches the account relations recorded by the StellarExpert explorer
(creation, account merges, payments) and builds an interactive graph around an
account, one page of relations at a time.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cmd.SetContext(withLogger(cmd.Context(), c.Logger))
			return c.loadConfig()
		},
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "config file (default $XDG_CONFIG_HOME/relgraph/config.toml)")
	root.PersistentFlags().StringVar(&c.network, "network", "", "stellar network: public or testnet (overrides config)")

	// Register all subcommands
	root.AddCommand(c.relationsCommand())
	root.AddCommand(c.renderCommand())
	root.AddCommand(c.exploreCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.snapshotCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.configCommand())
	root.AddCommand(c.completionCommand())

	return root
}
