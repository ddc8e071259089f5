package cli

import (
	"github.com/spf13/cobra"

	"github.com/SmitUplenchwar2687/Folio/internal/config"
)

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	configFile string
	envFiles   []string
}

// load reads .env files into the environment and builds the effective
// config from defaults, the config file, the environment and secrets.
func (g *globalOptions) load() (config.Config, error) {
	config.LoadDotEnv(g.envFiles...)
	return config.Load(g.configFile)
}

// NewRootCmd creates the root folio command.
func NewRootCmd() *cobra.Command {
	g := &globalOptions{}

	root := &cobra.Command{
		Use:   "folio",
		Short: "PDF to Markdown conversion with per-client daily quotas",
		Long: `Folio converts uploaded PDFs to Markdown and meters how many conversions
each client makes per UTC day. Counters live in memory, Redis or SQLite.

Configuration is layered: built-in defaults, then --config, then FOLIO_*
environment variables (and .env files), then the secrets directory.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&g.configFile, "config", "", "path to YAML config file")
	root.PersistentFlags().StringSliceVar(&g.envFiles, "env-file", nil, ".env files to load (default .env)")

	root.AddCommand(
		newServeCmd(g),
		newQuotaCmd(g),
		newUsageCmd(),
		newConfigCmd(g),
	)

	return root
}
