package commands

import (
	"flowmetrics-mcp/internal/cache"
	"flowmetrics-mcp/internal/config"
	"flowmetrics-mcp/internal/engine"
	"flowmetrics-mcp/internal/fetch"
	"flowmetrics-mcp/internal/jira"
	"flowmetrics-mcp/internal/logging"
	"flowmetrics-mcp/internal/mcp"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	// Version, Commit, and BuildDate are set at build time via ldflags.
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"

	verbose bool
	cfg     *config.AppConfig

	metricsEngine *engine.Engine
)

var rootCmd = &cobra.Command{
	Use:   "flowmetrics-mcp",
	Short: "flowmetrics-mcp is a Jira flow-metrics MCP server",
	Long: `An MCP server that computes flow metrics (lead time, cycle time, throughput,
WIP, cumulative flow, bottlenecks) from Jira status-change history, with
per-configuration result caching.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Init(verbose)

		// Load configuration
		var err error
		cfg, err = config.Load()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load configuration")
		}

		// Wire the pipeline: Jira client -> fetch coordinator -> engine
		jiraClient := jira.NewClient(cfg.Jira)
		coordinator := fetch.NewCoordinator(jiraClient, fetch.Options{
			PageSize:    cfg.FetchPageSize,
			MaxAttempts: cfg.FetchMaxAttempts,
			RetryBase:   cfg.FetchRetryBase,
			RetryMax:    cfg.FetchRetryMax,
		})
		metricsEngine = engine.New(coordinator, cache.New(cfg.CacheTTL))

		log.Info().
			Str("version", Version).
			Str("commit", Commit).
			Str("buildDate", BuildDate).
			Msg("flowmetrics-mcp starting")
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		server := mcp.NewServer(metricsEngine, Version)
		return server.Run(cmd.Context())
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
}
