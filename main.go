// Command jmx-conf-gen discovers the MBeans of Jolokia agents, browses them
// as a tree and renders monitoring configuration from them.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/moepig/jmx-conf-gen/resources"
	"github.com/moepig/jmx-conf-gen/resources/awstags"
	"github.com/moepig/jmx-conf-gen/resources/static"
)

var (
	// BuildTag is set during build
	BuildTag = "dev"
	// BuildDate is set during build
	BuildDate = "unknown"
)

var (
	configPath  string
	logLevelStr string
)

var rootCmd = &cobra.Command{
	Use:   "jmx-conf-gen",
	Short: "Discover JMX MBeans through Jolokia and generate monitoring configuration",
	Long: `jmx-conf-gen - discover JMX MBeans through Jolokia agents

It provides commands for:

  - Listing the Jolokia connections found from the configuration
  - Browsing the MBean tree of a connection
  - Reading, writing and invoking MBean attributes and operations
  - Rendering monitoring configuration files from discovered MBeans

Environment Variables:
  JMX_CONF_GEN_MAX_DEPTH             Override jolokia.max_depth
  JMX_CONF_GEN_MAX_COLLECTION_SIZE   Override jolokia.max_collection_size
  JMX_CONF_GEN_CONVENTIONS           Override conventions (JSON object)
  JMX_CONF_GEN_REFRESH_ENABLED       Override refresh.enabled
`,
	SilenceUsage:      true,
	PersistentPreRunE: setupLogging,
}

func init() {
	// Register providers
	resources.Register(static.NewProvider())
	resources.Register(awstags.NewProvider())

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevelStr, "log-level", "info", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "jmx-conf-gen version %s (built %s)\n", BuildTag, BuildDate)
		},
	})
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

// parseLogLevel maps the --log-level flag to a slog level
func parseLogLevel(s string) (slog.Level, error) {
	switch s {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid log level '%s' (must be debug, info, warn, or error)", s)
	}
}

func setupLogging(cmd *cobra.Command, args []string) error {
	logLevel, err := parseLogLevel(logLevelStr)
	if err != nil {
		return err
	}

	// Initialize slog logger
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)
	return nil
}
