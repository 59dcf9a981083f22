package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/wesleywu/routesync/internal/config"
	"github.com/wesleywu/routesync/internal/logger"
)

var (
	version = "1.0.0"

	configFile  string
	verboseMode bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "routesync",
		Short: "Kernel routing table sync daemon",
		Long: `Mirrors kernel link, neighbor, route and netconf state into a Redis
object store and applies route requests received from it.`,
		SilenceUsage: true,
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run:   showVersion,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().BoolVarP(&verboseMode, "verbose", "v", false, "Verbose mode (debug level logging)")

	rootCmd.AddCommand(versionCmd)
	addPlatformCommands(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file and applies the global flags.
func loadConfig() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, err
	}
	if verboseMode {
		cfg.LogLevel = "debug"
	}
	log := logger.New(cfg.LogLevel)
	return cfg, log, nil
}

func showVersion(_ *cobra.Command, _ []string) {
	fmt.Printf("routesync v%s\n", version)
	fmt.Printf("Runtime: %s\n", runtime.Version())
	fmt.Printf("Platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
}
