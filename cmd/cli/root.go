// Package cli implements the Cobra-based command line interface for the
// netasset scanner: the API server, one-shot discovery sweeps, and
// version reporting.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/asplund/netasset/internal/config"
	"github.com/asplund/netasset/internal/logging"
)

var (
	cfgFile string
	verbose bool
)

// Build information, set by main via SetVersion.
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// rootCmd represents the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "netasset",
	Short: "Network asset discovery and classification",
	Long: `Netasset discovers live hosts on network ranges, classifies them by
hostname and service fingerprints, and enriches individual devices with
hardware facts over SSH or SNMP. Results are kept in a PostgreSQL
inventory and served over a REST API.`,
	Version: getVersion(),
}

// Execute runs the root command. Called once from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	if err := viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose")); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to bind verbose flag: %v\n", err)
	}
}

// initConfig reads the config file and matching environment variables.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("NETASSET")

	if err := viper.ReadInConfig(); err == nil {
		if verbose {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}

	initLogging()
}

// loadConfig loads the effective configuration for a command run.
func loadConfig() (*config.Config, error) {
	path := viper.ConfigFileUsed()
	if path == "" {
		path = "config.yaml"
	}
	return config.Load(path)
}

// initLogging initializes structured logging from configuration.
func initLogging() {
	cfg, err := loadConfig()
	if err != nil {
		// Config problems surface later with proper errors; logging
		// falls back to defaults so early messages are not lost.
		logging.SetDefault(logging.NewDefault())
		return
	}

	logCfg := cfg.Logging
	if verbose {
		logCfg.Level = logging.LevelDebug
	}

	logger, err := logging.New(logCfg)
	if err != nil {
		logging.SetDefault(logging.NewDefault())
		return
	}
	logging.SetDefault(logger)
}

func getVersion() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildTime)
}

// SetVersion sets the version information (called from main).
func SetVersion(v, c, bt string) {
	version = v
	commit = c
	buildTime = bt
	rootCmd.Version = getVersion()
}
