// Package cmd implements the command line interface for the application.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/whit3rabbit/siterelay/internal/config"
)

var (
	cfgFile string         // Variable to hold the config file path from the flag
	cfg     *config.Config // Global variable to hold the loaded configuration

	// Flag variables mapped to config fields for override
	silentMode bool   // -> cfg.Silent
	password   string // -> cfg.Cipher.Password
	clientID   string // -> cfg.ClientID
	configURL  string // -> cfg.ConfigURL
	cacheFile  string // -> cfg.CacheFile
	logLevel   string // -> cfg.Logging.Level
	seed       uint64 // -> cfg.Scheduler.Seed
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "siterelay",
	Short: "Walks a remotely configured site list on a paced schedule.",
	Long: `siterelay downloads an obfuscated site-list document, resolves its field
names through the cipher name table and visits the listed sites in a
key-select / execute cycle.`,
	// PersistentPreRunE loads configuration once before any subcommand runs.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cfg == nil {
			loadedCfg, err := config.LoadConfig(cfgFile)
			if err != nil {
				return fmt.Errorf("error loading configuration: %w", err)
			}
			cfg = loadedCfg

			// Apply command-line flag overrides *after* loading config file
			applyFlagOverrides(cfg, cmd)
			if err := cfg.Validate(); err != nil {
				return err
			}
		}
		return nil
	},
	// Run: Executes if no subcommand is given. Print help.
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// applyFlagOverrides applies command-line flag values to the config struct.
// Only overrides if the flag was explicitly set by the user via cmd.Flags().Changed().
func applyFlagOverrides(cfg *config.Config, cmd *cobra.Command) {
	if cmd.Flags().Changed("silent") {
		cfg.Silent = silentMode
	}
	if cmd.Flags().Changed("password") {
		cfg.Cipher.Password = password
	}
	if cmd.Flags().Changed("client-id") {
		cfg.ClientID = clientID
	}
	if cmd.Flags().Changed("url") {
		cfg.ConfigURL = configURL
	}
	if cmd.Flags().Changed("cache-file") {
		cfg.CacheFile = cacheFile
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Logging.Level = logLevel
	}
	if cmd.Flags().Changed("seed") {
		cfg.Scheduler.Seed = seed
	}
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		// Cobra usually prints the error. We just need to exit non-zero.
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")

	rootCmd.PersistentFlags().BoolVarP(&silentMode, "silent", "s", false, "Suppress informational output and logging (overrides config)")
	rootCmd.PersistentFlags().StringVar(&password, "password", "", "Cipher password for name resolution (overrides config)")
	rootCmd.PersistentFlags().StringVar(&clientID, "client-id", "", "Client id substituted for %CLIENTID (overrides config)")
	rootCmd.PersistentFlags().StringVarP(&configURL, "url", "u", "", "Site-list document URL or path (overrides config)")
	rootCmd.PersistentFlags().StringVar(&cacheFile, "cache-file", "", "File keeping the last good document (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")
	rootCmd.PersistentFlags().Uint64Var(&seed, "seed", 0, "Seed for reproducible random draws, 0 for random (overrides config)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(namesCmd)
	rootCmd.AddCommand(configCmd)
}
