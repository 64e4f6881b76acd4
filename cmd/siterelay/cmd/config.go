package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/whit3rabbit/siterelay/internal/config"
)

var forceOverwrite bool

// configCmd groups configuration helpers.
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manages the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Writes the default configuration to a file (default ./config.yaml)",
	Args:  cobra.MaximumNArgs(1),
	// Loading an existing file is pointless here.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "config.yaml"
		if len(args) == 1 {
			path = args[0]
		}
		if _, err := os.Stat(path); err == nil && !forceOverwrite {
			return fmt.Errorf("'%s' already exists, use --force to overwrite", path)
		}
		return config.SaveConfig(path)
	},
}

func init() {
	configInitCmd.Flags().BoolVarP(&forceOverwrite, "force", "f", false, "Overwrite an existing file")
	configCmd.AddCommand(configInitCmd)
}
