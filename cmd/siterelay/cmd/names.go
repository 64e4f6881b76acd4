package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/whit3rabbit/siterelay/internal/cipher"
	"github.com/whit3rabbit/siterelay/internal/nametable"
)

var newPassword string

// namesCmd groups the name-table tooling.
var namesCmd = &cobra.Command{
	Use:   "names",
	Short: "Encodes, decodes and lists obfuscated field names",
	Long: `Tools for authoring and auditing the name table. All subcommands use the
cipher password from the configuration (or --password).`,
}

var namesEncodeCmd = &cobra.Command{
	Use:   "encode <plain>...",
	Short: "Prints the hex literal for each plain name",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		codec, err := cipher.NewCodec(cfg.Cipher.Password)
		if err != nil {
			return err
		}
		for _, plain := range args {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", plain, codec.EncodeString(plain))
		}
		return nil
	},
}

var namesDecodeCmd = &cobra.Command{
	Use:   "decode <hex>...",
	Short: "Prints the plain name for each hex literal",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		codec, err := cipher.NewCodec(cfg.Cipher.Password)
		if err != nil {
			return err
		}
		for _, literal := range args {
			plain, err := codec.DecodeString(literal)
			if err != nil {
				return fmt.Errorf("cannot decode %q: %w", literal, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%q\n", literal, plain)
		}
		return nil
	},
}

var namesListCmd = &cobra.Command{
	Use:   "list",
	Short: "Lists every key of the name table with its decoded names",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		table, err := loadTable()
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "KEY\tELEMENT\tATTRIBUTE\tLITERALS")
		for _, k := range table.Keys() {
			entry, _ := table.Entry(k)
			name, err := table.Resolve(k)
			if err != nil {
				fmt.Fprintf(w, "%s\t?\t?\t%s/%s\n", k, entry.Element, entry.Attribute)
				continue
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s/%s\n", k, name.Element, name.Attribute, entry.Element, entry.Attribute)
		}
		return w.Flush()
	},
}

var namesExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Writes the name table re-encoded with --new-password as YAML",
	Args:  cobra.NoArgs,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if newPassword == "" {
			return fmt.Errorf("--new-password flag is required")
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		table, err := loadTable()
		if err != nil {
			return err
		}
		codec, err := cipher.NewCodec(newPassword)
		if err != nil {
			return err
		}
		return table.Export(cmd.OutOrStdout(), codec)
	},
}

func loadTable() (*nametable.Table, error) {
	codec, err := cipher.NewCodec(cfg.Cipher.Password)
	if err != nil {
		return nil, err
	}
	if cfg.Cipher.NameTable != "" {
		if _, err := os.Stat(cfg.Cipher.NameTable); err != nil {
			return nil, fmt.Errorf("name table '%s' not found: %w", cfg.Cipher.NameTable, err)
		}
		return nametable.LoadFile(cfg.Cipher.NameTable, codec)
	}
	return nametable.Default(codec)
}

func init() {
	namesExportCmd.Flags().StringVar(&newPassword, "new-password", "", "Password to re-encode the table with")

	namesCmd.AddCommand(namesEncodeCmd)
	namesCmd.AddCommand(namesDecodeCmd)
	namesCmd.AddCommand(namesListCmd)
	namesCmd.AddCommand(namesExportCmd)
}
