package cmd

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/whit3rabbit/siterelay/internal/decoder"
	"github.com/whit3rabbit/siterelay/pkg/api"
)

// checkCmd represents the check command
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Fetches and decodes the site list, then prints what was found",
	Long: `Fetches the configured document, resolves every field through the name table
and prints the decoded settings, bands, click ranges and sites.
Fields that could not be found are listed so a wrong password or an outdated
name table is easy to spot.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		relay, err := api.NewRelay(api.Options{Config: cfg, Silent: true})
		if err != nil {
			return err
		}
		defer relay.Close()

		if err := relay.Refresh(cmd.Context()); err != nil {
			return fmt.Errorf("failed to load %s: %w", relay.ConfigURL(), err)
		}
		printSnapshot(cmd.OutOrStdout(), relay.Snapshot())
		return nil
	},
}

func printSnapshot(w io.Writer, snap *decoder.Snapshot) {
	s := snap.Settings
	dwellDown, dwellUp := s.DwellBounds()
	cycleDown, cycleUp := s.CycleBounds()

	fmt.Fprintf(w, "Enabled:      %t\n", s.Enabled())
	fmt.Fprintf(w, "Ref domain:   %s\n", s.RefDom)
	fmt.Fprintf(w, "Key cycle:    %d\n", s.KeyCycle())
	fmt.Fprintf(w, "Dwell:        %d-%ds\n", dwellDown, dwellUp)
	fmt.Fprintf(w, "Cycle gap:    %d-%ds\n", cycleDown, cycleUp)

	if len(s.Weights) > 0 {
		names := make([]string, 0, len(s.Weights))
		for name, v := range s.Weights {
			if v != "" {
				names = append(names, name)
			}
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(w, "Weight %-10s %d\n", name+":", s.Weight(name, 0))
		}
	}

	for i, b := range s.Bands {
		fmt.Fprintf(w, "Band %d:       [%d, %d]\n", i+1, b.Lower, b.Upper)
	}
	for i, r := range s.ClickRanges {
		fmt.Fprintf(w, "Click range %d: per=%d gaper=%d\n", i+1, r.Per, r.GapPer)
	}

	fmt.Fprintf(w, "Sites:        %d\n", snap.Sites.Len())
	for i := range snap.Sites.Len() {
		item, _ := snap.Sites.Item(i)
		fmt.Fprintf(w, "  [%d] %s (type=%q gate=%d secondary=%d)\n",
			i, item.URL, item.Type, item.PrimaryThreshold(), item.SecondaryThreshold())
	}
	if snap.QueryBlock != nil {
		fmt.Fprintf(w, "Query block:  present\n")
	}
	if tq := snap.TimeQuery; tq != nil {
		fmt.Fprintf(w, "Time query:   stime=%q etime=%q qcnt=%q urls=%d\n", tq.STime, tq.ETime, tq.QCnt, len(tq.URLs))
		for i, u := range tq.URLs {
			fmt.Fprintf(w, "  [%d] %s\n", i, u)
		}
	}

	if len(snap.Missing) > 0 {
		missing := make([]string, len(snap.Missing))
		for i, k := range snap.Missing {
			missing[i] = string(k)
		}
		fmt.Fprintf(w, "Missing:      %s\n", strings.Join(missing, ", "))
	}
}
