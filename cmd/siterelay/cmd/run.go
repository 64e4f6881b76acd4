package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/whit3rabbit/siterelay/pkg/api"
)

var (
	refreshEvery time.Duration
	metricsAddr  string
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Fetches the site list and runs the schedule until interrupted",
	Long: `Fetches the configured document once, then runs the key-select / execute
cycle until SIGINT or SIGTERM. Navigations are written to the log.

With --refresh-every the document is re-fetched in the background; a failed
refresh keeps the current site list.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		relay, err := api.NewRelay(api.Options{Config: cfg})
		if err != nil {
			return err
		}
		defer relay.Close()

		if err := relay.Refresh(ctx); err != nil {
			if !cfg.Silent {
				fmt.Fprintf(os.Stderr, "Warning: initial refresh failed: %v\n", err)
			}
		}
		if refreshEvery > 0 {
			go refreshLoop(ctx, relay, refreshEvery)
		}
		if cmd.Flags().Changed("metrics-addr") {
			cfg.Metrics.Addr = metricsAddr
		}
		if cfg.Metrics.Addr != "" {
			srv := serveMetrics(cfg.Metrics.Addr, relay)
			defer srv.Close()
		}

		err = relay.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func refreshLoop(ctx context.Context, relay *api.Relay, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := relay.Refresh(ctx); err != nil && !cfg.Silent {
				fmt.Fprintf(os.Stderr, "Warning: refresh failed: %v\n", err)
			}
		}
	}
}

// serveMetrics exposes the relay's collectors on addr under /metrics.
func serveMetrics(addr string, relay *api.Relay) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", relay.Metrics().Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(os.Stderr, "Warning: metrics endpoint stopped: %v\n", err)
		}
	}()
	return srv
}

func init() {
	runCmd.Flags().DurationVar(&refreshEvery, "refresh-every", 0, "Re-fetch the document at this interval (0 disables)")
	runCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (overrides config)")
}
