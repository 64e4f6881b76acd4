// Package api provides the public API for embedding the relay as a library.
//
// A Relay wires the configuration decoder, the scheduler and the navigation
// dispatcher together. The browser surface is supplied by the caller.
//
// Basic usage example:
//
//	relay, err := api.NewRelay(api.Options{ConfigPath: "config.yaml", Surface: mySurface})
//	if err != nil {
//	    log.Fatalf("Failed to create relay: %v", err)
//	}
//	defer relay.Close()
//
//	if err := relay.Refresh(ctx); err != nil {
//	    log.Printf("No configuration yet: %v", err)
//	}
//	_ = relay.Run(ctx) // blocks until ctx is cancelled or Close is called
package api

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/whit3rabbit/siterelay/internal/cipher"
	"github.com/whit3rabbit/siterelay/internal/config"
	"github.com/whit3rabbit/siterelay/internal/decoder"
	"github.com/whit3rabbit/siterelay/internal/fetch"
	"github.com/whit3rabbit/siterelay/internal/logging"
	"github.com/whit3rabbit/siterelay/internal/metrics"
	"github.com/whit3rabbit/siterelay/internal/nametable"
	"github.com/whit3rabbit/siterelay/internal/navigate"
	"github.com/whit3rabbit/siterelay/internal/scheduler"
)

// ErrNoConfigURL is returned by Refresh when no document location is set.
var ErrNoConfigURL = errors.New("no config_url configured")

// PrintInfo prints formatted information to stdout, respecting the Testing flag.
// This function forwards to the internal config.PrintInfo function.
func PrintInfo(format string, args ...interface{}) {
	config.PrintInfo(format, args...)
}

// Options represents configuration options for creating a new Relay.
type Options struct {
	// ConfigPath is the path to a YAML configuration file.
	// If empty, ./config.yaml is used when present, defaults otherwise.
	ConfigPath string

	// Config, when set, is used as is and ConfigPath is ignored.
	Config *config.Config

	// Silent suppresses informational messages and logging.
	Silent bool

	// Surface receives navigation requests. Defaults to a navigate.LogSurface.
	Surface navigate.Surface

	// Logger overrides the logger built from the configuration.
	Logger *zap.Logger

	// Fetcher overrides how the document is retrieved. By default http(s)
	// locations go through fetch.Client and anything else is read from disk.
	Fetcher decoder.Fetcher

	// Rand and Clock replace the scheduler's random source and sleeper.
	Rand  scheduler.Rand
	Clock scheduler.Clock

	// Metrics overrides the collectors created for the Relay.
	Metrics *metrics.Metrics
}

// Relay owns one decoder, one scheduler and one navigation dispatcher.
type Relay struct {
	// Config holds the effective configuration.
	Config *config.Config

	sessionID  string
	logger     *zap.Logger
	metrics    *metrics.Metrics
	decoder    *decoder.Decoder
	scheduler  *scheduler.Scheduler
	dispatcher *navigate.Dispatcher
}

// NewRelay creates a Relay using the provided options.
//
// Returns an error if the configuration, the logger or the name table cannot
// be set up.
func NewRelay(options Options) (*Relay, error) {
	cfg := options.Config
	if cfg == nil {
		loaded, err := config.LoadConfig(options.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load configuration: %w", err)
		}
		cfg = loaded
	} else if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if options.Silent {
		cfg.Silent = true
	}

	logger, err := buildLogger(cfg, options.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	sessionID := uuid.NewString()
	logger = logger.With(zap.String("session", sessionID))

	names, err := loadNames(cfg.Cipher)
	if err != nil {
		return nil, err
	}

	fetcher := options.Fetcher
	if fetcher == nil {
		fetcher = newLocationFetcher(fetch.NewClient(cfg.HTTP, logger.Named("fetch")))
	}
	decOpts := []decoder.Option{decoder.WithLogger(logger.Named("decoder"))}
	if cfg.CacheFile != "" {
		decOpts = append(decOpts, decoder.WithCacheFile(cfg.CacheFile))
	}
	dec := decoder.New(fetcher, names, decOpts...)

	surface := options.Surface
	if surface == nil {
		surface = &navigate.LogSurface{Logger: logger.Named("surface")}
	}
	dispatcher := navigate.NewDispatcher(surface, logger.Named("navigate"), cfg.Scheduler.NavigationQueue)

	m := options.Metrics
	if m == nil {
		m = metrics.New()
	}

	rnd := options.Rand
	if rnd == nil {
		rnd = scheduler.NewRand(cfg.Scheduler.Seed)
	}
	sched := scheduler.New(dec, dispatcher, scheduler.Options{
		KeySelectInterval: cfg.Scheduler.KeySelectInterval,
		ExecuteDelay:      cfg.Scheduler.ExecuteDelay,
		Rand:              rnd,
		Clock:             options.Clock,
		Logger:            logger.Named("scheduler"),
		Metrics:           m,
	})

	return &Relay{
		Config:     cfg,
		sessionID:  sessionID,
		logger:     logger,
		metrics:    m,
		decoder:    dec,
		scheduler:  sched,
		dispatcher: dispatcher,
	}, nil
}

func buildLogger(cfg *config.Config, override *zap.Logger) (*zap.Logger, error) {
	if override != nil {
		return override, nil
	}
	if cfg.Silent {
		return logging.NewNop(), nil
	}
	return logging.New(logging.FromConfig(cfg.Logging))
}

func loadNames(cfg config.CipherConfig) (*nametable.Table, error) {
	codec, err := cipher.NewCodec(cfg.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	if cfg.NameTable != "" {
		table, err := nametable.LoadFile(cfg.NameTable, codec)
		if err != nil {
			return nil, fmt.Errorf("failed to load name table %s: %w", cfg.NameTable, err)
		}
		return table, nil
	}
	return nametable.Default(codec)
}

// SessionID identifies this Relay in log output.
func (r *Relay) SessionID() string {
	return r.sessionID
}

// ConfigURL returns the document location with placeholders expanded.
func (r *Relay) ConfigURL() string {
	return fetch.Expand(r.Config.ConfigURL, map[string]string{
		fetch.ClientIDVar: r.Config.ClientID,
	})
}

// Refresh fetches and applies the configuration document. When the fetch or
// parse fails and a cache file is configured, the cached document is
// applied instead. On total failure the previous snapshot stays in place.
func (r *Relay) Refresh(ctx context.Context) error {
	url := r.ConfigURL()
	if url == "" {
		return ErrNoConfigURL
	}
	snap, err := r.decoder.FetchAndParse(ctx, url)
	if err == nil {
		r.metrics.Refresh(metrics.RefreshOK, snap.Sites.Len())
		return nil
	}
	if r.Config.CacheFile == "" {
		r.metrics.Refresh(metrics.RefreshFailed, r.Snapshot().Sites.Len())
		return err
	}

	r.logger.Warn("config refresh failed, using cache",
		zap.String("url", url),
		zap.String("cache", r.Config.CacheFile),
		zap.Error(err))
	snap, cacheErr := r.decoder.LoadFile(r.Config.CacheFile)
	if cacheErr != nil {
		r.metrics.Refresh(metrics.RefreshFailed, r.Snapshot().Sites.Len())
		return errors.Join(err, fmt.Errorf("cache fallback: %w", cacheErr))
	}
	r.metrics.Refresh(metrics.RefreshCache, snap.Sites.Len())
	return nil
}

// Apply parses text and publishes it as the current configuration.
func (r *Relay) Apply(text string) error {
	_, err := r.decoder.Apply(text)
	return err
}

// Metrics returns the Relay's collectors.
func (r *Relay) Metrics() *metrics.Metrics {
	return r.metrics
}

// Snapshot returns the configuration currently used by the scheduler.
func (r *Relay) Snapshot() *decoder.Snapshot {
	return r.decoder.Current()
}

// State returns the scheduler counters.
func (r *Relay) State() scheduler.State {
	return r.scheduler.State()
}

// Run drives the scheduler until ctx is cancelled or Close is called.
func (r *Relay) Run(ctx context.Context) error {
	r.logger.Info("relay running", zap.Int("sites", r.Snapshot().Sites.Len()))
	return r.scheduler.Run(ctx)
}

// Close stops the scheduler and the navigation dispatcher. It is safe to
// call more than once.
func (r *Relay) Close() error {
	r.scheduler.Stop()
	err := r.dispatcher.Close()
	_ = r.logger.Sync()
	return err
}
