// Package scheduler runs the two-phase selection and execution loop that
// walks the configured site list.
//
// KeySelect advances the repeat counter and site index. Execute applies the
// probability gate to the selected site, requests navigation, then waits a
// dwell time and a cycle gap. Exactly one phase handler runs at a time; Run
// drives them from a single goroutine with an awaited delay in between.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/whit3rabbit/siterelay/internal/decoder"
	"github.com/whit3rabbit/siterelay/internal/metrics"
)

// ErrHandlerPanic is logged when a phase handler panics. The loop recovers
// and returns to KeySelect without touching the counters.
var ErrHandlerPanic = errors.New("scheduler handler panic")

// Phase identifies the handler that runs on the next Step.
type Phase int

const (
	PhaseKeySelect Phase = iota
	PhaseExecute
)

func (p Phase) String() string {
	switch p {
	case PhaseKeySelect:
		return "key_select"
	case PhaseExecute:
		return "execute"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Default timings.
const (
	DefaultKeySelectInterval = 3 * time.Second
	DefaultExecuteDelay      = 100 * time.Millisecond
)

// Source provides the current configuration snapshot.
type Source interface {
	Current() *decoder.Snapshot
}

// Navigator loads a URL on the browser surface.
type Navigator interface {
	Navigate(ctx context.Context, url string) error
}

// State is a copy of the scheduler counters.
type State struct {
	Phase Phase
	// Repeat counts KeySelect ticks spent on Index; always below the
	// configured key cycle.
	Repeat int
	// Index is the position the next KeySelect will select.
	Index int
	// Selected is the position Execute will read.
	Selected int
}

// Options configures a Scheduler. Zero values pick the defaults.
type Options struct {
	KeySelectInterval time.Duration
	ExecuteDelay      time.Duration
	Rand              Rand
	Clock             Clock
	Logger            *zap.Logger
	// Metrics is optional.
	Metrics *metrics.Metrics
}

// Scheduler is the two-phase state machine.
type Scheduler struct {
	source Source
	nav    Navigator
	opts   Options
	logger *zap.Logger

	mu    sync.Mutex
	state State
	idle  bool

	stopOnce sync.Once
	stopped  chan struct{}
}

// New creates a Scheduler reading snapshots from source and sending
// navigations to nav.
func New(source Source, nav Navigator, opts Options) *Scheduler {
	if opts.KeySelectInterval <= 0 {
		opts.KeySelectInterval = DefaultKeySelectInterval
	}
	if opts.ExecuteDelay <= 0 {
		opts.ExecuteDelay = DefaultExecuteDelay
	}
	if opts.Rand == nil {
		opts.Rand = NewRand(0)
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Scheduler{
		source:  source,
		nav:     nav,
		opts:    opts,
		logger:  opts.Logger,
		stopped: make(chan struct{}),
	}
}

// Run drives the loop until ctx is cancelled or Stop is called. It returns
// nil after Stop and ctx.Err() after cancellation.
func (s *Scheduler) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.stopped:
			cancel()
		case <-runCtx.Done():
		}
	}()

	s.logger.Info("scheduler started", zap.Duration("key_select_interval", s.opts.KeySelectInterval))
	defer s.logger.Info("scheduler stopped")

	for runCtx.Err() == nil {
		wait := s.Step(runCtx)
		if err := s.opts.Clock.Sleep(runCtx, wait); err != nil {
			break
		}
	}

	select {
	case <-s.stopped:
		return nil
	default:
		return ctx.Err()
	}
}

// Stop ends Run. It is safe to call more than once and before Run.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopped) })
}

// State returns a copy of the counters.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Step runs the pending phase handler and returns how long to wait before
// the next Step.
func (s *Scheduler) Step(ctx context.Context) (wait time.Duration) {
	s.mu.Lock()
	phase := s.state.Phase
	s.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("phase handler failed",
				zap.Stringer("phase", phase),
				zap.Error(fmt.Errorf("%w: %v", ErrHandlerPanic, r)))
			s.opts.Metrics.Panic()
			s.setPhase(PhaseKeySelect)
			wait = s.opts.KeySelectInterval
		}
	}()

	if phase == PhaseExecute {
		return s.execute(ctx)
	}
	return s.keySelect()
}

func (s *Scheduler) keySelect() time.Duration {
	snap := s.source.Current()
	n := snap.Sites.Len()
	if n == 0 {
		s.mu.Lock()
		first := !s.idle
		s.idle = true
		s.mu.Unlock()
		if first {
			s.logger.Warn("site list is empty, waiting for configuration",
				zap.Duration("retry", s.opts.KeySelectInterval))
		}
		return s.opts.KeySelectInterval
	}
	threshold := snap.Settings.KeyCycle()

	s.mu.Lock()
	s.idle = false
	st := &s.state
	st.Index %= n
	st.Selected = st.Index
	st.Repeat++
	if st.Repeat >= threshold {
		st.Repeat = 0
		st.Index = (st.Index + 1) % n
	}
	st.Phase = PhaseExecute
	selected, repeat := st.Selected, st.Repeat
	s.mu.Unlock()

	s.logger.Debug("site selected",
		zap.Int("index", selected),
		zap.Int("repeat", repeat),
		zap.Int("sites", n))
	return s.opts.ExecuteDelay
}

func (s *Scheduler) execute(ctx context.Context) time.Duration {
	snap := s.source.Current()
	n := snap.Sites.Len()
	if n == 0 {
		s.logger.Debug("site list emptied before execute")
		s.setPhase(PhaseKeySelect)
		return s.opts.KeySelectInterval
	}

	s.mu.Lock()
	s.state.Selected %= n
	s.state.Index %= n
	selected := s.state.Selected
	s.mu.Unlock()

	item, _ := snap.Sites.Item(selected)
	var outcome string
	switch {
	case item.URL == "":
		outcome = metrics.OutcomeEmptyURL
		s.logger.Debug("navigation skipped", zap.Int("index", selected), zap.String("reason", "empty url"))
	case !Gate(s.opts.Rand, item.PrimaryThreshold()):
		outcome = metrics.OutcomeGate
		s.logger.Debug("navigation skipped", zap.Int("index", selected), zap.String("reason", "gate rejected"))
	default:
		if err := s.nav.Navigate(ctx, item.URL); err != nil {
			outcome = metrics.OutcomeFailed
			s.logger.Warn("navigation failed", zap.String("url", item.URL), zap.Error(err))
		} else {
			outcome = metrics.OutcomeNavigated
			s.logger.Info("navigated", zap.Int("index", selected), zap.String("url", item.URL))
		}
	}
	s.opts.Metrics.Execution(outcome)

	dwellDown, dwellUp := snap.Settings.DwellBounds()
	dwell := seconds(DrawSeconds(s.opts.Rand, dwellDown, dwellUp))
	if err := s.opts.Clock.Sleep(ctx, dwell); err == nil {
		cycleDown, cycleUp := snap.Settings.CycleBounds()
		gap := seconds(DrawSeconds(s.opts.Rand, cycleDown, cycleUp))
		s.logger.Debug("execute finished", zap.Duration("dwell", dwell), zap.Duration("cycle_gap", gap))
		_ = s.opts.Clock.Sleep(ctx, gap)
	}

	s.setPhase(PhaseKeySelect)
	return s.opts.KeySelectInterval
}

func (s *Scheduler) setPhase(p Phase) {
	s.mu.Lock()
	s.state.Phase = p
	s.mu.Unlock()
}
