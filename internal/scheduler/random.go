package scheduler

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/whit3rabbit/siterelay/internal/settings"
)

// Rand draws uniform integers in [0, n).
type Rand interface {
	IntN(n int) int
}

// Clock sleeps for d or until ctx is done, whichever comes first.
type Clock interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// NewRand returns the shared random source. A non-zero seed makes every
// draw reproducible.
func NewRand(seed uint64) Rand {
	if seed == 0 {
		return &lockedRand{r: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))}
	}
	return &lockedRand{r: rand.New(rand.NewPCG(seed, seed))}
}

type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func (l *lockedRand) IntN(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.IntN(n)
}

// SystemClock sleeps on real timers.
type SystemClock struct{}

// Sleep implements Clock. Non-positive durations only check ctx.
func (SystemClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// MaxDrawSeconds caps every dwell and cycle-gap draw at one day.
const MaxDrawSeconds = 24 * 60 * 60

// DrawSeconds returns a uniform integer in [down, up], or exactly down when
// down >= up. Both bounds are first clamped to [0, MaxDrawSeconds].
func DrawSeconds(r Rand, down, up int) int {
	down = min(max(down, 0), MaxDrawSeconds)
	up = min(max(up, 0), MaxDrawSeconds)
	if down >= up {
		return down
	}
	return down + r.IntN(up-down+1)
}

// Gate draws in [1, settings.PercentRange] and accepts iff the draw does
// not exceed threshold.
func Gate(r Rand, threshold int) bool {
	return r.IntN(settings.PercentRange)+1 <= threshold
}

// DrawBand picks a band of s with one draw in [1, settings.PercentRange].
// It returns -1 when the draw lands outside every band.
func DrawBand(r Rand, s *settings.Settings) int {
	return s.SelectBand(r.IntN(settings.PercentRange) + 1)
}

func seconds(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(min(n, MaxDrawSeconds)) * time.Second
}
