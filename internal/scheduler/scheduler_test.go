package scheduler

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/whit3rabbit/siterelay/internal/cipher"
	"github.com/whit3rabbit/siterelay/internal/decoder"
	"github.com/whit3rabbit/siterelay/internal/metrics"
	"github.com/whit3rabbit/siterelay/internal/nametable"
	"github.com/whit3rabbit/siterelay/internal/settings"
)

const threeSites = `<global>
  <program>
    <hidden keycycleb="2" stimedown="5" stimeup="5" ctimedown="7" ctimeup="7"/>
  </program>
  <widelist>
    <item url="https://a.example/"/>
    <item url="https://b.example/"/>
    <item url="https://c.example/"/>
  </widelist>
</global>`

const oneSite = `<global>
  <program><hidden keycycleb="2"/></program>
  <widelist><item url="https://only.example/"/></widelist>
</global>`

// fixedRand returns the same value for every draw, clamped to [0, n).
type fixedRand int

func (f fixedRand) IntN(n int) int {
	return min(int(f), n-1)
}

type recordingClock struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (c *recordingClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.mu.Unlock()
	return ctx.Err()
}

func (c *recordingClock) reset() {
	c.mu.Lock()
	c.sleeps = nil
	c.mu.Unlock()
}

type recordingNavigator struct {
	mu   sync.Mutex
	urls []string
	err  error
}

func (n *recordingNavigator) Navigate(ctx context.Context, url string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.urls = append(n.urls, url)
	return n.err
}

func (n *recordingNavigator) visited() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.urls...)
}

type panicNavigator struct{}

func (panicNavigator) Navigate(ctx context.Context, url string) error {
	panic("surface gone")
}

func newDecoder(t *testing.T, doc string) *decoder.Decoder {
	t.Helper()
	codec, err := cipher.NewCodec("siterelay")
	require.NoError(t, err)
	table, err := nametable.Default(codec)
	require.NoError(t, err)
	d := decoder.New(nil, table)
	if doc != "" {
		_, err = d.Apply(doc)
		require.NoError(t, err)
	}
	return d
}

func newTestScheduler(src Source, nav Navigator, clock Clock, logger *zap.Logger) *Scheduler {
	return New(src, nav, Options{
		KeySelectInterval: 3 * time.Second,
		ExecuteDelay:      100 * time.Millisecond,
		Rand:              fixedRand(0),
		Clock:             clock,
		Logger:            logger,
	})
}

func TestKeySelectSequence(t *testing.T) {
	nav := &recordingNavigator{}
	s := newTestScheduler(newDecoder(t, threeSites), nav, &recordingClock{}, nil)
	ctx := context.Background()

	var selected []int
	for range 7 {
		assert.Equal(t, 100*time.Millisecond, s.Step(ctx))
		st := s.State()
		assert.Equal(t, PhaseExecute, st.Phase)
		assert.Less(t, st.Repeat, 2)
		selected = append(selected, st.Selected)

		assert.Equal(t, 3*time.Second, s.Step(ctx))
		assert.Equal(t, PhaseKeySelect, s.State().Phase)
	}

	assert.Equal(t, []int{0, 0, 1, 1, 2, 2, 0}, selected)
	assert.Equal(t, []string{
		"https://a.example/", "https://a.example/",
		"https://b.example/", "https://b.example/",
		"https://c.example/", "https://c.example/",
		"https://a.example/",
	}, nav.visited())
}

func TestDefaultKeyCycleAdvancesEveryTick(t *testing.T) {
	doc := `<global><widelist><item url="u0"/><item url="u1"/></widelist></global>`
	s := newTestScheduler(newDecoder(t, doc), &recordingNavigator{}, &recordingClock{}, nil)
	ctx := context.Background()

	var selected []int
	for range 4 {
		s.Step(ctx)
		selected = append(selected, s.State().Selected)
		s.Step(ctx)
	}
	assert.Equal(t, []int{0, 1, 0, 1}, selected)
}

func TestExecuteDwellAndCycleGap(t *testing.T) {
	clock := &recordingClock{}
	s := New(newDecoder(t, threeSites), &recordingNavigator{}, Options{
		Rand:  NewRand(99),
		Clock: clock,
	})
	ctx := context.Background()

	for range 10 {
		s.Step(ctx)
		clock.reset()
		assert.Equal(t, DefaultKeySelectInterval, s.Step(ctx))
		assert.Equal(t, []time.Duration{5 * time.Second, 7 * time.Second}, clock.sleeps)
	}
}

func TestExecuteDefaultBounds(t *testing.T) {
	doc := `<global><widelist><item url="u0"/></widelist></global>`
	clock := &recordingClock{}
	s := New(newDecoder(t, doc), &recordingNavigator{}, Options{Rand: NewRand(7), Clock: clock})
	ctx := context.Background()

	for range 50 {
		s.Step(ctx)
		clock.reset()
		s.Step(ctx)
		require.Len(t, clock.sleeps, 2)
		assert.GreaterOrEqual(t, clock.sleeps[0], 3*time.Second)
		assert.LessOrEqual(t, clock.sleeps[0], 10*time.Second)
		assert.GreaterOrEqual(t, clock.sleeps[1], 5*time.Second)
		assert.LessOrEqual(t, clock.sleeps[1], 15*time.Second)
	}
}

func TestGateRejectsZeroThreshold(t *testing.T) {
	r := NewRand(1)
	for range 10000 {
		require.False(t, Gate(r, 0))
	}
	for range 10000 {
		require.True(t, Gate(r, 1000))
	}
	assert.True(t, Gate(fixedRand(0), 1))
	assert.False(t, Gate(fixedRand(1), 1))
}

func TestExecuteSkipsRejectedAndEmptyURLs(t *testing.T) {
	doc := `<global><widelist>
	  <item url="https://never.example/" mclick="0"/>
	  <item url=""/>
	</widelist></global>`
	nav := &recordingNavigator{}
	clock := &recordingClock{}
	s := newTestScheduler(newDecoder(t, doc), nav, clock, nil)
	ctx := context.Background()

	for range 20 {
		s.Step(ctx)
		s.Step(ctx)
	}
	assert.Empty(t, nav.visited())
	// Dwell and cycle gap run even when navigation is skipped.
	assert.Len(t, clock.sleeps, 40)
}

func TestNavigationErrorDoesNotStopLoop(t *testing.T) {
	nav := &recordingNavigator{err: errors.New("closed")}
	s := newTestScheduler(newDecoder(t, oneSite), nav, &recordingClock{}, nil)
	ctx := context.Background()

	s.Step(ctx)
	assert.Equal(t, 3*time.Second, s.Step(ctx))
	assert.Equal(t, PhaseKeySelect, s.State().Phase)
	assert.Len(t, nav.visited(), 1)
}

func TestShorterListSwapClampsIndex(t *testing.T) {
	d := newDecoder(t, threeSites)
	nav := &recordingNavigator{}
	s := newTestScheduler(d, nav, &recordingClock{}, nil)
	ctx := context.Background()

	// Walk to the last site.
	for range 4 {
		s.Step(ctx)
		s.Step(ctx)
	}
	s.Step(ctx)
	require.Equal(t, 2, s.State().Selected)

	_, err := d.Apply(oneSite)
	require.NoError(t, err)

	assert.NotPanics(t, func() { s.Step(ctx) })
	st := s.State()
	assert.Equal(t, 0, st.Selected)
	assert.Equal(t, 0, st.Index)
	assert.Equal(t, "https://only.example/", nav.visited()[len(nav.visited())-1])

	assert.NotPanics(t, func() { s.Step(ctx) })
	assert.Equal(t, 0, s.State().Selected)
}

func TestListEmptiedBeforeExecute(t *testing.T) {
	d := newDecoder(t, threeSites)
	nav := &recordingNavigator{}
	s := newTestScheduler(d, nav, &recordingClock{}, nil)
	ctx := context.Background()

	s.Step(ctx)
	_, err := d.Apply(`<global/>`)
	require.NoError(t, err)

	assert.Equal(t, 3*time.Second, s.Step(ctx))
	assert.Equal(t, PhaseKeySelect, s.State().Phase)
	assert.Empty(t, nav.visited())
}

func TestEmptyListRetriesAndWarnsOnce(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	d := newDecoder(t, "")
	nav := &recordingNavigator{}
	s := newTestScheduler(d, nav, &recordingClock{}, zap.New(core))
	ctx := context.Background()

	for range 5 {
		assert.Equal(t, 3*time.Second, s.Step(ctx))
		assert.Equal(t, State{}, s.State())
	}
	assert.Equal(t, 1, logs.FilterMessage("site list is empty, waiting for configuration").Len())

	_, err := d.Apply(oneSite)
	require.NoError(t, err)
	s.Step(ctx)
	s.Step(ctx)

	_, err = d.Apply(`<global/>`)
	require.NoError(t, err)
	s.Step(ctx)
	s.Step(ctx)
	assert.Equal(t, 2, logs.FilterMessage("site list is empty, waiting for configuration").Len())
	assert.Len(t, nav.visited(), 1)
}

func TestHandlerPanicIsRecovered(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	s := newTestScheduler(newDecoder(t, threeSites), panicNavigator{}, &recordingClock{}, zap.New(core))
	ctx := context.Background()

	s.Step(ctx)
	before := s.State()
	require.Equal(t, PhaseExecute, before.Phase)

	var wait time.Duration
	assert.NotPanics(t, func() { wait = s.Step(ctx) })
	assert.Equal(t, 3*time.Second, wait)

	after := s.State()
	assert.Equal(t, PhaseKeySelect, after.Phase)
	assert.Equal(t, before.Repeat, after.Repeat)
	assert.Equal(t, before.Index, after.Index)
	assert.Equal(t, before.Selected, after.Selected)

	entries := logs.FilterMessage("phase handler failed").All()
	require.Len(t, entries, 1)
	err, ok := entries[0].ContextMap()["error"].(string)
	require.True(t, ok)
	assert.Contains(t, err, ErrHandlerPanic.Error())
	assert.Contains(t, err, "surface gone")
}

func TestDrawSeconds(t *testing.T) {
	assert.Equal(t, 5, DrawSeconds(fixedRand(3), 5, 5))
	assert.Equal(t, 9, DrawSeconds(fixedRand(3), 9, 2))
	assert.Equal(t, 3, DrawSeconds(fixedRand(0), 3, 10))
	assert.Equal(t, 10, DrawSeconds(fixedRand(100), 3, 10))

	// Bounds are clamped to [0, MaxDrawSeconds] before drawing.
	assert.Equal(t, 0, DrawSeconds(fixedRand(0), -5, -1))
	assert.Equal(t, MaxDrawSeconds, DrawSeconds(fixedRand(0), math.MaxInt, math.MaxInt))
	assert.NotPanics(t, func() {
		n := DrawSeconds(NewRand(1), -1, math.MaxInt)
		assert.GreaterOrEqual(t, n, 0)
		assert.LessOrEqual(t, n, MaxDrawSeconds)
	})
	assert.Equal(t, MaxDrawSeconds, DrawSeconds(fixedRand(math.MaxInt), math.MinInt, math.MaxInt))

	assert.Equal(t, time.Duration(0), seconds(-3))
	assert.Equal(t, 4*time.Second, seconds(4))
	assert.Equal(t, time.Duration(MaxDrawSeconds)*time.Second, seconds(1e13))

	r := NewRand(5)
	for range 1000 {
		n := DrawSeconds(r, 3, 10)
		require.GreaterOrEqual(t, n, 3)
		require.LessOrEqual(t, n, 10)
	}
}

func TestSeededRandIsReproducible(t *testing.T) {
	a, b := NewRand(42), NewRand(42)
	for range 100 {
		require.Equal(t, a.IntN(1000), b.IntN(1000))
	}
}

func TestRunStopsOnStop(t *testing.T) {
	s := New(newDecoder(t, ""), &recordingNavigator{}, Options{KeySelectInterval: 5 * time.Millisecond})

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	time.Sleep(20 * time.Millisecond)
	s.Stop()
	s.Stop()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
}

func TestRunReturnsContextError(t *testing.T) {
	s := New(newDecoder(t, oneSite), &recordingNavigator{}, Options{KeySelectInterval: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	s.Stop()
}

func TestStopBeforeRun(t *testing.T) {
	s := New(newDecoder(t, ""), &recordingNavigator{}, Options{})
	s.Stop()

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "key_select", PhaseKeySelect.String())
	assert.Equal(t, "execute", PhaseExecute.String())
	assert.Equal(t, "phase(7)", Phase(7).String())
}

func TestExecuteRecordsMetrics(t *testing.T) {
	doc := `<global><widelist>
	  <item url="https://a.example/"/>
	  <item url="https://b.example/" mclick="0"/>
	  <item url=""/>
	</widelist></global>`
	m := metrics.New()
	s := New(newDecoder(t, doc), &recordingNavigator{}, Options{
		Rand:    fixedRand(0),
		Clock:   &recordingClock{},
		Metrics: m,
	})
	ctx := context.Background()

	for range 3 {
		s.Step(ctx)
		s.Step(ctx)
	}
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Executions.WithLabelValues(metrics.OutcomeNavigated)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Executions.WithLabelValues(metrics.OutcomeGate)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Executions.WithLabelValues(metrics.OutcomeEmptyURL)))

	p := New(newDecoder(t, oneSite), panicNavigator{}, Options{Rand: fixedRand(0), Clock: &recordingClock{}, Metrics: m})
	p.Step(ctx)
	p.Step(ctx)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HandlerPanics))
}

func TestDrawBand(t *testing.T) {
	s := &settings.Settings{Bands: settings.BuildBands([]string{"200", "300", "500"})}

	assert.Equal(t, 0, DrawBand(fixedRand(0), s))
	assert.Equal(t, 0, DrawBand(fixedRand(199), s))
	assert.Equal(t, 1, DrawBand(fixedRand(200), s))
	assert.Equal(t, 2, DrawBand(fixedRand(999), s))

	partial := &settings.Settings{Bands: settings.BuildBands([]string{"100"})}
	assert.Equal(t, -1, DrawBand(fixedRand(500), partial))

	counts := make([]int, 3)
	r := NewRand(3)
	for range 10000 {
		counts[DrawBand(r, s)]++
	}
	assert.InDelta(t, 2000, counts[0], 300)
	assert.InDelta(t, 3000, counts[1], 300)
	assert.InDelta(t, 5000, counts[2], 300)
}
