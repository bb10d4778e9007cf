package pressure

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"pkt.systems/drowse/schema"
)

type fakeSource struct {
	mu     sync.Mutex
	sample Sample
	err    error
}

func (s *fakeSource) Sample() (Sample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sample, s.err
}

func (s *fakeSource) set(used, total uint64) {
	s.mu.Lock()
	s.sample = Sample{Used: used, Total: total}
	s.mu.Unlock()
}

type recorder struct {
	mu     sync.Mutex
	levels []schema.PressureLevel
}

func (r *recorder) OnPressureChange(level schema.PressureLevel) {
	r.mu.Lock()
	r.levels = append(r.levels, level)
	r.mu.Unlock()
}

func (r *recorder) all() []schema.PressureLevel {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]schema.PressureLevel(nil), r.levels...)
}

func TestClassifyThresholds(t *testing.T) {
	thresholds := Thresholds{Warning: 0.75, Critical: 0.90}
	cases := []struct {
		used uint64
		want schema.PressureLevel
	}{
		{0, schema.PressureNormal},
		{74, schema.PressureNormal},
		{75, schema.PressureWarning},
		{89, schema.PressureWarning},
		{90, schema.PressureCritical},
		{100, schema.PressureCritical},
	}
	for _, c := range cases {
		if got := Classify(Sample{Used: c.used, Total: 100}, thresholds); got != c.want {
			t.Fatalf("used %d: got %s want %s", c.used, got, c.want)
		}
	}
}

func TestClassifyZeroTotal(t *testing.T) {
	if got := Classify(Sample{Used: 10, Total: 0}, Thresholds{Warning: 0.75, Critical: 0.90}); got != schema.PressureNormal {
		t.Fatalf("zero total must classify normal, got %s", got)
	}
}

func TestObserveIncreaseIsImmediate(t *testing.T) {
	rec := &recorder{}
	m := NewMonitor(Config{}, &fakeSource{}, rec, nil, clock.NewMock())

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m.Observe(schema.PressureWarning, now)
	m.Observe(schema.PressureCritical, now.Add(time.Second))

	want := []schema.PressureLevel{schema.PressureWarning, schema.PressureCritical}
	got := rec.all()
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestObserveDecreaseIsDebounced(t *testing.T) {
	rec := &recorder{}
	m := NewMonitor(Config{StabilityWindow: 5 * time.Second}, &fakeSource{}, rec, nil, clock.NewMock())

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m.Observe(schema.PressureCritical, now)
	// Relief observed, but not yet for the full window.
	m.Observe(schema.PressureNormal, now.Add(time.Second))
	m.Observe(schema.PressureNormal, now.Add(3*time.Second))
	if m.Level() != schema.PressureCritical {
		t.Fatalf("decrease committed early: %s", m.Level())
	}
	// The window elapses.
	m.Observe(schema.PressureNormal, now.Add(7*time.Second))
	if m.Level() != schema.PressureNormal {
		t.Fatalf("expected normal after stability window, got %s", m.Level())
	}
	want := []schema.PressureLevel{schema.PressureCritical, schema.PressureNormal}
	got := rec.all()
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestObserveBounceRestartsWindow(t *testing.T) {
	rec := &recorder{}
	m := NewMonitor(Config{StabilityWindow: 5 * time.Second}, &fakeSource{}, rec, nil, clock.NewMock())

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m.Observe(schema.PressureCritical, now)
	m.Observe(schema.PressureNormal, now.Add(time.Second))
	// Pressure bounces back up before the window elapses.
	m.Observe(schema.PressureCritical, now.Add(2*time.Second))
	// Relief again; the window starts over.
	m.Observe(schema.PressureNormal, now.Add(3*time.Second))
	m.Observe(schema.PressureNormal, now.Add(7*time.Second))
	if m.Level() != schema.PressureCritical {
		t.Fatalf("bounce must restart the window, got %s", m.Level())
	}
	m.Observe(schema.PressureNormal, now.Add(8*time.Second))
	if m.Level() != schema.PressureNormal {
		t.Fatalf("expected normal after restarted window, got %s", m.Level())
	}
}

func TestObserveIntermediateDecreaseCommitsWarning(t *testing.T) {
	rec := &recorder{}
	m := NewMonitor(Config{StabilityWindow: 5 * time.Second}, &fakeSource{}, rec, nil, clock.NewMock())

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m.Observe(schema.PressureCritical, now)
	m.Observe(schema.PressureWarning, now.Add(time.Second))
	m.Observe(schema.PressureWarning, now.Add(7*time.Second))
	if m.Level() != schema.PressureWarning {
		t.Fatalf("expected warning, got %s", m.Level())
	}
}

func TestRunPollsSource(t *testing.T) {
	mock := clock.NewMock()
	src := &fakeSource{}
	src.set(50, 100)
	rec := &recorder{}
	m := NewMonitor(Config{PollInterval: time.Second, StabilityWindow: 5 * time.Second}, src, rec, nil, mock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		_ = m.Run(ctx)
		close(done)
	}()
	// Let Run register its ticker before advancing the mock.
	time.Sleep(10 * time.Millisecond)

	src.set(95, 100)
	mock.Add(time.Second)
	waitForLevels(t, rec, 1)
	if got := rec.all(); got[0] != schema.PressureCritical {
		t.Fatalf("expected critical, got %v", got)
	}

	src.set(10, 100)
	mock.Add(time.Second)
	if got := rec.all(); len(got) != 1 {
		t.Fatalf("decrease must not commit before window, got %v", got)
	}
	mock.Add(6 * time.Second)
	waitForLevels(t, rec, 2)
	if got := rec.all(); got[1] != schema.PressureNormal {
		t.Fatalf("expected normal, got %v", got)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("run did not stop on cancel")
	}
}

func TestRunSurvivesSampleErrors(t *testing.T) {
	mock := clock.NewMock()
	src := &fakeSource{err: errors.New("sysctl failed")}
	rec := &recorder{}
	m := NewMonitor(Config{PollInterval: time.Second}, src, rec, nil, mock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Run(ctx) }()
	time.Sleep(10 * time.Millisecond)

	mock.Add(time.Second)
	src.mu.Lock()
	src.err = nil
	src.sample = Sample{Used: 95, Total: 100}
	src.mu.Unlock()
	mock.Add(time.Second)
	waitForLevels(t, rec, 1)
	if got := rec.all(); got[0] != schema.PressureCritical {
		t.Fatalf("expected critical after recovery, got %v", got)
	}
}

func waitForLevels(t *testing.T, rec *recorder, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(rec.all()) >= n {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d levels, have %v", n, rec.all())
}
