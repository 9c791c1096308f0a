package middleware

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ZoneScan/internal/domain/models"
)

type fakeMetrics struct {
	mu   sync.Mutex
	errs map[string]int
}

func newFakeMetrics() *fakeMetrics { return &fakeMetrics{errs: map[string]int{}} }

func (m *fakeMetrics) RecordMessageSent(backend, instrument string) {}

func (m *fakeMetrics) RecordError(kind string) {
	m.mu.Lock()
	m.errs[kind]++
	m.mu.Unlock()
}

func (m *fakeMetrics) RecordScan(outcome string)                    {}
func (m *fakeMetrics) RecordZoneDetected(zoneType string)           {}
func (m *fakeMetrics) RecordMitigation()                            {}
func (m *fakeMetrics) RecordAlertSent(kind string)                  {}
func (m *fakeMetrics) RecordLastPrice(instrument string, p float64) {}
func (m *fakeMetrics) SetActiveZones(zoneType string, n int)        {}
func (m *fakeMetrics) RecordLatency(op string, seconds float64)     {}

func (m *fakeMetrics) errCount(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errs[kind]
}

type fakeProc struct {
	calls int
	err   error
}

func (p *fakeProc) Process(ctx context.Context, t *models.Tick) error {
	p.calls++
	return p.err
}

type fakeBatchProc struct {
	mu      sync.Mutex
	batches [][]*models.Tick
	err     error
}

func (p *fakeBatchProc) Process(ctx context.Context, t *models.Tick) error { return p.err }

func (p *fakeBatchProc) ProcessBatch(ctx context.Context, ts []*models.Tick) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.batches = append(p.batches, ts)
	return nil
}

func (p *fakeBatchProc) snapshot() [][]*models.Tick {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]*models.Tick, len(p.batches))
	copy(out, p.batches)
	return out
}

type singlesProc struct {
	mu    sync.Mutex
	calls int
}

func (p *singlesProc) Process(ctx context.Context, t *models.Tick) error {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	return nil
}

func (p *singlesProc) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func tick(instrument string) *models.Tick {
	return &models.Tick{
		Instrument:   instrument,
		Token:        1,
		LastPrice:    100,
		ExchangeTime: time.Date(2024, 8, 12, 9, 15, 0, 0, time.UTC),
	}
}

func TestProcessRejectsInvalidTick(t *testing.T) {
	proc := &fakeProc{}
	p := NewTickPipeline(proc, newFakeMetrics())

	if err := p.Process(context.Background(), &models.Tick{}); err == nil {
		t.Fatal("expected validation error for empty tick")
	}
	if proc.calls != 0 {
		t.Fatalf("downstream called %d times for invalid tick", proc.calls)
	}
}

func TestProcessThrottlesBurst(t *testing.T) {
	proc := &fakeProc{}
	p := NewTickPipeline(proc, newFakeMetrics(), WithMaxRPS(1))

	if err := p.Process(context.Background(), tick("RELIANCE")); err != nil {
		t.Fatalf("first tick: %v", err)
	}
	// immediate second tick for the same instrument is inside the
	// 1-per-second window
	if err := p.Process(context.Background(), tick("RELIANCE")); err != nil {
		t.Fatalf("throttled tick should drop silently, got %v", err)
	}
	if proc.calls != 1 {
		t.Fatalf("downstream called %d times, want 1", proc.calls)
	}

	// a different instrument has its own window
	if err := p.Process(context.Background(), tick("TCS")); err != nil {
		t.Fatalf("other instrument: %v", err)
	}
	if proc.calls != 2 {
		t.Fatalf("downstream called %d times, want 2", proc.calls)
	}
}

func TestProcessBuffersOnDownstreamError(t *testing.T) {
	proc := &fakeProc{err: errors.New("backend down")}
	m := newFakeMetrics()
	p := NewTickPipeline(proc, m, WithBufferSize(4))

	if err := p.Process(context.Background(), tick("RELIANCE")); err == nil {
		t.Fatal("expected downstream error")
	}
	if len(p.bufCh) != 1 {
		t.Fatalf("buffer depth = %d, want 1", len(p.bufCh))
	}
	if m.errCount("pipeline_process") != 1 {
		t.Fatalf("pipeline_process errors = %d, want 1", m.errCount("pipeline_process"))
	}
}

func TestProcessBatchesBySize(t *testing.T) {
	proc := &fakeBatchProc{}
	p := NewTickPipeline(proc, newFakeMetrics(), WithBatch(3, time.Minute))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	defer p.Stop()

	for _, inst := range []string{"RELIANCE", "TCS", "INFY"} {
		if err := p.Process(ctx, tick(inst)); err != nil {
			t.Fatalf("process %s: %v", inst, err)
		}
	}

	waitFor(t, "size-triggered flush", func() bool { return len(proc.snapshot()) == 1 })
	got := proc.snapshot()[0]
	if len(got) != 3 {
		t.Fatalf("batch size = %d, want 3", len(got))
	}
	if got[0].Instrument != "RELIANCE" || got[2].Instrument != "INFY" {
		t.Fatalf("batch order lost: %s .. %s", got[0].Instrument, got[2].Instrument)
	}
}

func TestProcessBatchFlushesOnTimer(t *testing.T) {
	proc := &fakeBatchProc{}
	p := NewTickPipeline(proc, newFakeMetrics(), WithBatch(100, 30*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// enqueue before Start so the first timer window sees both ticks
	if err := p.Process(ctx, tick("RELIANCE")); err != nil {
		t.Fatalf("process: %v", err)
	}
	if err := p.Process(ctx, tick("TCS")); err != nil {
		t.Fatalf("process: %v", err)
	}
	p.Start(ctx)
	defer p.Stop()

	waitFor(t, "timer-triggered flush", func() bool { return len(proc.snapshot()) == 1 })
	if got := proc.snapshot()[0]; len(got) != 2 {
		t.Fatalf("batch size = %d, want 2", len(got))
	}
}

func TestProcessBatchFallsBackToSingles(t *testing.T) {
	proc := &singlesProc{}
	p := NewTickPipeline(proc, newFakeMetrics(), WithBatch(2, time.Minute))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := p.Process(ctx, tick("RELIANCE")); err != nil {
		t.Fatalf("process: %v", err)
	}
	if err := p.Process(ctx, tick("TCS")); err != nil {
		t.Fatalf("process: %v", err)
	}
	p.Start(ctx)
	defer p.Stop()

	waitFor(t, "per-tick fallback", func() bool { return proc.count() == 2 })
}

func TestProcessBatchFlushErrorFillsRetryBuffer(t *testing.T) {
	proc := &fakeBatchProc{err: errors.New("backend down")}
	m := newFakeMetrics()
	p := NewTickPipeline(proc, m, WithBatch(2, time.Minute), WithBufferSize(8))

	if err := p.Process(context.Background(), tick("RELIANCE")); err != nil {
		t.Fatalf("process: %v", err)
	}
	if err := p.Process(context.Background(), tick("TCS")); err != nil {
		t.Fatalf("process: %v", err)
	}
	p.Start(context.Background())
	defer p.Stop()

	waitFor(t, "failed batch to requeue", func() bool { return m.errCount("pipeline_batch_flush") >= 1 })
	waitFor(t, "retry buffer to fill", func() bool { return len(p.bufCh) >= 1 })
}
