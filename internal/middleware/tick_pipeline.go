package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ZoneScan/internal/domain/models"
	domrepo "ZoneScan/internal/domain/repository"
)

// Proc is the minimal downstream interface the pipeline needs.
type Proc interface {
	Process(ctx context.Context, t *models.Tick) error
}

// BatchProc is the optional batch capability of the downstream.
type BatchProc interface {
	ProcessBatch(ctx context.Context, ts []*models.Tick) error
}

// TickPipeline sits between the websocket stream and the backend. It
// validates and throttles per instrument, buffering ticks the
// downstream rejected for a background retry with backoff. With
// batching enabled, accepted ticks are grouped and handed downstream
// as one ProcessBatch call per batch.
type TickPipeline struct {
	proc       Proc
	metrics    domrepo.Metrics
	maxRPS     int
	bufSize    int
	bufCh      chan *models.Tick
	batchSize  int
	batchFlush time.Duration
	batchCh    chan *models.Tick
	stopCh     chan struct{}
	started    bool
	mu         sync.Mutex
	lastSeen   map[string]time.Time // per-instrument last accepted time

	bufDepthGauge func(int)
	throttleWarn  func(string)
}

type PipelineOption func(*TickPipeline)

// WithMaxRPS caps accepted ticks per second per instrument.
func WithMaxRPS(n int) PipelineOption {
	return func(p *TickPipeline) {
		if n > 0 {
			p.maxRPS = n
		}
	}
}

// WithBufferSize sets the holding buffer used while the backend is
// unavailable.
func WithBufferSize(n int) PipelineOption {
	return func(p *TickPipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// WithBatch groups accepted ticks and flushes them downstream once
// size ticks accumulate or flush elapses, whichever comes first.
func WithBatch(size int, flush time.Duration) PipelineOption {
	return func(p *TickPipeline) {
		if size > 1 && flush > 0 {
			p.batchSize = size
			p.batchFlush = flush
		}
	}
}

// NewTickPipeline creates a pipeline in front of proc.
func NewTickPipeline(proc Proc, metrics domrepo.Metrics, opts ...PipelineOption) *TickPipeline {
	p := &TickPipeline{
		proc:     proc,
		metrics:  metrics,
		maxRPS:   20,
		bufSize:  1000,
		bufCh:    make(chan *models.Tick, 1000),
		stopCh:   make(chan struct{}),
		lastSeen: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.bufSize != cap(p.bufCh) {
		p.bufCh = make(chan *models.Tick, p.bufSize)
	}
	if p.batchSize > 1 {
		p.batchCh = make(chan *models.Tick, 2*p.batchSize)
	}
	p.bufDepthGauge = func(n int) { p.metrics.RecordLatency("pipeline_buffer_depth", float64(n)) }
	p.throttleWarn = func(inst string) { p.metrics.RecordError("pipeline_throttle_" + inst) }
	return p
}

// Start launches background flushing of buffered ticks and, when
// batching is on, the batch loop.
func (p *TickPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	if p.batchCh != nil {
		go p.batchLoop(ctx)
	}

	go func() {
		backoff := 50 * time.Millisecond
		for {
			select {
			case <-p.stopCh:
				return
			case t := <-p.bufCh:
				if t == nil {
					continue
				}
				if err := p.proc.Process(ctx, t); err != nil {
					if backoff < 2*time.Second {
						backoff *= 2
					}
					p.metrics.RecordError("pipeline_flush")
					time.Sleep(backoff)
					// requeue if space; drop otherwise
					select {
					case p.bufCh <- t:
					default:
						p.metrics.RecordError("pipeline_buffer_drop")
					}
				} else {
					backoff = 50 * time.Millisecond
				}
			}
		}
	}()
}

// Stop halts the background flusher.
func (p *TickPipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()
	close(p.stopCh)
}

// Process validates and throttles one tick, forwarding it downstream
// and buffering on failure. With batching on, accepted ticks queue
// for the batch loop instead.
func (p *TickPipeline) Process(ctx context.Context, t *models.Tick) error {
	start := time.Now()
	if err := validateTick(t); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	if !p.allow(t.Instrument, start) {
		// throttled ticks are dropped, not errors
		p.metrics.RecordError("pipeline_throttle")
		if p.throttleWarn != nil {
			p.throttleWarn(t.Instrument)
		}
		return nil
	}

	if p.batchCh != nil {
		select {
		case p.batchCh <- t:
		default:
			p.metrics.RecordError("pipeline_batch_full")
		}
		return nil
	}

	if err := p.proc.Process(ctx, t); err != nil {
		p.metrics.RecordError("pipeline_process")
		select {
		case p.bufCh <- t:
			if p.bufDepthGauge != nil {
				p.bufDepthGauge(len(p.bufCh))
			}
		default:
			p.metrics.RecordError("pipeline_buffer_full")
		}
		return fmt.Errorf("pipeline downstream: %w", err)
	}
	p.metrics.RecordLatency("pipeline_process", time.Since(start).Seconds())
	return nil
}

// batchLoop drains batchCh, flushing downstream when the batch fills
// or the flush timer fires. On stop it flushes whatever is pending.
func (p *TickPipeline) batchLoop(ctx context.Context) {
	batch := make([]*models.Tick, 0, p.batchSize)
	timer := time.NewTimer(p.batchFlush)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		p.flushBatch(ctx, batch)
		batch = batch[:0]
	}

	for {
		select {
		case <-p.stopCh:
			for {
				select {
				case t := <-p.batchCh:
					batch = append(batch, t)
				default:
					flush()
					return
				}
			}
		case t := <-p.batchCh:
			batch = append(batch, t)
			if len(batch) >= p.batchSize {
				flush()
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(p.batchFlush)
			}
		case <-timer.C:
			flush()
			timer.Reset(p.batchFlush)
		}
	}
}

// flushBatch hands a batch downstream, falling back to per-tick calls
// when the downstream has no batch support. Rejected ticks go to the
// retry buffer.
func (p *TickPipeline) flushBatch(ctx context.Context, ts []*models.Tick) {
	start := time.Now()
	if bp, ok := p.proc.(BatchProc); ok {
		// the loop reuses ts's backing array, so hand downstream a copy
		if err := bp.ProcessBatch(ctx, append([]*models.Tick(nil), ts...)); err != nil {
			p.metrics.RecordError("pipeline_batch_flush")
			p.requeue(ts)
			return
		}
		p.metrics.RecordLatency("pipeline_batch_flush", time.Since(start).Seconds())
		return
	}
	for _, t := range ts {
		if err := p.proc.Process(ctx, t); err != nil {
			p.metrics.RecordError("pipeline_batch_flush")
			p.requeue([]*models.Tick{t})
		}
	}
}

func (p *TickPipeline) requeue(ts []*models.Tick) {
	for _, t := range ts {
		select {
		case p.bufCh <- t:
		default:
			p.metrics.RecordError("pipeline_buffer_drop")
		}
	}
}

func validateTick(t *models.Tick) error {
	if t == nil {
		return fmt.Errorf("tick nil")
	}
	if t.Instrument == "" {
		return fmt.Errorf("instrument empty")
	}
	if t.ExchangeTime.IsZero() {
		return fmt.Errorf("exchange time missing")
	}
	if t.LastPrice < 0 {
		return fmt.Errorf("negative price")
	}
	return nil
}

func (p *TickPipeline) allow(instrument string, now time.Time) bool {
	if p.maxRPS <= 0 {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	last := p.lastSeen[instrument]
	if last.IsZero() {
		p.lastSeen[instrument] = now
		return true
	}
	if now.Sub(last) < time.Second/time.Duration(p.maxRPS) {
		return false
	}
	p.lastSeen[instrument] = now
	return true
}
