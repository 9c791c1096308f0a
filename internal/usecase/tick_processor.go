package usecase

import (
	"context"
	"fmt"
	"time"

	"ZoneScan/internal/domain/models"
	drepo "ZoneScan/internal/domain/repository"
)

// TickProcessor routes live ticks to the configured backend: "kafka"
// publishes for the consumer group to persist, "clickhouse" writes
// directly.
type TickProcessor struct {
	pub     drepo.Publisher
	storage drepo.TickStorage
	metrics drepo.Metrics
	backend string
}

func NewTickProcessor(pub drepo.Publisher, storage drepo.TickStorage, metrics drepo.Metrics, backend string) *TickProcessor {
	return &TickProcessor{
		pub:     pub,
		storage: storage,
		metrics: metrics,
		backend: backend,
	}
}

// Process routes a single tick.
func (p *TickProcessor) Process(ctx context.Context, t *models.Tick) error {
	if t == nil {
		return fmt.Errorf("tick is nil")
	}

	start := time.Now()
	var err error

	switch p.backend {
	case "kafka":
		err = p.pub.Publish(ctx, t)
	case "clickhouse":
		err = p.storage.Store(ctx, t)
	default:
		err = fmt.Errorf("unknown backend: %s", p.backend)
	}

	if err != nil {
		p.metrics.RecordError("process")
		return fmt.Errorf("process tick: %w", err)
	}

	p.metrics.RecordMessageSent(p.backend, t.Instrument)
	p.metrics.RecordLatency("process", time.Since(start).Seconds())

	return nil
}

// ProcessBatch routes multiple ticks in one backend call.
func (p *TickProcessor) ProcessBatch(ctx context.Context, ticks []*models.Tick) error {
	if len(ticks) == 0 {
		return nil
	}

	start := time.Now()
	var err error

	switch p.backend {
	case "kafka":
		err = p.pub.PublishBatch(ctx, ticks)
	case "clickhouse":
		err = p.storage.StoreBatch(ctx, ticks)
	default:
		err = fmt.Errorf("unknown backend: %s", p.backend)
	}

	if err != nil {
		p.metrics.RecordError("process_batch")
		return fmt.Errorf("process batch: %w", err)
	}

	for _, t := range ticks {
		p.metrics.RecordMessageSent(p.backend, t.Instrument)
	}
	p.metrics.RecordLatency("process_batch", time.Since(start).Seconds())

	return nil
}

// Close releases the backend handles.
func (p *TickProcessor) Close() {
	if p.pub != nil {
		_ = p.pub.Close()
	}
	if p.storage != nil {
		_ = p.storage.Close()
	}
}
