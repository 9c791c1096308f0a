package usecase

import (
	"context"
	"fmt"

	"ZoneScan/internal/domain/models"
	drepo "ZoneScan/internal/domain/repository"
	dsvc "ZoneScan/internal/domain/service"
	mid "ZoneScan/internal/middleware"
)

// TickCollector subscribes the broker websocket to the scan universe
// and feeds ticks through the pipeline into the processor. Binary
// frames carry only the instrument token, so the collector resolves
// symbols from the universe snapshot taken at Start.
type TickCollector struct {
	stream   drepo.MarketStream
	proc     *TickProcessor
	universe dsvc.UniverseProvider
	metrics  drepo.Metrics
	pipe     *mid.TickPipeline
	exchange string

	symbols map[uint32]string
}

func NewTickCollector(
	stream drepo.MarketStream,
	proc *TickProcessor,
	universe dsvc.UniverseProvider,
	metrics drepo.Metrics,
	pipe *mid.TickPipeline,
	exchange string,
) *TickCollector {
	return &TickCollector{
		stream:   stream,
		proc:     proc,
		universe: universe,
		metrics:  metrics,
		pipe:     pipe,
		exchange: exchange,
	}
}

// IsConnected reports whether the websocket is up.
func (c *TickCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

// Start connects, subscribes every universe token and launches the
// consume loop. Returns without blocking.
func (c *TickCollector) Start(ctx context.Context) error {
	instruments, err := c.universe.Instruments(ctx)
	if err != nil {
		return fmt.Errorf("resolve universe: %w", err)
	}

	c.symbols = make(map[uint32]string, len(instruments))
	tokens := make([]uint32, 0, len(instruments))
	for _, inst := range instruments {
		if inst.Token == 0 {
			continue
		}
		c.symbols[inst.Token] = inst.TradingSymbol
		tokens = append(tokens, inst.Token)
	}
	if len(tokens) == 0 {
		return fmt.Errorf("universe has no subscribable tokens")
	}

	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx, tokens); err != nil {
		return err
	}
	if c.pipe != nil {
		c.pipe.Start(ctx)
	}

	tickCh, errCh := c.stream.Read(ctx)
	go c.consume(ctx, tickCh, errCh)
	return nil
}

func (c *TickCollector) consume(ctx context.Context, tickCh <-chan *models.Tick, errCh <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-errCh:
			if err != nil {
				c.metrics.RecordError("stream")
				_ = c.stream.Reconnect(ctx)
			}
		case t := <-tickCh:
			if t == nil {
				continue
			}
			c.resolve(t)
			if t.Instrument == "" {
				c.metrics.RecordError("unknown_token")
				continue
			}
			if c.pipe != nil {
				_ = c.pipe.Process(ctx, t)
			} else {
				_ = c.proc.Process(ctx, t)
			}
			c.metrics.RecordLastPrice(t.Instrument, t.LastPrice)
		}
	}
}

// resolve fills identity fields the binary frame does not carry.
func (c *TickCollector) resolve(t *models.Tick) {
	if t.Instrument == "" {
		t.Instrument = c.symbols[t.Token]
	}
	if t.Exchange == "" {
		t.Exchange = c.exchange
	}
}

func (c *TickCollector) Stop() error { return c.stream.Close() }

// Processor exposes the underlying TickProcessor for lifecycle
// management.
func (c *TickCollector) Processor() *TickProcessor { return c.proc }

// Shutdown stops the pipeline and closes the stream.
func (c *TickCollector) Shutdown(ctx context.Context) error {
	if c.pipe != nil {
		c.pipe.Stop()
	}
	return c.stream.Close()
}
