package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ZoneScan/internal/domain/models"
)

type fakeStream struct {
	mu         sync.Mutex
	connected  bool
	subscribed []uint32
	reconnects int
	connectErr error
	tickCh     chan *models.Tick
	errCh      chan error
}

func newFakeStream() *fakeStream {
	return &fakeStream{
		tickCh: make(chan *models.Tick, 16),
		errCh:  make(chan error, 16),
	}
}

func (f *fakeStream) Connect(context.Context) error {
	if f.connectErr != nil {
		return f.connectErr
	}
	f.mu.Lock()
	f.connected = true
	f.mu.Unlock()
	return nil
}

func (f *fakeStream) Subscribe(_ context.Context, tokens []uint32) error {
	f.mu.Lock()
	f.subscribed = tokens
	f.mu.Unlock()
	return nil
}

func (f *fakeStream) Read(context.Context) (<-chan *models.Tick, <-chan error) {
	return f.tickCh, f.errCh
}

func (f *fakeStream) Reconnect(context.Context) error {
	f.mu.Lock()
	f.reconnects++
	f.mu.Unlock()
	return nil
}

func (f *fakeStream) Close() error {
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
	return nil
}

func (f *fakeStream) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeStream) reconnectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reconnects
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

func collectorFixture(t *testing.T) (*TickCollector, *fakeStream, *capturePublisher, *scanMetrics, context.CancelFunc) {
	t.Helper()
	stream := newFakeStream()
	pub := &capturePublisher{}
	m := newScanMetrics()
	proc := NewTickProcessor(pub, &captureStorage{}, m, "kafka")
	uni := &fakeUniverse{instruments: []models.Instrument{
		{TradingSymbol: "INFY", Token: 408065, Exchange: "NSE"},
		{TradingSymbol: "TCS", Token: 2953217, Exchange: "NSE"},
	}}
	c := NewTickCollector(stream, proc, uni, m, nil, "NSE")

	ctx, cancel := context.WithCancel(context.Background())
	if err := c.Start(ctx); err != nil {
		cancel()
		t.Fatalf("Start: %v", err)
	}
	return c, stream, pub, m, cancel
}

func TestCollectorSubscribesUniverseTokens(t *testing.T) {
	c, stream, _, _, cancel := collectorFixture(t)
	defer cancel()
	defer c.Stop()

	if !c.IsConnected() {
		t.Fatal("collector should report connected stream")
	}
	if len(stream.subscribed) != 2 {
		t.Fatalf("subscribed %v, want both universe tokens", stream.subscribed)
	}
}

func TestCollectorResolvesTokenToSymbol(t *testing.T) {
	c, stream, pub, _, cancel := collectorFixture(t)
	defer cancel()
	defer c.Stop()

	// Binary frames carry no symbol.
	stream.tickCh <- &models.Tick{Token: 408065, LastPrice: 1650.5, ExchangeTime: time.Now()}

	waitFor(t, "tick to reach publisher", func() bool { return pub.count() == 1 })
	pub.mu.Lock()
	got := pub.singles[0]
	pub.mu.Unlock()
	if got.Instrument != "INFY" {
		t.Fatalf("token not resolved: %+v", got)
	}
	if got.Exchange != "NSE" {
		t.Fatalf("exchange not filled: %+v", got)
	}
}

func TestCollectorDropsUnknownToken(t *testing.T) {
	c, stream, pub, m, cancel := collectorFixture(t)
	defer cancel()
	defer c.Stop()

	stream.tickCh <- &models.Tick{Token: 999, LastPrice: 1, ExchangeTime: time.Now()}
	stream.tickCh <- &models.Tick{Token: 408065, LastPrice: 2, ExchangeTime: time.Now()}

	waitFor(t, "known tick to pass", func() bool { return pub.count() == 1 })
	m.mu.Lock()
	unknown := m.errs["unknown_token"]
	m.mu.Unlock()
	if unknown != 1 {
		t.Fatalf("unknown token not counted: %v", m.errs)
	}
}

func TestCollectorReconnectsOnStreamError(t *testing.T) {
	c, stream, _, m, cancel := collectorFixture(t)
	defer cancel()
	defer c.Stop()

	stream.errCh <- errors.New("ws dropped")

	waitFor(t, "reconnect attempt", func() bool { return stream.reconnectCount() == 1 })
	m.mu.Lock()
	streamErrs := m.errs["stream"]
	m.mu.Unlock()
	if streamErrs != 1 {
		t.Fatalf("stream error not counted: %v", m.errs)
	}
}

func TestCollectorStartFailsWithEmptyUniverse(t *testing.T) {
	stream := newFakeStream()
	proc := NewTickProcessor(&capturePublisher{}, &captureStorage{}, newScanMetrics(), "kafka")
	c := NewTickCollector(stream, proc, &fakeUniverse{}, newScanMetrics(), nil, "NSE")

	if err := c.Start(context.Background()); err == nil {
		t.Fatal("expected error when universe has no tokens")
	}
	if stream.IsConnected() {
		t.Fatal("must not connect without tokens")
	}
}
