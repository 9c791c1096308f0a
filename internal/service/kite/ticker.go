package kite

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"ZoneScan/internal/domain/models"
	drepo "ZoneScan/internal/domain/repository"
)

// DefaultWSURL is the production ticker endpoint.
const DefaultWSURL = "wss://ws.kite.trade"

// Ticker implements a MarketStream over the Kite WebSocket feed.
// Quote-mode packets are decoded into Ticks; symbol resolution is the
// consumer's job since the wire carries instrument tokens only.
type Ticker struct {
	apiKey         string
	accessToken    string
	wsURL          string
	reconnectDelay time.Duration
	pingInterval   time.Duration

	conn      *websocket.Conn
	connected bool
	tokens    []uint32

	// gorilla allows a single concurrent writer.
	writeMu sync.Mutex
}

// NewTicker creates a Kite MarketStream.
func NewTicker(apiKey, accessToken, wsURL string, reconnectDelay, pingInterval time.Duration) drepo.MarketStream {
	if wsURL == "" {
		wsURL = DefaultWSURL
	}
	return &Ticker{
		apiKey:         apiKey,
		accessToken:    accessToken,
		wsURL:          wsURL,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
	}
}

// Connect establishes the WebSocket connection.
func (t *Ticker) Connect(ctx context.Context) error {
	u := fmt.Sprintf("%s?api_key=%s&access_token=%s", t.wsURL, t.apiKey, t.accessToken)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("kite ws connect: %w", err)
	}
	t.conn = conn
	t.connected = true
	log.Printf("kite: ticker connected")
	return nil
}

// Subscribe registers the tokens and switches them to quote mode.
func (t *Ticker) Subscribe(ctx context.Context, tokens []uint32) error {
	if t.conn == nil || !t.connected {
		return fmt.Errorf("kite ticker not connected")
	}
	t.tokens = tokens

	if err := t.writeJSON(map[string]interface{}{"a": "subscribe", "v": tokens}); err != nil {
		return fmt.Errorf("subscribe %d tokens: %w", len(tokens), err)
	}
	if err := t.writeJSON(map[string]interface{}{"a": "mode", "v": []interface{}{"quote", tokens}}); err != nil {
		return fmt.Errorf("set quote mode: %w", err)
	}
	log.Printf("kite: subscribed %d tokens", len(tokens))
	return nil
}

type wsNotice struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Read streams Tick events and errors.
func (t *Ticker) Read(ctx context.Context) (<-chan *models.Tick, <-chan error) {
	ticks := make(chan *models.Tick, 4096)
	errs := make(chan error, 1)

	// ping loop
	go func() {
		ticker := time.NewTicker(t.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if t.conn != nil {
					t.writeMu.Lock()
					_ = t.conn.WriteMessage(websocket.PingMessage, nil)
					t.writeMu.Unlock()
				}
			}
		}
	}()

	// read loop
	go func() {
		defer close(ticks)
		defer close(errs)
		for {
			select {
			case <-ctx.Done():
				return
			default:
				if t.conn == nil {
					errs <- fmt.Errorf("kite ticker conn nil")
					return
				}
				msgType, b, err := t.conn.ReadMessage()
				if err != nil {
					errs <- fmt.Errorf("kite ticker read: %w", err)
					return
				}
				switch msgType {
				case websocket.BinaryMessage:
					for _, tick := range parseBinaryFrame(b, time.Now()) {
						select {
						case ticks <- tick:
						default:
							// drop on backpressure
						}
					}
				case websocket.TextMessage:
					var notice wsNotice
					if err := json.Unmarshal(b, &notice); err != nil {
						continue
					}
					if notice.Type == "error" {
						log.Printf("kite: ticker error frame: %s", notice.Data)
					}
				}
			}
		}
	}()

	return ticks, errs
}

// Reconnect closes, waits and re-subscribes the last token set.
func (t *Ticker) Reconnect(ctx context.Context) error {
	_ = t.Close()
	select {
	case <-time.After(t.reconnectDelay):
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := t.Connect(ctx); err != nil {
		return err
	}
	if len(t.tokens) == 0 {
		return nil
	}
	return t.Subscribe(ctx, t.tokens)
}

// Close closes the WS connection.
func (t *Ticker) Close() error {
	t.connected = false
	if t.conn != nil {
		return t.conn.Close()
	}
	return nil
}

// IsConnected indicates status.
func (t *Ticker) IsConnected() bool { return t.connected }

func (t *Ticker) writeJSON(v interface{}) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.conn.WriteJSON(v)
}

// Quote-mode packet offsets, all big-endian int32. LTP packets carry
// the first 8 bytes only; full-mode packets append timestamps from
// byte 44 with the exchange timestamp at byte 60.
const (
	offsetToken     = 0
	offsetLastPrice = 4
	offsetLastQty   = 8
	offsetAvgPrice  = 12
	offsetVolume    = 16
	offsetExchTime  = 60
)

// parseBinaryFrame splits one frame into packets: a 2-byte packet
// count, then length-prefixed packets. One-byte frames are heartbeats.
func parseBinaryFrame(b []byte, now time.Time) []*models.Tick {
	if len(b) < 2 {
		return nil
	}
	count := int(binary.BigEndian.Uint16(b[0:2]))
	ticks := make([]*models.Tick, 0, count)

	offset := 2
	for i := 0; i < count; i++ {
		if offset+2 > len(b) {
			break
		}
		packetLen := int(binary.BigEndian.Uint16(b[offset : offset+2]))
		offset += 2
		if offset+packetLen > len(b) {
			break
		}
		if tick := parsePacket(b[offset:offset+packetLen], now); tick != nil {
			ticks = append(ticks, tick)
		}
		offset += packetLen
	}
	return ticks
}

// parsePacket decodes one tick packet. Prices arrive in paise.
func parsePacket(pkt []byte, now time.Time) *models.Tick {
	if len(pkt) < 8 {
		return nil
	}
	tick := &models.Tick{
		Token:        binary.BigEndian.Uint32(pkt[offsetToken:]),
		LastPrice:    paise(pkt, offsetLastPrice),
		ExchangeTime: now,
		ReceivedAt:   now,
	}
	if len(pkt) >= 44 {
		tick.LastQuantity = binary.BigEndian.Uint32(pkt[offsetLastQty:])
		tick.AveragePrice = paise(pkt, offsetAvgPrice)
		tick.VolumeTraded = binary.BigEndian.Uint32(pkt[offsetVolume:])
	}
	if len(pkt) >= offsetExchTime+4 {
		if ts := binary.BigEndian.Uint32(pkt[offsetExchTime:]); ts > 0 {
			tick.ExchangeTime = time.Unix(int64(ts), 0)
		}
	}
	return tick
}

func paise(pkt []byte, offset int) float64 {
	return float64(int32(binary.BigEndian.Uint32(pkt[offset:]))) / 100
}
