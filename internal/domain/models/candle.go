package models

import "time"

// Candle represents one OHLCV bar as fetched from the broker's
// historical API. Series handed to the detector are sorted strictly
// ascending by timestamp.
type Candle struct {
	Instrument string    `json:"instrument"`
	Exchange   string    `json:"exchange"`
	Interval   string    `json:"interval"`
	Timestamp  time.Time `json:"timestamp"`
	Open       float64   `json:"open"`
	High       float64   `json:"high"`
	Low        float64   `json:"low"`
	Close      float64   `json:"close"`
	Volume     int64     `json:"volume"`
}

// Tick is a single last-traded-price update from the market stream.
type Tick struct {
	Instrument   string    `json:"instrument"`
	Token        uint32    `json:"token"`
	Exchange     string    `json:"exchange"`
	LastPrice    float64   `json:"last_price"`
	LastQuantity uint32    `json:"last_quantity,omitempty"`
	VolumeTraded uint32    `json:"volume_traded,omitempty"`
	AveragePrice float64   `json:"average_price,omitempty"`
	ExchangeTime time.Time `json:"exchange_time"`
	ReceivedAt   time.Time `json:"received_at"`
}

// Instrument identifies one tradable scrip in the scan universe.
type Instrument struct {
	Token          uint32 `json:"instrument_token"`
	TradingSymbol  string `json:"tradingsymbol"`
	Name           string `json:"name,omitempty"`
	Exchange       string `json:"exchange"`
	Segment        string `json:"segment,omitempty"`
	InstrumentType string `json:"instrument_type,omitempty"`
	LotSize        int    `json:"lot_size,omitempty"`
}
