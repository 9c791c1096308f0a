package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ZoneScan/internal/domain/models"
	drepo "ZoneScan/internal/domain/repository"
	pkgkafka "ZoneScan/pkg/kafka"
)

// KafkaTicksHandler drains the ticks topic into ClickHouse. It is the
// consuming half of the kafka backend: the collector publishes raw
// ticks, this handler persists them.
type KafkaTicksHandler struct {
	topic   string
	storage drepo.TickStorage
	metrics drepo.Metrics
}

func NewKafkaTicksHandler(topic string, storage drepo.TickStorage, metrics drepo.Metrics) *KafkaTicksHandler {
	return &KafkaTicksHandler{topic: topic, storage: storage, metrics: metrics}
}

func (h *KafkaTicksHandler) Topic() string { return h.topic }

// Handle parses one published tick. Schema matches the publisher:
// {instrument, token, t, c, q, v, avg} with t in epoch seconds.
func (h *KafkaTicksHandler) Handle(ctx context.Context, b []byte) error {
	var m struct {
		Instrument string  `json:"instrument"`
		Token      uint32  `json:"token"`
		T          int64   `json:"t"`
		C          float64 `json:"c"`
		Q          uint32  `json:"q"`
		V          uint32  `json:"v"`
		Avg        float64 `json:"avg"`
	}
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}
	if m.Instrument == "" {
		h.metrics.RecordError("consumer_invalid")
		return fmt.Errorf("tick message missing instrument")
	}
	if m.T > 1e11 { // ms
		m.T = m.T / 1000
	}
	h.metrics.RecordLatency("ingest_e2e", time.Since(time.Unix(m.T, 0)).Seconds())

	start := time.Now()
	err := h.storage.Store(ctx, &models.Tick{
		Instrument:   m.Instrument,
		Token:        m.Token,
		LastPrice:    m.C,
		LastQuantity: m.Q,
		VolumeTraded: m.V,
		AveragePrice: m.Avg,
		ExchangeTime: time.Unix(m.T, 0).UTC(),
		ReceivedAt:   time.Now().UTC(),
	})
	h.metrics.RecordLatency("tick_insert", time.Since(start).Seconds())
	if err != nil {
		h.metrics.RecordError("consumer_store")
		return err
	}
	h.metrics.RecordMessageSent("clickhouse", m.Instrument)
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaTicksHandler)(nil)
