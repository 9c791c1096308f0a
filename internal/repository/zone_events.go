package repository

import (
	"context"
	"time"

	"ZoneScan/internal/domain/models"
	domrepo "ZoneScan/internal/domain/repository"
	pkgkafka "ZoneScan/pkg/kafka"
)

// KafkaZoneEvents publishes zone lifecycle events on the zones topic.
// Detection and mitigation events are keyed by instrument; summaries
// by scan id.
type KafkaZoneEvents struct {
	producer *pkgkafka.Producer
	topic    string
}

var _ domrepo.ZoneEvents = (*KafkaZoneEvents)(nil)

func NewKafkaZoneEvents(producer *pkgkafka.Producer, topic string) *KafkaZoneEvents {
	return &KafkaZoneEvents{producer: producer, topic: topic}
}

func (p *KafkaZoneEvents) PublishDetected(ctx context.Context, ev *models.ZoneEvent) error {
	ev.Event = models.EventZoneDetected
	return p.publish(ctx, ev)
}

func (p *KafkaZoneEvents) PublishMitigated(ctx context.Context, ev *models.ZoneEvent) error {
	ev.Event = models.EventZoneMitigated
	return p.publish(ctx, ev)
}

func (p *KafkaZoneEvents) publish(ctx context.Context, ev *models.ZoneEvent) error {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	return p.producer.Publish(ctx, p.topic, []byte(ev.Instrument), ev)
}

func (p *KafkaZoneEvents) PublishSummary(ctx context.Context, ev *models.ScanSummaryEvent) error {
	ev.Event = models.EventScanSummary
	return p.producer.Publish(ctx, p.topic, []byte(ev.ScanID), ev)
}

func (p *KafkaZoneEvents) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// NopZoneEvents discards events, for deployments without Kafka.
type NopZoneEvents struct{}

var _ domrepo.ZoneEvents = NopZoneEvents{}

func (NopZoneEvents) PublishDetected(context.Context, *models.ZoneEvent) error       { return nil }
func (NopZoneEvents) PublishMitigated(context.Context, *models.ZoneEvent) error      { return nil }
func (NopZoneEvents) PublishSummary(context.Context, *models.ScanSummaryEvent) error { return nil }
func (NopZoneEvents) Close() error                                                   { return nil }
