// Package refreshevents announces committed station refreshes on Kafka so that
// other instances reload their in-process dataset from Redis.
package refreshevents

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"

	"github.com/mohammed-shakir/route-poi-cache/internal/core/observability"
	"github.com/mohammed-shakir/route-poi-cache/internal/stations"
)

type Event struct {
	Kind      string    `json:"kind"`
	Records   int       `json:"records"`
	Regions   []string  `json:"regions,omitempty"`
	Committed bool      `json:"committed"`
	Source    string    `json:"source"`
	TS        time.Time `json:"ts"`
}

type Config struct {
	Enabled          bool
	Brokers          []string
	Topic            string
	GroupID          string
	InstanceID       string
	SessionTimeout   time.Duration
	Heartbeat        time.Duration
	RebalanceTimeout time.Duration
}

func (c Config) saramaConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.ClientID = "route-poi-cache"
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.Retry.Max = 3
	if c.SessionTimeout > 0 {
		cfg.Consumer.Group.Session.Timeout = c.SessionTimeout
	}
	if c.Heartbeat > 0 {
		cfg.Consumer.Group.Heartbeat.Interval = c.Heartbeat
	}
	if c.RebalanceTimeout > 0 {
		cfg.Consumer.Group.Rebalance.Timeout = c.RebalanceTimeout
	}
	// a fresh instance only cares about refreshes that happen after it joins
	cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	cfg.Consumer.Return.Errors = true
	return cfg
}

type Publisher struct {
	topic  string
	source string
	prod   sarama.SyncProducer
	log    *slog.Logger
	now    func() time.Time
}

func NewPublisher(cfg Config, log *slog.Logger) (*Publisher, error) {
	prod, err := sarama.NewSyncProducer(cfg.Brokers, cfg.saramaConfig())
	if err != nil {
		return nil, fmt.Errorf("refreshevents: create sync producer: %w", err)
	}
	return newPublisher(prod, cfg.Topic, cfg.InstanceID, log), nil
}

func newPublisher(prod sarama.SyncProducer, topic, source string, log *slog.Logger) *Publisher {
	if log == nil {
		log = slog.Default()
	}
	return &Publisher{topic: topic, source: source, prod: prod, log: log, now: time.Now}
}

// Publish sends one event per committed refresh. The kind is the message key,
// so events for one dataset stay ordered on a single partition.
func (p *Publisher) Publish(ctx context.Context, res stations.RefreshResult) error {
	if !res.Committed {
		return nil
	}
	ev := Event{
		Kind:      res.Kind,
		Records:   res.TotalRecords,
		Regions:   res.Regions,
		Committed: true,
		Source:    p.source,
		TS:        p.now().UTC(),
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("refreshevents: marshal: %w", err)
	}
	part, off, err := p.prod.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(res.Kind),
		Value: sarama.ByteEncoder(b),
	})
	if err != nil {
		observability.ObserveRefreshEvent(res.Kind, "publish_error")
		return fmt.Errorf("refreshevents: send %s: %w", res.Kind, err)
	}
	observability.ObserveRefreshEvent(res.Kind, "published")
	p.log.DebugContext(ctx, "refresh event published", "kind", res.Kind, "partition", part, "offset", off)
	return nil
}

// Listener adapts Publish to stations.Service.OnRefresh. A failed publish only
// delays peers until their next read falls through to Redis.
func (p *Publisher) Listener() func(context.Context, stations.RefreshResult) {
	return func(ctx context.Context, res stations.RefreshResult) {
		if err := p.Publish(ctx, res); err != nil {
			p.log.WarnContext(ctx, "refresh event not published", "kind", res.Kind, "err", err)
		}
	}
}

func (p *Publisher) Close() error {
	if err := p.prod.Close(); err != nil {
		return fmt.Errorf("refreshevents: close producer: %w", err)
	}
	return nil
}
