package refreshevents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/mohammed-shakir/route-poi-cache/internal/core/model"
	"github.com/mohammed-shakir/route-poi-cache/internal/core/observability"
	"github.com/mohammed-shakir/route-poi-cache/internal/stations"
)

// Rebuilder is the slice of stations.Service a consumer drives.
type Rebuilder interface {
	Kind() string
	BuildGridFromRedis(ctx context.Context) (stations.GridStats, error)
}

type Consumer struct {
	cfg     Config
	log     *slog.Logger
	targets map[string]Rebuilder

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func NewConsumer(cfg Config, log *slog.Logger, targets ...Rebuilder) *Consumer {
	if log == nil {
		log = slog.Default()
	}
	c := &Consumer{cfg: cfg, log: log, targets: map[string]Rebuilder{}}
	for _, t := range targets {
		c.targets[t.Kind()] = t
	}
	return c
}

// Start joins the consumer group and returns once the loop is running.
func (c *Consumer) Start(ctx context.Context) error {
	if !c.cfg.Enabled {
		c.log.Info("refresh event consumer disabled")
		return nil
	}
	group, err := sarama.NewConsumerGroup(c.cfg.Brokers, c.cfg.GroupID, c.cfg.saramaConfig())
	if err != nil {
		return fmt.Errorf("refreshevents: consumer group: %w", err)
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	h := &groupHandler{process: c.ProcessOne}
	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		for err := range group.Errors() {
			c.log.Warn("refresh event consumer error", "err", err)
		}
	}()
	go func() {
		defer c.wg.Done()
		defer func() {
			if err := group.Close(); err != nil {
				c.log.Error("refresh event consumer close", "err", err)
			}
		}()
		for {
			if err := group.Consume(ctx, []string{c.cfg.Topic}, h); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return
				}
				c.log.Error("refresh event consume", "err", err)
				select {
				case <-time.After(2 * time.Second):
				case <-ctx.Done():
					return
				}
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()
	c.log.Info("refresh event consumer started", "topic", c.cfg.Topic, "group", c.cfg.GroupID)
	return nil
}

func (c *Consumer) Close() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
}

// ProcessOne applies a single event. Malformed, foreign-kind and self-sent
// events are acknowledged without work. An empty Redis tier is not retried;
// any other rebuild failure is returned so the message is redelivered.
func (c *Consumer) ProcessOne(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var ev Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		c.log.WarnContext(ctx, "refresh event malformed", "partition", msg.Partition, "offset", msg.Offset, "err", err)
		observability.ObserveRefreshEvent("unknown", "malformed")
		return nil
	}
	if !ev.Committed || (c.cfg.InstanceID != "" && ev.Source == c.cfg.InstanceID) {
		observability.ObserveRefreshEvent(ev.Kind, "skipped")
		return nil
	}
	target, ok := c.targets[ev.Kind]
	if !ok {
		observability.ObserveRefreshEvent(ev.Kind, "skipped")
		return nil
	}

	stats, err := target.BuildGridFromRedis(ctx)
	switch {
	case errors.Is(err, model.ErrNoData):
		c.log.WarnContext(ctx, "refresh event but redis holds no dataset", "kind", ev.Kind, "source", ev.Source)
		observability.ObserveRefreshEvent(ev.Kind, "no_data")
		return nil
	case err != nil:
		observability.ObserveRefreshEvent(ev.Kind, "rebuild_error")
		return fmt.Errorf("rebuild %s: %w", ev.Kind, err)
	}
	observability.ObserveRefreshEvent(ev.Kind, "rebuilt")
	c.log.InfoContext(ctx, "dataset reloaded after peer refresh", "kind", ev.Kind, "source", ev.Source,
		"records", stats.RecordCount, "cells", stats.CellCount)
	return nil
}

type messageProcessor func(context.Context, *sarama.ConsumerMessage) error

type groupHandler struct {
	process messageProcessor
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim marks a message only after it was applied.
func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := sess.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := h.process(ctx, msg); err != nil {
				return fmt.Errorf("process failed (topic=%s, part=%d, off=%d): %w",
					msg.Topic, msg.Partition, msg.Offset, err)
			}
			sess.MarkMessage(msg, "")
		}
	}
}
