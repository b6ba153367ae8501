package consumer

import (
	"context"
	"errors"
	"fmt"
	"time"

	rediscommon "listing-discovery/common/redis"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const (
	defaultBlock    = 2 * time.Second
	minRetryBackoff = time.Second
	maxRetryBackoff = 30 * time.Second
)

// StreamConfig identifies the stream and this consumer's place in its group
type StreamConfig struct {
	Stream    string
	Group     string
	Consumer  string
	BatchSize int64
	// Block is the XREADGROUP wait; 0 means defaultBlock
	Block time.Duration
}

// StreamConsumer applies listing events from a Redis stream consumer group.
// Entries that fail stay pending and are replayed on the next Start.
type StreamConsumer struct {
	client     *redis.Client
	dispatcher *Dispatcher
	cfg        StreamConfig
	logger     *zap.Logger
}

func NewStreamConsumer(client *redis.Client, dispatcher *Dispatcher, cfg StreamConfig, logger *zap.Logger) *StreamConsumer {
	if cfg.Block <= 0 {
		cfg.Block = defaultBlock
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	return &StreamConsumer{client: client, dispatcher: dispatcher, cfg: cfg, logger: logger}
}

// Start replays this consumer's pending entries, then consumes new ones until
// ctx is done. Read errors back off exponentially.
func (c *StreamConsumer) Start(ctx context.Context) error {
	if err := rediscommon.CreateConsumerGroup(ctx, c.client, c.cfg.Stream, c.cfg.Group); err != nil {
		return fmt.Errorf("create consumer group %s on %s: %w", c.cfg.Group, c.cfg.Stream, err)
	}

	log := c.logger.With(
		zap.String("stream", c.cfg.Stream),
		zap.String("consumer_group", c.cfg.Group),
		zap.String("consumer_name", c.cfg.Consumer),
	)
	if n, err := c.replayPending(ctx); err != nil {
		log.Warn("Pending listing events not replayed", zap.Error(err))
	} else if n > 0 {
		log.Info("Replayed pending listing events", zap.Int("acked", n))
	}
	log.Info("Listing event consumer started")

	backoff := minRetryBackoff
	for ctx.Err() == nil {
		_, err := c.consumeOnce(ctx)
		if err == nil {
			backoff = minRetryBackoff
			continue
		}
		if ctx.Err() != nil {
			break
		}
		log.Error("Failed to consume listing events", zap.Error(err), zap.Duration("backoff", backoff))

		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
		case <-t.C:
		}
		if backoff *= 2; backoff > maxRetryBackoff {
			backoff = maxRetryBackoff
		}
	}
	return nil
}

// replayPending walks the pending list once. Entries that fail again stay
// pending; the walk stops when a batch acks nothing.
func (c *StreamConsumer) replayPending(ctx context.Context) (int, error) {
	total := 0
	for {
		msgs, err := rediscommon.ReadPending(ctx, c.client, c.cfg.Stream, c.cfg.Group, c.cfg.Consumer, c.cfg.BatchSize)
		if err != nil {
			return total, err
		}
		acked := c.handle(ctx, msgs)
		total += acked
		if acked == 0 || len(msgs) < int(c.cfg.BatchSize) {
			return total, nil
		}
	}
}

// consumeOnce reads one batch of new entries and returns how many were acked
func (c *StreamConsumer) consumeOnce(ctx context.Context) (int, error) {
	msgs, err := rediscommon.ReadFromStream(ctx, c.client, c.cfg.Stream, c.cfg.Group, c.cfg.Consumer, c.cfg.BatchSize, c.cfg.Block)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", c.cfg.Stream, err)
	}
	return c.handle(ctx, msgs), nil
}

func (c *StreamConsumer) handle(ctx context.Context, msgs []rediscommon.StreamMessage) int {
	acked := 0
	for _, msg := range msgs {
		data, ok := msg.Payload()
		if !ok {
			// unparseable forever; ack so it does not block replay
			c.logger.Warn("Dropping stream entry without payload", zap.String("message_id", msg.ID))
		} else if err := c.dispatcher.DispatchJSON(ctx, data); errors.Is(err, ErrMalformedEvent) {
			c.logger.Warn("Dropping malformed listing event", zap.String("message_id", msg.ID), zap.Error(err))
		} else if err != nil {
			c.logger.Error("Failed to apply listing event", zap.String("message_id", msg.ID), zap.Error(err))
			continue
		}
		if err := rediscommon.AckMessage(ctx, c.client, c.cfg.Stream, c.cfg.Group, msg.ID); err != nil {
			c.logger.Warn("Failed to ack listing event", zap.String("message_id", msg.ID), zap.Error(err))
			continue
		}
		acked++
	}
	return acked
}
