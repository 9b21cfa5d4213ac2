package changefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisBus shares changes between server instances. Publish writes to a
// single Redis pub/sub channel; a forwarder started with Start relays every
// message into a local MemoryBus, which owns the per-patient subscriptions.
type RedisBus struct {
	rdb     *goredis.Client
	channel string
	local   *MemoryBus
	logger  zerolog.Logger
}

// NewRedisBus connects to redisURL (redis://...) and verifies the connection.
func NewRedisBus(ctx context.Context, redisURL, channel string, logger zerolog.Logger) (*RedisBus, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = 5 * time.Second
	}
	rdb := goredis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return newRedisBus(rdb, channel, logger), nil
}

func newRedisBus(rdb *goredis.Client, channel string, logger zerolog.Logger) *RedisBus {
	l := logger.With().Str("component", "changefeed.redis").Logger()
	return &RedisBus{
		rdb:     rdb,
		channel: channel,
		local:   NewMemoryBus(l),
		logger:  l,
	}
}

func (b *RedisBus) Publish(ctx context.Context, c Change) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode change: %w", err)
	}
	if err := b.rdb.Publish(ctx, b.channel, raw).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

func (b *RedisBus) Subscribe(ctx context.Context, patientID uuid.UUID, h Handlers) (*Subscription, error) {
	return b.local.Subscribe(ctx, patientID, h)
}

// Start subscribes to the Redis channel and forwards messages until ctx is
// done. It returns once the subscription is confirmed.
func (b *RedisBus) Start(ctx context.Context) error {
	sub := b.rdb.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					return
				}
				b.forward(ctx, []byte(m.Payload))
			}
		}
	}()
	return nil
}

func (b *RedisBus) forward(ctx context.Context, payload []byte) {
	var c Change
	if err := json.Unmarshal(payload, &c); err != nil {
		b.logger.Warn().Err(err).Msg("bad change feed payload")
		return
	}
	_ = b.local.Publish(ctx, c)
}

// Ping reports whether Redis is reachable; used by the health endpoint.
func (b *RedisBus) Ping(ctx context.Context) error {
	return b.rdb.Ping(ctx).Err()
}

func (b *RedisBus) Close() error {
	return b.rdb.Close()
}
