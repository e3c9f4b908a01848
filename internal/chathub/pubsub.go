package chathub

import (
	"campusfix/backend/internal/config"
	"campusfix/backend/internal/models"
	"context"
	"encoding/json"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Broker carries message events between server instances.
type Broker interface {
	Publish(ctx context.Context, ev models.MessageEvent) error
	// Subscribe returns every event published from now on. The returned
	// function ends the subscription and closes the channel.
	Subscribe(ctx context.Context) (<-chan models.MessageEvent, func() error, error)
}

// RedisBroker publishes each event on "complaint:<id>" and listens on the
// "complaint:*" pattern.
type RedisBroker struct {
	rdb *redis.Client
	log *zap.Logger
}

func NewRedisBroker(rdb *redis.Client, log *zap.Logger) *RedisBroker {
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisBroker{rdb: rdb, log: log}
}

func (b *RedisBroker) Publish(ctx context.Context, ev models.MessageEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, config.ComplaintChannelPrefix+ev.ComplaintID, payload).Err()
}

func (b *RedisBroker) Subscribe(ctx context.Context) (<-chan models.MessageEvent, func() error, error) {
	pubsub := b.rdb.PSubscribe(ctx, config.ComplaintChannelPattern)
	// Wait for the subscription confirmation so no publish is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, nil, err
	}

	out := make(chan models.MessageEvent, eventBuffer)
	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			var ev models.MessageEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				b.log.Warn("chat broker: bad payload", zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			if ev.ComplaintID != strings.TrimPrefix(msg.Channel, config.ComplaintChannelPrefix) {
				b.log.Warn("chat broker: channel and payload disagree", zap.String("channel", msg.Channel))
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, pubsub.Close, nil
}
