package forwarding

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"github.com/KirkDiggler/pinball-core/internal/errors"
)

// DefaultRedisChannel is used when RedisSinkConfig.Channel is empty
const DefaultRedisChannel = "pinball:events"

// RedisSinkConfig configures a RedisSink
type RedisSinkConfig struct {
	Client  redis.UniversalClient
	Channel string
}

// RedisSink publishes every message as JSON on a channel. The latest active
// stack is also kept under <channel>:active_modes for late subscribers.
type RedisSink struct {
	client  redis.UniversalClient
	channel string
}

// NewRedisSink creates a RedisSink
func NewRedisSink(cfg *RedisSinkConfig) (*RedisSink, error) {
	if cfg == nil || cfg.Client == nil {
		return nil, errors.InvalidArgumentf("redis sink requires a client")
	}

	channel := cfg.Channel
	if channel == "" {
		channel = DefaultRedisChannel
	}

	return &RedisSink{
		client:  cfg.Client,
		channel: channel,
	}, nil
}

// Name identifies the sink in logs
func (s *RedisSink) Name() string {
	return "redis"
}

// ActiveModesKey is where the latest active stack snapshot is stored
func (s *RedisSink) ActiveModesKey() string {
	return s.channel + ":active_modes"
}

// Send publishes msg
func (s *RedisSink) Send(ctx context.Context, msg *Message) error {
	if msg == nil {
		return errors.InvalidArgumentf("message is required")
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrapf(err, "failed to marshal %s message", msg.Type)
	}

	if msg.Type == MessageTypeActiveModes {
		snapshot, err := json.Marshal(msg.Modes)
		if err != nil {
			return errors.Wrapf(err, "failed to marshal active modes")
		}
		if err := s.client.Set(ctx, s.ActiveModesKey(), string(snapshot), 0).Err(); err != nil {
			return errors.Wrapf(err, "failed to store active modes")
		}
	}

	if err := s.client.Publish(ctx, s.channel, string(data)).Err(); err != nil {
		return errors.Wrapf(err, "failed to publish %s", msg.Event).WithMeta("channel", s.channel)
	}
	return nil
}
