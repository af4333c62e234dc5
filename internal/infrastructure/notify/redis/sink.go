package redis

import (
	"context"
	"encoding/json"
	"fmt"

	appnotification "github.com/Zhima-Mochi/minishop-fulfillment/internal/application/notification"

	"github.com/go-redis/redis/v8"
)

const (
	DefaultChannel = "minishop:notifications"
	defaultBacklog = 100
)

// Sink broadcasts envelopes on a Redis pub/sub channel and keeps the most
// recent ones in a capped list for clients that connect late.
type Sink struct {
	client  redis.UniversalClient
	channel string
	recent  string
	backlog int64
}

var _ appnotification.Sink = (*Sink)(nil)

type Option func(*Sink)

// WithBacklog caps the recent list. Zero disables it.
func WithBacklog(n int) Option {
	return func(s *Sink) { s.backlog = int64(n) }
}

func NewSink(client redis.UniversalClient, channel string, opts ...Option) *Sink {
	if channel == "" {
		channel = DefaultChannel
	}
	s := &Sink{
		client:  client,
		channel: channel,
		recent:  channel + ":recent",
		backlog: defaultBacklog,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Sink) Name() string { return "redis" }

func (s *Sink) Send(ctx context.Context, env appnotification.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("redis sink: encode %s: %w", env.Event, err)
	}

	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Publish(ctx, s.channel, data)
		if s.backlog > 0 {
			pipe.LPush(ctx, s.recent, data)
			pipe.LTrim(ctx, s.recent, 0, s.backlog-1)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis sink: publish %s: %w", env.Event, err)
	}
	return nil
}

// Recent returns up to n buffered envelopes, newest first.
func (s *Sink) Recent(ctx context.Context, n int) ([]json.RawMessage, error) {
	if n <= 0 {
		return nil, nil
	}
	raw, err := s.client.LRange(ctx, s.recent, 0, int64(n-1)).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("redis sink: recent: %w", err)
	}
	out := make([]json.RawMessage, 0, len(raw))
	for _, r := range raw {
		out = append(out, json.RawMessage(r))
	}
	return out, nil
}

// Ping reports whether the Redis server is reachable.
func (s *Sink) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
