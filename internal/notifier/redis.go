package notifier

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// EventsChannel is the pub/sub channel the UI subscription layer listens on.
const EventsChannel = "jobs:events"

// RedisOptions configures the Redis notifier connection.
type RedisOptions struct {
	Addr     string
	Username string
	Password string
	UseTLS   bool
}

// RedisNotifier publishes events to a Redis pub/sub channel.
type RedisNotifier struct {
	client *redis.Client
	logger zerolog.Logger
}

func NewRedisNotifier(ctx context.Context, opts RedisOptions, logger zerolog.Logger) (*RedisNotifier, error) {
	var tlsConfig *tls.Config
	if opts.UseTLS {
		tlsConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Username:     opts.Username,
		Password:     opts.Password,
		TLSConfig:    tlsConfig,
		DialTimeout:  10 * time.Second,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, err
	}
	return &RedisNotifier{client: client, logger: logger}, nil
}

func (n *RedisNotifier) Publish(ctx context.Context, event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		n.logger.Error().Err(err).Str("job_id", event.JobID).Msg("notifier: encode event failed")
		return
	}
	// Bounded so a slow broker cannot stall reconciliation.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := n.client.Publish(pubCtx, EventsChannel, payload).Err(); err != nil {
		n.logger.Warn().Err(err).Str("job_id", event.JobID).Msg("notifier: publish failed")
	}
}

// Close releases the underlying Redis connection.
func (n *RedisNotifier) Close() error {
	return n.client.Close()
}

var _ Notifier = (*RedisNotifier)(nil)
