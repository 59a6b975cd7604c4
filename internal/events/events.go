package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/orrn/printdispatch/internal/config"
)

type Type string

const (
	JobEnqueued  Type = "job_enqueued"
	JobClaimed   Type = "job_claimed"
	JobCompleted Type = "job_completed"
	JobFailed    Type = "job_failed"
	JobRetried   Type = "job_retried"
	JobStale     Type = "job_stale"
)

type JobData struct {
	JobID        string `json:"job_id"`
	RestaurantID int64  `json:"restaurant_id"`
	JobType      string `json:"job_type,omitempty"`
	Status       string `json:"status,omitempty"`
	Client       string `json:"client,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	RetryCount   int    `json:"retry_count,omitempty"`
	AgeSeconds   int64  `json:"age_seconds,omitempty"`
}

type Event struct {
	Event     Type      `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	Data      JobData   `json:"data"`
}

// Publisher delivers job side effects to whoever listens. Publishing is best
// effort; callers log failures and carry on.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

type RedisPublisher struct {
	client  *redis.Client
	channel string
}

func NewRedisPublisher(ctx context.Context, cfg config.EventsConfig) (*RedisPublisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &RedisPublisher{client: client, channel: cfg.Channel}, nil
}

func (p *RedisPublisher) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

// LogPublisher writes events to the log. It is used when no redis address is
// configured.
type LogPublisher struct {
	log *zap.Logger
}

func NewLogPublisher(log *zap.Logger) *LogPublisher {
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(ctx context.Context, ev Event) error {
	p.log.Debug("job event",
		zap.String("event", string(ev.Event)),
		zap.String("job_id", ev.Data.JobID),
		zap.Int64("restaurant_id", ev.Data.RestaurantID),
		zap.String("status", ev.Data.Status),
	)
	return nil
}

// New returns a redis publisher when an address is configured, otherwise a
// log publisher. The returned close func is always safe to call.
func New(ctx context.Context, cfg config.EventsConfig, log *zap.Logger) (Publisher, func() error, error) {
	if cfg.RedisAddr == "" {
		return NewLogPublisher(log), func() error { return nil }, nil
	}
	p, err := NewRedisPublisher(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return p, p.Close, nil
}
