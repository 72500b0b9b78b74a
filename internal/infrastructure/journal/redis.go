package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stockroom/backend/internal/domain/catalog"
)

const defaultKey = "inventory:partial-transfers"

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// RedisJournal appends entries as JSON to a Redis list so every instance
// sees the same reconciliation backlog.
type RedisJournal struct {
	client *redis.Client
	key    string
}

// NewRedisJournal connects to Redis and verifies the connection
func NewRedisJournal(cfg RedisConfig, key string) (*RedisJournal, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisJournalWithClient(client, key), nil
}

// NewRedisJournalWithClient creates a journal on an existing client
func NewRedisJournalWithClient(client *redis.Client, key string) *RedisJournal {
	if key == "" {
		key = defaultKey
	}
	return &RedisJournal{
		client: client,
		key:    key,
	}
}

// Record appends an entry to the list
func (j *RedisJournal) Record(ctx context.Context, entry catalog.PartialTransfer) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode partial transfer: %w", err)
	}
	if err := j.client.RPush(ctx, j.key, payload).Err(); err != nil {
		return fmt.Errorf("failed to record partial transfer: %w", err)
	}
	return nil
}

// List returns every entry in recording order
func (j *RedisJournal) List(ctx context.Context) ([]catalog.PartialTransfer, error) {
	raw, err := j.client.LRange(ctx, j.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list partial transfers: %w", err)
	}
	entries := make([]catalog.PartialTransfer, 0, len(raw))
	for _, item := range raw {
		var entry catalog.PartialTransfer
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			return nil, fmt.Errorf("failed to decode partial transfer: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Close closes the Redis client
func (j *RedisJournal) Close() error {
	return j.client.Close()
}

var _ catalog.ReconciliationJournal = (*RedisJournal)(nil)
