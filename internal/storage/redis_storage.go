package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chargepoint/central-system/internal/config"
	"github.com/go-redis/redis/v8"
)

// RedisStore persists the transaction counter and completed-transaction
// log in Redis, so a restarted central system resumes monotone transaction
// IDs instead of colliding with history.
type RedisStore struct {
	Client       *redis.Client
	CounterKey   string
	LogKey       string
	LogMaxLength int64
}

// NewRedisStore dials Redis and pings it once to surface a misconfigured
// address immediately rather than on first use.
func NewRedisStore(cfg config.RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Addr, err)
	}

	return &RedisStore{
		Client:       client,
		CounterKey:   "centralsystem:txn:counter",
		LogKey:       "centralsystem:txn:log",
		LogMaxLength: 10000,
	}, nil
}

func (r *RedisStore) NextTransactionID(ctx context.Context) (int, error) {
	n, err := r.Client.Incr(ctx, r.CounterKey).Result()
	if err != nil {
		return 0, fmt.Errorf("incr transaction counter: %w", err)
	}
	return int(n), nil
}

func (r *RedisStore) AppendCompletedTransaction(ctx context.Context, rec TransactionRecord) error {
	blob, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal transaction record: %w", err)
	}
	pipe := r.Client.TxPipeline()
	pipe.LPush(ctx, r.LogKey, blob)
	pipe.LTrim(ctx, r.LogKey, 0, r.LogMaxLength-1)
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("append transaction record: %w", err)
	}
	return nil
}

func (r *RedisStore) RecentCompletedTransactions(ctx context.Context, limit int) ([]TransactionRecord, error) {
	if limit <= 0 {
		limit = int(r.LogMaxLength)
	}
	raw, err := r.Client.LRange(ctx, r.LogKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("read transaction log: %w", err)
	}

	out := make([]TransactionRecord, 0, len(raw))
	for _, blob := range raw {
		var rec TransactionRecord
		if err := json.Unmarshal([]byte(blob), &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (r *RedisStore) Close() error {
	return r.Client.Close()
}
