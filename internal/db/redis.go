package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/clipbid/marketplace/internal/models"
)

// PayoutEventChannel carries payout lifecycle notifications for external
// disbursement workers.
const PayoutEventChannel = "payout-events"

// decisionCacheTTL bounds how long a decided submission stays in the retry
// fast path.
const decisionCacheTTL = 24 * time.Hour

// RedisStore wraps a redis client and context for marketplace operations:
// the decision retry cache, payout pub/sub, and view sync counters.
type RedisStore struct {
	Client *redis.Client
	Ctx    context.Context
}

// InitRedis initializes a Redis client and returns a RedisStore.
func InitRedis(addr string) (*RedisStore, error) {
	rs := &RedisStore{
		Client: redis.NewClient(&redis.Options{Addr: addr}),
		Ctx:    context.Background(),
	}

	if err := redisotel.InstrumentTracing(rs.Client); err != nil {
		return nil, fmt.Errorf("failed to instrument redis tracing: %w", err)
	}

	if err := rs.Client.Ping(rs.Ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	zap.L().Info("Connected to Redis", zap.String("addr", addr))
	return rs, nil
}

// CacheDecision stores the decided submission so retried decide calls can be
// answered without touching the primary store. Best effort only; the store
// remains authoritative.
func (r *RedisStore) CacheDecision(sub *models.Submission) error {
	if r == nil || r.Client == nil {
		return nil
	}
	data, err := json.Marshal(sub)
	if err != nil {
		return err
	}
	key := fmt.Sprintf("decision:%s", sub.ID)
	return r.Client.Set(r.Ctx, key, data, decisionCacheTTL).Err()
}

// CachedDecision returns the cached decided submission, if any.
func (r *RedisStore) CachedDecision(submissionID string) (*models.Submission, bool) {
	if r == nil || r.Client == nil {
		return nil, false
	}
	key := fmt.Sprintf("decision:%s", submissionID)
	data, err := r.Client.Get(r.Ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			zap.L().Error("redis get decision", zap.Error(err))
		}
		return nil, false
	}
	var sub models.Submission
	if err := json.Unmarshal(data, &sub); err != nil {
		zap.L().Error("redis decode decision", zap.Error(err))
		return nil, false
	}
	return &sub, true
}

// PublishPayoutEvent notifies external disbursement workers of a payout
// status change.
func (r *RedisStore) PublishPayoutEvent(ctx context.Context, p *models.Payout, action string) error {
	if r == nil || r.Client == nil {
		return nil
	}
	msg := struct {
		Action   string         `json:"action"`
		PayoutID string         `json:"payout_id"`
		Payout   *models.Payout `json:"payout"`
	}{Action: action, PayoutID: p.ID, Payout: p}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return r.Client.Publish(ctx, PayoutEventChannel, payload).Err()
}

// IncrementViewSync bumps the daily counter of view sync calls for a
// submission. A 24h TTL is applied on first set.
func (r *RedisStore) IncrementViewSync(submissionID string) error {
	if r == nil || r.Client == nil {
		return nil
	}
	key := fmt.Sprintf("viewsync:%s:%s", submissionID, time.Now().Format("2006-01-02"))
	val, err := r.Client.Incr(r.Ctx, key).Result()
	if err != nil {
		return err
	}
	if val == 1 {
		r.Client.Expire(r.Ctx, key, 24*time.Hour)
	}
	return nil
}

// Close shuts down the Redis client.
func (r *RedisStore) Close() {
	if r != nil && r.Client != nil {
		if err := r.Client.Close(); err != nil {
			zap.L().Error("redis close", zap.Error(err))
		}
	}
}
