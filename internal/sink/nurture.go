package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/domain"
	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/metrics"
	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/storage"
)

// LeadChannel is the pub/sub channel every enqueued lead is announced on.
const LeadChannel = "ghost:leads"

// NurtureEvent is the message handed to the nurture system. Consumers
// deduplicate on Lead.ID.
type NurtureEvent struct {
	Lead        domain.Lead `json:"lead"`
	NurtureType string      `json:"nurture_type"`
	Priority    string      `json:"priority"`
	EnqueuedAt  time.Time   `json:"enqueued_at"`
}

// NewRedisClient parses redisURL and verifies connectivity.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis.ParseURL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// RedisNurture pushes leads onto a per-priority list and announces them on
// LeadChannel in one transaction.
type RedisNurture struct {
	rdb    redis.Cmdable
	prefix string
	now    func() time.Time
}

func NewRedisNurture(rdb redis.Cmdable, prefix string) *RedisNurture {
	if prefix == "" {
		prefix = "ghost:nurture"
	}
	return &RedisNurture{rdb: rdb, prefix: prefix, now: time.Now}
}

// ListKey is the list leads of priority are pushed to.
func (n *RedisNurture) ListKey(priority string) string {
	return n.prefix + ":" + priority
}

func (n *RedisNurture) Enqueue(ctx context.Context, lead domain.Lead, nurtureType, priority string) error {
	payload, err := json.Marshal(NurtureEvent{
		Lead:        lead,
		NurtureType: nurtureType,
		Priority:    priority,
		EnqueuedAt:  n.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshaling nurture event: %w", err)
	}
	_, err = n.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, n.ListKey(priority), payload)
		pipe.Publish(ctx, LeadChannel, payload)
		return nil
	})
	if err != nil {
		return fmt.Errorf("enqueue lead %s: %v: %w", lead.ID, err, domain.ErrProviderUnavailable)
	}
	metrics.LeadsEmitted.WithLabelValues(string(lead.Tier)).Inc()
	return nil
}

// NurtureStore is the store-backed fallback used when no Redis is configured.
type NurtureStore interface {
	AddNurtureTask(ctx context.Context, t storage.NurtureTask) error
}

type StoreNurture struct {
	store NurtureStore
}

func NewStoreNurture(store NurtureStore) *StoreNurture {
	return &StoreNurture{store: store}
}

func (n *StoreNurture) Enqueue(ctx context.Context, lead domain.Lead, nurtureType, priority string) error {
	if err := n.store.AddNurtureTask(ctx, storage.NurtureTask{
		LeadID:      lead.ID,
		NurtureType: nurtureType,
		Priority:    priority,
	}); err != nil {
		return fmt.Errorf("enqueue lead %s: %w", lead.ID, err)
	}
	metrics.LeadsEmitted.WithLabelValues(string(lead.Tier)).Inc()
	return nil
}
