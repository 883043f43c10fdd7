package license

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrementScript performs rollover + ceiling check + increment as a single
// server-side step. Redis executes scripts serially per key, so concurrent
// increments for the same tenant serialize while other tenants proceed in
// parallel. Returns {allowed, remaining}.
var incrementScript = redis.NewScript(`
local raw = redis.call('GET', KEYS[1])
if not raw then
    return {0, 0}
end
local lic = cjson.decode(raw)
if lic.usage.billing_cycle ~= ARGV[1] then
    lic.usage.billing_cycle = ARGV[1]
    lic.usage.ai_requests_used = 0
end
if lic.usage.ai_requests_used >= lic.limits.ai_requests_per_month then
    return {0, 0}
end
lic.usage.ai_requests_used = lic.usage.ai_requests_used + 1
redis.call('SET', KEYS[1], cjson.encode(lic))
return {1, lic.limits.ai_requests_per_month - lic.usage.ai_requests_used}
`)

// updateRetries bounds optimistic-transaction retries when an admin update
// races a quota increment on the same key.
const updateRetries = 5

// RedisRepository stores one JSON license record per tenant under
// "license:{id}". It is the production Repository implementation.
type RedisRepository struct {
	client *redis.Client
}

// NewRedisRepository creates a Repository backed by the given Redis client.
func NewRedisRepository(client *redis.Client) *RedisRepository {
	return &RedisRepository{client: client}
}

func storeKey(id string) string {
	return KeyPrefix + normalizeID(id)
}

func (r *RedisRepository) Create(ctx context.Context, tier, email string) (string, error) {
	lic := newLicense(tier, email, time.Now())

	data, err := json.Marshal(lic)
	if err != nil {
		return "", fmt.Errorf("failed to marshal license: %w", err)
	}

	if err := r.client.Set(ctx, storeKey(lic.ID), data, 0).Err(); err != nil {
		return "", fmt.Errorf("failed to store license: %w", err)
	}

	return lic.ID, nil
}

func (r *RedisRepository) Get(ctx context.Context, key string) (*License, error) {
	raw, err := r.client.Get(ctx, storeKey(key)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get license: %w", err)
	}

	var lic License
	if err := json.Unmarshal(raw, &lic); err != nil {
		return nil, fmt.Errorf("failed to unmarshal license: %w", err)
	}
	return &lic, nil
}

func (r *RedisRepository) IncrementAIUsage(ctx context.Context, id string) (UsageResult, error) {
	res, err := incrementScript.Run(ctx, r.client, []string{storeKey(id)}, Cycle(time.Now())).Int64Slice()
	if err != nil {
		return UsageResult{}, fmt.Errorf("failed to increment usage: %w", err)
	}
	if len(res) != 2 {
		return UsageResult{}, fmt.Errorf("unexpected increment script result: %v", res)
	}

	return UsageResult{
		Allowed:   res[0] == 1,
		Remaining: int(res[1]),
	}, nil
}

func (r *RedisRepository) Update(ctx context.Context, id string, partial Partial) error {
	key := storeKey(id)

	txn := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err == redis.Nil {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to get license: %w", err)
		}

		var lic License
		if err := json.Unmarshal(raw, &lic); err != nil {
			return fmt.Errorf("failed to unmarshal license: %w", err)
		}

		applyPartial(&lic, partial)

		data, err := json.Marshal(&lic)
		if err != nil {
			return fmt.Errorf("failed to marshal license: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		return err
	}

	// WATCH-based CAS so updates don't lose writes racing the increment script.
	for i := 0; i < updateRetries; i++ {
		err := r.client.Watch(ctx, txn, key)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("update contention on license %s", normalizeID(id))
}

func (r *RedisRepository) List(ctx context.Context, filter Filter) ([]*License, error) {
	var result []*License

	iter := r.client.Scan(ctx, 0, KeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		raw, err := r.client.Get(ctx, iter.Val()).Bytes()
		if err == redis.Nil {
			continue // expired between SCAN and GET
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get license: %w", err)
		}

		var lic License
		if err := json.Unmarshal(raw, &lic); err != nil {
			return nil, fmt.Errorf("failed to unmarshal license: %w", err)
		}
		if filter.matches(&lic) {
			result = append(result, &lic)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan licenses: %w", err)
	}

	return result, nil
}
