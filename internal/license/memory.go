package license

import (
	"context"
	"sync"
	"time"
)

// MemoryRepository is a mutex-guarded in-memory Repository used in tests
// and when Redis is disabled in config. Semantics match RedisRepository;
// the single mutex is the per-key serialization point for increments.
type MemoryRepository struct {
	mu       sync.RWMutex
	licenses map[string]License

	now func() time.Time // overridable in tests
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		licenses: make(map[string]License),
		now:      time.Now,
	}
}

func (r *MemoryRepository) Create(ctx context.Context, tier, email string) (string, error) {
	lic := newLicense(tier, email, r.now())

	r.mu.Lock()
	r.licenses[lic.ID] = *lic
	r.mu.Unlock()

	return lic.ID, nil
}

func (r *MemoryRepository) Get(ctx context.Context, key string) (*License, error) {
	id := normalizeID(key)

	r.mu.RLock()
	defer r.mu.RUnlock()

	lic, ok := r.licenses[id]
	if !ok {
		return nil, nil
	}
	return &lic, nil
}

func (r *MemoryRepository) IncrementAIUsage(ctx context.Context, id string) (UsageResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	lic, ok := r.licenses[id]
	if !ok {
		return UsageResult{Allowed: false, Remaining: 0}, nil
	}

	cycle := Cycle(r.now())
	if lic.Usage.BillingCycle != cycle {
		lic.Usage.BillingCycle = cycle
		lic.Usage.AIRequestsUsed = 0
	}

	if lic.Usage.AIRequestsUsed >= lic.Limits.AIRequestsPerMonth {
		return UsageResult{Allowed: false, Remaining: 0}, nil
	}

	lic.Usage.AIRequestsUsed++
	r.licenses[id] = lic

	return UsageResult{
		Allowed:   true,
		Remaining: lic.Limits.AIRequestsPerMonth - lic.Usage.AIRequestsUsed,
	}, nil
}

func (r *MemoryRepository) Update(ctx context.Context, id string, partial Partial) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	lic, ok := r.licenses[normalizeID(id)]
	if !ok {
		return ErrNotFound
	}

	applyPartial(&lic, partial)
	r.licenses[lic.ID] = lic
	return nil
}

func (r *MemoryRepository) List(ctx context.Context, filter Filter) ([]*License, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*License, 0, len(r.licenses))
	for _, lic := range r.licenses {
		if filter.matches(&lic) {
			cp := lic
			result = append(result, &cp)
		}
	}
	return result, nil
}
