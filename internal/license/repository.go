package license

import (
	"context"
	"errors"
	"strings"
)

// KeyPrefix namespaces license records in the record store.
const KeyPrefix = "license:"

// ErrNotFound is returned by Update when no license exists for the id.
// Get returns (nil, nil) instead; callers decide whether absence is an error.
var ErrNotFound = errors.New("license not found")

// UsageResult is the outcome of a quota increment attempt.
type UsageResult struct {
	Allowed   bool `json:"allowed"`
	Remaining int  `json:"remaining"`
}

// Filter narrows List results. Empty fields match everything;
// set fields are ANDed exact matches.
type Filter struct {
	Tier  string
	Email string
}

// Repository owns all license lifecycle operations.
type Repository interface {
	// Create persists a new license with creation defaults and returns its id.
	Create(ctx context.Context, tier, email string) (string, error)

	// Get resolves a bare id or a KeyPrefix-ed key. Returns (nil, nil) when absent.
	Get(ctx context.Context, key string) (*License, error)

	// IncrementAIUsage atomically applies billing-cycle rollover, checks the
	// monthly ceiling, and increments the counter. The increment is refused,
	// not clamped, once the ceiling is reached. A missing license yields
	// {Allowed: false, Remaining: 0} without mutating anything.
	IncrementAIUsage(ctx context.Context, id string) (UsageResult, error)

	// Update deep-merges features/limits/usage and overwrites top-level scalar
	// fields; id and created_at are never settable. Returns ErrNotFound when
	// no license exists for id.
	Update(ctx context.Context, id string, partial Partial) error

	// List enumerates stored licenses matching the filter. No pagination.
	List(ctx context.Context, filter Filter) ([]*License, error)
}

// normalizeID strips the store namespace prefix if present.
func normalizeID(key string) string {
	return strings.TrimPrefix(key, KeyPrefix)
}

func (f Filter) matches(lic *License) bool {
	if f.Tier != "" && lic.Tier != f.Tier {
		return false
	}
	if f.Email != "" && lic.Email != f.Email {
		return false
	}
	return true
}
