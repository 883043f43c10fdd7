package license

import (
	"time"

	"github.com/google/uuid"
)

// License statuses. Only active licenses pass authentication.
const (
	StatusActive  = "active"
	StatusRevoked = "revoked"
	StatusExpired = "expired"
)

// License tiers. Informational; limits are carried separately.
const (
	TierBasic      = "basic"
	TierPro        = "pro"
	TierEnterprise = "enterprise"
)

// ValidTier reports whether tier belongs to the closed tier set.
func ValidTier(tier string) bool {
	switch tier {
	case TierBasic, TierPro, TierEnterprise:
		return true
	}
	return false
}

// Features holds advisory capability flags for a tenant.
type Features struct {
	AIEnabled          bool `json:"ai_enabled"`
	CloudBackupEnabled bool `json:"cloud_backup_enabled"`
}

// Limits holds the monthly ceilings for a tenant. StorageLimitMB is
// recorded but not enforced by any handler.
type Limits struct {
	AIRequestsPerMonth int `json:"ai_requests_per_month"`
	StorageLimitMB     int `json:"storage_limit_mb"`
}

// Usage holds the mutable counters. BillingCycle identifies which
// calendar month (UTC, "YYYY-MM") AIRequestsUsed counts against.
type Usage struct {
	BillingCycle   string `json:"billing_cycle"`
	AIRequestsUsed int    `json:"ai_requests_used"`
	StorageUsedMB  int    `json:"storage_used_mb"`
}

// License is the tenant record controlling access and quota.
// ID and CreatedAt are immutable after creation.
type License struct {
	ID        string    `json:"id"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Status    string    `json:"status"`
	Tier      string    `json:"tier"`
	Features  Features  `json:"features"`
	Limits    Limits    `json:"limits"`
	Usage     Usage     `json:"usage"`
}

// Default limits assigned at creation.
const (
	DefaultAIRequestsPerMonth = 100
	DefaultStorageLimitMB     = 1024
)

// newLicense builds a License with creation defaults: active status,
// all features on, default limits, zeroed usage for the current cycle.
func newLicense(tier, email string, now time.Time) *License {
	return &License{
		ID:        uuid.New().String(),
		Email:     email,
		CreatedAt: now.UTC(),
		Status:    StatusActive,
		Tier:      tier,
		Features: Features{
			AIEnabled:          true,
			CloudBackupEnabled: true,
		},
		Limits: Limits{
			AIRequestsPerMonth: DefaultAIRequestsPerMonth,
			StorageLimitMB:     DefaultStorageLimitMB,
		},
		Usage: Usage{
			BillingCycle:   Cycle(now),
			AIRequestsUsed: 0,
			StorageUsedMB:  0,
		},
	}
}

// Cycle formats t as the UTC "YYYY-MM" billing cycle identifier.
func Cycle(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// NextCycleStart returns the first instant of the calendar month after t, UTC.
func NextCycleStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, time.UTC)
}
