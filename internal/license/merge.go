package license

// Partial is a partial license update. Nil fields are left untouched.
// The three nested objects merge independently so a partial update never
// clobbers sibling fields. ID and CreatedAt are deliberately absent:
// they are not settable via update.
type Partial struct {
	Email    *string          `json:"email"`
	Status   *string          `json:"status"`
	Tier     *string          `json:"tier"`
	Features *PartialFeatures `json:"features"`
	Limits   *PartialLimits   `json:"limits"`
	Usage    *PartialUsage    `json:"usage"`
}

type PartialFeatures struct {
	AIEnabled          *bool `json:"ai_enabled"`
	CloudBackupEnabled *bool `json:"cloud_backup_enabled"`
}

type PartialLimits struct {
	AIRequestsPerMonth *int `json:"ai_requests_per_month"`
	StorageLimitMB     *int `json:"storage_limit_mb"`
}

type PartialUsage struct {
	BillingCycle   *string `json:"billing_cycle"`
	AIRequestsUsed *int    `json:"ai_requests_used"`
	StorageUsedMB  *int    `json:"storage_used_mb"`
}

// applyPartial merges p into lic in place. Explicit field-by-field merge
// rather than a generic map spread so id/created_at stay immutable
// regardless of caller input.
func applyPartial(lic *License, p Partial) {
	if p.Email != nil {
		lic.Email = *p.Email
	}
	if p.Status != nil {
		lic.Status = *p.Status
	}
	if p.Tier != nil {
		lic.Tier = *p.Tier
	}
	if p.Features != nil {
		if p.Features.AIEnabled != nil {
			lic.Features.AIEnabled = *p.Features.AIEnabled
		}
		if p.Features.CloudBackupEnabled != nil {
			lic.Features.CloudBackupEnabled = *p.Features.CloudBackupEnabled
		}
	}
	if p.Limits != nil {
		if p.Limits.AIRequestsPerMonth != nil {
			lic.Limits.AIRequestsPerMonth = *p.Limits.AIRequestsPerMonth
		}
		if p.Limits.StorageLimitMB != nil {
			lic.Limits.StorageLimitMB = *p.Limits.StorageLimitMB
		}
	}
	if p.Usage != nil {
		if p.Usage.BillingCycle != nil {
			lic.Usage.BillingCycle = *p.Usage.BillingCycle
		}
		if p.Usage.AIRequestsUsed != nil {
			lic.Usage.AIRequestsUsed = *p.Usage.AIRequestsUsed
		}
		if p.Usage.StorageUsedMB != nil {
			lic.Usage.StorageUsedMB = *p.Usage.StorageUsedMB
		}
	}
}
