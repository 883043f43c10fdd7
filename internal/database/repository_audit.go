package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Audit event types
const (
	EventAuth        = "auth"
	EventQuotaDenied = "quota_denied"
)

// AuditLog records one license validation or quota event
type AuditLog struct {
	ID        string    `json:"id" db:"id"`
	LicenseID string    `json:"license_id" db:"license_id"`
	Event     string    `json:"event" db:"event"`
	IP        string    `json:"ip" db:"ip"`
	UserAgent string    `json:"user_agent" db:"user_agent"`
	Success   bool      `json:"success" db:"success"`
	Message   string    `json:"message" db:"message"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// AuditRepository writes audit events. A failure to audit is logged and
// swallowed so it never fails the request that produced the event.
type AuditRepository struct {
	db *DB
}

// NewAuditRepository creates an audit repository over db.
func NewAuditRepository(db *DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Insert writes a single audit record
func (r *AuditRepository) Insert(ctx context.Context, entry *AuditLog) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	entry.CreatedAt = time.Now()

	query := `
	INSERT INTO license_audit_logs (id, license_id, event, ip, user_agent, success, message, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		entry.ID,
		entry.LicenseID,
		entry.Event,
		entry.IP,
		entry.UserAgent,
		entry.Success,
		entry.Message,
		entry.CreatedAt,
	)

	return err
}

// RecordAuth implements the auth.AuditRecorder contract.
func (r *AuditRepository) RecordAuth(ctx context.Context, licenseID, ip, userAgent string, success bool, message string) {
	r.record(ctx, &AuditLog{
		LicenseID: licenseID,
		Event:     EventAuth,
		IP:        ip,
		UserAgent: userAgent,
		Success:   success,
		Message:   message,
	})
}

// RecordQuotaDenied records an increment refused at the monthly ceiling.
func (r *AuditRepository) RecordQuotaDenied(ctx context.Context, licenseID, ip string) {
	r.record(ctx, &AuditLog{
		LicenseID: licenseID,
		Event:     EventQuotaDenied,
		IP:        ip,
		Success:   false,
		Message:   "monthly AI request limit reached",
	})
}

func (r *AuditRepository) record(ctx context.Context, entry *AuditLog) {
	if err := r.Insert(ctx, entry); err != nil {
		log.Warn().Err(err).Str("license_id", entry.LicenseID).Msg("failed to write audit log")
	}
}
