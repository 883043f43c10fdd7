// Package storage issues presigned object-store URLs and fetches receipt
// objects, enforcing per-tenant key-namespace isolation.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Presigned URL lifetimes. Upload windows are short because they are
// consumed immediately after being issued; view URLs may sit in UI
// elements the user inspects later.
const (
	UploadURLTTL = 5 * time.Minute
	ViewURLTTL   = time.Hour
)

var (
	ErrInvalidFilename    = errors.New("invalid filename")
	ErrInvalidContentType = errors.New("invalid file type")
	ErrAccessDenied       = errors.New("access denied")
	ErrObjectNotFound     = errors.New("object not found")
)

var allowedContentTypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"application/pdf": true,
}

// ObjectStore is the slice of the object storage service the mediator
// needs. Satisfied by the minio-backed store; tests use a fake.
type ObjectStore interface {
	PresignedPut(ctx context.Context, key string, expiry time.Duration) (string, error)
	PresignedGet(ctx context.Context, key string, expiry time.Duration) (string, error)
	GetObject(ctx context.Context, key string) ([]byte, error)
}

// Mediator derives tenant-namespaced keys and mediates all object storage
// access for the gateway.
type Mediator struct {
	store ObjectStore
	now   func() time.Time
}

// NewMediator creates a Mediator over the given store.
func NewMediator(store ObjectStore) *Mediator {
	return &Mediator{store: store, now: time.Now}
}

// TenantPrefix is the key namespace owned by a tenant. Any key outside it
// must be rejected wherever it appears.
func TenantPrefix(tenantID string) string {
	return fmt.Sprintf("user_storage/%s/", tenantID)
}

// ValidateKeyOwnership rejects keys outside the tenant's own namespace.
func ValidateKeyOwnership(tenantID, key string) error {
	if !strings.HasPrefix(key, TenantPrefix(tenantID)) {
		return ErrAccessDenied
	}
	return nil
}

// GenerateUploadURL validates filename and content type, derives the
// namespaced key user_storage/{tenant}/receipts/{year}/{year-month}/{filename}
// and returns a short-lived presigned PUT URL with the key.
func (m *Mediator) GenerateUploadURL(ctx context.Context, tenantID, filename, contentType string) (string, string, error) {
	if filename == "" || strings.Contains(filename, "..") || strings.ContainsAny(filename, `/\`) {
		return "", "", ErrInvalidFilename
	}
	if !allowedContentTypes[contentType] {
		return "", "", ErrInvalidContentType
	}

	now := m.now().UTC()
	key := fmt.Sprintf("%sreceipts/%s/%s/%s", TenantPrefix(tenantID), now.Format("2006"), now.Format("2006-01"), filename)

	url, err := m.store.PresignedPut(ctx, key, UploadURLTTL)
	if err != nil {
		return "", "", fmt.Errorf("failed to presign upload: %w", err)
	}
	return url, key, nil
}

// GenerateViewURL returns a presigned GET URL for a key the tenant owns.
func (m *Mediator) GenerateViewURL(ctx context.Context, tenantID, key string) (string, error) {
	if err := ValidateKeyOwnership(tenantID, key); err != nil {
		return "", err
	}

	url, err := m.store.PresignedGet(ctx, key, ViewURLTTL)
	if err != nil {
		return "", fmt.Errorf("failed to presign view: %w", err)
	}
	return url, nil
}

// FetchObject reads the object bytes for the vision path. Ownership of the
// key must be validated by the caller before fetching.
func (m *Mediator) FetchObject(ctx context.Context, key string) ([]byte, error) {
	return m.store.GetObject(ctx, key)
}
