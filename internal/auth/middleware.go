// Package auth provides the license-key and admin-secret gates for
// protected routes.
package auth

import (
	"context"
	"crypto/subtle"
	"net/http"

	"expense-tracker-gateway/internal/license"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Header names carrying credentials.
const (
	LicenseKeyHeader  = "X-License-Key"
	AdminSecretHeader = "X-Admin-Secret"
)

// ContextKeyLicense is the gin context key the resolved license is attached under.
const ContextKeyLicense = "license"

// AuditRecorder receives authentication outcomes. Implementations must not
// block the request path; failures to record never fail a request.
type AuditRecorder interface {
	RecordAuth(ctx context.Context, licenseID, ip, userAgent string, success bool, message string)
}

// Middleware authenticates requests via the X-License-Key header. Missing
// key → 401; unresolvable key or non-active license → 403. On success the
// resolved license is attached to the request context. recorder may be nil.
func Middleware(repo license.Repository, recorder AuditRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(LicenseKeyHeader)
		if key == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Missing License Key",
			})
			return
		}

		lic, err := repo.Get(c.Request.Context(), key)
		if err != nil {
			// Store failure is fatal for the request, never treated as not-found.
			log.Error().Err(err).Msg("license lookup failed")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "Internal Server Error",
			})
			return
		}

		if lic == nil || lic.Status != license.StatusActive {
			record(recorder, c, key, false, "invalid or inactive license")
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "Invalid License Key",
			})
			return
		}

		record(recorder, c, lic.ID, true, "authenticated")
		c.Set(ContextKeyLicense, lic)
		c.Next()
	}
}

// RequireAdmin gates license-management routes behind a pre-shared secret.
// The comparison is constant-time.
func RequireAdmin(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		provided := c.GetHeader(AdminSecretHeader)
		if provided == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Unauthorized",
			})
			return
		}

		if subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "Forbidden",
			})
			return
		}

		c.Next()
	}
}

// GetLicense extracts the authenticated license from the gin context.
func GetLicense(c *gin.Context) *license.License {
	if v, exists := c.Get(ContextKeyLicense); exists {
		return v.(*license.License)
	}
	return nil
}

func record(recorder AuditRecorder, c *gin.Context, licenseID string, success bool, message string) {
	if recorder == nil {
		return
	}
	recorder.RecordAuth(c.Request.Context(), licenseID, c.ClientIP(), c.Request.UserAgent(), success, message)
}
