package api

import (
	"errors"
	"net/http"

	"expense-tracker-gateway/internal/auth"
	"expense-tracker-gateway/internal/storage"

	"github.com/gin-gonic/gin"
)

type uploadURLRequest struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
}

// handleUploadURL issues a short-lived presigned PUT URL for a receipt
// upload into the tenant's own key namespace.
func (s *Server) handleUploadURL(c *gin.Context) {
	lic := auth.GetLicense(c)

	var req uploadURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON body"})
		return
	}

	if req.Filename == "" || req.ContentType == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing filename or contentType"})
		return
	}

	url, key, err := s.storage.GenerateUploadURL(c.Request.Context(), lic.ID, req.Filename, req.ContentType)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrInvalidFilename):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid filename"})
		case errors.Is(err, storage.ErrInvalidContentType):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid file type"})
		default:
			s.internalError(c, err, "failed to generate upload URL")
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": url, "key": key})
}

// handleViewURL issues a presigned GET URL for a key the tenant owns.
func (s *Server) handleViewURL(c *gin.Context) {
	lic := auth.GetLicense(c)

	key := c.Query("key")
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing key parameter"})
		return
	}

	url, err := s.storage.GenerateViewURL(c.Request.Context(), lic.ID, key)
	if err != nil {
		if errors.Is(err, storage.ErrAccessDenied) {
			c.JSON(http.StatusForbidden, gin.H{"error": "Access denied"})
			return
		}
		s.internalError(c, err, "failed to generate view URL")
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": url})
}
