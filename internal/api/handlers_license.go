package api

import (
	"net/http"

	"expense-tracker-gateway/internal/license"

	"github.com/gin-gonic/gin"
)

// licenseEnvelope mirrors the license id under "key" for external consumers.
type licenseEnvelope struct {
	license.License
	Key string `json:"key"`
}

func envelope(lic *license.License) licenseEnvelope {
	return licenseEnvelope{License: *lic, Key: lic.ID}
}

type createLicenseRequest struct {
	Tier  string `json:"tier"`
	Email string `json:"email"`
}

// handleCreateLicense provisions a new license with creation defaults.
func (s *Server) handleCreateLicense(c *gin.Context) {
	var req createLicenseRequest
	// Body is optional; a missing or malformed body falls back to defaults.
	_ = c.ShouldBindJSON(&req)

	if req.Tier == "" {
		req.Tier = license.TierPro
	}
	if !license.ValidTier(req.Tier) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid tier"})
		return
	}

	id, err := s.repo.Create(c.Request.Context(), req.Tier, req.Email)
	if err != nil {
		s.internalError(c, err, "failed to create license")
		return
	}

	c.JSON(http.StatusCreated, gin.H{"id": id, "key": id})
}

// handleListLicenses enumerates licenses, optionally filtered by exact
// tier and email match.
func (s *Server) handleListLicenses(c *gin.Context) {
	filter := license.Filter{
		Tier:  c.Query("tier"),
		Email: c.Query("email"),
	}

	licenses, err := s.repo.List(c.Request.Context(), filter)
	if err != nil {
		s.internalError(c, err, "failed to list licenses")
		return
	}

	data := make([]licenseEnvelope, 0, len(licenses))
	for _, lic := range licenses {
		data = append(data, envelope(lic))
	}

	c.JSON(http.StatusOK, gin.H{"data": data})
}

func (s *Server) handleGetLicense(c *gin.Context) {
	lic, err := s.repo.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.internalError(c, err, "failed to get license")
		return
	}
	if lic == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "License not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": envelope(lic)})
}

// handleUpdateLicense applies a partial update. The nested feature/limit/
// usage objects merge independently; id and created_at are never settable.
func (s *Server) handleUpdateLicense(c *gin.Context) {
	var partial license.Partial
	if err := c.ShouldBindJSON(&partial); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON body"})
		return
	}

	if partial.Tier != nil && !license.ValidTier(*partial.Tier) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid tier"})
		return
	}
	if partial.Status != nil && !validStatus(*partial.Status) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status"})
		return
	}

	id := c.Param("id")
	if err := s.repo.Update(c.Request.Context(), id, partial); err != nil {
		if err == license.ErrNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "License not found"})
			return
		}
		s.internalError(c, err, "failed to update license")
		return
	}

	lic, err := s.repo.Get(c.Request.Context(), id)
	if err != nil || lic == nil {
		s.internalError(c, err, "failed to reload license after update")
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": envelope(lic)})
}

func validStatus(status string) bool {
	switch status {
	case license.StatusActive, license.StatusRevoked, license.StatusExpired:
		return true
	}
	return false
}
