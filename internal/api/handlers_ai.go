package api

import (
	"context"
	"errors"
	"net/http"
	"time"
	"unicode/utf8"

	"expense-tracker-gateway/internal/ai"
	"expense-tracker-gateway/internal/auth"
	"expense-tracker-gateway/internal/license"
	"expense-tracker-gateway/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const maxRawTextChars = 10000

// resetLayout renders the first instant of the next billing cycle with
// millisecond precision, matching what clients parse as an ISO timestamp.
const resetLayout = "2006-01-02T15:04:05.000Z"

type extractRequest struct {
	RawText                string           `json:"raw_text"`
	Categories             []string         `json:"categories"`
	CurrentDate            string           `json:"current_date"`
	AvailablePaymentMethod []string         `json:"available_payment_method"`
	CapturedData           *ai.CapturedData `json:"captured_data"`
}

type receiptExtractRequest struct {
	StorageKey             string   `json:"storage_key"`
	Categories             []string `json:"categories"`
	CurrentDate            string   `json:"current_date"`
	AvailablePaymentMethod []string `json:"available_payment_method"`
}

// consumeQuota runs the atomic increment and, when the ceiling is hit,
// writes the 429 response. Quota is consumed before the body is even
// parsed: an exhausted tenant costs us no further work, and a request
// that later fails validation does not get its increment back.
func (s *Server) consumeQuota(c *gin.Context, lic *license.License) (license.UsageResult, bool) {
	usage, err := s.repo.IncrementAIUsage(c.Request.Context(), lic.ID)
	if err != nil {
		s.internalError(c, err, "failed to increment AI usage")
		return usage, false
	}

	if !usage.Allowed {
		s.recordQuotaDenied(c, lic.ID)
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":     "Rate limit exceeded",
			"remaining": 0,
			"reset":     license.NextCycleStart(time.Now()).Format(resetLayout),
		})
		return usage, false
	}

	return usage, true
}

// handleExtract extracts a structured expense from free text.
func (s *Server) handleExtract(c *gin.Context) {
	lic := auth.GetLicense(c)

	usage, ok := s.consumeQuota(c, lic)
	if !ok {
		return
	}

	var req extractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON body"})
		return
	}

	if req.RawText == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": `Missing "raw_text" field`})
		return
	}
	if utf8.RuneCountInString(req.RawText) > maxRawTextChars {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Text too long"})
		return
	}

	currentDate := req.CurrentDate
	if currentDate == "" {
		currentDate = time.Now().UTC().Format("2006-01-02")
	}
	paymentMethods := req.AvailablePaymentMethod
	if len(paymentMethods) == 0 {
		paymentMethods = ai.DefaultPaymentMethods
	}

	instruction := ai.BuildTextPrompt(req.Categories, paymentMethods, currentDate, req.CapturedData)

	raw, err := s.extractor.Complete(c.Request.Context(), instruction, req.RawText)
	if err != nil {
		// Quota stays consumed; there is no compensating refund.
		log.Error().Err(err).Str("license_id", lic.ID).Msg("AI extraction failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process with AI"})
		return
	}

	parsed := ai.ParseKVResponse(raw)

	c.JSON(http.StatusOK, gin.H{
		"response_text": parsed.ResponseText,
		"captured_data": parsed.CapturedData,
		"usage":         gin.H{"remaining": usage.Remaining},
	})
}

// handleExtractFromReceipt extracts a structured expense from a stored
// receipt image. Unlike the text path, a model failure degrades to a
// canned low-confidence reply so the conversation keeps flowing.
func (s *Server) handleExtractFromReceipt(c *gin.Context) {
	lic := auth.GetLicense(c)

	usage, ok := s.consumeQuota(c, lic)
	if !ok {
		return
	}

	var req receiptExtractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON body"})
		return
	}

	if req.StorageKey == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": `Missing "storage_key" field`})
		return
	}

	// The tenant prefix is the sole authorization boundary for storage keys.
	if err := storage.ValidateKeyOwnership(lic.ID, req.StorageKey); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "Access denied: Invalid key"})
		return
	}

	image, err := s.storage.FetchObject(c.Request.Context(), req.StorageKey)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Receipt image not found"})
			return
		}
		log.Error().Err(err).Str("key", req.StorageKey).Msg("receipt fetch failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to access receipt image"})
		return
	}

	currentDate := req.CurrentDate
	if currentDate == "" {
		currentDate = time.Now().UTC().Format("2006-01-02")
	}
	paymentMethods := req.AvailablePaymentMethod
	if len(paymentMethods) == 0 {
		paymentMethods = ai.DefaultPaymentMethods
	}

	instruction := ai.BuildVisionPrompt(req.Categories, paymentMethods, currentDate)

	raw, err := s.extractor.CompleteVision(c.Request.Context(), instruction, image, "image/jpeg")
	if err != nil {
		log.Warn().Err(err).Str("license_id", lic.ID).Msg("vision extraction failed, degrading")
		c.JSON(http.StatusOK, degradedReceiptResponse(req.StorageKey, currentDate, usage.Remaining))
		return
	}

	parsed := ai.ParseKVResponse(raw)

	merchantName := "Unknown Merchant"
	if parsed.Name != nil {
		merchantName = *parsed.Name
	}
	receiptDate := currentDate
	if parsed.Date != nil {
		receiptDate = *parsed.Date
	}

	c.JSON(http.StatusOK, gin.H{
		"response_text": parsed.ResponseText,
		"captured_data": parsed.CapturedData,
		"receipt_metadata": gin.H{
			"storage_key":   req.StorageKey,
			"merchant_name": merchantName,
			"receipt_date":  receiptDate,
		},
		"usage": gin.H{"remaining": usage.Remaining},
	})
}

// degradedReceiptResponse is the fallback payload when the vision call
// fails: a successful response with low confidence, every critical field
// missing, and a user-facing ask for the details.
func degradedReceiptResponse(storageKey, currentDate string, remaining int) gin.H {
	confidence := "low"
	return gin.H{
		"response_text": "I couldn't read the receipt clearly. Can you tell me the merchant name and amount?",
		"captured_data": ai.CapturedData{
			Date:          &currentDate,
			Confidence:    &confidence,
			MissingFields: []string{"name", "amount", "category", "payment_method"},
		},
		"receipt_metadata": gin.H{
			"storage_key":   storageKey,
			"merchant_name": "Unknown",
			"receipt_date":  currentDate,
		},
		"usage": gin.H{"remaining": remaining},
	}
}

// quotaRecorder is the optional audit extension for quota denials.
type quotaRecorder interface {
	RecordQuotaDenied(ctx context.Context, licenseID, ip string)
}

func (s *Server) recordQuotaDenied(c *gin.Context, licenseID string) {
	if recorder, ok := s.audit.(quotaRecorder); ok {
		recorder.RecordQuotaDenied(c.Request.Context(), licenseID, c.ClientIP())
	}
}
