package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"expense-tracker-gateway/internal/auth"
	"expense-tracker-gateway/internal/license"
	"expense-tracker-gateway/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAdminSecret = "test-admin-secret"

// stubExtractor returns canned model replies.
type stubExtractor struct {
	textReply   string
	visionReply string
	textErr     error
	visionErr   error
	lastUser    string
}

func (s *stubExtractor) Complete(ctx context.Context, instruction, userText string) (string, error) {
	s.lastUser = userText
	if s.textErr != nil {
		return "", s.textErr
	}
	return s.textReply, nil
}

func (s *stubExtractor) CompleteVision(ctx context.Context, instruction string, image []byte, mimeType string) (string, error) {
	if s.visionErr != nil {
		return "", s.visionErr
	}
	return s.visionReply, nil
}

// fakeObjectStore serves objects from a map and presigns deterministic URLs.
type fakeObjectStore struct {
	objects map[string][]byte
}

func (f *fakeObjectStore) PresignedPut(ctx context.Context, key string, expiry time.Duration) (string, error) {
	return "https://store.test/put/" + key, nil
}

func (f *fakeObjectStore) PresignedGet(ctx context.Context, key string, expiry time.Duration) (string, error) {
	return "https://store.test/get/" + key, nil
}

func (f *fakeObjectStore) GetObject(ctx context.Context, key string) ([]byte, error) {
	data, ok := f.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return data, nil
}

type testEnv struct {
	server    *Server
	repo      *license.MemoryRepository
	extractor *stubExtractor
	store     *fakeObjectStore
}

func newTestEnv() *testEnv {
	repo := license.NewMemoryRepository()
	extractor := &stubExtractor{
		textReply:   "response_text: Recorded!\nname: Bakso\namount: 15.00\ncategory: Food & Drinks\nconfidence: high\nmissing_fields: ",
		visionReply: "response_text: Got the receipt!\nname: SuperMart\namount: 42.80\ndate: 2025-06-09\nconfidence: high\nmissing_fields: ",
	}
	store := &fakeObjectStore{objects: make(map[string][]byte)}

	server := NewServer(ServerConfig{
		Port:           8080,
		Host:           "127.0.0.1",
		AllowedOrigins: []string{"http://localhost:5173"},
		AdminSecret:    testAdminSecret,
	}, repo, extractor, storage.NewMediator(store), nil)

	return &testEnv{server: server, repo: repo, extractor: extractor, store: store}
}

func (e *testEnv) request(t *testing.T, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var payload *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		payload = bytes.NewReader(data)
	} else {
		payload = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, payload)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	e.server.Router().ServeHTTP(w, req)
	return w
}

func adminHeaders() map[string]string {
	return map[string]string{auth.AdminSecretHeader: testAdminSecret}
}

func licenseHeaders(key string) map[string]string {
	return map[string]string{auth.LicenseKeyHeader: key}
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

// createLicense provisions a license through the admin API and returns its key.
func (e *testEnv) createLicense(t *testing.T, tier string) string {
	t.Helper()
	w := e.request(t, http.MethodPost, "/licenses", map[string]string{"tier": tier}, adminHeaders())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := decode(t, w)
	key, _ := body["key"].(string)
	require.NotEmpty(t, key)
	return key
}

func (e *testEnv) setUsage(t *testing.T, id string, used int) {
	t.Helper()
	require.NoError(t, e.repo.Update(context.Background(), id, license.Partial{
		Usage: &license.PartialUsage{AIRequestsUsed: &used},
	}))
}

// --- admin license management ---

func TestCreateLicense_DefaultsAndTier(t *testing.T) {
	env := newTestEnv()

	// No body at all: tier defaults to pro
	w := env.request(t, http.MethodPost, "/licenses", nil, adminHeaders())
	require.Equal(t, http.StatusCreated, w.Code)
	body := decode(t, w)
	assert.Equal(t, body["id"], body["key"])

	lic, err := env.repo.Get(context.Background(), body["id"].(string))
	require.NoError(t, err)
	require.NotNil(t, lic)
	assert.Equal(t, license.TierPro, lic.Tier)
	assert.Equal(t, license.StatusActive, lic.Status)
	assert.Equal(t, license.DefaultAIRequestsPerMonth, lic.Limits.AIRequestsPerMonth)
}

func TestCreateLicense_InvalidTier(t *testing.T) {
	env := newTestEnv()

	w := env.request(t, http.MethodPost, "/licenses", map[string]string{"tier": "platinum"}, adminHeaders())
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid tier", decode(t, w)["error"])
}

func TestAdminRoutes_RequireSecret(t *testing.T) {
	env := newTestEnv()

	w := env.request(t, http.MethodGet, "/licenses", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.request(t, http.MethodGet, "/licenses", nil, map[string]string{auth.AdminSecretHeader: "wrong"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestGetLicense_NotFound(t *testing.T) {
	env := newTestEnv()

	w := env.request(t, http.MethodGet, "/licenses/nope", nil, adminHeaders())
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "License not found", decode(t, w)["error"])
}

func TestListLicenses_Filter(t *testing.T) {
	env := newTestEnv()
	env.createLicense(t, license.TierBasic)
	env.createLicense(t, license.TierPro)
	env.createLicense(t, license.TierPro)

	w := env.request(t, http.MethodGet, "/licenses?tier=pro", nil, adminHeaders())
	require.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w)["data"].([]interface{})
	assert.Len(t, data, 2)

	w = env.request(t, http.MethodGet, "/licenses", nil, adminHeaders())
	data = decode(t, w)["data"].([]interface{})
	assert.Len(t, data, 3)
}

func TestUpdateLicense_PartialMerge(t *testing.T) {
	env := newTestEnv()
	key := env.createLicense(t, license.TierPro)

	w := env.request(t, http.MethodPut, "/licenses/"+key, map[string]interface{}{
		"status": "revoked",
		"limits": map[string]int{"ai_requests_per_month": 500},
	}, adminHeaders())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	data := decode(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "revoked", data["status"])

	lic, _ := env.repo.Get(context.Background(), key)
	assert.Equal(t, 500, lic.Limits.AIRequestsPerMonth)
	// Sibling limit survives the nested partial
	assert.Equal(t, license.DefaultStorageLimitMB, lic.Limits.StorageLimitMB)
}

func TestUpdateLicense_IgnoresIdentityFields(t *testing.T) {
	env := newTestEnv()
	key := env.createLicense(t, license.TierPro)

	before, _ := env.repo.Get(context.Background(), key)

	w := env.request(t, http.MethodPut, "/licenses/"+key, map[string]interface{}{
		"id":         "different",
		"created_at": "2000-01-01T00:00:00Z",
		"status":     "revoked",
	}, adminHeaders())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	after, _ := env.repo.Get(context.Background(), key)
	assert.Equal(t, before.ID, after.ID)
	assert.True(t, after.CreatedAt.Equal(before.CreatedAt))
	assert.Equal(t, license.StatusRevoked, after.Status)
}

func TestUpdateLicense_Validation(t *testing.T) {
	env := newTestEnv()
	key := env.createLicense(t, license.TierPro)

	w := env.request(t, http.MethodPut, "/licenses/"+key, map[string]string{"tier": "platinum"}, adminHeaders())
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid tier", decode(t, w)["error"])

	w = env.request(t, http.MethodPut, "/licenses/"+key, map[string]string{"status": "paused"}, adminHeaders())
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid status", decode(t, w)["error"])

	w = env.request(t, http.MethodPut, "/licenses/does-not-exist", map[string]string{"status": "revoked"}, adminHeaders())
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// --- AI extraction ---

func TestExtract_Success(t *testing.T) {
	env := newTestEnv()
	key := env.createLicense(t, license.TierPro)
	env.setUsage(t, key, 10)

	w := env.request(t, http.MethodPost, "/ai/extract", map[string]interface{}{
		"raw_text":   "bakso 15 ringgit cash",
		"categories": []string{"Food & Drinks", "Transport"},
	}, licenseHeaders(key))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decode(t, w)
	assert.Equal(t, "Recorded!", body["response_text"])

	captured := body["captured_data"].(map[string]interface{})
	assert.Equal(t, "Bakso", captured["name"])
	assert.Equal(t, 15.0, captured["amount"])
	assert.Equal(t, "high", captured["confidence"])

	// limit 100, 10 already used, this request makes 11
	usage := body["usage"].(map[string]interface{})
	assert.Equal(t, float64(89), usage["remaining"])

	assert.Equal(t, "bakso 15 ringgit cash", env.extractor.lastUser)
}

func TestExtract_RequiresLicense(t *testing.T) {
	env := newTestEnv()

	w := env.request(t, http.MethodPost, "/ai/extract", map[string]string{"raw_text": "x"}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestExtract_QuotaExhausted(t *testing.T) {
	env := newTestEnv()
	key := env.createLicense(t, license.TierPro)
	env.setUsage(t, key, license.DefaultAIRequestsPerMonth)

	w := env.request(t, http.MethodPost, "/ai/extract", map[string]string{"raw_text": "x"}, licenseHeaders(key))
	require.Equal(t, http.StatusTooManyRequests, w.Code)

	body := decode(t, w)
	assert.Equal(t, "Rate limit exceeded", body["error"])
	assert.Equal(t, float64(0), body["remaining"])

	reset, err := time.Parse(resetLayout, body["reset"].(string))
	require.NoError(t, err)
	assert.True(t, reset.Equal(license.NextCycleStart(time.Now())),
		"reset %v should be the first instant of the next cycle", reset)
}

func TestExtract_QuotaConsumedBeforeValidation(t *testing.T) {
	env := newTestEnv()
	key := env.createLicense(t, license.TierPro)

	// Body fails validation after the increment; no refund.
	w := env.request(t, http.MethodPost, "/ai/extract", map[string]string{}, licenseHeaders(key))
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, `Missing "raw_text" field`, decode(t, w)["error"])

	lic, _ := env.repo.Get(context.Background(), key)
	assert.Equal(t, 1, lic.Usage.AIRequestsUsed)
}

func TestExtract_TextTooLong(t *testing.T) {
	env := newTestEnv()
	key := env.createLicense(t, license.TierPro)

	long := make([]byte, 10001)
	for i := range long {
		long[i] = 'a'
	}
	w := env.request(t, http.MethodPost, "/ai/extract", map[string]string{"raw_text": string(long)}, licenseHeaders(key))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Text too long", decode(t, w)["error"])
}

func TestExtract_ModelFailure(t *testing.T) {
	env := newTestEnv()
	key := env.createLicense(t, license.TierPro)
	env.extractor.textErr = errors.New("upstream timeout")

	w := env.request(t, http.MethodPost, "/ai/extract", map[string]string{"raw_text": "x"}, licenseHeaders(key))
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Failed to process with AI", decode(t, w)["error"])

	// Quota stays consumed even though the model call failed
	lic, _ := env.repo.Get(context.Background(), key)
	assert.Equal(t, 1, lic.Usage.AIRequestsUsed)
}

// --- receipt extraction ---

func TestExtractFromReceipt_Success(t *testing.T) {
	env := newTestEnv()
	key := env.createLicense(t, license.TierPro)

	storageKey := "user_storage/" + key + "/receipts/2025/2025-06/r.jpg"
	env.store.objects[storageKey] = []byte("jpeg-bytes")

	w := env.request(t, http.MethodPost, "/ai/extract-from-receipt", map[string]string{
		"storage_key": storageKey,
	}, licenseHeaders(key))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decode(t, w)
	meta := body["receipt_metadata"].(map[string]interface{})
	assert.Equal(t, storageKey, meta["storage_key"])
	assert.Equal(t, "SuperMart", meta["merchant_name"])
	assert.Equal(t, "2025-06-09", meta["receipt_date"])

	usage := body["usage"].(map[string]interface{})
	assert.Equal(t, float64(99), usage["remaining"])
}

func TestExtractFromReceipt_CrossTenantKeyDenied(t *testing.T) {
	env := newTestEnv()
	key := env.createLicense(t, license.TierPro)

	w := env.request(t, http.MethodPost, "/ai/extract-from-receipt", map[string]string{
		"storage_key": "user_storage/someone-else/receipts/2025/2025-06/r.jpg",
	}, licenseHeaders(key))
	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "Access denied: Invalid key", decode(t, w)["error"])

	// The denial still cost a quota unit
	lic, _ := env.repo.Get(context.Background(), key)
	assert.Equal(t, 1, lic.Usage.AIRequestsUsed)
}

func TestExtractFromReceipt_ObjectMissing(t *testing.T) {
	env := newTestEnv()
	key := env.createLicense(t, license.TierPro)

	w := env.request(t, http.MethodPost, "/ai/extract-from-receipt", map[string]string{
		"storage_key": "user_storage/" + key + "/receipts/2025/2025-06/missing.jpg",
	}, licenseHeaders(key))
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Receipt image not found", decode(t, w)["error"])
}

func TestExtractFromReceipt_MissingKeyField(t *testing.T) {
	env := newTestEnv()
	key := env.createLicense(t, license.TierPro)

	w := env.request(t, http.MethodPost, "/ai/extract-from-receipt", map[string]string{}, licenseHeaders(key))
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, `Missing "storage_key" field`, decode(t, w)["error"])
}

func TestExtractFromReceipt_DegradesOnVisionFailure(t *testing.T) {
	env := newTestEnv()
	key := env.createLicense(t, license.TierPro)
	env.extractor.visionErr = errors.New("model unavailable")

	storageKey := "user_storage/" + key + "/receipts/2025/2025-06/r.jpg"
	env.store.objects[storageKey] = []byte("jpeg-bytes")

	w := env.request(t, http.MethodPost, "/ai/extract-from-receipt", map[string]string{
		"storage_key": storageKey,
	}, licenseHeaders(key))

	// Vision failure is a 200 with a canned low-confidence reply
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	captured := body["captured_data"].(map[string]interface{})
	assert.Equal(t, "low", captured["confidence"])
	assert.ElementsMatch(t,
		[]interface{}{"name", "amount", "category", "payment_method"},
		captured["missing_fields"].([]interface{}))

	meta := body["receipt_metadata"].(map[string]interface{})
	assert.Equal(t, "Unknown", meta["merchant_name"])
}

// --- storage URLs ---

func TestUploadURL_Success(t *testing.T) {
	env := newTestEnv()
	key := env.createLicense(t, license.TierPro)

	w := env.request(t, http.MethodPost, "/storage/upload-url", map[string]string{
		"filename":    "r.jpg",
		"contentType": "image/jpeg",
	}, licenseHeaders(key))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decode(t, w)
	assert.Regexp(t, `^user_storage/`+key+`/receipts/\d{4}/\d{4}-\d{2}/r\.jpg$`, body["key"])
	assert.Contains(t, body["url"], body["key"])
}

func TestUploadURL_Validation(t *testing.T) {
	env := newTestEnv()
	key := env.createLicense(t, license.TierPro)

	testCases := []struct {
		name     string
		body     map[string]string
		expected string
	}{
		{"missing fields", map[string]string{}, "Missing filename or contentType"},
		{"traversal filename", map[string]string{"filename": "../x.jpg", "contentType": "image/jpeg"}, "Invalid filename"},
		{"bad content type", map[string]string{"filename": "x.gif", "contentType": "image/gif"}, "Invalid file type"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := env.request(t, http.MethodPost, "/storage/upload-url", tc.body, licenseHeaders(key))
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tc.expected, decode(t, w)["error"])
		})
	}
}

func TestViewURL(t *testing.T) {
	env := newTestEnv()
	key := env.createLicense(t, license.TierPro)

	own := "user_storage/" + key + "/receipts/2025/2025-06/r.jpg"
	w := env.request(t, http.MethodGet, "/storage/view-url?key="+own, nil, licenseHeaders(key))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, decode(t, w)["url"], own)

	w = env.request(t, http.MethodGet, "/storage/view-url?key=user_storage/other/receipts/2025/2025-06/r.jpg", nil, licenseHeaders(key))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "Access denied", decode(t, w)["error"])

	w = env.request(t, http.MethodGet, "/storage/view-url", nil, licenseHeaders(key))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Missing key parameter", decode(t, w)["error"])
}

// --- health ---

func TestHealth(t *testing.T) {
	env := newTestEnv()

	w := env.request(t, http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", decode(t, w)["status"])
}
