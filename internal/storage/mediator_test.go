package storage

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore records presign calls and serves objects from a map.
type fakeStore struct {
	objects  map[string][]byte
	putKeys  []string
	getKeys  []string
	putTTLs  []time.Duration
	getTTLs  []time.Duration
	storeErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: make(map[string][]byte)}
}

func (f *fakeStore) PresignedPut(ctx context.Context, key string, expiry time.Duration) (string, error) {
	if f.storeErr != nil {
		return "", f.storeErr
	}
	f.putKeys = append(f.putKeys, key)
	f.putTTLs = append(f.putTTLs, expiry)
	return "https://store.example.com/put/" + key, nil
}

func (f *fakeStore) PresignedGet(ctx context.Context, key string, expiry time.Duration) (string, error) {
	if f.storeErr != nil {
		return "", f.storeErr
	}
	f.getKeys = append(f.getKeys, key)
	f.getTTLs = append(f.getTTLs, expiry)
	return "https://store.example.com/get/" + key, nil
}

func (f *fakeStore) GetObject(ctx context.Context, key string) ([]byte, error) {
	data, ok := f.objects[key]
	if !ok {
		return nil, ErrObjectNotFound
	}
	return data, nil
}

func TestGenerateUploadURL_KeyShape(t *testing.T) {
	store := newFakeStore()
	m := NewMediator(store)
	m.now = func() time.Time { return time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC) }

	url, key, err := m.GenerateUploadURL(context.Background(), "user-123", "r.jpg", "image/jpeg")
	require.NoError(t, err)

	assert.Equal(t, "user_storage/user-123/receipts/2025/2025-06/r.jpg", key)
	assert.Regexp(t, regexp.MustCompile(`^user_storage/user-123/receipts/\d{4}/\d{4}-\d{2}/r\.jpg$`), key)
	assert.Contains(t, url, key)
	require.Len(t, store.putTTLs, 1)
	assert.Equal(t, UploadURLTTL, store.putTTLs[0])
}

func TestGenerateUploadURL_Validation(t *testing.T) {
	testCases := []struct {
		name        string
		filename    string
		contentType string
		expected    error
	}{
		{"empty filename", "", "image/jpeg", ErrInvalidFilename},
		{"path traversal", "../../etc/passwd", "image/jpeg", ErrInvalidFilename},
		{"forward slash", "a/b.jpg", "image/png", ErrInvalidFilename},
		{"backslash", `a\b.jpg`, "image/png", ErrInvalidFilename},
		{"disallowed content type", "r.gif", "image/gif", ErrInvalidContentType},
		{"empty content type", "r.jpg", "", ErrInvalidContentType},
		{"pdf allowed", "invoice.pdf", "application/pdf", nil},
		{"png allowed", "r.png", "image/png", nil},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			m := NewMediator(newFakeStore())
			_, _, err := m.GenerateUploadURL(context.Background(), "user-123", tc.filename, tc.contentType)
			if tc.expected == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tc.expected)
			}
		})
	}
}

func TestGenerateViewURL_OwnKey(t *testing.T) {
	store := newFakeStore()
	m := NewMediator(store)

	key := "user_storage/user-123/receipts/2025/2025-06/r.jpg"
	url, err := m.GenerateViewURL(context.Background(), "user-123", key)
	require.NoError(t, err)
	assert.Contains(t, url, key)
	require.Len(t, store.getTTLs, 1)
	assert.Equal(t, ViewURLTTL, store.getTTLs[0])
}

func TestGenerateViewURL_CrossTenantDenied(t *testing.T) {
	store := newFakeStore()
	m := NewMediator(store)

	testCases := []struct {
		name string
		key  string
	}{
		{"another tenant's key", "user_storage/user-456/receipts/2025/2025-06/r.jpg"},
		{"outside the namespace entirely", "system/config.json"},
		{"prefix of the namespace only", "user_storage/user-12/receipts/2025/2025-06/r.jpg"},
		{"empty key", ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := m.GenerateViewURL(context.Background(), "user-123", tc.key)
			assert.ErrorIs(t, err, ErrAccessDenied)
		})
	}

	// The store must never be asked to presign a denied key
	assert.Empty(t, store.getKeys)
}

func TestUploadThenView_RoundTrip(t *testing.T) {
	store := newFakeStore()
	m := NewMediator(store)
	m.now = func() time.Time { return time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC) }

	_, key, err := m.GenerateUploadURL(context.Background(), "user-123", "r.jpg", "image/jpeg")
	require.NoError(t, err)

	// The key returned by upload is accepted by view for the same tenant...
	_, err = m.GenerateViewURL(context.Background(), "user-123", key)
	assert.NoError(t, err)

	// ...and rejected for anyone else
	_, err = m.GenerateViewURL(context.Background(), "user-456", key)
	assert.ErrorIs(t, err, ErrAccessDenied)
}

func TestFetchObject(t *testing.T) {
	store := newFakeStore()
	key := "user_storage/user-123/receipts/2025/2025-06/r.jpg"
	store.objects[key] = []byte("jpeg-bytes")

	m := NewMediator(store)

	data, err := m.FetchObject(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg-bytes"), data)

	_, err = m.FetchObject(context.Background(), "user_storage/user-123/receipts/2025/2025-06/missing.jpg")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestGenerateUploadURL_StoreError(t *testing.T) {
	store := newFakeStore()
	store.storeErr = errors.New("connection refused")

	m := NewMediator(store)
	_, _, err := m.GenerateUploadURL(context.Background(), "user-123", "r.jpg", "image/jpeg")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidFilename)
}
