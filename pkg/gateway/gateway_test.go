package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(url string) *Client {
	return NewClient(Config{
		BaseURL:         url,
		AccessKey:       "ak_test",
		SecretKey:       "sk_test",
		ProjectID:       "11111111-2222-3333-4444-555555555555",
		DownloadTimeout: 5 * time.Second,
		UploadTimeout:   5 * time.Second,
	})
}

// verifySignature recomputes the HMAC the way the gateway does.
func verifySignature(t *testing.T, r *http.Request, method, path string) {
	t.Helper()

	assert.Equal(t, "ak_test", r.Header.Get("X-Access-Key"))
	timestamp := r.Header.Get("X-Timestamp")
	require.NotEmpty(t, timestamp)

	mac := hmac.New(sha256.New, []byte("sk_test"))
	mac.Write([]byte(method + "\n" + path + "\n" + timestamp))
	want := hex.EncodeToString(mac.Sum(nil))

	assert.Equal(t, want, r.Header.Get("X-Signature"))
}

func TestDownload(t *testing.T) {
	const fileID = "3e6f1df2-0d34-4c7a-9a63-1df3e52a9b01"
	body := []byte("%PDF-1.7 certificate template")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/files/"+fileID, r.URL.Path)
		verifySignature(t, r, "GET", "/files/"+fileID)
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	data, err := testClient(srv.URL).Download(context.Background(), fileID)
	require.NoError(t, err)
	assert.Equal(t, body, data)
}

func TestDownloadNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Download(context.Background(), "missing-id")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestDownloadServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Download(context.Background(), "some-id")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestUpload(t *testing.T) {
	content := []byte("%PDF-1.7 rendered certificate")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/files", r.URL.Path)
		verifySignature(t, r, "POST", "/api/v1/files")

		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "11111111-2222-3333-4444-555555555555", r.FormValue("project_id"))
		assert.Equal(t, "user-42", r.FormValue("user_id"))
		assert.Equal(t, "true", r.FormValue("is_public"))

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "CERT-001.pdf", header.Filename)
		assert.Equal(t, "application/pdf", header.Header.Get("Content-Type"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "9a1b2c3d-0000-4000-8000-000000000001",
			"file_name": "CERT-001.pdf",
			"file_size": 29,
			"mime_type": "application/pdf",
			"is_public": true,
			"download_url": "https://files.example.com/public/files/9a1b2c3d-0000-4000-8000-000000000001",
			"created_at": "2026-08-25T10:00:00Z"
		}`))
	}))
	defer srv.Close()

	res, err := testClient(srv.URL).Upload(context.Background(), UploadRequest{
		FileName: "CERT-001.pdf",
		Content:  content,
		UserID:   "user-42",
		IsPublic: true,
	})
	require.NoError(t, err)

	assert.Equal(t, "9a1b2c3d-0000-4000-8000-000000000001", res.FileID)
	assert.Equal(t, "CERT-001.pdf", res.FileName)
	assert.Equal(t, int64(29), res.FileSize)
	assert.Equal(t, "application/pdf", res.MimeType)
	assert.True(t, res.IsPublic)
	assert.Contains(t, res.DownloadURL, "/public/files/")
	assert.Equal(t, time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC), res.CreatedAt)
}

func TestUploadFileIDAlias(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"file_id": "aliased-id", "file_name": "x.pdf"}`))
	}))
	defer srv.Close()

	res, err := testClient(srv.URL).Upload(context.Background(), UploadRequest{FileName: "x.pdf", Content: []byte("x")})
	require.NoError(t, err)
	assert.Equal(t, "aliased-id", res.FileID)
}

func TestUploadErrorStatus(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{name: "client error", status: http.StatusUnprocessableEntity},
		{name: "server error", status: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls++
				http.Error(w, "rejected", tt.status)
			}))
			defer srv.Close()

			_, err := testClient(srv.URL).Upload(context.Background(), UploadRequest{FileName: "x.pdf", Content: []byte("x")})
			require.Error(t, err)
			assert.Contains(t, err.Error(), "rejected")
			assert.Equal(t, 1, calls, "uploads are not retried")
		})
	}
}

func TestPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Even a 404 root proves the gateway is answering HTTP.
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := testClient(srv.URL)
	assert.NoError(t, client.Ping(context.Background()))

	srv.Close()
	assert.Error(t, client.Ping(context.Background()))
}
