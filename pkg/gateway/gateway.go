package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/certmint/certmint/pkg/metrics"
)

// Config holds the gateway connection settings.
type Config struct {
	BaseURL         string
	AccessKey       string
	SecretKey       string
	ProjectID       string
	DownloadTimeout time.Duration
	UploadTimeout   time.Duration
}

// UploadRequest describes one file to store.
type UploadRequest struct {
	FileName    string
	ContentType string
	Content     []byte
	UserID      string
	IsPublic    bool
}

// UploadResult is the gateway's record of a stored file.
type UploadResult struct {
	FileID      string
	FileName    string
	FileSize    int64
	MimeType    string
	IsPublic    bool
	DownloadURL string
	CreatedAt   time.Time
}

// Client talks to the file gateway over signed HTTP. Downloads and uploads
// use separate http.Clients because their timeouts differ.
type Client struct {
	baseURL   string
	accessKey string
	secretKey string
	projectID string

	downloadClient *http.Client
	uploadClient   *http.Client
}

// NewClient builds a gateway client from configuration.
func NewClient(cfg Config) *Client {
	return &Client{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		accessKey:      cfg.AccessKey,
		secretKey:      cfg.SecretKey,
		projectID:      cfg.ProjectID,
		downloadClient: &http.Client{Timeout: cfg.DownloadTimeout},
		uploadClient:   &http.Client{Timeout: cfg.UploadTimeout},
	}
}

// Download fetches a file's bytes by id.
func (c *Client) Download(ctx context.Context, fileID string) ([]byte, error) {
	// The signed path never includes a /public prefix even when the
	// effective URL does.
	path := "/files/" + fileID

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build download request: %w", err)
	}
	c.sign(req, http.MethodGet, path)

	timer := metrics.NewTimer()
	resp, err := c.downloadClient.Do(req)
	timer.ObserveDurationVec(metrics.GatewayRequestDuration, "download")
	if err != nil {
		metrics.GatewayRequests.WithLabelValues("download", "error").Inc()
		return nil, fmt.Errorf("download request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		metrics.GatewayRequests.WithLabelValues("download", "error").Inc()
		return nil, fmt.Errorf("file %s not found", fileID)
	}
	if resp.StatusCode >= 400 {
		metrics.GatewayRequests.WithLabelValues("download", "error").Inc()
		return nil, fmt.Errorf("download of %s returned status %d", fileID, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.GatewayRequests.WithLabelValues("download", "error").Inc()
		return nil, fmt.Errorf("failed to read download body: %w", err)
	}
	metrics.GatewayRequests.WithLabelValues("download", "ok").Inc()
	return data, nil
}

// Upload stores a file and returns the gateway's record of it. Any response
// of 400 or above is an error; uploads are not retried.
func (c *Client) Upload(ctx context.Context, up UploadRequest) (*UploadResult, error) {
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, up.FileName))
	contentType := up.ContentType
	if contentType == "" {
		contentType = "application/pdf"
	}
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to build multipart body: %w", err)
	}
	if _, err := part.Write(up.Content); err != nil {
		return nil, fmt.Errorf("failed to write file part: %w", err)
	}
	fields := map[string]string{
		"project_id": c.projectID,
		"user_id":    up.UserID,
		"is_public":  strconv.FormatBool(up.IsPublic),
	}
	for name, value := range fields {
		if err := w.WriteField(name, value); err != nil {
			return nil, fmt.Errorf("failed to write field %s: %w", name, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish multipart body: %w", err)
	}

	path := "/api/v1/files"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build upload request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	c.sign(req, http.MethodPost, path)

	timer := metrics.NewTimer()
	resp, err := c.uploadClient.Do(req)
	timer.ObserveDurationVec(metrics.GatewayRequestDuration, "upload")
	if err != nil {
		metrics.GatewayRequests.WithLabelValues("upload", "error").Inc()
		return nil, fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		metrics.GatewayRequests.WithLabelValues("upload", "error").Inc()
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("upload of %s returned status %d: %s", up.FileName, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var ur uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&ur); err != nil {
		metrics.GatewayRequests.WithLabelValues("upload", "error").Inc()
		return nil, fmt.Errorf("failed to decode upload response: %w", err)
	}
	metrics.GatewayRequests.WithLabelValues("upload", "ok").Inc()
	return ur.result(), nil
}

// Ping reports whether the gateway answers HTTP at all. Any status counts;
// only transport errors fail.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return err
	}
	resp, err := c.downloadClient.Do(req)
	if err != nil {
		return fmt.Errorf("gateway unreachable: %w", err)
	}
	resp.Body.Close()
	return nil
}

// sign adds the HMAC authentication headers:
//
//	stringToSign = METHOD "\n" PATH "\n" UNIX_TS
//	X-Signature  = hex(HMAC-SHA256(secret, stringToSign))
func (c *Client) sign(req *http.Request, method, path string) {
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)

	mac := hmac.New(sha256.New, []byte(c.secretKey))
	mac.Write([]byte(method + "\n" + path + "\n" + timestamp))
	signature := hex.EncodeToString(mac.Sum(nil))

	req.Header.Set("X-Access-Key", c.accessKey)
	req.Header.Set("X-Signature", signature)
	req.Header.Set("X-Timestamp", timestamp)
}

// uploadResponse tolerates both "id" and "file_id" for the stored file id.
type uploadResponse struct {
	ID          string    `json:"id"`
	FileID      string    `json:"file_id"`
	FileName    string    `json:"file_name"`
	FileSize    int64     `json:"file_size"`
	MimeType    string    `json:"mime_type"`
	IsPublic    bool      `json:"is_public"`
	DownloadURL string    `json:"download_url"`
	CreatedAt   time.Time `json:"created_at"`
}

func (r *uploadResponse) result() *UploadResult {
	id := r.ID
	if id == "" {
		id = r.FileID
	}
	return &UploadResult{
		FileID:      id,
		FileName:    r.FileName,
		FileSize:    r.FileSize,
		MimeType:    r.MimeType,
		IsPublic:    r.IsPublic,
		DownloadURL: r.DownloadURL,
		CreatedAt:   r.CreatedAt,
	}
}
