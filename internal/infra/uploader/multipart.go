package uploader

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gauntletci/gauntlet/internal/domain"
	"github.com/gauntletci/gauntlet/internal/ports"
)

const defaultMaxResponseBytes = 64 * 1024

// HTTP uploads local files as multipart POSTs. It serves both failure-time
// image uploads and success-time coverage uploads; the endpoint comes from
// the environment.
type HTTP struct {
	client           *http.Client
	fieldName        string
	maxResponseBytes int64
}

type Option func(*HTTP)

// WithFieldName overrides the multipart form field (default "file").
func WithFieldName(name string) Option {
	return func(u *HTTP) {
		if name != "" {
			u.fieldName = name
		}
	}
}

func WithMaxResponseBytes(n int64) Option {
	return func(u *HTTP) { u.maxResponseBytes = n }
}

func New(client *http.Client, opts ...Option) *HTTP {
	u := &HTTP{
		client:           client,
		fieldName:        "file",
		maxResponseBytes: defaultMaxResponseBytes,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

var _ ports.Uploader = (*HTTP)(nil)

// UploadFile posts the file at path to endpoint and returns the URL the
// service assigned (when the response carries one).
func (u *HTTP) UploadFile(ctx context.Context, endpoint string, path string) (string, error) {
	if endpoint == "" {
		return "", &domain.OpError{
			Op:   "uploader.post",
			Kind: domain.KindInvalidConfig,
			Err:  errors.New("empty upload endpoint"),
		}
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return "", &domain.OpError{
			Op:   "uploader.read",
			Kind: domain.KindNotFound,
			Path: path,
			Err:  err,
		}
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile(u.fieldName, filepath.Base(path))
	if err != nil {
		return "", &domain.OpError{
			Op:   "uploader.multipart",
			Kind: domain.KindExecution,
			Path: path,
			Err:  err,
		}
	}
	if _, err := fw.Write(b); err != nil {
		return "", &domain.OpError{
			Op:   "uploader.multipart",
			Kind: domain.KindExecution,
			Path: path,
			Err:  err,
		}
	}
	if err := mw.Close(); err != nil {
		return "", &domain.OpError{
			Op:   "uploader.multipart",
			Kind: domain.KindExecution,
			Path: path,
			Err:  err,
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return "", &domain.OpError{
			Op:   "uploader.request",
			Kind: domain.KindInvalidConfig,
			Err:  err,
		}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := u.client.Do(req)
	if err != nil {
		return "", &domain.OpError{
			Op:   "uploader.post",
			Kind: domain.KindExecution,
			Path: path,
			Err:  err,
		}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, u.maxResponseBytes))
	if err != nil {
		return "", &domain.OpError{
			Op:   "uploader.response",
			Kind: domain.KindExecution,
			Path: path,
			Err:  err,
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &domain.OpError{
			Op:   "uploader.post",
			Kind: domain.KindExecution,
			Path: path,
			Err:  fmt.Errorf("endpoint returned status %d", resp.StatusCode),
		}
	}

	return extractURL(respBody), nil
}

// extractURL pulls the assigned URL out of common response shapes:
// {"url": ...}, {"link": ...} or imgur-style {"data": {"link": ...}}.
func extractURL(body []byte) string {
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return ""
	}

	if s, ok := doc["url"].(string); ok {
		return s
	}
	if s, ok := doc["link"].(string); ok {
		return s
	}
	if data, ok := doc["data"].(map[string]any); ok {
		if s, ok := data["link"].(string); ok {
			return s
		}
	}
	return ""
}
