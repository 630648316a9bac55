package uploader

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gauntletci/gauntlet/internal/domain"
)

func TestUploadFile_Success(t *testing.T) {
	var gotField string
	var gotName string
	var gotBody []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		for field, headers := range r.MultipartForm.File {
			gotField = field
			gotName = headers[0].Filename
			f, _ := headers[0].Open()
			gotBody, _ = io.ReadAll(f)
			f.Close()
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"link":"https://img.example/abc.png"}}`))
	}))
	defer srv.Close()

	tmp := t.TempDir()
	p := filepath.Join(tmp, "diff.png")
	if err := os.WriteFile(p, []byte("png-bytes"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	u := New(srv.Client(), WithFieldName("image"))
	url, err := u.UploadFile(context.Background(), srv.URL, p)
	if err != nil {
		t.Fatalf("UploadFile error: %v", err)
	}

	if url != "https://img.example/abc.png" {
		t.Fatalf("expected link from response, got=%q", url)
	}
	if gotField != "image" {
		t.Fatalf("expected field=image, got=%q", gotField)
	}
	if gotName != "diff.png" {
		t.Fatalf("expected filename=diff.png, got=%q", gotName)
	}
	if string(gotBody) != "png-bytes" {
		t.Fatalf("expected file body, got=%q", gotBody)
	}
}

func TestUploadFile_FlatURLResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"url":"https://cov.example/report/7"}`))
	}))
	defer srv.Close()

	tmp := t.TempDir()
	p := filepath.Join(tmp, "coverage.json")
	if err := os.WriteFile(p, []byte("{}"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	u := New(srv.Client())
	url, err := u.UploadFile(context.Background(), srv.URL, p)
	if err != nil {
		t.Fatalf("UploadFile error: %v", err)
	}
	if url != "https://cov.example/report/7" {
		t.Fatalf("unexpected url: %q", url)
	}
}

func TestUploadFile_NonJSONResponseIsOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("thanks"))
	}))
	defer srv.Close()

	tmp := t.TempDir()
	p := filepath.Join(tmp, "coverage.json")
	if err := os.WriteFile(p, []byte("{}"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	u := New(srv.Client())
	url, err := u.UploadFile(context.Background(), srv.URL, p)
	if err != nil {
		t.Fatalf("UploadFile error: %v", err)
	}
	if url != "" {
		t.Fatalf("expected empty url, got=%q", url)
	}
}

func TestUploadFile_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	tmp := t.TempDir()
	p := filepath.Join(tmp, "diff.png")
	if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	u := New(srv.Client())
	_, err := u.UploadFile(context.Background(), srv.URL, p)
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.KindExecution) {
		t.Fatalf("expected execution kind, got: %v", err)
	}
}

func TestUploadFile_MissingFile(t *testing.T) {
	u := New(http.DefaultClient)
	_, err := u.UploadFile(context.Background(), "http://unused", filepath.Join(t.TempDir(), "nope.png"))
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.KindNotFound) {
		t.Fatalf("expected not_found kind, got: %v", err)
	}
}

func TestUploadFile_EmptyEndpoint(t *testing.T) {
	u := New(http.DefaultClient)
	_, err := u.UploadFile(context.Background(), "", "whatever.png")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.KindInvalidConfig) {
		t.Fatalf("expected invalid_config kind, got: %v", err)
	}
}
