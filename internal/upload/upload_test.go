package upload

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func writeTestPhoto(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "photo_20250615_143045.png")
	if err := os.WriteFile(path, []byte("fake png"), 0644); err != nil {
		t.Fatalf("Failed to write test photo: %v", err)
	}
	return path
}

func TestClient_Upload(t *testing.T) {
	var gotFilename string
	var gotBody []byte

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("Expected multipart field 'file': %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer func() { _ = file.Close() }()

		gotFilename = header.Filename
		gotBody, _ = io.ReadAll(file)
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	if !client.Enabled() {
		t.Fatal("Expected client to be enabled")
	}

	path := writeTestPhoto(t)
	if err := client.Upload(path); err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	if gotFilename != filepath.Base(path) {
		t.Errorf("Expected filename %s, got %s", filepath.Base(path), gotFilename)
	}
	if string(gotBody) != "fake png" {
		t.Errorf("Body mismatch: %q", gotBody)
	}
}

func TestClient_UploadRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	if err := client.Upload(writeTestPhoto(t)); err == nil {
		t.Error("Expected error for non-201 response")
	}
}

func TestClient_Disabled(t *testing.T) {
	client := NewClient("")
	if client.Enabled() {
		t.Error("Expected client to be disabled without endpoint")
	}

	// エンドポイント未設定なら何もせず成功する
	if err := client.Upload("/nonexistent/path"); err != nil {
		t.Errorf("Expected nil error when disabled, got %v", err)
	}
}

func TestClient_MissingFile(t *testing.T) {
	client := NewClient("http://localhost:1")
	if err := client.Upload("/nonexistent/path"); err == nil {
		t.Error("Expected error for missing file")
	}
}
