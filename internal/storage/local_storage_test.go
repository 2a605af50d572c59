package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLocalStorageSave(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStorage(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	relPath, err := store.Save(context.Background(), []byte(`{"score":87}`), SaveOptions{
		Category:  "exports",
		Extension: "json",
		BaseName:  "analysis-7",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(relPath, "exports/") {
		t.Fatalf("expected exports/ prefix, got %s", relPath)
	}
	if !strings.HasSuffix(relPath, "analysis-7.json") {
		t.Fatalf("expected analysis-7.json filename, got %s", relPath)
	}

	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(relPath)))
	if err != nil {
		t.Fatalf("saved file unreadable: %v", err)
	}
	if string(data) != `{"score":87}` {
		t.Fatalf("unexpected file content %q", data)
	}
}

func TestLocalStorageRejectsEmptyPayload(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := store.Save(context.Background(), nil, SaveOptions{Category: "exports", Extension: "json"}); err == nil {
		t.Fatal("expected error for empty payload")
	}
}

func TestBuildObjectPathSanitizesSegments(t *testing.T) {
	path := buildObjectPath("Exports!!", "My Report", "JSON")
	if !strings.HasPrefix(path, "exports/") {
		t.Fatalf("expected sanitized category, got %s", path)
	}
	if !strings.HasSuffix(path, "my-report.json") {
		t.Fatalf("expected sanitized filename, got %s", path)
	}
}

func TestDetectContentType(t *testing.T) {
	if got := detectContentType("json"); got != "application/json" {
		t.Fatalf("expected application/json, got %s", got)
	}
	if got := detectContentType("csv"); got != "text/csv" {
		t.Fatalf("expected text/csv, got %s", got)
	}
	if got := detectContentType(""); got != "application/octet-stream" {
		t.Fatalf("expected fallback content type, got %s", got)
	}
}
