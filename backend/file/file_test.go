package file

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/unkn0wn-root/syncache/backend"
)

func newTestAdapter(t *testing.T) *Adapter {
	t.Helper()
	a, err := New(backend.Config{SavePath: filepath.Join(t.TempDir(), "cache.json")})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := a.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	return a
}

func TestDefaultPathFromName(t *testing.T) {
	a, err := New(backend.Config{Name: "orders"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if a.Path() != "orders.json" {
		t.Fatalf("Path = %q, want orders.json", a.Path())
	}

	if _, err := New(backend.Config{}); err == nil {
		t.Fatalf("New without name or path must fail")
	}
}

func TestSaveFetchRoundTrip(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter(t)

	want := map[string]any{
		"user":  map[string]any{"name": "Alice"},
		"count": float64(3),
	}
	if err := a.Save(ctx, want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := a.Fetch(ctx)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got["count"] != float64(3) {
		t.Fatalf("count = %v", got["count"])
	}
	user, ok := got["user"].(map[string]any)
	if !ok || user["name"] != "Alice" {
		t.Fatalf("user = %#v", got["user"])
	}
}

func TestDocumentIsPrettyPrinted(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter(t)

	if err := a.Save(ctx, map[string]any{"a": map[string]any{"b": 1}}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	data, err := os.ReadFile(a.Path())
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(data), "\n  ") {
		t.Fatalf("document is not indented:\n%s", data)
	}
	if !json.Valid(data) {
		t.Fatalf("document is not valid JSON")
	}
}

func TestFetchMissingFileIsEmpty(t *testing.T) {
	a := newTestAdapter(t)
	got, err := a.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("Fetch on missing file = %#v, want empty map", got)
	}
}

func TestFetchMalformedDocument(t *testing.T) {
	a := newTestAdapter(t)
	if err := os.WriteFile(a.Path(), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	_, err := a.Fetch(context.Background())
	var merr *backend.MalformedError
	if !errors.As(err, &merr) {
		t.Fatalf("Fetch error = %v, want *backend.MalformedError", err)
	}
	if string(merr.Raw) != "{not json" {
		t.Fatalf("Raw = %q, want the original bytes", merr.Raw)
	}
}

func TestDeleteHasClear(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter(t)

	if err := a.Save(ctx, map[string]any{"a": 1, "b": 2}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if ok, err := a.Has(ctx, "a"); err != nil || !ok {
		t.Fatalf("Has(a) = %v err=%v", ok, err)
	}

	if err := a.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if ok, _ := a.Has(ctx, "a"); ok {
		t.Fatalf("key survived delete")
	}
	// absent key is a no-op
	if err := a.Delete(ctx, "never"); err != nil {
		t.Fatalf("Delete absent: %v", err)
	}

	if err := a.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	got, err := a.Fetch(ctx)
	if err != nil || len(got) != 0 {
		t.Fatalf("Fetch after clear = %#v err=%v", got, err)
	}
}

func TestSaveLeavesNoTempFile(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter(t)
	if err := a.Save(ctx, map[string]any{"a": 1}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(a.Path() + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file left behind: %v", err)
	}
}

func TestConnectCreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deep", "nested", "cache.json")
	a, err := New(backend.Config{SavePath: path})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := a.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := a.Save(context.Background(), map[string]any{"a": 1}); err != nil {
		t.Fatalf("Save into created dir: %v", err)
	}
}
