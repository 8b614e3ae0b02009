package bolt

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/unkn0wn-root/syncache/backend"
)

func newTestAdapter(t *testing.T) *Adapter {
	t.Helper()
	a, err := New(backend.Config{
		Name:     "sessions",
		SavePath: filepath.Join(t.TempDir(), "sessions.bolt"),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := a.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { a.Close(context.Background()) })
	return a
}

func TestPutGetKey(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter(t)

	if _, ok, err := a.GetKey(ctx, "missing"); err != nil || ok {
		t.Fatalf("GetKey(missing) = ok=%v err=%v", ok, err)
	}

	if err := a.PutKey(ctx, "user", map[string]any{"name": "Alice"}); err != nil {
		t.Fatalf("PutKey: %v", err)
	}
	v, ok, err := a.GetKey(ctx, "user")
	if err != nil || !ok {
		t.Fatalf("GetKey = ok=%v err=%v", ok, err)
	}
	if v.(map[string]any)["name"] != "Alice" {
		t.Fatalf("GetKey = %#v", v)
	}
}

func TestSaveReplacesBucket(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter(t)

	if err := a.Save(ctx, map[string]any{"a": float64(1), "b": float64(2)}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := a.Save(ctx, map[string]any{"c": float64(3)}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := a.Fetch(ctx)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(got) != 1 || got["c"] != float64(3) {
		t.Fatalf("Fetch after replace = %#v", got)
	}
}

func TestFetchEmptyDatabase(t *testing.T) {
	a := newTestAdapter(t)
	got, err := a.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("Fetch on fresh db = %#v, want empty map", got)
	}
}

func TestHasDeleteClear(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter(t)

	_ = a.PutKey(ctx, "k", "v")
	if ok, _ := a.Has(ctx, "k"); !ok {
		t.Fatalf("Has = false after put")
	}
	if err := a.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if ok, _ := a.Has(ctx, "k"); ok {
		t.Fatalf("record survived delete")
	}
	// delete before the bucket even exists
	fresh := newTestAdapter(t)
	if err := fresh.Delete(ctx, "anything"); err != nil {
		t.Fatalf("Delete on fresh db: %v", err)
	}

	_ = a.PutKey(ctx, "a", 1)
	if err := a.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if got, _ := a.Fetch(ctx); len(got) != 0 {
		t.Fatalf("Fetch after clear = %#v", got)
	}
	// clear again with no bucket
	if err := a.Clear(ctx); err != nil {
		t.Fatalf("second Clear: %v", err)
	}
}

func TestTxnCommitAndRollback(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter(t)

	tx, err := a.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := tx.Put(ctx, "n", float64(1)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if v, ok, _ := tx.Get(ctx, "n"); !ok || v != float64(1) {
		t.Fatalf("txn read-own-write = %v ok=%v", v, ok)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if v, ok, _ := a.GetKey(ctx, "n"); !ok || v != float64(1) {
		t.Fatalf("committed value = %v ok=%v", v, ok)
	}

	tx, err = a.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := tx.Put(ctx, "n", float64(99)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	// rollback then commit is a no-op, not a double-finish error
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit after Rollback: %v", err)
	}
	if v, _, _ := a.GetKey(ctx, "n"); v != float64(1) {
		t.Fatalf("rollback leaked a write: %v", v)
	}
}

func TestDataSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "persist.bolt")

	a, err := New(backend.Config{Name: "persist", SavePath: path})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := a.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := a.PutKey(ctx, "k", "v"); err != nil {
		t.Fatalf("PutKey: %v", err)
	}
	if err := a.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	b, err := New(backend.Config{Name: "persist", SavePath: path})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := b.Connect(ctx); err != nil {
		t.Fatalf("Connect (reopen): %v", err)
	}
	defer b.Close(ctx)
	if v, ok, _ := b.GetKey(ctx, "k"); !ok || v != "v" {
		t.Fatalf("value lost across reopen: %v ok=%v", v, ok)
	}
}
