// Package file persists the cache as one pretty-printed JSON document.
//
// Import for side effects to register the "file" backend:
//
//	import _ "github.com/unkn0wn-root/syncache/backend/file"
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/unkn0wn-root/syncache/backend"
)

func init() {
	backend.Register("file", func(cfg backend.Config) (backend.Adapter, error) {
		return New(cfg)
	})
}

// Adapter stores the whole snapshot in a single JSON file at Path.
// Writes go through a temp file + rename so a crash mid-save never leaves a
// truncated document behind.
type Adapter struct {
	path      string
	connected bool
}

var _ backend.Adapter = (*Adapter)(nil)

func New(cfg backend.Config) (*Adapter, error) {
	path := cfg.SavePath
	if path == "" {
		if cfg.Name == "" {
			return nil, fmt.Errorf("file backend: a cache name or save path is required")
		}
		path = cfg.Name + ".json"
	}
	return &Adapter{path: path}, nil
}

// Path returns the document location.
func (a *Adapter) Path() string { return a.path }

func (a *Adapter) Connect(_ context.Context) error {
	if a.connected {
		return nil
	}
	if dir := filepath.Dir(a.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("file backend: creating %s: %w", dir, err)
		}
	}
	a.connected = true
	return nil
}

func (a *Adapter) Save(_ context.Context, snapshot map[string]any) error {
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("file backend: encoding snapshot: %w", err)
	}
	tmp := a.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("file backend: writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, a.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("file backend: replacing %s: %w", a.path, err)
	}
	return nil
}

func (a *Adapter) Fetch(_ context.Context) (map[string]any, error) {
	data, err := os.ReadFile(a.path)
	if os.IsNotExist(err) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("file backend: reading %s: %w", a.path, err)
	}
	out := make(map[string]any)
	if len(data) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return map[string]any{}, &backend.MalformedError{Raw: data, Err: err}
	}
	return out, nil
}

func (a *Adapter) Delete(ctx context.Context, key string) error {
	doc, err := a.Fetch(ctx)
	if err != nil {
		return err
	}
	if _, ok := doc[key]; !ok {
		return nil
	}
	delete(doc, key)
	return a.Save(ctx, doc)
}

func (a *Adapter) Has(ctx context.Context, key string) (bool, error) {
	doc, err := a.Fetch(ctx)
	if err != nil {
		return false, err
	}
	_, ok := doc[key]
	return ok, nil
}

func (a *Adapter) Clear(ctx context.Context) error {
	return a.Save(ctx, map[string]any{})
}

func (a *Adapter) Close(_ context.Context) error {
	a.connected = false
	return nil
}
