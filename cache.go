package syncache

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	be "github.com/unkn0wn-root/syncache/backend"
	"github.com/unkn0wn-root/syncache/internal/dotpath"
)

type cache struct {
	name   string
	beType string
	be     be.Adapter
	gran   be.Granular
	coord  *coordinator

	log   Logger
	hooks Hooks
	debug bool

	syncOnWrite  bool
	syncOnClose  bool
	syncInterval time.Duration

	// mu guards snapshot, dirty and state. It is held across backend
	// flushes so a save never serializes a half-applied mutation.
	mu       sync.RWMutex
	snapshot map[string]any
	dirty    bool
	state    int

	ticker    *time.Ticker
	stopCh    chan struct{}
	closeWg   sync.WaitGroup
	closeOnce sync.Once
}

func newCache(ctx context.Context, name string, opts Options) (*cache, error) {
	if name == "" {
		return nil, fmt.Errorf("syncache: cache name is required")
	}

	c := &cache{
		name:        name,
		snapshot:    make(map[string]any),
		syncOnWrite: opts.SyncOnWrite,
		syncOnClose: opts.SyncOnClose,
		debug:       opts.Debug,
	}
	c.log = coalesce[Logger](opts.Logger, NopLogger{})
	c.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	c.syncInterval = coalesce[time.Duration](opts.SyncInterval, 24*time.Hour)

	typ := coalesce(opts.Type, "memory")
	switch {
	case opts.Backend != nil:
		c.be = opts.Backend
		c.beType = coalesce(opts.Type, "custom")
	case typ != "memory":
		adapter, err := be.Open(typ, be.Config{
			Name:       name,
			SavePath:   opts.SavePath,
			Host:       opts.Host,
			Port:       opts.Port,
			Database:   opts.Database,
			Collection: opts.Collection,
			Username:   opts.Username,
			Password:   opts.Password,
			Granular:   opts.Granular,
			Codec:      opts.Codec,
		})
		if err != nil {
			return nil, err
		}
		c.be = adapter
		c.beType = typ
	default:
		c.beType = "memory"
	}
	if g, ok := c.be.(be.Granular); ok {
		c.gran = g
	}
	c.coord = newCoordinator(name, c.log, c.hooks)

	if err := c.initialize(ctx); err != nil {
		return nil, err
	}

	if c.be != nil {
		c.ticker = time.NewTicker(c.syncInterval)
		c.stopCh = make(chan struct{})
		c.closeWg.Add(1)
		go c.syncLoop()
	}
	return c, nil
}

// ==============================
// Reads (snapshot only, never suspend)
// ==============================

func (c *cache) Get(path string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v := dotpath.Get(c.snapshot, dotpath.Split(path))
	if dotpath.Missing(v) {
		return nil, false
	}
	return v, true
}

func (c *cache) Retrieve(path string) (any, bool) { return c.Get(path) }

func (c *cache) Has(path string) bool {
	_, ok := c.Get(path)
	return ok
}

func (c *cache) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.snapshot))
	for k := range c.snapshot {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (c *cache) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.snapshot)
}

// ==============================
// Mutations
// ==============================

func (c *cache) Set(ctx context.Context, path string, value any, syncNow bool) error {
	segs, err := splitPath(path)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == stateClosed {
		return ErrClosed
	}
	dotpath.Set(c.snapshot, segs, value)
	c.dirty = true
	return c.maybeSync(ctx, syncNow)
}

func (c *cache) Delete(ctx context.Context, path string, syncNow bool) error {
	segs, err := splitPath(path)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == stateClosed {
		return ErrClosed
	}
	if !dotpath.Delete(c.snapshot, segs) {
		// absent path: nothing changed, snapshot stays clean
		return nil
	}
	c.dirty = true
	if c.gran != nil {
		// keep the granular record store in step for top-level removals
		if len(segs) == 1 {
			if derr := c.gran.Delete(ctx, segs[0]); derr != nil {
				c.log.Warn("granular delete failed; record removed on next sync",
					Fields{"cache": c.name, "key": segs[0], "err": derr})
			}
		}
	}
	return c.maybeSync(ctx, syncNow)
}

func (c *cache) Clear(ctx context.Context, syncNow bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == stateClosed {
		return ErrClosed
	}
	c.snapshot = make(map[string]any)
	c.dirty = true
	return c.maybeSync(ctx, syncNow)
}

func (c *cache) Add(ctx context.Context, path string, n float64, syncNow bool) (float64, error) {
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, fmt.Errorf("%w: non-finite increment %v", ErrInvalidArgument, n)
	}
	segs, err := splitPath(path)
	if err != nil {
		return 0, err
	}
	if c.granReady() {
		return c.addGranular(ctx, segs, n, syncNow)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == stateClosed {
		return 0, ErrClosed
	}
	cur, _ := toNumber(dotpath.Get(c.snapshot, segs))
	next := cur + n
	dotpath.Set(c.snapshot, segs, next)
	c.dirty = true
	return next, c.maybeSync(ctx, syncNow)
}

func (c *cache) Subtract(ctx context.Context, path string, n float64, syncNow bool) (float64, error) {
	return c.Add(ctx, path, -n, syncNow)
}

func (c *cache) Push(ctx context.Context, path string, element any, syncNow bool) ([]any, error) {
	segs, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	if c.granReady() {
		return c.pushGranular(ctx, segs, element, syncNow)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == stateClosed {
		return nil, ErrClosed
	}
	seq := toSequence(dotpath.Get(c.snapshot, segs))
	seq = append(seq, element)
	dotpath.Set(c.snapshot, segs, seq)
	c.dirty = true
	return seq, c.maybeSync(ctx, syncNow)
}

// ==============================
// Granular compound updates
// ==============================

// addGranular routes Add through the backend's native counter when the
// path is a bare top-level key, and through the coordinator otherwise.
// The result is mirrored into the snapshot, which still marks it dirty
// (same rule as every mutation).
func (c *cache) addGranular(ctx context.Context, segs []string, n float64, syncNow bool) (float64, error) {
	key := segs[0]

	if len(segs) == 1 {
		if adder, ok := c.gran.(be.Adder); ok {
			if err := c.gran.Connect(ctx); err == nil {
				next, err := adder.AddKey(ctx, key, n)
				if err == nil {
					return next, c.mirror(ctx, key, next, syncNow)
				}
				// stored value not a bare number; fall back to the
				// locked read-modify-write below
				c.debugLog("native counter rejected; using coordinator",
					Fields{"cache": c.name, "key": key, "err": err})
			}
		}
	}

	var result float64
	rec, err := c.coord.update(ctx, c.gran, key, "add", func(cur any, ok bool) (any, error) {
		if len(segs) == 1 {
			v, _ := toNumber(curOr(cur, ok))
			result = v + n
			return result, nil
		}
		doc, _ := curOr(cur, ok).(map[string]any)
		if doc == nil {
			doc = make(map[string]any)
		}
		v, _ := toNumber(dotpath.Get(doc, segs[1:]))
		result = v + n
		dotpath.Set(doc, segs[1:], result)
		return doc, nil
	})
	if err != nil {
		return 0, err
	}
	return result, c.mirror(ctx, key, rec, syncNow)
}

func (c *cache) pushGranular(ctx context.Context, segs []string, element any, syncNow bool) ([]any, error) {
	key := segs[0]

	var result []any
	rec, err := c.coord.update(ctx, c.gran, key, "push", func(cur any, ok bool) (any, error) {
		if len(segs) == 1 {
			result = append(toSequence(curOr(cur, ok)), element)
			return result, nil
		}
		doc, _ := curOr(cur, ok).(map[string]any)
		if doc == nil {
			doc = make(map[string]any)
		}
		result = append(toSequence(dotpath.Get(doc, segs[1:])), element)
		dotpath.Set(doc, segs[1:], result)
		return doc, nil
	})
	if err != nil {
		return nil, err
	}
	return result, c.mirror(ctx, key, rec, syncNow)
}

// mirror writes a backend-computed record back into the snapshot.
func (c *cache) mirror(ctx context.Context, key string, rec any, syncNow bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == stateClosed {
		return ErrClosed
	}
	c.snapshot[key] = rec
	c.dirty = true
	return c.maybeSync(ctx, syncNow)
}

func (c *cache) granReady() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gran != nil && c.state == stateReady
}

// ==============================
// Coercion helpers
// ==============================

func splitPath(path string) ([]string, error) {
	segs := dotpath.Split(path)
	if len(segs) == 0 {
		return nil, fmt.Errorf("%w: empty path", ErrInvalidArgument)
	}
	return segs, nil
}

// curOr collapses the (value, ok) record pair: absent records behave like
// the absence sentinel so coercion treats them as zero values.
func curOr(cur any, ok bool) any {
	if !ok {
		return nil
	}
	return cur
}

// toNumber coerces a snapshot value to float64. Missing and non-numeric
// values coerce to 0.
func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

// toSequence coerces a snapshot value to []any; anything else (including
// absence) yields a fresh empty sequence.
func toSequence(v any) []any {
	if seq, ok := v.([]any); ok {
		return seq
	}
	return nil
}
