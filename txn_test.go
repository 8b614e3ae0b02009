package syncache

import (
	"context"
	"errors"
	"sync"
	"testing"

	be "github.com/unkn0wn-root/syncache/backend"
)

// ==============================
// Fake granular backends
// ==============================

// granBackend stores one record per top-level key. It implements only
// backend.Granular, so the coordinator takes the best-effort path.
type granBackend struct {
	mu      sync.Mutex
	records map[string]any
	putErr  error
}

var _ be.Granular = (*granBackend)(nil)

func newGranBackend() *granBackend {
	return &granBackend{records: make(map[string]any)}
}

func (g *granBackend) Connect(context.Context) error { return nil }

func (g *granBackend) Save(_ context.Context, snapshot map[string]any) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.records = make(map[string]any, len(snapshot))
	for k, v := range snapshot {
		g.records[k] = v
	}
	return nil
}

func (g *granBackend) Fetch(context.Context) (map[string]any, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[string]any, len(g.records))
	for k, v := range g.records {
		out[k] = v
	}
	return out, nil
}

func (g *granBackend) Delete(_ context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.records, key)
	return nil
}

func (g *granBackend) Has(_ context.Context, key string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.records[key]
	return ok, nil
}

func (g *granBackend) Clear(context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.records = make(map[string]any)
	return nil
}

func (g *granBackend) Close(context.Context) error { return nil }

func (g *granBackend) GetKey(_ context.Context, key string) (any, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	v, ok := g.records[key]
	return v, ok, nil
}

func (g *granBackend) PutKey(_ context.Context, key string, value any) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.putErr != nil {
		return g.putErr
	}
	g.records[key] = value
	return nil
}

func (g *granBackend) stored(key string) any {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.records[key]
}

// txBackend adds native begin/commit/rollback on top of granBackend.
// Writes buffer in the transaction and apply on Commit only.
type txBackend struct {
	*granBackend
}

var _ be.Transactional = (*txBackend)(nil)

func newTxBackend() *txBackend { return &txBackend{granBackend: newGranBackend()} }

func (g *txBackend) Begin(context.Context) (be.Txn, error) {
	return &fakeTxn{parent: g.granBackend, pending: make(map[string]any)}, nil
}

type fakeTxn struct {
	parent  *granBackend
	pending map[string]any
	done    bool
}

func (t *fakeTxn) Get(_ context.Context, key string) (any, bool, error) {
	if v, ok := t.pending[key]; ok {
		return v, true, nil
	}
	t.parent.mu.Lock()
	defer t.parent.mu.Unlock()
	v, ok := t.parent.records[key]
	return v, ok, nil
}

func (t *fakeTxn) Put(_ context.Context, key string, value any) error {
	t.parent.mu.Lock()
	err := t.parent.putErr
	t.parent.mu.Unlock()
	if err != nil {
		return err
	}
	t.pending[key] = value
	return nil
}

func (t *fakeTxn) Commit() error {
	if t.done {
		return errors.New("txn finished")
	}
	t.done = true
	t.parent.mu.Lock()
	defer t.parent.mu.Unlock()
	for k, v := range t.pending {
		t.parent.records[k] = v
	}
	return nil
}

func (t *fakeTxn) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	t.pending = nil
	return nil
}

// adderBackend adds a native atomic counter on top of granBackend.
type adderBackend struct {
	*granBackend
	addCalls int
}

var _ be.Adder = (*adderBackend)(nil)

func newAdderBackend() *adderBackend { return &adderBackend{granBackend: newGranBackend()} }

func (g *adderBackend) AddKey(_ context.Context, key string, delta float64) (float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.addCalls++
	cur, _ := toNumber(g.records[key])
	next := cur + delta
	g.records[key] = next
	return next, nil
}

// ==============================
// Coordinator behavior
// ==============================

// TestConcurrentAddNoLostUpdates is the lost-update property: N concurrent
// increments through the coordinator must land exactly N in the backend.
func TestConcurrentAddNoLostUpdates(t *testing.T) {
	ctx := context.Background()
	gb := newTxBackend()
	cc := newTestCache(t, "counter", func(o *Options) { o.Backend = gb })
	defer cc.Close(ctx)

	const n = 64
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			if _, err := cc.Add(ctx, "hits", 1, false); err != nil {
				t.Errorf("Add: %v", err)
			}
		}()
	}
	wg.Wait()

	// the backend is authoritative here; snapshot mirrors land in lock
	// release order, not value order
	if got := gb.stored("hits"); got != float64(n) {
		t.Fatalf("stored value = %v, want %d (lost updates)", got, n)
	}
	if !cc.Has("hits") {
		t.Fatalf("snapshot missing mirrored counter")
	}
}

// TestConcurrentAddBestEffort repeats the property on a backend without
// native transactions: the lock alone must still serialize the increments.
func TestConcurrentAddBestEffort(t *testing.T) {
	ctx := context.Background()
	gb := newGranBackend()
	cc := newTestCache(t, "counter2", func(o *Options) { o.Backend = gb })
	defer cc.Close(ctx)

	const n = 32
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			if _, err := cc.Add(ctx, "hits", 1, false); err != nil {
				t.Errorf("Add: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := gb.stored("hits"); got != float64(n) {
		t.Fatalf("stored value = %v, want %d", got, n)
	}
}

func TestRollbackLeavesValueUntouched(t *testing.T) {
	ctx := context.Background()
	gb := newTxBackend()
	hooks := &recordingHooks{}
	cc := newTestCache(t, "rb", func(o *Options) {
		o.Backend = gb
		o.Hooks = hooks
	})
	defer cc.Close(ctx)

	if _, err := cc.Add(ctx, "n", 5, false); err != nil {
		t.Fatalf("Add: %v", err)
	}

	gb.mu.Lock()
	gb.putErr = errors.New("write refused")
	gb.mu.Unlock()

	_, err := cc.Add(ctx, "n", 1, false)
	var terr *TxnError
	if !errors.As(err, &terr) {
		t.Fatalf("Add error = %v, want *TxnError", err)
	}
	if !terr.RolledBack {
		t.Fatalf("transactional backend should report rollback")
	}
	if hooks.rollbacks != 1 {
		t.Fatalf("TxnRolledBack hook fired %d times", hooks.rollbacks)
	}
	if got := gb.stored("n"); got != float64(5) {
		t.Fatalf("stored value after rollback = %v, want 5", got)
	}

	// the lock was released: the next update must go through
	gb.mu.Lock()
	gb.putErr = nil
	gb.mu.Unlock()
	if got, err := cc.Add(ctx, "n", 1, false); err != nil || got != 6 {
		t.Fatalf("Add after rollback = %v err=%v, want 6", got, err)
	}
}

func TestDeepPathCompoundUpdate(t *testing.T) {
	ctx := context.Background()
	gb := newTxBackend()
	cc := newTestCache(t, "deep", func(o *Options) { o.Backend = gb })
	defer cc.Close(ctx)

	if _, err := cc.Add(ctx, "stats.today.visits", 3, false); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := cc.Push(ctx, "stats.today.pages", "/home", false); err != nil {
		t.Fatalf("Push: %v", err)
	}

	rec, ok := gb.stored("stats").(map[string]any)
	if !ok {
		t.Fatalf("stored record = %#v, want nested map", gb.stored("stats"))
	}
	today := rec["today"].(map[string]any)
	if today["visits"] != float64(3) {
		t.Fatalf("visits = %v, want 3", today["visits"])
	}
	if pages := today["pages"].([]any); len(pages) != 1 || pages[0] != "/home" {
		t.Fatalf("pages = %v", today["pages"])
	}

	// mirrored into the snapshot too
	if v, _ := cc.Get("stats.today.visits"); v != float64(3) {
		t.Fatalf("snapshot mirror = %v", v)
	}
}

func TestPushAppendsThroughCoordinator(t *testing.T) {
	ctx := context.Background()
	gb := newGranBackend()
	cc := newTestCache(t, "plist", func(o *Options) { o.Backend = gb })
	defer cc.Close(ctx)

	if _, err := cc.Push(ctx, "events", "a", false); err != nil {
		t.Fatalf("Push: %v", err)
	}
	seq, err := cc.Push(ctx, "events", "b", false)
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if len(seq) != 2 || seq[0] != "a" || seq[1] != "b" {
		t.Fatalf("Push result = %v", seq)
	}
	stored := gb.stored("events").([]any)
	if len(stored) != 2 {
		t.Fatalf("stored sequence = %v", stored)
	}
}

func TestNativeCounterPreferred(t *testing.T) {
	ctx := context.Background()
	gb := newAdderBackend()
	cc := newTestCache(t, "native", func(o *Options) { o.Backend = gb })
	defer cc.Close(ctx)

	got, err := cc.Add(ctx, "hits", 2, false)
	if err != nil || got != 2 {
		t.Fatalf("Add = %v err=%v", got, err)
	}
	if gb.addCalls != 1 {
		t.Fatalf("native AddKey calls = %d, want 1", gb.addCalls)
	}

	// deep paths cannot use the native counter
	if _, err := cc.Add(ctx, "stats.n", 1, false); err != nil {
		t.Fatalf("Add deep: %v", err)
	}
	if gb.addCalls != 1 {
		t.Fatalf("deep-path add must bypass the native counter")
	}
}

func TestCoordinatorHonorsContextCancellation(t *testing.T) {
	gb := newGranBackend()
	cc := newTestCache(t, "cancel", func(o *Options) { o.Backend = gb })
	defer cc.Close(context.Background())

	impl := mustImpl(t, cc)
	// hold the lock so the next acquisition has to wait
	if err := impl.coord.sem.Acquire(context.Background(), 1); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer impl.coord.sem.Release(1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := cc.Add(ctx, "hits", 1, false)
	var terr *TxnError
	if !errors.As(err, &terr) || !errors.Is(err, context.Canceled) {
		t.Fatalf("Add under cancelled ctx = %v, want TxnError wrapping context.Canceled", err)
	}
}
