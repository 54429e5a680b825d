package data

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/matthewbaird/erpui/internal/notify"
	"github.com/matthewbaird/erpui/internal/record"
)

// API is the subset of the REST client the cache needs.
type API interface {
	List(ctx context.Context, endpoint string, p Params, opts ...RequestOption) (ListResult, error)
	Send(ctx context.Context, method, endpoint, id string, query url.Values, body record.Record, opts ...RequestOption) (record.Record, error)
}

// QueryOptions identify a cached list query.
type QueryOptions struct {
	Endpoint string
	Params   Params
	// Disabled queries never fetch; they only report what is cached.
	Disabled bool
	// NoFilter drops filter and search params so the query always sees the
	// full collection (option lists, lookups).
	NoFilter bool
}

func (o QueryOptions) params() Params {
	p := o.Params
	if o.NoFilter {
		p.Filter = nil
		p.Q = ""
	}
	return p
}

// Key is the cache key: the endpoint followed by its encoded params.
func (o QueryOptions) Key() string {
	q := o.params().Values().Encode()
	if q == "" {
		return o.Endpoint
	}
	return o.Endpoint + "?" + q
}

// Result is a snapshot of a query.
type Result struct {
	Data    ListResult
	HasData bool
	// IsLoading is true while the first fetch of a key is in flight.
	IsLoading bool
	// IsFetching is true during any fetch, including background refetches.
	IsFetching bool
	Err        error
	UpdatedAt  time.Time
}

type entry struct {
	opts      QueryOptions
	data      ListResult
	hasData   bool
	err       error
	stale     bool
	fetching  int
	updatedAt time.Time
}

func (e *entry) result() Result {
	return Result{
		Data:       e.data,
		HasData:    e.hasData,
		IsLoading:  !e.hasData && e.fetching > 0,
		IsFetching: e.fetching > 0,
		Err:        e.err,
		UpdatedAt:  e.updatedAt,
	}
}

// Mutation describes a create, update or delete call.
type Mutation struct {
	Method   string
	Endpoint string
	ID       string
	Query    url.Values
	Body     record.Record
	Tenant   string
	// InvalidateKeys are refreshed after success. Empty means the endpoint.
	InvalidateKeys []string
	OnSuccess      func(record.Record)
	OnError        func(error)
}

// Cache de-duplicates in-flight list requests per key and refetches
// invalidated keys after mutations. There is no retry and no optimistic
// update: a failed fetch leaves the previous data in place with Err set.
type Cache struct {
	api     API
	pub     notify.Publisher
	log     *zap.Logger
	group   singleflight.Group
	pending atomic.Int32

	mu      sync.Mutex
	entries map[string]*entry

	bgCtx    context.Context
	bgCancel context.CancelFunc
	wg       sync.WaitGroup
}

// NewCache creates a Cache over api. Invalidations are published on pub,
// which may be nil.
func NewCache(api API, pub notify.Publisher, log *zap.Logger) *Cache {
	ctx, cancel := context.WithCancel(context.Background())
	return &Cache{
		api:      api,
		pub:      pub,
		log:      log,
		entries:  make(map[string]*entry),
		bgCtx:    ctx,
		bgCancel: cancel,
	}
}

// Close cancels background fetches and waits for them to return.
func (c *Cache) Close() {
	c.bgCancel()
	c.wg.Wait()
}

// Query returns fresh data for opts, fetching when the key is missing or
// stale. Concurrent queries for the same key share one request.
func (c *Cache) Query(ctx context.Context, opts QueryOptions) Result {
	if opts.Disabled {
		return c.Peek(opts)
	}
	key := opts.Key()
	c.mu.Lock()
	e, ok := c.entries[key]
	if ok && e.hasData && !e.stale && e.err == nil {
		res := e.result()
		c.mu.Unlock()
		return res
	}
	c.mu.Unlock()

	c.fetch(ctx, key, opts)
	return c.Peek(opts)
}

// Peek reports the cached state of opts without fetching.
func (c *Cache) Peek(opts QueryOptions) Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[opts.Key()]
	if !ok {
		return Result{}
	}
	return e.result()
}

// Prefetch starts a background fetch unless the key is fresh or already in
// flight. Completion is announced as an invalidate event for the endpoint so
// that views holding a loading state re-render.
func (c *Cache) Prefetch(opts QueryOptions) {
	if opts.Disabled {
		return
	}
	key := opts.Key()
	c.mu.Lock()
	e, ok := c.entries[key]
	if ok && (e.fetching > 0 || (e.hasData && !e.stale)) {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		// Wait for the shared result even after Close; the request itself
		// is cancelled through bgCtx.
		if err := c.fetch(context.WithoutCancel(c.bgCtx), key, opts); err != nil && c.bgCtx.Err() == nil {
			c.log.Warn("prefetch failed", zap.String("key", key), zap.Error(err))
		}
		c.publish(c.bgCtx, []string{opts.Endpoint})
	}()
}

// fetch joins or starts the shared request for key. The request runs
// detached from ctx so one caller giving up does not fail the others; it is
// cancelled only when the cache closes. A caller whose ctx ends first gets
// ctx.Err() and leaves the entry untouched.
func (c *Cache) fetch(ctx context.Context, key string, opts QueryOptions) error {
	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok {
		e = &entry{opts: opts}
		c.entries[key] = e
	}
	c.mu.Unlock()

	ch := c.group.DoChan(key, func() (any, error) {
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		defer cancel()
		stop := context.AfterFunc(c.bgCtx, cancel)
		defer stop()

		c.mu.Lock()
		e.fetching++
		c.mu.Unlock()

		res, err := c.api.List(fctx, opts.Endpoint, opts.params())
		c.mu.Lock()
		defer c.mu.Unlock()
		e.fetching--
		if err != nil {
			e.err = err
			return nil, err
		}
		e.data = res
		e.hasData = true
		e.err = nil
		e.stale = false
		e.updatedAt = time.Now()
		return res, nil
	})

	select {
	case r := <-ch:
		return r.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Invalidate marks every cached key under the given prefixes stale and
// refetches them concurrently. A prefix matches a key equal to it or
// continuing with "?" or "/". Refetch failures are recorded on the entries
// and the first one is returned.
func (c *Cache) Invalidate(ctx context.Context, prefixes ...string) error {
	type target struct {
		key  string
		opts QueryOptions
	}
	var targets []target
	c.mu.Lock()
	for key, e := range c.entries {
		for _, p := range prefixes {
			if matchesPrefix(key, p) {
				e.stale = true
				targets = append(targets, target{key: key, opts: e.opts})
				break
			}
		}
	}
	c.mu.Unlock()

	// Targets refetch independently: a failing key must not cancel the rest.
	var g errgroup.Group
	for _, t := range targets {
		g.Go(func() error {
			if err := c.fetch(ctx, t.key, t.opts); err != nil {
				return fmt.Errorf("refetching %s: %w", t.key, err)
			}
			return nil
		})
	}
	err := g.Wait()
	c.publish(ctx, prefixes)
	return err
}

func matchesPrefix(key, prefix string) bool {
	if prefix == "" || !strings.HasPrefix(key, prefix) {
		return false
	}
	if len(key) == len(prefix) {
		return true
	}
	next := key[len(prefix)]
	return next == '?' || next == '/' || strings.HasSuffix(prefix, "/")
}

func (c *Cache) publish(ctx context.Context, keys []string) {
	if c.pub == nil || len(keys) == 0 {
		return
	}
	c.pub.Publish(ctx, notify.Event{Type: notify.EventInvalidate, Keys: append([]string(nil), keys...)})
}

// Mutate performs m. On success the invalidation keys are refetched before
// OnSuccess runs; on failure OnError runs and the error is returned.
func (c *Cache) Mutate(ctx context.Context, m Mutation) (record.Record, error) {
	c.pending.Add(1)
	defer c.pending.Add(-1)

	method := m.Method
	if method == "" {
		method = http.MethodPost
	}
	out, err := c.api.Send(ctx, method, m.Endpoint, m.ID, m.Query, m.Body, WithTenant(m.Tenant))
	if err != nil {
		if m.OnError != nil {
			m.OnError(err)
		}
		return nil, err
	}

	keys := m.InvalidateKeys
	if len(keys) == 0 {
		keys = []string{m.Endpoint}
	}
	if err := c.Invalidate(ctx, keys...); err != nil {
		c.log.Warn("refetch after mutation failed",
			zap.String("method", method),
			zap.String("endpoint", m.Endpoint),
			zap.Error(err))
	}
	if m.OnSuccess != nil {
		m.OnSuccess(out)
	}
	return out, nil
}

// IsPending reports whether any mutation is in flight.
func (c *Cache) IsPending() bool {
	return c.pending.Load() > 0
}
