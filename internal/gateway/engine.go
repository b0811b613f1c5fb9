package gateway

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/dmitrijs2005/tightlines/internal/logging"
	"golang.org/x/sync/singleflight"
)

// Fetcher performs the actual network request for the engine.
type Fetcher interface {
	Do(ctx context.Context, req *Request) (*Response, error)
}

// NetworkFetcher is the production Fetcher backed by net/http.
type NetworkFetcher struct {
	http *http.Client
}

func NewNetworkFetcher(c *http.Client) *NetworkFetcher {
	if c == nil {
		c = http.DefaultClient
	}
	return &NetworkFetcher{http: c}
}

func (f *NetworkFetcher) Do(ctx context.Context, req *Request) (*Response, error) {
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	hreq, err := http.NewRequestWithContext(ctx, req.Method, req.URL.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := f.http.Do(hreq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       data,
		Source:     SourceNetwork,
	}, nil
}

// PushHandler receives out-of-band push payloads and notification clicks.
// Both hooks are pass-through conveniences outside the caching core.
type PushHandler interface {
	HandlePush(ctx context.Context, payload []byte)
	HandleNotificationClick(ctx context.Context, target string)
}

// Engine routes every intercepted request through a caching strategy over
// versioned partitions. Fetch never fails: every in-scope request terminates
// in a concrete response (cached, fresh or fallback).
type Engine struct {
	version  string
	rules    Rules
	store    *Store
	fetcher  Fetcher
	manifest []string
	logger   logging.Logger
	push     PushHandler

	// Coalesces concurrent stale-while-revalidate refreshes per request key.
	revalidate singleflight.Group

	mu     sync.Mutex
	active bool
}

// New builds an engine for one release version. manifest lists the essential
// routes pre-populated into the static partition during Install.
func New(version string, rules Rules, store *Store, fetcher Fetcher, manifest []string, logger logging.Logger) *Engine {
	return &Engine{
		version:  version,
		rules:    rules,
		store:    store,
		fetcher:  fetcher,
		manifest: manifest,
		logger:   logger,
	}
}

// SetPushHandler registers the out-of-band push/notification handler.
func (e *Engine) SetPushHandler(h PushHandler) {
	e.push = h
}

// StaticPartition is the versioned name of the app-shell partition.
func (e *Engine) StaticPartition() string { return "static-" + e.version }

// DynamicPartition is the versioned name of the runtime-content partition.
func (e *Engine) DynamicPartition() string { return "dynamic-" + e.version }

// Install pre-populates the static partition with the manifest. Already
// cached routes are skipped, so repeated installs produce the same key set.
// Any fetch failure aborts the install; it is retried on the next attempt.
// The currently active version's traffic is not disturbed.
func (e *Engine) Install(ctx context.Context) error {
	for _, route := range e.manifest {
		req, err := e.manifestRequest(route)
		if err != nil {
			return fmt.Errorf("invalid manifest route %q: %w", route, err)
		}

		key := requestKey(req)
		if e.store.Has(e.StaticPartition(), key) {
			continue
		}

		resp, err := e.fetcher.Do(ctx, req)
		if err != nil {
			return fmt.Errorf("pre-population failed for %q: %w", route, err)
		}
		if !resp.OK() {
			return fmt.Errorf("pre-population failed for %q: status %d", route, resp.StatusCode)
		}
		e.store.Put(e.StaticPartition(), key, resp)
	}

	e.logger.Info(ctx, "install complete", "version", e.version, "routes", len(e.manifest))
	return nil
}

// Activate deletes every partition whose name belongs to a stale generation
// and claims traffic immediately. Stale partitions are only ever removed
// here, never during normal operation, to avoid racing in-flight reads.
func (e *Engine) Activate(ctx context.Context) {
	current := map[string]bool{
		e.StaticPartition():  true,
		e.DynamicPartition(): true,
	}

	for _, name := range e.store.Names() {
		if !current[name] {
			e.store.DeletePartition(name)
			e.logger.Info(ctx, "deleted stale partition", "name", name)
		}
	}

	e.mu.Lock()
	e.active = true
	e.mu.Unlock()
}

// Active reports whether the engine has claimed traffic.
func (e *Engine) Active() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// Fetch serves one application request. Until Activate has claimed traffic,
// and for out-of-scope requests (non-GET, disallowed origin), Fetch passes
// through to the network without caching; for everything else the classified
// strategy decides, and no path ever surfaces an error to the caller.
func (e *Engine) Fetch(ctx context.Context, req *Request) *Response {
	if !e.Active() || !e.rules.Intercepts(req) {
		return e.passThrough(ctx, req)
	}

	switch e.rules.Classify(req) {
	case NetworkFirst:
		return e.networkFirst(ctx, req, false)
	case CacheFirst:
		return e.cacheFirst(ctx, req)
	case StaleWhileRevalidate:
		return e.staleWhileRevalidate(ctx, req)
	default:
		return e.networkFirst(ctx, req, true)
	}
}

func (e *Engine) passThrough(ctx context.Context, req *Request) *Response {
	resp, err := e.fetcher.Do(ctx, req)
	if err != nil {
		return &Response{
			StatusCode: http.StatusBadGateway,
			Header:     http.Header{},
			Source:     SourceNetwork,
		}
	}
	return resp
}

// networkFirst tries the network, stores successful responses in the dynamic
// partition, and degrades to cache. With no cache it returns either the
// minimal placeholder or, for the fallback strategy, a content-negotiated
// offline response.
func (e *Engine) networkFirst(ctx context.Context, req *Request, negotiate bool) *Response {
	key := requestKey(req)

	resp, err := e.fetcher.Do(ctx, req)
	if err == nil {
		if resp.OK() {
			e.store.Put(e.DynamicPartition(), key, resp)
		}
		return resp
	}

	if cached, ok := e.lookup(key); ok {
		return cached
	}

	e.logger.Debug(ctx, "network and cache miss", "url", req.URL.String(), "error", err.Error())
	if negotiate {
		return fallbackFor(req)
	}
	return offlinePlaceholder()
}

// cacheFirst serves a cached match immediately. A miss goes to the network
// and lands in the static partition for documents, dynamic otherwise.
func (e *Engine) cacheFirst(ctx context.Context, req *Request) *Response {
	key := requestKey(req)

	if cached, ok := e.lookup(key); ok {
		return cached
	}

	resp, err := e.fetcher.Do(ctx, req)
	if err != nil {
		return offlinePlaceholder()
	}
	if resp.OK() {
		partition := e.DynamicPartition()
		if req.Destination == DestDocument {
			partition = e.StaticPartition()
		}
		e.store.Put(partition, key, resp)
	}
	return resp
}

// staleWhileRevalidate returns the cached copy without blocking and kicks a
// coalesced background refresh. Without a cached copy the caller waits on
// the (also coalesced) network fetch.
func (e *Engine) staleWhileRevalidate(ctx context.Context, req *Request) *Response {
	key := requestKey(req)

	if cached, ok := e.store.Get(e.DynamicPartition(), key); ok {
		go func() {
			// Detached from the caller's lifetime on purpose.
			_, _ = e.refresh(context.WithoutCancel(ctx), req, key)
		}()
		return cached
	}

	resp, err := e.refresh(ctx, req, key)
	if err != nil {
		return offlinePlaceholder()
	}
	return resp
}

// refresh fetches and stores one key; concurrent refreshes of the same key
// share a single network call.
func (e *Engine) refresh(ctx context.Context, req *Request, key string) (*Response, error) {
	v, err, _ := e.revalidate.Do(key, func() (any, error) {
		resp, err := e.fetcher.Do(ctx, req)
		if err != nil {
			return nil, err
		}
		if resp.OK() {
			e.store.Put(e.DynamicPartition(), key, resp)
		}
		return resp, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Response), nil
}

// lookup checks the dynamic partition first, then static.
func (e *Engine) lookup(key string) (*Response, bool) {
	if resp, ok := e.store.Get(e.DynamicPartition(), key); ok {
		return resp, true
	}
	return e.store.Get(e.StaticPartition(), key)
}

// HandlePush forwards a push payload to the registered handler.
func (e *Engine) HandlePush(ctx context.Context, payload []byte) {
	if e.push != nil {
		e.push.HandlePush(ctx, payload)
	}
}

// HandleNotificationClick forwards a notification click to the registered
// handler.
func (e *Engine) HandleNotificationClick(ctx context.Context, target string) {
	if e.push != nil {
		e.push.HandleNotificationClick(ctx, target)
	}
}

func (e *Engine) manifestRequest(route string) (*Request, error) {
	u, err := url.Parse(route)
	if err != nil {
		return nil, err
	}
	dest := DestOther
	if u.Path == "/" || u.Path == "" || u.Path == "/index.html" {
		dest = DestDocument
	}
	return &Request{Method: http.MethodGet, URL: u, Destination: dest}, nil
}

func requestKey(req *Request) string {
	return req.URL.String()
}
