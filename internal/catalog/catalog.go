package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"claude_gateway/internal/providers"
	"claude_gateway/internal/utils"
)

const (
	// DefaultFetchTimeout bounds each per-endpoint model listing.
	DefaultFetchTimeout = 5 * time.Second

	officialHost     = "api.anthropic.com"
	modelFamilyToken = "claude"
	ownerName        = "anthropic"
)

var defaultCreated = time.Date(2025, 2, 19, 0, 0, 0, 0, time.UTC).Unix()

var (
	// ErrDisabled is returned by operations that need upstream access while
	// the proxy is switched off.
	ErrDisabled = errors.New("claude API is disabled")
	// ErrUnknownEndpoint is returned for an out-of-range endpoint index.
	ErrUnknownEndpoint = errors.New("unknown endpoint index")
)

// Entry is one merged catalog model, in the shape served by GET /models.
type Entry struct {
	ID            string          `json:"id"`
	Object        string          `json:"object"`
	Created       int64           `json:"created"`
	Name          string          `json:"name"`
	OwnedBy       string          `json:"owned_by"`
	Vendor        json.RawMessage `json:"anthropic"`
	EndpointIndex int             `json:"urlIdx"`
}

// Snapshot is an immutable merged catalog. It carries the endpoint list it
// was built from, so routing never mixes entries with a newer URL or key
// configuration.
type Snapshot struct {
	Entries   []Entry
	BuiltAt   time.Time
	byID      map[string]int
	endpoints []Endpoint
}

func newSnapshot(entries []Entry, endpoints []Endpoint) *Snapshot {
	s := &Snapshot{
		Entries:   entries,
		BuiltAt:   time.Now(),
		byID:      make(map[string]int, len(entries)),
		endpoints: endpoints,
	}
	for i, e := range entries {
		s.byID[e.ID] = i
	}
	return s
}

// Len returns the number of entries.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Entries)
}

// Get returns the entry for id.
func (s *Snapshot) Get(id string) (Entry, bool) {
	if s == nil {
		return Entry{}, false
	}
	i, ok := s.byID[id]
	if !ok {
		return Entry{}, false
	}
	return s.Entries[i], true
}

// Endpoint returns the endpoint at idx as it was configured when the
// snapshot was built.
func (s *Snapshot) Endpoint(idx int) (Endpoint, bool) {
	if s == nil || idx < 0 || idx >= len(s.endpoints) {
		return Endpoint{}, false
	}
	return s.endpoints[idx], true
}

// vendorModel is the subset of an upstream model record the merge reads.
type vendorModel struct {
	ID          string  `json:"id"`
	Type        *string `json:"type"`
	DisplayName *string `json:"display_name"`
	CreatedAt   *string `json:"created_at"`
}

// Catalog merges the model listings of every configured endpoint and
// routes model ids back to the endpoint that listed them.
type Catalog struct {
	endpoints    *EndpointSet
	dispatcher   providers.Dispatcher
	fetchTimeout time.Duration
	logger       *utils.Logger

	current   atomic.Pointer[Snapshot]
	refreshMu sync.Mutex
	warmup    singleflight.Group
}

// New creates a catalog with an empty snapshot.
func New(endpoints *EndpointSet, dispatcher providers.Dispatcher, fetchTimeout time.Duration) *Catalog {
	if fetchTimeout <= 0 {
		fetchTimeout = DefaultFetchTimeout
	}
	c := &Catalog{
		endpoints:    endpoints,
		dispatcher:   dispatcher,
		fetchTimeout: fetchTimeout,
		logger:       utils.NewLogger("catalog"),
	}
	c.current.Store(newSnapshot(nil, nil))
	return c
}

// Endpoints returns the endpoint configuration the catalog reads from.
func (c *Catalog) Endpoints() *EndpointSet {
	return c.endpoints
}

// Snapshot returns the last published snapshot.
func (c *Catalog) Snapshot() *Snapshot {
	return c.current.Load()
}

// Lookup resolves a model id against the last published snapshot. It never
// triggers a refresh.
func (c *Catalog) Lookup(id string) (Endpoint, Entry, bool) {
	snap := c.current.Load()
	entry, ok := snap.Get(id)
	if !ok {
		return Endpoint{}, Entry{}, false
	}
	ep, ok := snap.Endpoint(entry.EndpointIndex)
	if !ok {
		return Endpoint{}, Entry{}, false
	}
	return ep, entry, true
}

// EnsureFresh refreshes the catalog when the current snapshot is empty.
// Concurrent callers share a single refresh.
func (c *Catalog) EnsureFresh(ctx context.Context) *Snapshot {
	if snap := c.current.Load(); snap.Len() > 0 {
		return snap
	}
	v, _, _ := c.warmup.Do("refresh", func() (any, error) {
		if snap := c.current.Load(); snap.Len() > 0 {
			return snap, nil
		}
		return c.Refresh(context.WithoutCancel(ctx)), nil
	})
	return v.(*Snapshot)
}

// Refresh fetches every endpoint concurrently, merges the results and
// publishes the new snapshot. A failing endpoint contributes nothing; an
// empty result is a valid snapshot.
func (c *Catalog) Refresh(ctx context.Context) *Snapshot {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	if !c.endpoints.Enabled() || c.endpoints.unconfigured() {
		snap := newSnapshot(nil, nil)
		c.current.Store(snap)
		return snap
	}

	c.endpoints.Reconcile()
	eps := c.endpoints.Endpoints()

	lists := make([][]json.RawMessage, len(eps))
	g, gctx := errgroup.WithContext(ctx)
	for i, ep := range eps {
		g.Go(func() error {
			models, err := c.fetchList(gctx, ep)
			if err != nil {
				c.logger.Error("Failed to fetch models", "endpoint", ep.Index, "url", ep.BaseURL, "error", err)
				return nil
			}
			lists[i] = models
			return nil
		})
	}
	_ = g.Wait()

	snap := newSnapshot(c.merge(eps, lists), eps)
	c.current.Store(snap)
	c.logger.Debug("Catalog refreshed", "endpoints", len(eps), "models", snap.Len())
	return snap
}

func (c *Catalog) fetchList(ctx context.Context, ep Endpoint) ([]json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	defer cancel()

	body, err := c.dispatcher.ListModels(ctx, providers.Target{BaseURL: ep.BaseURL, APIKey: ep.APIKey})
	if err != nil {
		return nil, err
	}
	return decodeListing(body)
}

// decodeListing accepts {"data": [...]} or a bare array. An object without
// a data array, such as an error envelope, yields no models.
func decodeListing(body []byte) ([]json.RawMessage, error) {
	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "[") {
		var list []json.RawMessage
		if err := sonic.Unmarshal(body, &list); err != nil {
			return nil, fmt.Errorf("decode model list: %w", err)
		}
		return list, nil
	}

	var envelope struct {
		Data  []json.RawMessage `json:"data"`
		Error json.RawMessage   `json:"error"`
	}
	if err := sonic.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode model list: %w", err)
	}
	if envelope.Data == nil {
		if len(envelope.Error) > 0 {
			return nil, fmt.Errorf("upstream error: %s", string(envelope.Error))
		}
		return nil, nil
	}
	return envelope.Data, nil
}

func isOfficial(baseURL string) bool {
	if u, err := url.Parse(baseURL); err == nil && u.Hostname() != "" {
		return strings.EqualFold(u.Hostname(), officialHost)
	}
	return strings.Contains(baseURL, officialHost)
}

// merge walks endpoints in configured order. The first endpoint to list an
// id owns it.
func (c *Catalog) merge(eps []Endpoint, lists [][]json.RawMessage) []Entry {
	var entries []Entry
	seen := make(map[string]struct{})

	for i, list := range lists {
		official := isOfficial(eps[i].BaseURL)
		for _, raw := range list {
			var m vendorModel
			if err := sonic.Unmarshal(raw, &m); err != nil || m.ID == "" {
				continue
			}
			if official && !strings.Contains(m.ID, modelFamilyToken) {
				continue
			}
			if _, dup := seen[m.ID]; dup {
				continue
			}
			seen[m.ID] = struct{}{}
			entries = append(entries, newEntry(m, raw, eps[i].Index))
		}
	}
	return entries
}

func newEntry(m vendorModel, raw json.RawMessage, idx int) Entry {
	e := Entry{
		ID:            m.ID,
		Object:        "model",
		Created:       defaultCreated,
		Name:          m.ID,
		OwnedBy:       ownerName,
		Vendor:        append(json.RawMessage(nil), raw...),
		EndpointIndex: idx,
	}
	if m.Type != nil {
		e.Object = *m.Type
	}
	if m.DisplayName != nil {
		e.Name = *m.DisplayName
	}
	if m.CreatedAt != nil {
		if ts, err := time.Parse(time.RFC3339, *m.CreatedAt); err == nil {
			e.Created = ts.Unix()
		}
	}
	return e
}

// FetchEndpoint returns the raw model records of one endpoint, filtered to
// Claude models for the official host. It bypasses the snapshot.
func (c *Catalog) FetchEndpoint(ctx context.Context, idx int) ([]json.RawMessage, error) {
	if !c.endpoints.Enabled() {
		return nil, ErrDisabled
	}
	ep, ok := c.endpoints.Endpoint(idx)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownEndpoint, idx)
	}

	ctx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	defer cancel()
	body, err := c.dispatcher.ListModels(ctx, providers.Target{BaseURL: ep.BaseURL, APIKey: ep.APIKey})
	if err != nil {
		return nil, err
	}
	list, err := decodeListing(body)
	if err != nil {
		return nil, &providers.ConnectionError{Err: err}
	}
	if !isOfficial(ep.BaseURL) {
		return list, nil
	}

	filtered := make([]json.RawMessage, 0, len(list))
	for _, raw := range list {
		var m vendorModel
		if err := sonic.Unmarshal(raw, &m); err == nil && strings.Contains(m.ID, modelFamilyToken) {
			filtered = append(filtered, raw)
		}
	}
	return filtered, nil
}
