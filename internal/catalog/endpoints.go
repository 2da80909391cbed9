package catalog

import (
	"strings"
	"sync"

	"claude_gateway/internal/utils"
)

// Endpoint is one configured upstream. Index is the position in the
// configured list and is used as the routing key everywhere else.
type Endpoint struct {
	Index   int
	BaseURL string
	APIKey  string
}

// EndpointSet holds the positional base URL and API key lists plus the
// proxy on/off switch. It is safe for concurrent use.
type EndpointSet struct {
	mu      sync.RWMutex
	enabled bool
	urls    []string
	keys    []string
	logger  *utils.Logger
}

// NewEndpointSet creates a set from configured lists. Lists are stored as
// given; Reconcile aligns them.
func NewEndpointSet(enabled bool, urls, keys []string) *EndpointSet {
	return &EndpointSet{
		enabled: enabled,
		urls:    normalizeURLs(urls),
		keys:    append([]string(nil), keys...),
		logger:  utils.NewLogger("endpoints"),
	}
}

func normalizeURLs(urls []string) []string {
	out := make([]string, len(urls))
	for i, u := range urls {
		out[i] = strings.TrimRight(strings.TrimSpace(u), "/")
	}
	return out
}

// Reconcile makes the key list the same length as the URL list: extra keys
// are dropped from the end and missing keys are padded with "". It reports
// whether the key list changed.
func (s *EndpointSet) Reconcile() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.keys) == len(s.urls) {
		return false
	}
	s.logger.Warn("API key count does not match base URL count, adjusting",
		"urls", len(s.urls), "keys", len(s.keys))
	if len(s.keys) > len(s.urls) {
		s.keys = s.keys[:len(s.urls)]
	} else {
		for len(s.keys) < len(s.urls) {
			s.keys = append(s.keys, "")
		}
	}
	return true
}

// Endpoints returns the configured endpoints in order. Keys missing for a
// URL are reported as "".
func (s *EndpointSet) Endpoints() []Endpoint {
	s.mu.RLock()
	defer s.mu.RUnlock()

	eps := make([]Endpoint, len(s.urls))
	for i, u := range s.urls {
		eps[i] = Endpoint{Index: i, BaseURL: u}
		if i < len(s.keys) {
			eps[i].APIKey = s.keys[i]
		}
	}
	return eps
}

// Endpoint returns the endpoint at idx.
func (s *EndpointSet) Endpoint(idx int) (Endpoint, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if idx < 0 || idx >= len(s.urls) {
		return Endpoint{}, false
	}
	ep := Endpoint{Index: idx, BaseURL: s.urls[idx]}
	if idx < len(s.keys) {
		ep.APIKey = s.keys[idx]
	}
	return ep, true
}

func (s *EndpointSet) URLs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.urls...)
}

func (s *EndpointSet) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.keys...)
}

func (s *EndpointSet) SetURLs(urls []string) {
	s.mu.Lock()
	s.urls = normalizeURLs(urls)
	s.mu.Unlock()
}

func (s *EndpointSet) SetKeys(keys []string) {
	s.mu.Lock()
	s.keys = append([]string(nil), keys...)
	s.mu.Unlock()
}

func (s *EndpointSet) Enabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.enabled
}

func (s *EndpointSet) SetEnabled(enabled bool) {
	s.mu.Lock()
	s.enabled = enabled
	s.mu.Unlock()
}

// unconfigured reports whether the key list is the single empty key the
// default configuration ships with.
func (s *EndpointSet) unconfigured() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys) == 1 && s.keys[0] == ""
}
