package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReconcile(t *testing.T) {
	tests := []struct {
		name    string
		urls    []string
		keys    []string
		want    []string
		changed bool
	}{
		{name: "equal lengths", urls: []string{"a", "b"}, keys: []string{"k1", "k2"}, want: []string{"k1", "k2"}},
		{name: "extra keys truncated", urls: []string{"a"}, keys: []string{"k1", "k2", "k3"}, want: []string{"k1"}, changed: true},
		{name: "missing keys padded", urls: []string{"a", "b", "c"}, keys: []string{"k1"}, want: []string{"k1", "", ""}, changed: true},
		{name: "no keys", urls: []string{"a", "b"}, keys: nil, want: []string{"", ""}, changed: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewEndpointSet(true, tt.urls, tt.keys)
			assert.Equal(t, tt.changed, s.Reconcile())
			assert.Equal(t, tt.want, s.Keys())
			assert.Len(t, s.Endpoints(), len(tt.urls))
		})
	}
}

func TestEndpointAccessors(t *testing.T) {
	s := NewEndpointSet(false, []string{"https://a.local/ ", "https://b.local"}, []string{"k"})

	assert.Equal(t, []string{"https://a.local", "https://b.local"}, s.URLs())

	ep, ok := s.Endpoint(1)
	assert.True(t, ok)
	assert.Equal(t, Endpoint{Index: 1, BaseURL: "https://b.local"}, ep)

	_, ok = s.Endpoint(2)
	assert.False(t, ok)
	_, ok = s.Endpoint(-1)
	assert.False(t, ok)

	assert.False(t, s.Enabled())
	s.SetEnabled(true)
	assert.True(t, s.Enabled())
}
