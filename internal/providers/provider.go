package providers

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"
)

// Target is the upstream a request is sent to.
type Target struct {
	BaseURL string
	APIKey  string
}

// Request is a forwarded call. Body is already in the vendor wire format.
type Request struct {
	Method string
	Body   []byte
}

// UpstreamResponse is the result of a successful (status < 400) upstream
// call. Exactly one of Body and Stream is set: Stream is the live body of
// an event-stream response and must be closed by the caller.
type UpstreamResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Stream     io.ReadCloser
	Latency    time.Duration
}

// IsStream reports whether the response is a server-sent event stream.
func (r *UpstreamResponse) IsStream() bool {
	return r.Stream != nil
}

// Close releases the live stream, if any.
func (r *UpstreamResponse) Close() error {
	if r.Stream == nil {
		return nil
	}
	return r.Stream.Close()
}

func isEventStream(header http.Header) bool {
	return strings.Contains(header.Get("Content-Type"), "text/event-stream")
}

// Dispatcher forwards requests to a Claude-compatible upstream.
type Dispatcher interface {
	// Dispatch sends req to {target}/messages. Errors are *VendorError for
	// upstream statuses >= 400 and *ConnectionError for transport failures.
	Dispatch(ctx context.Context, target Target, req Request) (*UpstreamResponse, error)

	// ListModels fetches {target}/models and returns the raw body.
	ListModels(ctx context.Context, target Target) ([]byte, error)
}

// Authenticator handles authentication for an upstream.
type Authenticator interface {
	// Authenticate prepares authentication for a request
	Authenticate(ctx context.Context) (AuthContext, error)
}

// AuthContext holds authentication information for a request
type AuthContext interface {
	// ApplyToRequest applies authentication to an HTTP request
	ApplyToRequest(ctx context.Context, req any) error
}
