package httpapi

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"claude_gateway/internal/catalog"
	"claude_gateway/internal/metering"
	"claude_gateway/internal/middleware"
	"claude_gateway/internal/providers"
	"claude_gateway/internal/rewrite"
	"claude_gateway/internal/utils"
)

var proxyLogger = utils.NewLogger("proxy")

// completionPathToken marks paths whose body is rewritten and metered.
const completionPathToken = "chat/completions"

// Response headers that describe the upstream connection rather than the
// payload.
var hopHeaders = map[string]bool{
	"Connection":        true,
	"Content-Length":    true,
	"Keep-Alive":        true,
	"Transfer-Encoding": true,
	"Upgrade":           true,
}

// handleProxy forwards a call to the upstream that serves its model.
//
// Flow:
//  1. Reject when the proxy is disabled
//  2. Make sure the catalog has been built
//  3. Rewrite chat completion bodies (prompt, evaluation, model policy)
//  4. Dispatch to {endpoint}/messages
//  5. Stream or buffer the response back, metering usage
func (d *Dependencies) handleProxy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := middleware.GetRequestID(ctx)
	caller, _ := middleware.GetCaller(ctx)
	endpoints := d.Catalog.Endpoints()

	if !endpoints.Enabled() {
		utils.RespondWithError(w, http.StatusServiceUnavailable, "Claude API is disabled")
		return
	}
	d.Catalog.EnsureFresh(ctx)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	proxyLogger.Debug("Request received", "request_id", reqID, "method", r.Method, "path", r.URL.Path)

	path := chi.URLParam(r, "*")
	metered := strings.Contains(path, completionPathToken)
	attr := metering.Attribution{UserID: caller.ID}

	var target catalog.Endpoint
	if metered {
		resolved, err := d.Rewriter.Rewrite(ctx, body, caller)
		if err != nil {
			d.respondRewriteError(w, reqID, err)
			return
		}
		if body, err = resolved.MarshalJSON(); err != nil {
			proxyLogger.Error("Failed to encode rewritten request", "request_id", reqID, "error", err)
			utils.RespondWithError(w, http.StatusInternalServerError, "failed to encode request")
			return
		}
		target = resolved.Endpoint
		attr.ChatID = resolved.ChatID
		attr.ModelID = resolved.Model
		attr.IsEvaluation = resolved.IsEvaluation
		proxyLogger.Debug("Request rewritten", "request_id", reqID, "model", resolved.Model, "endpoint", target.Index)
	} else {
		ep, ok := endpoints.Endpoint(0)
		if !ok {
			utils.RespondWithError(w, http.StatusServiceUnavailable, "no upstream endpoint configured")
			return
		}
		target = ep
	}

	resp, err := d.Dispatcher.Dispatch(ctx, providers.Target{BaseURL: target.BaseURL, APIKey: target.APIKey},
		providers.Request{Method: r.Method, Body: body})
	if err != nil {
		d.respondUpstreamError(w, reqID, err)
		return
	}
	defer resp.Close()
	proxyLogger.Debug("Request dispatched", "request_id", reqID, "status", resp.StatusCode,
		"stream", resp.IsStream(), "latency_ms", resp.Latency.Milliseconds())

	if resp.IsStream() {
		copyHeaders(w.Header(), resp.Header)
		w.WriteHeader(resp.StatusCode)

		if metered {
			err = d.Meter.Stream(ctx, w, resp.Stream, attr)
		} else {
			err = metering.Forward(ctx, w, resp.Stream)
		}
		if err != nil {
			// Headers are sent; the client sees a truncated stream.
			proxyLogger.Warn("Stream interrupted", "request_id", reqID, "error", err)
			return
		}
		proxyLogger.Debug("Stream drained", "request_id", reqID)
		return
	}

	if metered {
		d.Meter.Record(ctx, resp.Body, attr)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	} else {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(resp.Body)
	proxyLogger.Debug("Request complete", "request_id", reqID)
}

func (d *Dependencies) respondRewriteError(w http.ResponseWriter, reqID string, err error) {
	switch {
	case errors.Is(err, rewrite.ErrBadRequest):
		proxyLogger.Debug("Rejected request body", "request_id", reqID, "error", err)
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, rewrite.ErrModelNotFound):
		proxyLogger.Debug("Unroutable model", "request_id", reqID, "error", err)
		utils.RespondWithError(w, http.StatusNotFound, "Model not found")
	default:
		proxyLogger.Error("Rewrite failed", "request_id", reqID, "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, err.Error())
	}
}

func (d *Dependencies) respondUpstreamError(w http.ResponseWriter, reqID string, err error) {
	var vendorErr *providers.VendorError
	if errors.As(err, &vendorErr) {
		proxyLogger.Warn("Upstream rejected request", "request_id", reqID, "status", vendorErr.StatusCode, "error", vendorErr.Message)
		utils.RespondWithError(w, vendorErr.StatusCode, vendorErr.Detail())
		return
	}
	proxyLogger.Error("Upstream call failed", "request_id", reqID, "error", err)
	utils.RespondWithError(w, http.StatusInternalServerError, providers.ConnectionErrorDetail)
}

func copyHeaders(dst, src http.Header) {
	for key, values := range src {
		if hopHeaders[http.CanonicalHeaderKey(key)] {
			continue
		}
		for _, v := range values {
			dst.Add(key, v)
		}
	}
}
