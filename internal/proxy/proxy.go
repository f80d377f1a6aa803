// ABOUTME: Backend-of-record request forwarding with credential injection
// ABOUTME: Relays status and JSON bodies verbatim, never leaking inbound credentials

package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Forwarding errors
var (
	ErrBackendUnavailable       = errors.New("backend unavailable")
	ErrMalformedBackendResponse = errors.New("malformed backend response")
)

// DefaultTimeout bounds every backend call so a slow backend cannot
// hang the caller indefinitely.
const DefaultTimeout = 10 * time.Second

// maxBodyBytes caps how much of a backend response the gateway buffers.
const maxBodyBytes = 4 << 20

// BackendResponse is the relayed result of a backend call.
type BackendResponse struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// Forwarder rebuilds authorized requests against the backend-of-record
// base URL. It owns the only HTTP client that talks to the backend;
// handlers never dial it directly.
type Forwarder struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewForwarder creates a Forwarder for the given backend base URL.
// A zero timeout falls back to DefaultTimeout.
func NewForwarder(baseURL string, timeout time.Duration) *Forwarder {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Forwarder{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  slog.Default().With("component", "proxy"),
	}
}

// Do performs a backend call and returns the response for callers that
// need to inspect or reshape it. The bearer credential is injected as
// the only Authorization header; GET requests carry no body.
func (f *Forwarder) Do(ctx context.Context, method, path string, query url.Values, contentType string, body io.Reader, bearer string) (*BackendResponse, error) {
	target := f.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	if method == http.MethodGet {
		body = nil
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("building backend request: %w", err)
	}

	// The request is rebuilt from scratch: nothing from the inbound
	// request's headers (cookies, identity tokens, internal headers)
	// reaches the backend unless set here.
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", ErrMalformedBackendResponse, err)
	}

	return &BackendResponse{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        data,
	}, nil
}

// Forward proxies the inbound request to the backend path and relays
// the backend's status code and body verbatim. Backend failures become
// a generic 500; the cause is logged, never echoed to the caller.
func (f *Forwarder) Forward(w http.ResponseWriter, r *http.Request, backendPath, bearer string) {
	resp, err := f.Do(r.Context(), r.Method, backendPath, r.URL.Query(), r.Header.Get("Content-Type"), r.Body, bearer)
	if err != nil {
		f.logger.Error("backend call failed",
			"method", r.Method,
			"path", backendPath,
			"error", err,
		)
		writeInternalError(w)
		return
	}

	f.Relay(w, resp)
}

// Relay writes a backend response to the caller unchanged.
func (f *Forwarder) Relay(w http.ResponseWriter, resp *BackendResponse) {
	contentType := resp.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(resp.StatusCode)
	w.Write(resp.Body)
}

// writeInternalError sends the generic, non-leaking 500 body.
func writeInternalError(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	w.Write([]byte(`{"error":"Internal server error"}`))
}
