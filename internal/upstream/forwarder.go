// Package upstream forwards mediated requests to the OpenAI-compatible
// upstream unchanged.
package upstream

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tjfontaine/llm-mediator/internal/auth"
	"github.com/tjfontaine/llm-mediator/internal/openai"
)

// DefaultBaseURL is used when no base URL is configured.
const DefaultBaseURL = "https://api.openai.com"

// hopHeaders are connection-scoped and never copied to the upstream request.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
	"Content-Length",
}

// Options configures a Forwarder.
type Options struct {
	BaseURL string
	APIKey  string
	OrgID   string
	Timeout time.Duration
	// Client overrides the default traced client. Tests use it to replay
	// recorded upstream traffic.
	Client *http.Client
}

// Forwarder sends a buffered inbound request to the upstream.
type Forwarder struct {
	baseURL string
	apiKey  string
	orgID   string
	client  *http.Client
}

// New creates a Forwarder.
func New(opts Options) *Forwarder {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	client := opts.Client
	if client == nil {
		client = &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   opts.Timeout,
		}
	}

	return &Forwarder{
		baseURL: baseURL,
		apiKey:  opts.APIKey,
		orgID:   opts.OrgID,
		client:  client,
	}
}

// HasServerKey reports whether a server-side upstream key is configured.
func (f *Forwarder) HasServerKey() bool {
	return f.apiKey != ""
}

// TargetURL builds the upstream URL for subpath and the raw query of the
// inbound request.
func (f *Forwarder) TargetURL(subpath, rawQuery string) string {
	target := f.baseURL + "/" + subpath
	if rawQuery != "" {
		target += "?" + rawQuery
	}
	return target
}

// Forward sends r to the upstream with body as its payload. When the auth
// result on ctx asks for it, the server credentials replace the caller's.
// The caller owns the returned response body.
func (f *Forwarder) Forward(ctx context.Context, r *http.Request, subpath string, body []byte) (*http.Response, error) {
	var reqBody io.Reader
	if len(body) > 0 {
		reqBody = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, f.TargetURL(subpath, r.URL.RawQuery), reqBody)
	if err != nil {
		return nil, fmt.Errorf("create upstream request: %w", err)
	}

	req.Header = r.Header.Clone()
	for _, h := range hopHeaders {
		req.Header.Del(h)
	}
	if subpath == string(openai.ListModelPath) {
		// The catalog may be rewritten, so let the transport negotiate and
		// decode compression itself.
		req.Header.Del("Accept-Encoding")
	}

	if res, ok := auth.FromContext(ctx); ok && res.UseServerKey {
		req.Header.Set("Authorization", "Bearer "+f.apiKey)
		if f.orgID != "" {
			req.Header.Set("OpenAI-Organization", f.orgID)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream request failed: %w", err)
	}

	// Keep browsers from showing a basic-auth prompt on upstream 401s and
	// stop reverse proxies from buffering event streams.
	resp.Header.Del("WWW-Authenticate")
	resp.Header.Set("X-Accel-Buffering", "no")
	return resp, nil
}
