// Package mediator wires the gateway's request pipeline: path allow-list,
// authentication, the detached conversation monitor, the upstream forward
// and the model catalog filter.
package mediator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tjfontaine/llm-mediator/internal/auth"
	"github.com/tjfontaine/llm-mediator/internal/domain"
	"github.com/tjfontaine/llm-mediator/internal/gate"
	"github.com/tjfontaine/llm-mediator/internal/metrics"
	"github.com/tjfontaine/llm-mediator/internal/monitor"
	"github.com/tjfontaine/llm-mediator/internal/openai"
	"github.com/tjfontaine/llm-mediator/internal/server"
)

// DefaultMaxBodyBytes bounds buffered request bodies when no limit is set.
const DefaultMaxBodyBytes = 32 << 20

// Forwarder sends a request upstream and returns its response.
type Forwarder interface {
	Forward(ctx context.Context, r *http.Request, subpath string, body []byte) (*http.Response, error)
}

// Observer starts a detached monitor task for a request body.
type Observer interface {
	Observe(ctx context.Context, src monitor.Source, body []byte) bool
}

// Recorder receives request level metrics.
type Recorder interface {
	RecordRequest(outcome string)
	RecordUpstream(status int, duration time.Duration)
	RecordModelsFiltered(n int)
}

type nopRecorder struct{}

func (nopRecorder) RecordRequest(string)              {}
func (nopRecorder) RecordUpstream(int, time.Duration) {}
func (nopRecorder) RecordModelsFiltered(int)          {}

// Options configures a Handler.
type Options struct {
	Paths     gate.AllowedPathSet
	Auth      auth.Gate
	Forwarder Forwarder
	// Monitor is optional; nil disables conversation monitoring.
	Monitor      Observer
	Filter       openai.FilterPolicy
	Metrics      Recorder
	Logger       *slog.Logger
	MaxBodyBytes int64
}

// Handler mediates requests mounted under a wildcard route. The subpath is
// the chi "*" URL parameter.
type Handler struct {
	paths        gate.AllowedPathSet
	auth         auth.Gate
	forwarder    Forwarder
	monitor      Observer
	filter       openai.FilterPolicy
	metrics      Recorder
	logger       *slog.Logger
	maxBodyBytes int64
}

// NewHandler creates a mediating handler.
func NewHandler(opts Options) *Handler {
	h := &Handler{
		paths:        opts.Paths,
		auth:         opts.Auth,
		forwarder:    opts.Forwarder,
		monitor:      opts.Monitor,
		filter:       opts.Filter,
		metrics:      opts.Metrics,
		logger:       opts.Logger,
		maxBodyBytes: opts.MaxBodyBytes,
	}
	if h.metrics == nil {
		h.metrics = nopRecorder{}
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	if h.maxBodyBytes <= 0 {
		h.maxBodyBytes = DefaultMaxBodyBytes
	}
	return h
}

type preflightBody struct {
	Body string `json:"body"`
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.Method == http.MethodOptions {
		h.metrics.RecordRequest(metrics.OutcomePreflight)
		domain.WriteJSON(w, http.StatusOK, preflightBody{Body: "OK"})
		return
	}

	subpath := chi.URLParam(r, "*")
	server.AddLogField(ctx, "subpath", subpath)

	if !h.paths.Contains(subpath) {
		h.metrics.RecordRequest(metrics.OutcomePathRejected)
		server.AddLogField(ctx, "rejected", "path")
		domain.WriteJSON(w, http.StatusForbidden, domain.ErrPathNotAllowed(subpath))
		return
	}

	res := h.auth.Authenticate(r, auth.ProviderOpenAI)
	if !res.OK() {
		h.metrics.RecordRequest(metrics.OutcomeAuthRejected)
		server.AddLogField(ctx, "rejected", "auth")
		domain.WriteJSON(w, http.StatusUnauthorized, res)
		return
	}
	ctx = auth.WithResult(ctx, res)

	body, err := readBody(r, h.maxBodyBytes)
	if err != nil {
		server.AddError(ctx, err)
		status := http.StatusBadRequest
		if errors.Is(err, ErrBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		domain.WriteJSON(w, status, domain.NewErrorEnvelope(err.Error()))
		return
	}

	if h.monitor != nil && strings.Contains(subpath, "chat") {
		src := monitor.SourceFromRequest(r, server.GetRequestID(ctx))
		h.monitor.Observe(ctx, src, body)
	}

	start := time.Now()
	resp, err := h.forwarder.Forward(ctx, r, subpath, body)
	if err != nil {
		h.metrics.RecordRequest(metrics.OutcomeForwardFailed)
		server.AddError(ctx, err)
		h.logger.Error("upstream forward failed",
			slog.String("request_id", server.GetRequestID(ctx)),
			slog.String("subpath", subpath),
			slog.String("error", err.Error()),
		)
		// Forward failures answer with the default status; the envelope
		// carries the error.
		domain.WriteJSON(w, http.StatusOK, domain.NewErrorEnvelope(err.Error()))
		return
	}
	defer resp.Body.Close()

	h.metrics.RecordRequest(metrics.OutcomeForwarded)
	h.metrics.RecordUpstream(resp.StatusCode, time.Since(start))
	server.AddLogField(ctx, "upstream_status", strconv.Itoa(resp.StatusCode))

	if subpath == string(openai.ListModelPath) && resp.StatusCode == http.StatusOK && h.filter.DisableAdvancedModels {
		h.writeFilteredModels(ctx, w, resp)
		return
	}

	copyResponse(w, resp)
}

// writeFilteredModels rewrites a list-models response. A body that is not a
// model list is passed through as received.
func (h *Handler) writeFilteredModels(ctx context.Context, w http.ResponseWriter, resp *http.Response) {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		server.AddError(ctx, err)
		domain.WriteJSON(w, http.StatusInternalServerError, domain.NewErrorEnvelope(err.Error()))
		return
	}

	out := raw
	decoded, err := decodeContent(raw, resp.Header.Get("Content-Encoding"))
	if err == nil {
		var removed int
		out, removed, err = openai.FilterModelsJSON(decoded, h.filter)
		if err == nil {
			h.metrics.RecordModelsFiltered(removed)
		}
	}
	if err != nil {
		h.logger.Warn("model catalog not filterable, passing through",
			slog.String("request_id", server.GetRequestID(ctx)),
			slog.String("error", err.Error()),
		)
		out = raw
	}

	copyHeader(w.Header(), resp.Header)
	if err == nil {
		w.Header().Del("Content-Encoding")
	}
	w.Header().Del("Content-Length")
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(out)
}

func copyHeader(dst, src http.Header) {
	for k, vv := range src {
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}

// copyResponse streams the upstream response to the caller, flushing after
// each read so event streams reach the client as they arrive.
func copyResponse(w http.ResponseWriter, resp *http.Response) {
	copyHeader(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)

	flusher, _ := w.(http.Flusher)
	buf := make([]byte, 32*1024)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if err != nil {
			return
		}
	}
}
