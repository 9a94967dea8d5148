package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/semaphore"

	"github.com/tjfontaine/llm-mediator/internal/domain"
	"github.com/tjfontaine/llm-mediator/internal/gate"
	"github.com/tjfontaine/llm-mediator/internal/tokens"
)

const tracerName = "github.com/tjfontaine/llm-mediator/internal/monitor"

// Outcome labels reported to the Recorder, one per observed request.
const (
	OutcomeSent       = "sent"
	OutcomeSuppressed = "suppressed"
	OutcomeSkipped    = "skipped"
	OutcomeInvalid    = "invalid"
	OutcomeDropped    = "dropped"
	OutcomeFailed     = "failed"
)

const (
	defaultMaxInFlight = 16
	defaultTimeout     = 15 * time.Second
)

// Recorder receives monitor outcomes. Implementations must be safe for
// concurrent use.
type Recorder interface {
	RecordMonitorOutcome(outcome string)
	MonitorInFlight(delta float64)
}

type nopRecorder struct{}

func (nopRecorder) RecordMonitorOutcome(string) {}
func (nopRecorder) MonitorInFlight(float64)     {}

// Source is the request metadata captured before the task is detached.
type Source struct {
	RequestID string
	IP        string
	Device    string
}

// SourceFromRequest captures the caller attribution of r.
func SourceFromRequest(r *http.Request, requestID string) Source {
	return Source{
		RequestID: requestID,
		IP:        gate.ClientIP(r),
		Device:    r.UserAgent(),
	}
}

// Event is the notifiable view of one chat request. It lives only for the
// duration of a single monitor task.
type Event struct {
	IP          string
	Device      string
	Model       string
	Text        string
	Attachments []Attachment
	Suppressed  bool
	Tokens      int // -1 when unknown
}

// Options configures a Monitor.
type Options struct {
	Notifier    Notifier
	Counter     *tokens.Counter
	Recorder    Recorder
	Logger      *slog.Logger
	MaxInFlight int64
	Timeout     time.Duration
}

// Monitor runs bounded, detached notification tasks.
type Monitor struct {
	notifier Notifier
	counter  *tokens.Counter
	recorder Recorder
	logger   *slog.Logger
	timeout  time.Duration

	sem *semaphore.Weighted
	wg  sync.WaitGroup
}

// New creates a Monitor. Notifier is required.
func New(opts Options) *Monitor {
	if opts.MaxInFlight <= 0 {
		opts.MaxInFlight = defaultMaxInFlight
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Monitor{
		notifier: opts.Notifier,
		counter:  opts.Counter,
		recorder: opts.Recorder,
		logger:   opts.Logger,
		timeout:  opts.Timeout,
		sem:      semaphore.NewWeighted(opts.MaxInFlight),
	}
}

// Observe starts a background task for body and returns immediately. The
// task outlives ctx's cancellation but keeps its values. It returns false
// when every slot is busy and the event was dropped.
func (m *Monitor) Observe(ctx context.Context, src Source, body []byte) bool {
	if !m.sem.TryAcquire(1) {
		m.recorder.RecordMonitorOutcome(OutcomeDropped)
		m.logger.Warn("monitor saturated, dropping event", slog.String("request_id", src.RequestID))
		return false
	}

	m.wg.Add(1)
	m.recorder.MonitorInFlight(1)
	taskCtx := context.WithoutCancel(ctx)

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				m.recorder.RecordMonitorOutcome(OutcomeFailed)
				m.logger.Error("monitor task panicked",
					slog.String("request_id", src.RequestID),
					slog.Any("panic", rec),
				)
			}
			m.recorder.MonitorInFlight(-1)
			m.sem.Release(1)
			m.wg.Done()
		}()

		m.recorder.RecordMonitorOutcome(m.run(taskCtx, src, body))
	}()
	return true
}

// Wait blocks until every in-flight task has finished.
func (m *Monitor) Wait() {
	m.wg.Wait()
}

func (m *Monitor) run(ctx context.Context, src Source, body []byte) string {
	logger := m.logger.With(slog.String("request_id", src.RequestID))

	var req domain.ChatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		logger.Debug("monitor skipped undecodable body", slog.String("error", err.Error()))
		return OutcomeInvalid
	}

	msg, ok := req.LastMessage()
	if !ok {
		return OutcomeSkipped
	}

	ev := m.buildEvent(src, req.Model, msg)
	if ev.Suppressed {
		logger.Debug("monitor suppressed system prompt", slog.String("model", ev.Model))
		return OutcomeSuppressed
	}
	if (Extraction{Text: ev.Text, Attachments: ev.Attachments}).Empty() {
		return OutcomeSkipped
	}

	if err := m.notify(ctx, ev); err != nil {
		logger.Error("monitor notification failed", slog.String("error", err.Error()))
		return OutcomeFailed
	}

	logger.Info("monitor notification sent",
		slog.String("model", ev.Model),
		slog.Int("attachments", len(ev.Attachments)),
	)
	return OutcomeSent
}

func (m *Monitor) buildEvent(src Source, model string, msg domain.ChatMessage) Event {
	ex := Extract(msg.Content)
	ev := Event{
		IP:          src.IP,
		Device:      src.Device,
		Model:       model,
		Text:        ex.Text,
		Attachments: ex.Attachments,
		Suppressed:  IsSuppressed(ex.Text),
		Tokens:      -1,
	}
	if !ev.Suppressed && m.counter != nil {
		if n, err := m.counter.CountText(model, ex.Text); err == nil {
			ev.Tokens = n
		}
	}
	return ev
}

func (m *Monitor) notify(ctx context.Context, ev Event) error {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	ctx, span := otel.Tracer(tracerName).Start(ctx, "monitor.notify")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.model", ev.Model),
		attribute.Int("monitor.attachments", len(ev.Attachments)),
	)

	err := m.notifier.Notify(ctx, Notification{
		Content:     FormatContent(ev),
		Attachments: ev.Attachments,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("notify sink: %w", err)
	}
	return nil
}
