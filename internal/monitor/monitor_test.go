package monitor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tjfontaine/llm-mediator/internal/tokens"
)

type fakeNotifier struct {
	mu    sync.Mutex
	sent  []Notification
	err   error
	block chan struct{}
}

func (f *fakeNotifier) Notify(ctx context.Context, n Notification) error {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, n)
	return f.err
}

func (f *fakeNotifier) calls() []Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Notification(nil), f.sent...)
}

type fakeRecorder struct {
	mu       sync.Mutex
	outcomes map[string]int
	inFlight float64
}

func (f *fakeRecorder) RecordMonitorOutcome(outcome string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.outcomes == nil {
		f.outcomes = make(map[string]int)
	}
	f.outcomes[outcome]++
}

func (f *fakeRecorder) MonitorInFlight(delta float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFlight += delta
}

func (f *fakeRecorder) count(outcome string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.outcomes[outcome]
}

func newTestMonitor(n Notifier, rec Recorder, maxInFlight int64) *Monitor {
	return New(Options{
		Notifier:    n,
		Counter:     tokens.NewCounter(),
		Recorder:    rec,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		MaxInFlight: maxInFlight,
		Timeout:     time.Second,
	})
}

var testSource = Source{RequestID: "req-1", IP: "203.0.113.7", Device: "test-agent"}

func TestMonitor_Observe(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		wantCalls   int
		wantOutcome string
	}{
		{
			name:        "normal message",
			body:        `{"model":"gpt-4o","messages":[{"role":"user","content":"hello"}]}`,
			wantCalls:   1,
			wantOutcome: OutcomeSent,
		},
		{
			name:        "summary prompt is suppressed",
			body:        `{"model":"gpt-4o","messages":[{"role":"user","content":"Summarize the discussion briefly in 200 words or less to use as a prompt for future context."}]}`,
			wantOutcome: OutcomeSuppressed,
		},
		{
			name:        "title prompt is suppressed",
			body:        `{"model":"gpt-4o","messages":[{"role":"user","content":[{"type":"text","text":"Please generate a four to five word title summarizing our conversation"}]}]}`,
			wantOutcome: OutcomeSuppressed,
		},
		{
			name:        "only the last message is considered",
			body:        `{"messages":[{"role":"user","content":"Summarize the discussion briefly in 200 words or less"},{"role":"user","content":"real question"}]}`,
			wantCalls:   1,
			wantOutcome: OutcomeSent,
		},
		{
			name:        "no messages",
			body:        `{"model":"gpt-4o","messages":[]}`,
			wantOutcome: OutcomeSkipped,
		},
		{
			name:        "blank text",
			body:        `{"messages":[{"role":"user","content":"   "}]}`,
			wantOutcome: OutcomeSkipped,
		},
		{
			name:        "malformed json",
			body:        `{"messages":[`,
			wantOutcome: OutcomeInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := &fakeNotifier{}
			rec := &fakeRecorder{}
			m := newTestMonitor(n, rec, 4)

			if !m.Observe(context.Background(), testSource, []byte(tt.body)) {
				t.Fatal("Observe() dropped the event")
			}
			m.Wait()

			if got := len(n.calls()); got != tt.wantCalls {
				t.Errorf("sink calls = %d, want %d", got, tt.wantCalls)
			}
			if rec.count(tt.wantOutcome) != 1 {
				t.Errorf("outcomes = %v, want one %q", rec.outcomes, tt.wantOutcome)
			}
		})
	}
}

func TestMonitor_NotificationContent(t *testing.T) {
	n := &fakeNotifier{}
	m := newTestMonitor(n, nil, 1)

	body := `{"model":"gpt-4o","messages":[{"role":"user","content":[{"type":"text","text":"hi"},{"type":"image_url","image_url":{"url":"` + pngDataURL() + `"}}]}]}`
	m.Observe(context.Background(), testSource, []byte(body))
	m.Wait()

	calls := n.calls()
	if len(calls) != 1 {
		t.Fatalf("sink calls = %d, want 1", len(calls))
	}
	got := calls[0]
	for _, want := range []string{"**IP**: 203.0.113.7", "**Device**: test-agent", "**Model**: gpt-4o", "**Tokens**: ", "hi\n", MarkerImageUploaded} {
		if !strings.Contains(got.Content, want) {
			t.Errorf("content %q missing %q", got.Content, want)
		}
	}
	if len(got.Attachments) != 1 || got.Attachments[0].Name != "image-1.png" {
		t.Errorf("attachments = %+v", got.Attachments)
	}
}

func TestMonitor_ImageOnlyMessageIsSent(t *testing.T) {
	n := &fakeNotifier{}
	m := newTestMonitor(n, nil, 1)

	body := `{"messages":[{"role":"user","content":[{"type":"image_url","image_url":{"url":"` + pngDataURL() + `"}}]}]}`
	m.Observe(context.Background(), testSource, []byte(body))
	m.Wait()

	if len(n.calls()) != 1 {
		t.Errorf("sink calls = %d, want 1", len(n.calls()))
	}
}

func TestMonitor_DropsWhenSaturated(t *testing.T) {
	n := &fakeNotifier{block: make(chan struct{})}
	rec := &fakeRecorder{}
	m := newTestMonitor(n, rec, 1)
	body := []byte(`{"messages":[{"role":"user","content":"hello"}]}`)

	if !m.Observe(context.Background(), testSource, body) {
		t.Fatal("first Observe() should be accepted")
	}
	if m.Observe(context.Background(), testSource, body) {
		t.Error("second Observe() should be dropped while the slot is busy")
	}

	close(n.block)
	m.Wait()

	if rec.count(OutcomeDropped) != 1 || rec.count(OutcomeSent) != 1 {
		t.Errorf("outcomes = %v", rec.outcomes)
	}
	if rec.inFlight != 0 {
		t.Errorf("in flight = %v, want 0", rec.inFlight)
	}

	// The slot is free again.
	if !m.Observe(context.Background(), testSource, body) {
		t.Error("Observe() after release should be accepted")
	}
	m.Wait()
}

func TestMonitor_SurvivesCallerCancellation(t *testing.T) {
	n := &fakeNotifier{block: make(chan struct{})}
	m := newTestMonitor(n, nil, 1)

	ctx, cancel := context.WithCancel(context.Background())
	m.Observe(ctx, testSource, []byte(`{"messages":[{"role":"user","content":"hello"}]}`))
	cancel()
	close(n.block)
	m.Wait()

	if len(n.calls()) != 1 {
		t.Errorf("sink calls = %d, want 1 after caller cancellation", len(n.calls()))
	}
}

func TestMonitor_NotifierFailure(t *testing.T) {
	n := &fakeNotifier{err: errors.New("sink down")}
	rec := &fakeRecorder{}
	m := newTestMonitor(n, rec, 1)

	m.Observe(context.Background(), testSource, []byte(`{"messages":[{"role":"user","content":"hello"}]}`))
	m.Wait()

	if rec.count(OutcomeFailed) != 1 {
		t.Errorf("outcomes = %v, want one failure", rec.outcomes)
	}
}

type panicNotifier struct{}

func (panicNotifier) Notify(context.Context, Notification) error { panic("boom") }

func TestMonitor_RecoversPanics(t *testing.T) {
	rec := &fakeRecorder{}
	m := newTestMonitor(panicNotifier{}, rec, 1)

	m.Observe(context.Background(), testSource, []byte(`{"messages":[{"role":"user","content":"hello"}]}`))
	m.Wait()

	if rec.count(OutcomeFailed) != 1 {
		t.Errorf("outcomes = %v, want one failure", rec.outcomes)
	}
	if !m.Observe(context.Background(), testSource, []byte(`{}`)) {
		t.Error("slot should be released after a panic")
	}
	m.Wait()
}

func TestSourceFromRequest(t *testing.T) {
	r := httptest.NewRequest("POST", "/api/openai/v1/chat/completions", nil)
	r.Header.Set("CF-Connecting-IP", "198.51.100.1")
	r.Header.Set("X-Forwarded-For", "10.0.0.1")
	r.Header.Set("User-Agent", "Mozilla/5.0")

	src := SourceFromRequest(r, "abc")
	if src.IP != "198.51.100.1" || src.Device != "Mozilla/5.0" || src.RequestID != "abc" {
		t.Errorf("SourceFromRequest() = %+v", src)
	}
}
