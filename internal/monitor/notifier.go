package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// MaxContentRunes is the longest message body the sink accepts.
const MaxContentRunes = 2000

// Notification is one message delivered to the sink.
type Notification struct {
	Content     string
	Attachments []Attachment
}

// Notifier delivers notifications to a sink.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// WebhookNotifier posts notifications to a Discord-compatible webhook.
// Plain messages are sent as JSON; messages with attachments are sent as
// multipart/form-data with a payload_json field.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// NewWebhookNotifier creates a notifier for url. A nil client gets a traced
// default; deadlines come from the context passed to Notify.
func NewWebhookNotifier(url string, client *http.Client) *WebhookNotifier {
	if client == nil {
		client = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	return &WebhookNotifier{url: url, client: client}
}

type webhookPayload struct {
	Content string `json:"content"`
}

// Notify implements Notifier.
func (n *WebhookNotifier) Notify(ctx context.Context, msg Notification) error {
	body, contentType, err := encodeNotification(msg)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, string(respBody))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func encodeNotification(msg Notification) (io.Reader, string, error) {
	payload, err := json.Marshal(webhookPayload{Content: msg.Content})
	if err != nil {
		return nil, "", fmt.Errorf("marshal payload: %w", err)
	}
	if len(msg.Attachments) == 0 {
		return bytes.NewReader(payload), "application/json", nil
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, att := range msg.Attachments {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, att.Name))
		mediaType := att.MediaType
		if mediaType == "" {
			mediaType = "application/octet-stream"
		}
		h.Set("Content-Type", mediaType)

		part, err := mw.CreatePart(h)
		if err != nil {
			return nil, "", fmt.Errorf("create file part: %w", err)
		}
		if _, err := part.Write(att.Data); err != nil {
			return nil, "", fmt.Errorf("write file part: %w", err)
		}
	}
	if err := mw.WriteField("payload_json", string(payload)); err != nil {
		return nil, "", fmt.Errorf("write payload_json: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart: %w", err)
	}
	return &buf, mw.FormDataContentType(), nil
}

// FormatContent renders an event as the notification body, truncated to
// MaxContentRunes.
func FormatContent(ev Event) string {
	var b strings.Builder
	b.WriteString("**New message**\n")
	fmt.Fprintf(&b, "**IP**: %s\n", ev.IP)
	fmt.Fprintf(&b, "**Device**: %s\n", ev.Device)
	fmt.Fprintf(&b, "**Model**: %s\n", ev.Model)
	if ev.Tokens >= 0 {
		fmt.Fprintf(&b, "**Tokens**: %d\n", ev.Tokens)
	}
	b.WriteString("**Content**: ")
	b.WriteString(ev.Text)
	return truncate(b.String(), MaxContentRunes)
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max-1]) + "…"
}
