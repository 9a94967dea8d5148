package monitor

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"

	"github.com/tjfontaine/llm-mediator/internal/domain"
)

var pngBytes = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

func pngDataURL() string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes)
}

func TestExtract_Multimodal(t *testing.T) {
	content := domain.NewMultipartContent(
		domain.TextPart("hi"),
		domain.ImageURLPart(pngDataURL(), ""),
	)

	ex := Extract(content)

	if len(ex.Attachments) != 1 {
		t.Fatalf("Attachments = %d, want 1", len(ex.Attachments))
	}
	att := ex.Attachments[0]
	if att.Name != "image-1.png" || att.MediaType != "image/png" {
		t.Errorf("attachment = %s (%s)", att.Name, att.MediaType)
	}
	if string(att.Data) != string(pngBytes) {
		t.Errorf("attachment data = %v", att.Data)
	}
	if !strings.Contains(ex.Text, "hi\n") {
		t.Errorf("Text = %q, want it to contain the text part", ex.Text)
	}
	if !strings.Contains(ex.Text, MarkerImageUploaded) {
		t.Errorf("Text = %q, want the upload marker", ex.Text)
	}
}

func TestExtract(t *testing.T) {
	tests := []struct {
		name            string
		content         string
		wantText        string
		wantAttachments int
	}{
		{
			name:     "plain text",
			content:  `"hello there"`,
			wantText: "hello there",
		},
		{
			name:     "remote image",
			content:  `[{"type":"image_url","image_url":{"url":"https://example.com/cat.jpg"}}]`,
			wantText: "[image link]: https://example.com/cat.jpg\n",
		},
		{
			name:     "broken inline image",
			content:  `[{"type":"text","text":"look"},{"type":"image_url","image_url":{"url":"data:image/png;base64,%%%"}}]`,
			wantText: "look\n[image conversion failed]\n",
		},
		{
			name:            "two inline images",
			content:         `[{"type":"image_url","image_url":{"url":"data:image/jpeg;base64,/9j/"}},{"type":"image_url","image_url":{"url":"data:image/gif;base64,R0lGOA=="}}]`,
			wantText:        "[image uploaded]\n[image uploaded]\n",
			wantAttachments: 2,
		},
		{
			name:     "unknown part types are ignored",
			content:  `[{"type":"input_audio","input_audio":{}},{"type":"text","text":"ok"}]`,
			wantText: "ok\n",
		},
		{
			name:     "object content is serialized",
			content:  `{"foo": [1, 2]}`,
			wantText: `{"foo":[1,2]}`,
		},
		{
			name:     "null content",
			content:  `null`,
			wantText: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var mc domain.MessageContent
			if err := json.Unmarshal([]byte(tt.content), &mc); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			ex := Extract(mc)
			if ex.Text != tt.wantText {
				t.Errorf("Text = %q, want %q", ex.Text, tt.wantText)
			}
			if len(ex.Attachments) != tt.wantAttachments {
				t.Errorf("Attachments = %d, want %d", len(ex.Attachments), tt.wantAttachments)
			}
		})
	}
}

func TestExtraction_Empty(t *testing.T) {
	if !(Extraction{Text: " \n\t"}).Empty() {
		t.Error("whitespace-only text without attachments should be empty")
	}
	if (Extraction{Text: " ", Attachments: []Attachment{{Name: "image-1.png"}}}).Empty() {
		t.Error("an attachment makes the extraction non-empty")
	}
}

func TestIsSuppressed(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"Summarize the discussion briefly in 200 words or less to use as a prompt for future context.", true},
		{"Please generate a four to five word title summarizing our conversation without any lead-in", true},
		{"summarize the discussion briefly in 200 words or less", false},
		{"what is the weather like?", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := IsSuppressed(tt.text); got != tt.want {
			t.Errorf("IsSuppressed(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestDecodeDataURL(t *testing.T) {
	tests := []struct {
		name      string
		url       string
		wantType  string
		wantData  string
		wantError bool
	}{
		{"base64", "data:image/png;base64,aGVsbG8=", "image/png", "hello", false},
		{"unpadded base64", "data:image/png;base64,aGVsbG8", "image/png", "hello", false},
		{"jpg alias", "data:image/jpg;base64,aGk=", "image/jpeg", "hi", false},
		{"percent encoded", "data:image/svg+xml,%3Csvg%2F%3E", "image/svg+xml", "<svg/>", false},
		{"missing comma", "data:image/png;base64", "", "", true},
		{"bad base64", "data:image/png;base64,!!!", "", "", true},
		{"empty payload", "data:image/png;base64,", "", "", true},
		{"not a data url", "https://example.com/x.png", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mediaType, data, err := decodeDataURL(tt.url)
			if (err != nil) != tt.wantError {
				t.Fatalf("decodeDataURL() error = %v, wantError %v", err, tt.wantError)
			}
			if tt.wantError {
				return
			}
			if mediaType != tt.wantType || string(data) != tt.wantData {
				t.Errorf("decodeDataURL() = %q, %q; want %q, %q", mediaType, data, tt.wantType, tt.wantData)
			}
		})
	}
}

func TestAttachmentName(t *testing.T) {
	tests := map[string]string{
		"image/png":  "image-3.png",
		"image/jpeg": "image-3.jpg",
		"image/webp": "image-3.webp",
		"image/gif":  "image-3.gif",
		"":           "image-3.png",
	}
	for mediaType, want := range tests {
		if got := attachmentName(3, mediaType); got != want {
			t.Errorf("attachmentName(3, %q) = %q, want %q", mediaType, got, want)
		}
	}
}
