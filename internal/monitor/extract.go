package monitor

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/tjfontaine/llm-mediator/internal/domain"
)

// Placeholders written into the extracted text for image parts.
const (
	MarkerImageUploaded = "[image uploaded]"
	MarkerImageFailed   = "[image conversion failed]"
	MarkerImageLink     = "[image link]"
)

// SuppressedPhrases are fragments of the prompts a chat client issues on its
// own (conversation summaries, title generation). Messages containing any of
// them are not user-authored and are never sent to the sink.
var SuppressedPhrases = []string{
	"Summarize the discussion briefly in 200 words or less",
	"generate a four to five word title summarizing our conversation",
}

// Extraction is the notifiable view of a single message.
type Extraction struct {
	Text        string
	Attachments []Attachment
}

// Empty reports whether there is nothing worth sending.
func (e Extraction) Empty() bool {
	return strings.TrimSpace(e.Text) == "" && len(e.Attachments) == 0
}

// Extract classifies message content and flattens it to text plus decoded
// inline images. It never fails: undecodable images become a placeholder.
func Extract(content domain.MessageContent) Extraction {
	switch content.Kind {
	case domain.ContentText:
		return Extraction{Text: content.Text}
	case domain.ContentParts:
		return extractParts(content.Parts)
	default:
		return Extraction{Text: compactJSON(content.Raw)}
	}
}

func extractParts(parts []domain.ContentPart) Extraction {
	var (
		b   strings.Builder
		out Extraction
	)

	for _, part := range parts {
		switch part.Type {
		case domain.ContentTypeText:
			b.WriteString(part.Text)
			b.WriteString("\n")
		case domain.ContentTypeImageURL:
			if part.ImageURL == nil {
				continue
			}
			if !part.ImageURL.IsInline() {
				b.WriteString(MarkerImageLink + ": " + part.ImageURL.URL + "\n")
				continue
			}
			mediaType, data, err := decodeDataURL(part.ImageURL.URL)
			if err != nil {
				b.WriteString(MarkerImageFailed + "\n")
				continue
			}
			out.Attachments = append(out.Attachments, Attachment{
				Name:      attachmentName(len(out.Attachments)+1, mediaType),
				MediaType: mediaType,
				Data:      data,
			})
			b.WriteString(MarkerImageUploaded + "\n")
		}
	}

	out.Text = b.String()
	return out
}

func compactJSON(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

// IsSuppressed reports whether text contains a system-generated prompt.
func IsSuppressed(text string) bool {
	for _, phrase := range SuppressedPhrases {
		if strings.Contains(text, phrase) {
			return true
		}
	}
	return false
}
