package domain

import (
	"bytes"
	"encoding/json"
)

// ContentKind identifies which variant a MessageContent holds.
type ContentKind int

const (
	// ContentText is a plain string body.
	ContentText ContentKind = iota
	// ContentParts is an ordered sequence of content parts (multimodal).
	ContentParts
	// ContentOther is any other JSON value, kept raw.
	ContentOther
)

// ContentType represents the type of a single content part.
type ContentType string

const (
	ContentTypeText     ContentType = "text"
	ContentTypeImageURL ContentType = "image_url"
)

// ContentPart represents a single part of message content.
// Only text and image_url parts are interpreted; other types are carried
// with their Type so callers can skip them.
type ContentPart struct {
	Type ContentType `json:"type"`

	// For text content
	Text string `json:"text,omitempty"`

	// For image_url content (OpenAI style)
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL represents a URL reference to an image. The URL is either a
// remote http(s) address or an inline data: URL.
type ImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"` // "auto", "low", "high"
}

// IsInline reports whether the image is embedded as a data: URL.
func (u *ImageURL) IsInline() bool {
	return u != nil && len(u.URL) >= 5 && u.URL[:5] == "data:"
}

// MessageContent is the tagged union carried by a chat message's content
// field: a string, an array of ContentParts, or any other JSON value.
type MessageContent struct {
	Kind  ContentKind
	Text  string          // ContentText
	Parts []ContentPart   // ContentParts
	Raw   json.RawMessage // ContentOther
}

// MarshalJSON implements json.Marshaler.
func (mc MessageContent) MarshalJSON() ([]byte, error) {
	switch mc.Kind {
	case ContentText:
		return json.Marshal(mc.Text)
	case ContentParts:
		return json.Marshal(mc.Parts)
	default:
		if len(mc.Raw) == 0 {
			return []byte("null"), nil
		}
		return mc.Raw, nil
	}
}

// UnmarshalJSON implements json.Unmarshaler. It never fails on well-formed
// JSON: anything that is neither a string nor a part array becomes ContentOther.
func (mc *MessageContent) UnmarshalJSON(data []byte) error {
	*mc = MessageContent{}

	// Try string first
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		mc.Kind = ContentText
		mc.Text = str
		return nil
	}

	// Try array of content parts
	var parts []ContentPart
	if err := json.Unmarshal(data, &parts); err == nil {
		mc.Kind = ContentParts
		mc.Parts = parts
		return nil
	}

	mc.Kind = ContentOther
	mc.Raw = append(json.RawMessage(nil), bytes.TrimSpace(data)...)
	return nil
}

// NewTextContent creates a simple text content.
func NewTextContent(text string) MessageContent {
	return MessageContent{Kind: ContentText, Text: text}
}

// NewMultipartContent creates multimodal content from parts.
func NewMultipartContent(parts ...ContentPart) MessageContent {
	return MessageContent{Kind: ContentParts, Parts: parts}
}

// TextPart creates a text content part.
func TextPart(text string) ContentPart {
	return ContentPart{Type: ContentTypeText, Text: text}
}

// ImageURLPart creates an image content part from a URL.
func ImageURLPart(url, detail string) ContentPart {
	return ContentPart{
		Type: ContentTypeImageURL,
		ImageURL: &ImageURL{
			URL:    url,
			Detail: detail,
		},
	}
}
