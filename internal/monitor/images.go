package monitor

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
)

// Attachment is a decoded image carried to the sink as a file part.
type Attachment struct {
	Name      string
	MediaType string
	Data      []byte
}

// decodeDataURL decodes an RFC 2397 data URL.
// Format: data:image/png;base64,iVBORw0KGgo...
func decodeDataURL(raw string) (string, []byte, error) {
	if !strings.HasPrefix(raw, "data:") {
		return "", nil, fmt.Errorf("not a data URL")
	}

	metadata, payload, ok := strings.Cut(raw[len("data:"):], ",")
	if !ok {
		return "", nil, fmt.Errorf("invalid data URL: missing comma separator")
	}

	params := strings.Split(metadata, ";")
	mediaType := normalizeMediaType(params[0])

	isBase64 := false
	for _, p := range params[1:] {
		if strings.EqualFold(strings.TrimSpace(p), "base64") {
			isBase64 = true
			break
		}
	}

	if !isBase64 {
		data, err := url.PathUnescape(payload)
		if err != nil {
			return "", nil, fmt.Errorf("invalid data URL payload: %w", err)
		}
		return mediaType, []byte(data), nil
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		// Some clients strip the padding.
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		if err != nil {
			return "", nil, fmt.Errorf("invalid base64 payload: %w", err)
		}
	}
	if len(data) == 0 {
		return "", nil, fmt.Errorf("empty data URL payload")
	}
	return mediaType, data, nil
}

func normalizeMediaType(mediaType string) string {
	mediaType = strings.TrimSpace(strings.ToLower(mediaType))
	if mediaType == "image/jpg" {
		return "image/jpeg"
	}
	return mediaType
}

// extensionFor maps an image media type to a file extension, falling back
// to png for anything unrecognised.
func extensionFor(mediaType string) string {
	switch mediaType {
	case "image/jpeg":
		return "jpg"
	case "image/gif":
		return "gif"
	case "image/webp":
		return "webp"
	default:
		return "png"
	}
}

func attachmentName(n int, mediaType string) string {
	return fmt.Sprintf("image-%d.%s", n, extensionFor(mediaType))
}
