// Package sanitize is the single gateway for clamping untrusted client
// input before it reaches session state, and for scrubbing state again on
// the way out so one client can never inject markup into another's render.
package sanitize

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

const (
	// MaxIDLength caps session and similar identifier fields.
	MaxIDLength = 32
	// MaxNameLength caps player display names.
	MaxNameLength = 24
	// MaxTextLength caps free-text fields, including strings nested in state blobs.
	MaxTextLength = 200
)

// ErrStateTooLarge reports a game-state blob above the configured cap.
var ErrStateTooLarge = errors.New("game state exceeds size limit")

// ErrInvalidState reports a game-state blob that is not a JSON object.
var ErrInvalidState = errors.New("game state must be a JSON object")

var idCleaner = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// markupRunes are stripped from names and free text so sanitized values can be
// embedded in HTML-rendering clients without escaping.
const markupRunes = `<>"'&` + "`"

// ID reduces raw to the safe identifier character set and caps its length.
func ID(raw string) string {
	cleaned := idCleaner.ReplaceAllString(raw, "")
	if len(cleaned) > MaxIDLength {
		cleaned = cleaned[:MaxIDLength]
	}
	return cleaned
}

// Name strips control and markup characters from a display name and caps it.
func Name(raw string) string {
	return clampText(raw, MaxNameLength)
}

// Text strips control and markup characters from free text and caps it.
func Text(raw string) string {
	return clampText(raw, MaxTextLength)
}

func clampText(raw string, limit int) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if unicode.IsControl(r) || strings.ContainsRune(markupRunes, r) {
			continue
		}
		b.WriteRune(r)
	}
	cleaned := strings.TrimSpace(b.String())
	if len(cleaned) > limit {
		//1.- Trim on a rune boundary so capped names stay valid UTF-8.
		runes := []rune(cleaned)
		for len(string(runes)) > limit {
			runes = runes[:len(runes)-1]
		}
		cleaned = strings.TrimSpace(string(runes))
	}
	return cleaned
}

// Document walks an unmarshalled JSON value and clamps every string in place.
func Document(value any) any {
	switch typed := value.(type) {
	case string:
		return Text(typed)
	case map[string]any:
		for key, nested := range typed {
			typed[key] = Document(nested)
		}
		return typed
	case []any:
		for idx, nested := range typed {
			typed[idx] = Document(nested)
		}
		return typed
	default:
		return value
	}
}

// State validates a game-state blob against the size cap and deep-cleans every
// string it contains. The returned payload is safe to store and rebroadcast.
func State(raw json.RawMessage, maxBytes int64) (json.RawMessage, error) {
	if maxBytes > 0 && int64(len(raw)) > maxBytes {
		return nil, fmt.Errorf("%w: %d bytes over %d cap", ErrStateTooLarge, int64(len(raw))-maxBytes, maxBytes)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, ErrInvalidState
	}
	cleaned, err := json.Marshal(Document(decoded))
	if err != nil {
		return nil, ErrInvalidState
	}
	return cleaned, nil
}
