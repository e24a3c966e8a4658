package sanitize

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestIDStripsUnsafeRunes(t *testing.T) {
	if got := ID("AB C-1<script>!"); got != "ABC-1script" {
		t.Fatalf("unexpected id: %q", got)
	}
	long := strings.Repeat("a", 64)
	if got := ID(long); len(got) != MaxIDLength {
		t.Fatalf("id not capped: %d runes", len(got))
	}
}

func TestNameRemovesControlAndMarkup(t *testing.T) {
	if got := Name("  Alice\x00<b>&co</b>\t "); got != "Alicebco/b" {
		t.Fatalf("unexpected name: %q", got)
	}
	if got := Name(strings.Repeat("n", 40)); len(got) != MaxNameLength {
		t.Fatalf("name not capped: %q", got)
	}
}

func TestSanitizeIsFixedPoint(t *testing.T) {
	inputs := []string{"Player 1", "we<ird>&name", strings.Repeat("x", 300), "tab\there"}
	for _, input := range inputs {
		once := Text(input)
		if twice := Text(once); twice != once {
			t.Fatalf("sanitize not idempotent: %q -> %q -> %q", input, once, twice)
		}
	}
	for _, input := range []string{"ABC123", "a b!c", strings.Repeat("i", 50)} {
		once := ID(input)
		if twice := ID(once); twice != once {
			t.Fatalf("id sanitize not idempotent: %q -> %q", once, twice)
		}
	}
}

func TestDocumentCleansNestedStrings(t *testing.T) {
	raw := map[string]any{
		"board": []any{"card<1>", map[string]any{"note": "hi\x07there"}},
		"turn":  float64(2),
	}
	cleaned := Document(raw).(map[string]any)
	board := cleaned["board"].([]any)
	if board[0] != "card1" {
		t.Fatalf("nested string not cleaned: %q", board[0])
	}
	if board[1].(map[string]any)["note"] != "hithere" {
		t.Fatalf("deep string not cleaned: %v", board[1])
	}
	if cleaned["turn"] != float64(2) {
		t.Fatalf("non-string value mutated: %v", cleaned["turn"])
	}
}

func TestStateEnforcesSizeCap(t *testing.T) {
	blob := json.RawMessage(`{"pad":"` + strings.Repeat("a", 128) + `"}`)
	if _, err := State(blob, 64); !errors.Is(err, ErrStateTooLarge) {
		t.Fatalf("expected size violation, got %v", err)
	}
	cleaned, err := State(json.RawMessage(`{"name":"p<1>"}`), 1024)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(cleaned, &decoded); err != nil {
		t.Fatalf("cleaned state not JSON: %v", err)
	}
	if decoded["name"] != "p1" {
		t.Fatalf("state string not cleaned: %v", decoded["name"])
	}
}

func TestStateRejectsNonObject(t *testing.T) {
	if _, err := State(json.RawMessage(`[1,2,3]`), 1024); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}
}
