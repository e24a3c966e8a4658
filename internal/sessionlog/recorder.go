// Package sessionlog writes the optional per-session post-mortem artefact:
// a snappy-compressed JSONL event stream plus a zstd-compressed dump of the
// final game state. The artefact is write-once output flushed at session
// teardown; the coordinator never reads it back.
package sessionlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

var sessionIDCleaner = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

type record struct {
	At      string          `json:"at"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Manifest describes the artefact layout so tooling can locate the pieces.
type Manifest struct {
	Version    int    `json:"version"`
	SessionID  string `json:"session_id"`
	CreatedAt  string `json:"created_at"`
	ClosedAt   string `json:"closed_at"`
	EventCount int    `json:"event_count"`
	EventsPath string `json:"events_path"`
	StatePath  string `json:"state_path,omitempty"`
}

// Recorder buffers one session's events until they are flushed at teardown.
type Recorder struct {
	mu        sync.Mutex
	root      string
	sessionID string
	now       func() time.Time
	createdAt time.Time
	events    []record
	closed    bool
}

// NewRecorder prepares an event buffer for the session. Nothing touches disk
// until Close flushes a non-empty buffer.
func NewRecorder(root, sessionID string, clock func() time.Time) (*Recorder, error) {
	if root == "" {
		return nil, fmt.Errorf("session log root must be provided")
	}
	if clock == nil {
		clock = time.Now
	}
	return &Recorder{
		root:      root,
		sessionID: sessionID,
		now:       clock,
		createdAt: clock().UTC(),
	}, nil
}

// Append records one event. Payload may be nil for bare lifecycle markers.
func (r *Recorder) Append(eventType string, payload json.RawMessage) {
	if r == nil || eventType == "" {
		return
	}
	at := r.now().UTC().Format(time.RFC3339Nano)
	clone := append(json.RawMessage(nil), payload...)

	r.mu.Lock()
	if !r.closed {
		r.events = append(r.events, record{At: at, Type: eventType, Payload: clone})
	}
	r.mu.Unlock()
}

// Len reports how many events are buffered.
func (r *Recorder) Len() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// Close flushes the buffered events and the final game state to disk and
// returns the artefact directory. An empty buffer writes nothing and returns
// an empty path. Close is write-once: later calls are no-ops.
func (r *Recorder) Close(finalState json.RawMessage) (string, error) {
	if r == nil {
		return "", nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return "", nil
	}
	r.closed = true
	if len(r.events) == 0 {
		return "", nil
	}

	//1.- Derive a filesystem-safe artefact directory from the session id.
	cleaned := sessionIDCleaner.ReplaceAllString(r.sessionID, "")
	if cleaned == "" {
		cleaned = "session"
	}
	closedAt := r.now().UTC()
	dir := filepath.Join(r.root, fmt.Sprintf("%s-%s", cleaned, closedAt.Format("20060102T150405Z")))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	manifest := Manifest{
		Version:    1,
		SessionID:  r.sessionID,
		CreatedAt:  r.createdAt.Format(time.RFC3339Nano),
		ClosedAt:   closedAt.Format(time.RFC3339Nano),
		EventCount: len(r.events),
		EventsPath: "events.jsonl.sz",
	}

	//2.- Events first, then the optional state dump, manifest last so a
	// complete manifest implies complete artefacts.
	if err := r.writeEventsLocked(filepath.Join(dir, manifest.EventsPath)); err != nil {
		return "", err
	}
	if len(finalState) > 0 {
		manifest.StatePath = "state.json.zst"
		if err := writeState(filepath.Join(dir, manifest.StatePath), finalState); err != nil {
			return "", err
		}
	}

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(dir, "manifest.json"), data, 0o644); err != nil {
		return "", err
	}
	r.events = nil
	return dir, nil
}

func (r *Recorder) writeEventsLocked(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	stream := snappy.NewBufferedWriter(file)
	//1.- Emit one JSON object per line so downstream tooling can stream the log.
	for _, event := range r.events {
		line, err := json.Marshal(event)
		if err != nil {
			stream.Close()
			file.Close()
			return err
		}
		if _, err := stream.Write(append(line, '\n')); err != nil {
			stream.Close()
			file.Close()
			return err
		}
	}
	if err := stream.Close(); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func writeState(path string, state json.RawMessage) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	encoder, err := zstd.NewWriter(file)
	if err != nil {
		file.Close()
		return err
	}
	if _, err := encoder.Write(state); err != nil {
		encoder.Close()
		file.Close()
		return err
	}
	if err := encoder.Close(); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
