package sessionlog

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

func fixedClock() func() time.Time {
	at := time.Date(2024, time.June, 2, 10, 30, 0, 0, time.UTC)
	return func() time.Time { return at }
}

func TestCloseWritesArtefact(t *testing.T) {
	dir := t.TempDir()
	recorder, err := NewRecorder(dir, "ABC 123!", fixedClock())
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	recorder.Append("JOIN_GAME", json.RawMessage(`{"playerId":1}`))
	recorder.Append("UPDATE_STATE", json.RawMessage(`{"turn":2}`))

	path, err := recorder.Close(json.RawMessage(`{"turn":2,"board":[]}`))
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if path == "" {
		t.Fatal("expected an artefact path")
	}
	if filepath.Base(path) != "ABC123-20240602T103000Z" {
		t.Fatalf("unexpected artefact directory: %s", filepath.Base(path))
	}

	raw, err := os.ReadFile(filepath.Join(path, "manifest.json"))
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	var manifest Manifest
	if err := json.Unmarshal(raw, &manifest); err != nil {
		t.Fatalf("parse manifest: %v", err)
	}
	if manifest.EventCount != 2 || manifest.SessionID != "ABC 123!" {
		t.Fatalf("unexpected manifest: %+v", manifest)
	}

	file, err := os.Open(filepath.Join(path, manifest.EventsPath))
	if err != nil {
		t.Fatalf("open events: %v", err)
	}
	defer file.Close()
	scanner := bufio.NewScanner(snappy.NewReader(file))
	lines := 0
	for scanner.Scan() {
		var event struct {
			Type    string          `json:"type"`
			Payload json.RawMessage `json:"payload"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			t.Fatalf("parse event line: %v", err)
		}
		lines++
	}
	if lines != 2 {
		t.Fatalf("expected 2 event lines, got %d", lines)
	}

	stateFile, err := os.Open(filepath.Join(path, manifest.StatePath))
	if err != nil {
		t.Fatalf("open state: %v", err)
	}
	defer stateFile.Close()
	decoder, err := zstd.NewReader(stateFile)
	if err != nil {
		t.Fatalf("zstd reader: %v", err)
	}
	defer decoder.Close()
	state, err := io.ReadAll(decoder)
	if err != nil {
		t.Fatalf("read state: %v", err)
	}
	if string(state) != `{"turn":2,"board":[]}` {
		t.Fatalf("state round-trip mismatch: %s", state)
	}
}

func TestCloseWithEmptyBufferWritesNothing(t *testing.T) {
	dir := t.TempDir()
	recorder, _ := NewRecorder(dir, "EMPTY", fixedClock())

	path, err := recorder.Close(json.RawMessage(`{"ignored":true}`))
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if path != "" {
		t.Fatalf("empty log should not produce an artefact, got %s", path)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("unexpected files written: %v", entries)
	}
}

func TestCloseIsWriteOnce(t *testing.T) {
	dir := t.TempDir()
	recorder, _ := NewRecorder(dir, "ONCE", fixedClock())
	recorder.Append("JOIN_GAME", nil)

	if _, err := recorder.Close(nil); err != nil {
		t.Fatalf("first close: %v", err)
	}
	recorder.Append("LEAVE_GAME", nil)
	path, err := recorder.Close(nil)
	if err != nil {
		t.Fatalf("second close: %v", err)
	}
	if path != "" {
		t.Fatal("second close must be a no-op")
	}
}
