// Package transcript records each tab's event stream as an append-only
// JSON-Lines file, one line per runtime event with a relative timestamp.
package transcript

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// line is one recorded event: [time_offset_seconds, event].
type line struct {
	Offset float64
	Event  json.RawMessage
}

// MarshalJSON implements custom JSON marshaling for line.
func (l line) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{l.Offset, l.Event})
}

// UnmarshalJSON implements custom JSON unmarshaling for line.
func (l *line) UnmarshalJSON(data []byte) error {
	var arr []json.RawMessage
	if err := json.Unmarshal(data, &arr); err != nil {
		return err
	}
	if len(arr) != 2 {
		return fmt.Errorf("invalid transcript line: expected 2 elements, got %d", len(arr))
	}
	if err := json.Unmarshal(arr[0], &l.Offset); err != nil {
		return fmt.Errorf("invalid time offset: %w", err)
	}
	l.Event = arr[1]
	return nil
}

// Writer records transcripts for many tabs under one directory, one file
// per tab, opened lazily on first event. Recording is best-effort; the
// caller decides what to do with write errors.
type Writer struct {
	dir string

	mu    sync.Mutex
	files map[string]*record
}

type record struct {
	file  *os.File
	start time.Time
}

// NewWriter creates a transcript writer rooted at dir.
func NewWriter(dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create transcript dir: %w", err)
	}
	return &Writer{dir: dir, files: make(map[string]*record)}, nil
}

// Append records one event for a tab.
func (w *Writer) Append(tabID string, raw []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	rec, ok := w.files[tabID]
	if !ok {
		file, err := os.Create(filepath.Join(w.dir, tabID+".jsonl"))
		if err != nil {
			return fmt.Errorf("failed to create transcript: %w", err)
		}
		rec = &record{file: file, start: time.Now()}
		w.files[tabID] = rec
	}

	data, err := json.Marshal(line{
		Offset: time.Since(rec.start).Seconds(),
		Event:  json.RawMessage(raw),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal transcript line: %w", err)
	}

	if _, err := rec.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write transcript: %w", err)
	}
	return nil
}

// Close finishes a tab's transcript.
func (w *Writer) Close(tabID string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if rec, ok := w.files[tabID]; ok {
		rec.file.Close()
		delete(w.files, tabID)
	}
}

// CloseAll finishes every open transcript. Used on shutdown.
func (w *Writer) CloseAll() {
	w.mu.Lock()
	defer w.mu.Unlock()

	for id, rec := range w.files {
		rec.file.Close()
		delete(w.files, id)
	}
}
