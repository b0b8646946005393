// Package output writes Singer-style SCHEMA, RECORD and STATE messages as
// newline-delimited JSON.
//
// Writer doubles as the sink of every stream: records are written as they
// arrive, and each checkpoint first advances the state store and then emits
// a STATE message carrying every bookmark known to the run.
package output

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"sync"
	"time"

	"csvtap/internal/records"
	"csvtap/internal/schema"
	"csvtap/internal/storage"
)

// Message types.
const (
	TypeSchema = "SCHEMA"
	TypeRecord = "RECORD"
	TypeState  = "STATE"
)

type schemaMessage struct {
	Type               string         `json:"type"`
	Stream             string         `json:"stream"`
	Schema             map[string]any `json:"schema"`
	KeyProperties      []string       `json:"key_properties"`
	BookmarkProperties []string       `json:"bookmark_properties"`
}

type recordMessage struct {
	Type          string         `json:"type"`
	Stream        string         `json:"stream"`
	Record        records.Record `json:"record"`
	TimeExtracted string         `json:"time_extracted"`
}

type stateMessage struct {
	Type  string     `json:"type"`
	Value StateValue `json:"value"`
}

// StateValue is the payload of a STATE message.
type StateValue struct {
	Bookmarks map[string]map[string]string `json:"bookmarks"`
	RunID     string                       `json:"run_id,omitempty"`
}

// Writer serializes messages to one io.Writer. It is safe for concurrent use
// by several streams.
type Writer struct {
	mu        sync.Mutex
	enc       *json.Encoder
	state     storage.StateStore
	runID     string
	bookmarks map[string]time.Time

	now func() time.Time
}

// NewWriter writes to w. state may be nil, in which case checkpoints only
// produce STATE messages.
func NewWriter(w io.Writer, state storage.StateStore, runID string) *Writer {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &Writer{
		enc:       enc,
		state:     state,
		runID:     runID,
		bookmarks: make(map[string]time.Time),
		now:       time.Now,
	}
}

// Seed records a bookmark loaded from the state store so later STATE
// messages carry it even when the stream makes no progress.
func (w *Writer) Seed(stream string, wm time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.bump(stream, wm)
}

// WriteSchema emits the SCHEMA message of a stream.
func (w *Writer) WriteSchema(stream string, s schema.Schema, keys []string) error {
	return w.write(schemaMessage{
		Type:               TypeSchema,
		Stream:             stream,
		Schema:             s.JSONSchema(),
		KeyProperties:      keys,
		BookmarkProperties: []string{schema.ReplicationKey},
	})
}

// WriteRecord emits one RECORD message.
func (w *Writer) WriteRecord(ctx context.Context, stream string, rec records.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return w.write(recordMessage{
		Type:          TypeRecord,
		Stream:        stream,
		Record:        rec,
		TimeExtracted: w.now().UTC().Format(time.RFC3339Nano),
	})
}

// Checkpoint persists wm for stream and emits the resulting STATE.
func (w *Writer) Checkpoint(ctx context.Context, stream string, wm time.Time) error {
	if w.state != nil {
		if err := w.state.Advance(ctx, stream, wm); err != nil {
			return fmt.Errorf("checkpoint %s: %w", stream, err)
		}
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.bump(stream, wm)
	return w.writeLocked(stateMessage{Type: TypeState, Value: w.valueLocked()})
}

// WriteState emits the current STATE.
func (w *Writer) WriteState() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writeLocked(stateMessage{Type: TypeState, Value: w.valueLocked()})
}

// State returns a copy of the current bookmarks.
func (w *Writer) State() map[string]time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return maps.Clone(w.bookmarks)
}

func (w *Writer) bump(stream string, wm time.Time) {
	if cur, ok := w.bookmarks[stream]; !ok || wm.After(cur) {
		w.bookmarks[stream] = wm
	}
}

func (w *Writer) valueLocked() StateValue {
	v := StateValue{Bookmarks: make(map[string]map[string]string, len(w.bookmarks)), RunID: w.runID}
	for stream, wm := range w.bookmarks {
		v.Bookmarks[stream] = map[string]string{schema.ReplicationKey: wm.UTC().Format(time.RFC3339Nano)}
	}
	return v
}

func (w *Writer) write(msg any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writeLocked(msg)
}

func (w *Writer) writeLocked(msg any) error {
	if err := w.enc.Encode(msg); err != nil {
		return fmt.Errorf("output: %w", err)
	}
	return nil
}
