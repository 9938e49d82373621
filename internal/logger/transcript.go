// Package logger records the frames of a chat connection as a JSON-Lines
// transcript.
package logger

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/workspace-chat/backend/internal/model"
)

// TranscriptHeader is the first line of a transcript.
type TranscriptHeader struct {
	Version     int    `json:"version"`
	WorkspaceID string `json:"workspaceId"`
	UserID      string `json:"userId"`
	Timestamp   int64  `json:"timestamp"`
}

// TranscriptEvent is one recorded frame.
// Format: [time_offset, direction, event, data]
type TranscriptEvent struct {
	TimeOffset float64
	Direction  string // "i" for inbound, "o" for outbound
	Event      model.EventKind
	Data       json.RawMessage
}

// MarshalJSON implements custom JSON marshaling for TranscriptEvent.
func (e TranscriptEvent) MarshalJSON() ([]byte, error) {
	data := e.Data
	if len(data) == 0 {
		data = json.RawMessage("null")
	}
	return json.Marshal([]any{e.TimeOffset, e.Direction, e.Event, data})
}

// UnmarshalJSON implements custom JSON unmarshaling for TranscriptEvent.
func (e *TranscriptEvent) UnmarshalJSON(data []byte) error {
	var arr []json.RawMessage
	if err := json.Unmarshal(data, &arr); err != nil {
		return err
	}
	if len(arr) != 4 {
		return fmt.Errorf("invalid event format: expected 4 elements, got %d", len(arr))
	}
	if err := json.Unmarshal(arr[0], &e.TimeOffset); err != nil {
		return fmt.Errorf("invalid time offset: %w", err)
	}
	if err := json.Unmarshal(arr[1], &e.Direction); err != nil {
		return fmt.Errorf("invalid direction: %w", err)
	}
	if err := json.Unmarshal(arr[2], &e.Event); err != nil {
		return fmt.Errorf("invalid event: %w", err)
	}
	e.Data = nil
	if string(arr[3]) != "null" {
		e.Data = arr[3]
	}
	return nil
}

// Transcript records frames in JSON-Lines format. It satisfies
// conn.Recorder.
type Transcript struct {
	writer    io.Writer
	file      *os.File // only set if we own the file
	clock     clockwork.Clock
	startTime time.Time
	err       error
	mu        sync.Mutex
}

// NewTranscript creates a Transcript that writes to the given file path.
func NewTranscript(filePath string) (*Transcript, error) {
	file, err := os.Create(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create transcript file: %w", err)
	}

	t := NewTranscriptWithWriter(file, clockwork.NewRealClock())
	t.file = file
	return t, nil
}

// NewTranscriptWithWriter creates a Transcript that writes to w.
func NewTranscriptWithWriter(w io.Writer, clock clockwork.Clock) *Transcript {
	return &Transcript{
		writer:    w,
		clock:     clock,
		startTime: clock.Now(),
	}
}

// WriteHeader writes the transcript header. It should be called once,
// before any frame is recorded.
func (t *Transcript) WriteHeader(workspaceID, userID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	header := TranscriptHeader{
		Version:     1,
		WorkspaceID: workspaceID,
		UserID:      userID,
		Timestamp:   t.startTime.Unix(),
	}
	return t.writeLine(header)
}

// Record appends a frame. Write failures are kept and reported by Err;
// recording stops after the first one.
func (t *Transcript) Record(direction string, frame model.Frame) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.err != nil {
		return
	}
	event := TranscriptEvent{
		TimeOffset: t.clock.Since(t.startTime).Seconds(),
		Direction:  direction,
		Event:      frame.Event,
		Data:       frame.Data,
	}
	t.err = t.writeLine(event)
}

func (t *Transcript) writeLine(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal transcript line: %w", err)
	}
	if _, err := t.writer.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write transcript line: %w", err)
	}
	return nil
}

// Err returns the first write failure.
func (t *Transcript) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Close closes the transcript file.
func (t *Transcript) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.file != nil {
		return t.file.Close()
	}
	return nil
}

// ReadTranscript parses a transcript written by Transcript.
func ReadTranscript(r io.Reader) (TranscriptHeader, []TranscriptEvent, error) {
	var header TranscriptHeader
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return header, nil, fmt.Errorf("failed to read transcript: %w", err)
		}
		return header, nil, fmt.Errorf("transcript is empty")
	}
	if err := json.Unmarshal(scanner.Bytes(), &header); err != nil {
		return header, nil, fmt.Errorf("invalid transcript header: %w", err)
	}

	var events []TranscriptEvent
	for line := 2; scanner.Scan(); line++ {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var ev TranscriptEvent
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			return header, events, fmt.Errorf("invalid transcript line %d: %w", line, err)
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return header, events, fmt.Errorf("failed to read transcript: %w", err)
	}
	return header, events, nil
}
