// Package syncevent is the append-only, size-rotated audit trail written by
// both the orchestrator and the watcher loop. It mirrors the ring-buffer
// shape of pkg/minilog's ring.go adapted to a durable append-only file sink
// instead of an in-memory ring: append-only for read-after-write
// correctness across interleaved writers, size-rotated rather than
// count-rotated because the consumer cares about bytes on disk.
package syncevent

import (
	"bufio"
	"encoding/json"
	"os"
	"time"

	"github.com/joyshmitz/clawbox/internal/clawerr"
)

// Actor identifies which process emitted an event.
type Actor string

const (
	ActorOrchestrator Actor = "orchestrator"
	ActorWatcher      Actor = "watcher"
)

// Event is one JSON line in the sync event log.
type Event struct {
	Timestamp time.Time              `json:"timestamp"`
	VM        string                 `json:"vm"`
	Event     string                 `json:"event"`
	Actor     Actor                  `json:"actor"`
	Reason    string                 `json:"reason"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// Log appends Events to a single active file, rotating to <path>.1 when the
// active file exceeds MaxBytes.
type Log struct {
	path     string
	maxBytes int64
}

// Open returns a Log writing to path, rotating at maxBytes (a value <= 0
// disables rotation).
func Open(path string, maxBytes int64) *Log {
	return &Log{path: path, maxBytes: maxBytes}
}

// Append writes one event as a JSON line, rotating first if needed.
func (l *Log) Append(event Event) error {
	if err := l.rotateIfNeeded(); err != nil {
		return err
	}

	line, err := json.Marshal(event)
	if err != nil {
		return clawerr.Wrap(clawerr.Precondition, err, "could not encode sync event")
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return clawerr.Wrap(clawerr.Precondition, err, "could not open sync event log %s", l.path)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return clawerr.Wrap(clawerr.Precondition, err, "could not append to sync event log %s", l.path)
	}

	return nil
}

func (l *Log) rotateIfNeeded() error {
	if l.maxBytes <= 0 {
		return nil
	}

	info, err := os.Stat(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return clawerr.Wrap(clawerr.Precondition, err, "could not stat sync event log %s", l.path)
	}

	if info.Size() < l.maxBytes {
		return nil
	}

	backup := l.path + ".1"
	if err := os.Rename(l.path, backup); err != nil {
		return clawerr.Wrap(clawerr.Precondition, err, "could not rotate sync event log %s", l.path)
	}

	return nil
}

// ReadAll reads every event from the active file (not its .1 backup), in
// order. Used by tests validating the event-log round-trip property.
func ReadAll(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, clawerr.Wrap(clawerr.ParseErr, err, "could not read sync event log %s", path)
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		var e Event
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			return nil, clawerr.Wrap(clawerr.ParseErr, err, "invalid sync event at %s:%d", path, lineNo)
		}
		events = append(events, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, clawerr.Wrap(clawerr.ParseErr, err, "could not read sync event log %s", path)
	}

	return events, nil
}
