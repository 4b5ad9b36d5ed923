package proxy

import (
	"time"

	"github.com/google/uuid"
)

// maxLogEntries caps one session's rolling log. Oldest entries are evicted
// first once the cap is reached.
const maxLogEntries = 1000

// LogEntry is one line of a session's rolling log.
type LogEntry struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	EventName string         `json:"eventName"`
	Data      map[string]any `json:"data"`
}

// logBuffer keeps the most recent max entries in append order.
// Not safe for concurrent use; the owning session serializes access.
type logBuffer struct {
	entries []LogEntry
	max     int
}

func newLogBuffer(max int) *logBuffer {
	return &logBuffer{max: max}
}

func (b *logBuffer) add(eventName string, data map[string]any) {
	b.entries = append(b.entries, LogEntry{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		EventName: eventName,
		Data:      data,
	})
	if len(b.entries) > b.max {
		b.entries = b.entries[len(b.entries)-b.max:]
	}
}

// snapshot returns a defensive copy, never the live slice.
func (b *logBuffer) snapshot() []LogEntry {
	out := make([]LogEntry, len(b.entries))
	copy(out, b.entries)
	return out
}

func (b *logBuffer) clear() {
	b.entries = nil
}
