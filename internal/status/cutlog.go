package status

import (
	"sync"

	"github.com/sweeney/quickshifter/internal/logic"
)

// DefaultLogCapacity bounds the in-memory cut history.
const DefaultLogCapacity = 200

// CutLog is a fixed-capacity ring of cut records. The oldest record is
// overwritten when full. Safe for concurrent use.
type CutLog struct {
	mu    sync.Mutex
	buf   []logic.CutRecord
	head  int
	count int
	total int
}

// NewCutLog creates an empty log holding at most capacity records.
func NewCutLog(capacity int) *CutLog {
	if capacity < 1 {
		capacity = DefaultLogCapacity
	}
	return &CutLog{buf: make([]logic.CutRecord, capacity)}
}

// Append implements logic.LogSink.
func (l *CutLog) Append(rec logic.CutRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.buf[l.head] = rec
	l.head = (l.head + 1) % len(l.buf)
	if l.count < len(l.buf) {
		l.count++
	}
	l.total++
}

// Records returns the retained records, oldest first.
func (l *CutLog) Records() []logic.CutRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]logic.CutRecord, l.count)
	start := (l.head - l.count + len(l.buf)) % len(l.buf)
	for i := range out {
		out[i] = l.buf[(start+i)%len(l.buf)]
	}
	return out
}

// Clear drops every retained record. Total is kept.
func (l *CutLog) Clear() {
	l.mu.Lock()
	l.head = 0
	l.count = 0
	l.mu.Unlock()
}

// Len is the number of retained records.
func (l *CutLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

// Total counts every record ever appended.
func (l *CutLog) Total() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}
