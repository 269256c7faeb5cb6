// Package logbuf stores editor log records in a bounded buffer and answers
// filtered queries over them. Both peers keep one: the host buffers what it
// forwards, the tool server buffers what it receives.
package logbuf

import (
	"strings"
	"sync"
	"time"
)

// Capacity is the fixed size of every store. Appending beyond it evicts
// the oldest record.
const Capacity = 1000

// DefaultQueryCount caps query results when the filter does not set one.
const DefaultQueryCount = 100

type Severity string

const (
	SeverityTrace Severity = "trace"
	SeverityDebug Severity = "debug"
	SeverityInfo  Severity = "info"
	SeverityWarn  Severity = "warn"
	SeverityError Severity = "error"
	SeverityFatal Severity = "fatal"
)

// ParseSeverity normalizes severity strings from the wire. Editor hosts
// report Unity log types (Log, Warning, Assert, Exception); those map to
// the nearest level. Unknown values become info rather than losing the
// record.
func ParseSeverity(s string) Severity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return SeverityTrace
	case "debug":
		return SeverityDebug
	case "info", "log":
		return SeverityInfo
	case "warn", "warning":
		return SeverityWarn
	case "error", "assert", "exception":
		return SeverityError
	case "fatal", "panic":
		return SeverityFatal
	default:
		return SeverityInfo
	}
}

type Record struct {
	Message    string    `json:"message"`
	StackTrace string    `json:"stackTrace,omitempty"`
	Severity   Severity  `json:"severity"`
	Timestamp  time.Time `json:"timestamp"`
}

// Store is a bounded log sink. Append is best effort and must not block
// the caller on store failures.
type Store interface {
	Append(Record)
	Query(Filter) ([]Record, error)
}

// MemStore is the in-process ring buffer store.
type MemStore struct {
	mu    sync.Mutex
	buf   []Record
	start int
	count int
}

func NewMemStore() *MemStore {
	return &MemStore{buf: make([]Record, Capacity)}
}

func (s *MemStore) Append(r Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.count < len(s.buf) {
		s.buf[(s.start+s.count)%len(s.buf)] = r
		s.count++
		return
	}
	s.buf[s.start] = r
	s.start = (s.start + 1) % len(s.buf)
}

func (s *MemStore) Query(f Filter) ([]Record, error) {
	s.mu.Lock()
	recs := make([]Record, s.count)
	for i := 0; i < s.count; i++ {
		recs[i] = s.buf[(s.start+i)%len(s.buf)]
	}
	s.mu.Unlock()
	return f.apply(recs), nil
}

// Len reports how many records are currently retained.
func (s *MemStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}
