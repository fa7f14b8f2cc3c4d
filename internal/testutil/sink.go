package testutil

import (
	"sync"

	"rmt-go/internal/rmt"
)

// SnapshotCall is one recorded WriteSnapshot invocation.
type SnapshotCall struct {
	Name    string
	Records []rmt.Record
}

// RecordingSink is an rmt.SnapshotSink that records every write. Safe for
// concurrent use.
type RecordingSink struct {
	mu      sync.Mutex
	Written []SnapshotCall

	// WriteErr, when set, makes every write fail.
	WriteErr error
}

var _ rmt.SnapshotSink = (*RecordingSink)(nil)

// NewRecordingSink creates an empty RecordingSink.
func NewRecordingSink() *RecordingSink {
	return &RecordingSink{}
}

// WriteSnapshot records the call, honoring an injected failure.
func (s *RecordingSink) WriteSnapshot(name string, records []rmt.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.WriteErr != nil {
		return s.WriteErr
	}
	s.Written = append(s.Written, SnapshotCall{Name: name, Records: records})
	return nil
}

// Count returns the number of successful writes.
func (s *RecordingSink) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Written)
}
