package snapshot

import (
	"sync"

	"rmt-go/internal/rmt"
)

// MemorySink stores snapshots in memory. Useful for testing. Safe for
// concurrent use.
type MemorySink struct {
	mu        sync.Mutex
	snapshots map[string][]byte
	enc       rmt.Encryptor
}

var _ rmt.SnapshotSink = (*MemorySink)(nil)

// NewMemorySink creates an empty in-memory sink. enc may be nil.
func NewMemorySink(enc rmt.Encryptor) *MemorySink {
	return &MemorySink{snapshots: make(map[string][]byte), enc: enc}
}

// WriteSnapshot encodes records and stores the bytes under name.
func (s *MemorySink) WriteSnapshot(name string, records []rmt.Record) error {
	data, name, err := encodeSnapshot(name, records, s.enc)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[name] = data
	return nil
}

// Get returns the stored bytes for name, if present.
func (s *MemorySink) Get(name string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.snapshots[name]
	return data, ok
}

// Len returns the number of stored snapshots.
func (s *MemorySink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.snapshots)
}
