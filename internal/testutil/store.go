// Package testutil provides in-memory fakes for tests.
package testutil

import (
	"context"
	"fmt"
	"sync"

	"rmt-go/internal/rmt"
)

// StubStore is an in-memory rmt.RecordStore. It serves paginated,
// filtered reads from seeded records and records every destructive call
// without changing the seeded data, so a test can assert exactly what
// would have been mutated. Safe for concurrent use.
type StubStore struct {
	mu      sync.Mutex
	records map[string][]rmt.Record

	// Deleted holds "collection/id" for each delete call.
	Deleted []string
	// Updated maps "collection/id" to the fields of the last update.
	Updated map[string]map[string]string
	// Created holds the records passed to create, in call order.
	Created []rmt.Record

	// FailDelete and FailUpdate map record IDs to injected errors.
	FailDelete map[string]error
	FailUpdate map[string]error
	// FailCreate fails every create call.
	FailCreate error

	// MutateHook, when set, runs at the start of every destructive call.
	MutateHook func(op rmt.Op, collection, id string)

	nextID int
}

var _ rmt.RecordStore = (*StubStore)(nil)

// NewStubStore creates an empty StubStore.
func NewStubStore() *StubStore {
	return &StubStore{
		records:    make(map[string][]rmt.Record),
		Updated:    make(map[string]map[string]string),
		FailDelete: make(map[string]error),
		FailUpdate: make(map[string]error),
	}
}

// Add seeds a record into its collection.
func (s *StubStore) Add(r rmt.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[r.Collection] = append(s.records[r.Collection], r)
}

// FetchPage serves one page of seeded records matching filters.
func (s *StubStore) FetchPage(_ context.Context, collection string, filters map[string]string, page, pageSize int) ([]rmt.Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []rmt.Record
	for _, r := range s.records[collection] {
		ok := true
		for key, want := range filters {
			if r.Fields[key] != want {
				ok = false
				break
			}
		}
		if ok {
			matched = append(matched, r)
		}
	}

	start := page * pageSize
	if start >= len(matched) {
		return nil, false, nil
	}
	end := start + pageSize
	if end > len(matched) {
		end = len(matched)
	}
	pageRecords := matched[start:end]
	return pageRecords, len(pageRecords) == pageSize, nil
}

// DeleteRecord records the delete, honoring injected failures.
func (s *StubStore) DeleteRecord(_ context.Context, collection, id string) error {
	if s.MutateHook != nil {
		s.MutateHook(rmt.OpDelete, collection, id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.FailDelete[id]; err != nil {
		return err
	}
	s.Deleted = append(s.Deleted, collection+"/"+id)
	return nil
}

// UpdateRecord records the update, honoring injected failures.
func (s *StubStore) UpdateRecord(_ context.Context, collection, id string, fields map[string]string) error {
	if s.MutateHook != nil {
		s.MutateHook(rmt.OpClearFields, collection, id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.FailUpdate[id]; err != nil {
		return err
	}
	s.Updated[collection+"/"+id] = fields
	return nil
}

// CreateRecord records the create and assigns a sequential ID.
func (s *StubStore) CreateRecord(_ context.Context, collection string, fields map[string]string) (string, error) {
	if s.MutateHook != nil {
		s.MutateHook(rmt.OpArchiveCopy, collection, "")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailCreate != nil {
		return "", s.FailCreate
	}
	s.nextID++
	id := fmt.Sprintf("created-%d", s.nextID)
	s.Created = append(s.Created, rmt.Record{ID: id, Collection: collection, Fields: fields})
	return id, nil
}

// MutationCount returns the total number of successful destructive calls.
func (s *StubStore) MutationCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Deleted) + len(s.Updated) + len(s.Created)
}
