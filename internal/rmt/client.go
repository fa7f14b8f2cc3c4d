package rmt

import (
	"context"
	"errors"
	"fmt"
)

// FailureKind classifies a failed remote operation.
type FailureKind int

const (
	// FailureNone marks a successful outcome.
	FailureNone FailureKind = iota
	// FailureUnavailable is a transient failure (timeout, 5xx,
	// rate-limit) that survived the retry ceiling.
	FailureUnavailable
	// FailureRejected is a non-transient failure (4xx other than
	// rate-limit, malformed response). Never retried.
	FailureRejected
)

func (k FailureKind) String() string {
	switch k {
	case FailureNone:
		return "none"
	case FailureUnavailable:
		return "unavailable"
	case FailureRejected:
		return "rejected"
	default:
		return fmt.Sprintf("FailureKind(%d)", int(k))
	}
}

// StoreError is returned by RecordStore implementations for failed remote
// calls, carrying the failure classification the pipeline branches on.
type StoreError struct {
	Kind FailureKind
	Op   string
	Err  error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Failure extracts the FailureKind from err. Errors that are not
// StoreErrors classify as unavailable: we cannot prove they are permanent.
func Failure(err error) FailureKind {
	if err == nil {
		return FailureNone
	}
	var se *StoreError
	if errors.As(err, &se) {
		return se.Kind
	}
	return FailureUnavailable
}

// RecordStore is the boundary to the remote record store. Implementations
// own rate limiting and retry; callers see only the final outcome.
type RecordStore interface {
	// FetchPage returns one page of records matching filters (field ->
	// required value, logical AND). hasMore is false once the store has
	// been exhausted.
	FetchPage(ctx context.Context, collection string, filters map[string]string, page, pageSize int) (records []Record, hasMore bool, err error)

	// DeleteRecord permanently removes a record.
	DeleteRecord(ctx context.Context, collection, id string) error

	// UpdateRecord sets the given fields on a record, leaving all other
	// fields untouched.
	UpdateRecord(ctx context.Context, collection, id string, fields map[string]string) error

	// CreateRecord creates a record and returns its store-assigned ID.
	CreateRecord(ctx context.Context, collection string, fields map[string]string) (string, error)
}

// Client mediates all remote access for the pipeline. It adds pagination
// on the read path and intent dispatch on the write path; it holds no
// business logic.
type Client struct {
	store    RecordStore
	pageSize int
	logger   Logger
}

// NewClient creates a Client reading pageSize records per request.
func NewClient(store RecordStore, pageSize int, logger Logger) *Client {
	if pageSize <= 0 {
		pageSize = 100
	}
	return &Client{store: store, pageSize: pageSize, logger: logger}
}

// FetchAll retrieves every record in collection matching filters by
// issuing successive page requests until a page comes back short.
func (c *Client) FetchAll(ctx context.Context, collection string, filters map[string]string) ([]Record, error) {
	var all []Record
	for page := 0; ; page++ {
		records, hasMore, err := c.store.FetchPage(ctx, collection, filters, page, c.pageSize)
		if err != nil {
			return nil, fmt.Errorf("fetching %s page %d: %w", collection, page, err)
		}
		all = append(all, records...)
		if !hasMore {
			break
		}
	}
	c.logger.Debug("fetched collection", "collection", collection, "count", len(all))
	return all, nil
}

// Mutate executes a single intent against the store.
func (c *Client) Mutate(ctx context.Context, intent MutationIntent) error {
	switch intent.Op {
	case OpDelete:
		return c.store.DeleteRecord(ctx, intent.Collection, intent.RecordID)
	case OpClearFields:
		return c.store.UpdateRecord(ctx, intent.Collection, intent.RecordID, intent.Fields)
	case OpArchiveCopy:
		_, err := c.store.CreateRecord(ctx, intent.ArchiveCollection, intent.Fields)
		return err
	default:
		return fmt.Errorf("unknown operation: %v", intent.Op)
	}
}
