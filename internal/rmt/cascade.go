package rmt

import (
	"context"
	"fmt"
	"sync"
)

// CascadeResolver finds, for one identity value, the related records in
// other collections that share it. It has no knowledge of which
// collections exist: the caller supplies the target list and the registry
// supplies each target's identity field.
type CascadeResolver struct {
	client    *Client
	fieldMaps FieldMaps
	// MaxConcurrent bounds the per-collection query fan-out.
	MaxConcurrent int
}

// NewCascadeResolver creates a resolver over client and the field map
// registry.
func NewCascadeResolver(client *Client, fieldMaps FieldMaps) *CascadeResolver {
	return &CascadeResolver{client: client, fieldMaps: fieldMaps, MaxConcurrent: 4}
}

// FindRelated queries each target collection for records whose identity
// field equals identityValue. Targets are fetched concurrently, bounded
// by MaxConcurrent; reads are idempotent so interleaving is safe. The
// result maps collection name to its matching records; a target with no
// matches is present with an empty slice.
func (r *CascadeResolver) FindRelated(ctx context.Context, identityValue string, targets []string) (map[string][]Record, error) {
	// Resolve field maps up front so an unknown collection fails before
	// any network call.
	fms := make(map[string]FieldMap, len(targets))
	for _, t := range targets {
		fm, err := r.fieldMaps.Lookup(t)
		if err != nil {
			return nil, err
		}
		fms[t] = fm
	}

	maxConcurrent := r.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	sem := make(chan struct{}, maxConcurrent)

	var mu sync.Mutex
	related := make(map[string][]Record, len(targets))
	var errs []error

	var wg sync.WaitGroup
	for _, target := range targets {
		wg.Add(1)
		go func(target string) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			records, err := r.client.FetchAll(ctx, target, map[string]string{
				fms[target].IdentityField: identityValue,
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Errorf("resolving %s: %w", target, err))
				return
			}
			related[target] = records
		}(target)
	}
	wg.Wait()

	// Partial cascade data is unsafe to act on; any failed target fails
	// the whole resolution.
	if len(errs) > 0 {
		return nil, errs[0]
	}
	return related, nil
}
