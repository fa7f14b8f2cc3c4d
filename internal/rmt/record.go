package rmt

import (
	"fmt"
	"time"
)

// Record is a single row in a remote collection. Fields is an opaque
// field-key to value mapping; ID and CreatedAt are assigned by the remote
// store and never change.
type Record struct {
	ID         string
	Collection string
	CreatedAt  time.Time
	Fields     map[string]string
}

// Field returns the value for key, or "" if the field is absent.
func (r Record) Field(key string) string {
	return r.Fields[key]
}

// FieldMap describes, for one collection, which field keys hold the
// identity value, the scope values, and which fields survive an
// archive-and-clear untouched.
type FieldMap struct {
	Collection         string
	IdentityField      string
	EstablishmentField string
	TutorGroupField    string
	YearGroupField     string
	// ArchiveCollection is where archive copies are created. Empty means
	// the collection does not support archive-and-clear.
	ArchiveCollection string
	// Preserved lists fields that a ClearFields operation must not touch.
	Preserved []string
}

// IsPreserved reports whether key is on the preserved list.
func (fm FieldMap) IsPreserved(key string) bool {
	for _, p := range fm.Preserved {
		if p == key {
			return true
		}
	}
	return false
}

// FieldMaps is the registry of per-collection field maps. Every collection
// the pipeline touches must be registered; there is no defaulting for
// unknown collections.
type FieldMaps map[string]FieldMap

// Lookup returns the field map for collection, or a ConfigError if the
// collection is not registered.
func (f FieldMaps) Lookup(collection string) (FieldMap, error) {
	fm, ok := f[collection]
	if !ok {
		return FieldMap{}, &ConfigError{Reason: fmt.Sprintf("no field map registered for collection %q", collection)}
	}
	return fm, nil
}

// ConfigError indicates an invalid or missing configuration value. It is
// always fatal and always raised before any network call.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "configuration error: " + e.Reason
}

// Scope is the mandatory narrowing filter for any bulk operation. An empty
// establishment is a configuration error, not an empty filter: processing
// an entire collection by accident is the primary risk this tool guards
// against.
type Scope struct {
	Establishment string
	TutorGroup    string
	YearGroup     string
}

// Validate returns a ConfigError if the scope is missing its
// establishment.
func (s Scope) Validate() error {
	if s.Establishment == "" {
		return &ConfigError{Reason: "scope filter requires an establishment"}
	}
	return nil
}

// Filters translates the scope into a field->value filter map using the
// collection's field map. Only populated scope values contribute.
func (s Scope) Filters(fm FieldMap) map[string]string {
	filters := map[string]string{
		fm.EstablishmentField: s.Establishment,
	}
	if s.TutorGroup != "" && fm.TutorGroupField != "" {
		filters[fm.TutorGroupField] = s.TutorGroup
	}
	if s.YearGroup != "" && fm.YearGroupField != "" {
		filters[fm.YearGroupField] = s.YearGroup
	}
	return filters
}
