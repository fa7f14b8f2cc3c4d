package rmt

// SnapshotSink receives the durable backup written before any mutation
// runs. name is a sink-relative object name; records are every record the
// run will mutate.
type SnapshotSink interface {
	WriteSnapshot(name string, records []Record) error
}

// SnapshotError wraps a failed backup write. It is fatal: the run aborts
// before any destructive call when a requested backup cannot be written.
type SnapshotError struct {
	Name string
	Err  error
}

func (e *SnapshotError) Error() string {
	return "writing snapshot " + e.Name + ": " + e.Err.Error()
}

func (e *SnapshotError) Unwrap() error { return e.Err }
