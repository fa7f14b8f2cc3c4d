package rmt

import (
	"fmt"
	"time"
)

// Op is the kind of mutation an intent performs.
type Op int

const (
	// OpDelete permanently removes the record.
	OpDelete Op = iota
	// OpClearFields blanks every field in the intent's field map.
	OpClearFields
	// OpArchiveCopy creates a full copy of the record in the archive
	// collection. Always ordered before the matching OpClearFields.
	OpArchiveCopy
)

func (o Op) String() string {
	switch o {
	case OpDelete:
		return "delete"
	case OpClearFields:
		return "clear-fields"
	case OpArchiveCopy:
		return "archive-copy"
	default:
		return fmt.Sprintf("Op(%d)", int(o))
	}
}

// MutationIntent is one planned destructive operation. Intents are created
// by the planner, never mutated afterwards, and consumed exactly once by
// the executor.
type MutationIntent struct {
	Collection string
	RecordID   string
	Op         Op
	// Fields carries the field values the operation writes: the blanked
	// fields for OpClearFields, the archived copy for OpArchiveCopy.
	// Nil for OpDelete.
	Fields map[string]string
	// ArchiveCollection is the create target for OpArchiveCopy.
	ArchiveCollection string
	Reason            string
}

// key identifies an intent for de-duplication: a record reachable through
// two cascade paths must only be planned once.
func (i MutationIntent) key() string {
	return i.Collection + "\x00" + i.RecordID + "\x00" + i.Op.String()
}

// IntentOutcome is the terminal status of one executed intent.
type IntentOutcome struct {
	Intent MutationIntent
	OK     bool
	Kind   FailureKind
	Err    string
}

// RunState tracks the safety-gate state machine.
type RunState int

const (
	StatePlanned RunState = iota
	StatePreviewed
	StateConfirmed
	StateExecuting
	StateCompleted
	StateAborted
)

func (s RunState) String() string {
	switch s {
	case StatePlanned:
		return "planned"
	case StatePreviewed:
		return "previewed"
	case StateConfirmed:
		return "confirmed"
	case StateExecuting:
		return "executing"
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	default:
		return fmt.Sprintf("RunState(%d)", int(s))
	}
}

// Preview summarizes a plan before anything destructive happens: intent
// counts per collection and operation, plus a small sample of affected
// records.
type Preview struct {
	Total   int
	Counts  map[string]map[Op]int
	Samples []Record
}

// RunReport aggregates everything about one invocation: the duplicate
// groups found, the planned intents, and each intent's outcome. It is the
// object snapshotted to the backup sink before execution.
type RunReport struct {
	RunID      string
	Mode       string
	Collection string
	Scope      Scope
	State      RunState
	StartedAt  time.Time
	FinishedAt time.Time
	Groups     []Group
	Intents    []MutationIntent
	// Affected holds every record a planned intent will mutate; this is
	// what the backup snapshot contains.
	Affected []Record
	Preview  *Preview
	Outcomes []IntentOutcome
}

// Succeeded returns the number of successful outcomes.
func (r *RunReport) Succeeded() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.OK {
			n++
		}
	}
	return n
}

// Failures returns the outcomes that failed.
func (r *RunReport) Failures() []IntentOutcome {
	var failed []IntentOutcome
	for _, o := range r.Outcomes {
		if !o.OK {
			failed = append(failed, o)
		}
	}
	return failed
}
