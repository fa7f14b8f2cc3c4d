package rmt

import (
	"context"
	"fmt"
	"sync"
)

// ConfirmPhrase is the literal an operator must echo back before an
// irreversible bulk delete executes.
const ConfirmPhrase = "DELETE"

// ConfirmationError reports a missing or mismatched confirmation echo.
// The run stalls at the preview; nothing has been mutated.
type ConfirmationError struct {
	Got string
}

func (e *ConfirmationError) Error() string {
	if e.Got == "" {
		return fmt.Sprintf("confirmation required: re-run with the exact confirmation %q", ConfirmPhrase)
	}
	return fmt.Sprintf("confirmation mismatch: got %q, want %q", e.Got, ConfirmPhrase)
}

// GateConfig controls how far the safety gate lets a run proceed.
type GateConfig struct {
	// Apply moves the run past the preview. Off by default: every
	// operation is a dry run unless explicitly applied.
	Apply bool
	// Confirmation is the operator's typed echo, required when
	// RequireConfirmation is set.
	Confirmation string
	// RequireConfirmation marks irreversible bulk-delete workflows.
	RequireConfirmation bool
	// BackupName, when set, names the snapshot written before any
	// mutation. A failed snapshot write aborts the run.
	BackupName string
	// Workers bounds execution concurrency. Defaults to 4.
	Workers int
	// SampleSize caps the preview record sample. Defaults to 5.
	SampleSize int
}

// SafetyGate drives a planned run through the state machine
// Planned -> Previewed -> Confirmed -> Executing -> Completed, or to
// Aborted on any unrecoverable pre-execution error. It owns the worker
// pool; no other component issues writes.
type SafetyGate struct {
	client *Client
	sink   SnapshotSink
	logger Logger
}

// NewSafetyGate creates a gate executing through client and backing up
// through sink. sink may be nil when no backup is ever requested.
func NewSafetyGate(client *Client, sink SnapshotSink, logger Logger) *SafetyGate {
	return &SafetyGate{client: client, sink: sink, logger: logger}
}

// Run takes a planned report through the gate. On return the report's
// State is Previewed (dry run or confirmation stall), Completed, or
// Aborted. A Completed run may still contain failed outcomes; the caller
// inspects the report.
func (g *SafetyGate) Run(ctx context.Context, report *RunReport, cfg GateConfig) error {
	report.Preview = buildPreview(report, cfg.SampleSize)
	report.State = StatePreviewed

	if cfg.BackupName != "" && len(report.Affected) > 0 {
		if g.sink == nil {
			report.State = StateAborted
			return &ConfigError{Reason: "backup requested but no snapshot sink configured"}
		}
		if err := g.sink.WriteSnapshot(cfg.BackupName, report.Affected); err != nil {
			report.State = StateAborted
			return &SnapshotError{Name: cfg.BackupName, Err: err}
		}
		g.logger.Info("snapshot written", "name", cfg.BackupName, "records", len(report.Affected))
	}

	if !cfg.Apply {
		g.logger.Info("dry run, stopping at preview", "intents", len(report.Intents))
		return nil
	}

	if len(report.Intents) == 0 {
		// Nothing needed doing; distinct from everything failing.
		report.State = StateCompleted
		return nil
	}

	if cfg.RequireConfirmation && cfg.Confirmation != ConfirmPhrase {
		return &ConfirmationError{Got: cfg.Confirmation}
	}
	report.State = StateConfirmed

	report.State = StateExecuting
	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	report.Outcomes = g.execute(ctx, report.Intents, workers)
	report.State = StateCompleted

	if failed := len(report.Failures()); failed > 0 {
		g.logger.Warn("run completed with failures", "failed", failed, "succeeded", report.Succeeded())
	} else {
		g.logger.Info("run completed", "succeeded", report.Succeeded())
	}
	return nil
}

func buildPreview(report *RunReport, sampleSize int) *Preview {
	if sampleSize <= 0 {
		sampleSize = 5
	}
	p := &Preview{
		Total:  len(report.Intents),
		Counts: make(map[string]map[Op]int),
	}
	for _, intent := range report.Intents {
		byOp, ok := p.Counts[intent.Collection]
		if !ok {
			byOp = make(map[Op]int)
			p.Counts[intent.Collection] = byOp
		}
		byOp[intent.Op]++
	}
	for _, r := range report.Affected {
		if len(p.Samples) == sampleSize {
			break
		}
		p.Samples = append(p.Samples, r)
	}
	return p
}

// workItem is the unit handed to a worker: all intents for one record, in
// planned order, so an ArchiveCopy always precedes its ClearFields on the
// same goroutine.
type workItem []MutationIntent

func buildWorkItems(intents []MutationIntent) []workItem {
	var items []workItem
	var current workItem
	for _, intent := range intents {
		if len(current) > 0 {
			last := current[len(current)-1]
			if last.Collection != intent.Collection || last.RecordID != intent.RecordID {
				items = append(items, current)
				current = nil
			}
		}
		current = append(current, intent)
	}
	if len(current) > 0 {
		items = append(items, current)
	}
	return items
}

// execute runs intents through a fixed worker pool. Each intent's outcome
// is recorded independently: one failure never cancels sibling intents.
// Context cancellation stops the dispatch of new items but lets in-flight
// items finish, so a multi-step sequence is never cut in half.
func (g *SafetyGate) execute(ctx context.Context, intents []MutationIntent, workers int) []IntentOutcome {
	items := buildWorkItems(intents)
	work := make(chan workItem)

	var mu sync.Mutex
	outcomes := make([]IntentOutcome, 0, len(intents))
	record := func(o IntentOutcome) {
		mu.Lock()
		outcomes = append(outcomes, o)
		mu.Unlock()
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range work {
				g.executeItem(ctx, item, record)
			}
		}()
	}

dispatch:
	for _, item := range items {
		select {
		case <-ctx.Done():
			break dispatch
		case work <- item:
		}
	}
	close(work)
	wg.Wait()

	return outcomes
}

// executeItem runs one record's intents in order. If a step fails, later
// steps for the same record are skipped rather than executed: clearing a
// record whose archive copy failed would destroy the only remaining copy.
func (g *SafetyGate) executeItem(ctx context.Context, item workItem, record func(IntentOutcome)) {
	for i, intent := range item {
		err := g.client.Mutate(ctx, intent)
		if err == nil {
			record(IntentOutcome{Intent: intent, OK: true})
			continue
		}

		kind := Failure(err)
		record(IntentOutcome{Intent: intent, Kind: kind, Err: err.Error()})
		g.logger.Warn("intent failed",
			"collection", intent.Collection, "record", intent.RecordID,
			"op", intent.Op.String(), "kind", kind.String(), "error", err.Error())

		for _, skipped := range item[i+1:] {
			record(IntentOutcome{
				Intent: skipped,
				Kind:   kind,
				Err:    fmt.Sprintf("skipped: preceding %s failed", intent.Op),
			})
		}
		return
	}
}
