package rmt

import (
	"context"
	"fmt"
	"strings"
)

// Service is the orchestration layer that drives the maintenance
// pipelines: fetch, normalize, group, cascade, plan, gate. It holds no
// remote state of its own; every run re-fetches, so a stale prior run can
// never corrupt a later one.
type Service struct {
	client    *Client
	gate      *SafetyGate
	resolver  *CascadeResolver
	fieldMaps FieldMaps
	norm      *Normalizer
	logger    Logger
	clock     Clock
	idgen     IDGenerator
}

// NewService creates a Service with the provided dependencies. sink may
// be nil when backups are never requested.
func NewService(client *Client, sink SnapshotSink, fieldMaps FieldMaps, norm *Normalizer, logger Logger, clock Clock, idgen IDGenerator) *Service {
	return &Service{
		client:    client,
		gate:      NewSafetyGate(client, sink, logger),
		resolver:  NewCascadeResolver(client, fieldMaps),
		fieldMaps: fieldMaps,
		norm:      norm,
		logger:    logger,
		clock:     clock,
		idgen:     idgen,
	}
}

// DedupRequest describes one deduplication run.
type DedupRequest struct {
	Collection string
	Scope      Scope
	Policy     SurvivorPolicy
	Gate       GateConfig
}

// Dedup finds records sharing a normalized identity within the scope and
// plans one delete per non-survivor. Deleting duplicates is irreversible,
// so the gate requires the typed confirmation in apply mode.
func (s *Service) Dedup(ctx context.Context, req DedupRequest) (*RunReport, error) {
	fm, err := s.fieldMaps.Lookup(req.Collection)
	if err != nil {
		return nil, err
	}
	if err := req.Scope.Validate(); err != nil {
		return nil, err
	}

	report := s.newReport("dedup", req.Collection, req.Scope)

	records, err := s.client.FetchAll(ctx, req.Collection, req.Scope.Filters(fm))
	if err != nil {
		report.State = StateAborted
		return report, fmt.Errorf("fetching %s: %w", req.Collection, err)
	}

	groups := GroupRecords(records, fm, s.norm)
	plan := PlanDedup(groups, req.Policy)
	report.Groups = groups
	report.Intents = plan.Intents
	report.Affected = plan.Affected
	s.logger.Info("dedup planned",
		"collection", req.Collection, "records", len(records),
		"groups", len(groups), "duplicates", len(plan.Intents))

	req.Gate.RequireConfirmation = true
	return s.runGate(ctx, report, req.Gate)
}

// ArchiveRequest describes one archive-and-clear run.
type ArchiveRequest struct {
	Collection string
	Scope      Scope
	Gate       GateConfig
}

// ArchiveClear copies every in-scope record to the collection's archive
// target and then blanks its non-preserved fields. The copy is planned
// and executed before the clear for the same record.
func (s *Service) ArchiveClear(ctx context.Context, req ArchiveRequest) (*RunReport, error) {
	fm, err := s.fieldMaps.Lookup(req.Collection)
	if err != nil {
		return nil, err
	}
	if err := req.Scope.Validate(); err != nil {
		return nil, err
	}

	report := s.newReport("archive-clear", req.Collection, req.Scope)

	records, err := s.client.FetchAll(ctx, req.Collection, req.Scope.Filters(fm))
	if err != nil {
		report.State = StateAborted
		return report, fmt.Errorf("fetching %s: %w", req.Collection, err)
	}

	plan, err := PlanArchiveClear(records, fm)
	if err != nil {
		report.State = StateAborted
		return report, err
	}
	report.Intents = plan.Intents
	report.Affected = plan.Affected
	s.logger.Info("archive-clear planned",
		"collection", req.Collection, "records", len(records), "intents", len(plan.Intents))

	return s.runGate(ctx, report, req.Gate)
}

// PurgeRequest describes one cascading-delete run for a single identity.
type PurgeRequest struct {
	// Identity is the raw identity value (a student's email).
	Identity string
	// Collection holds the primary (account) records.
	Collection string
	// Targets are the collections the delete cascades to.
	Targets []string
	// KeepPrimary deletes only the cascaded data and leaves the primary
	// record in place.
	KeepPrimary bool
	Scope       Scope
	Gate        GateConfig
}

// Purge deletes every record belonging to one identity: the primary
// record (unless KeepPrimary) plus all related records found by the
// cascade resolver in the target collections. Cascades are re-resolved on
// every run; a prior interrupted run's report is never trusted.
func (s *Service) Purge(ctx context.Context, req PurgeRequest) (*RunReport, error) {
	fm, err := s.fieldMaps.Lookup(req.Collection)
	if err != nil {
		return nil, err
	}
	if err := req.Scope.Validate(); err != nil {
		return nil, err
	}
	if req.Identity == "" {
		return nil, &ConfigError{Reason: "purge requires an identity value"}
	}

	report := s.newReport("purge", req.Collection, req.Scope)

	filters := req.Scope.Filters(fm)
	filters[fm.IdentityField] = req.Identity
	primaries, err := s.client.FetchAll(ctx, req.Collection, filters)
	if err != nil {
		report.State = StateAborted
		return report, fmt.Errorf("fetching %s: %w", req.Collection, err)
	}

	related, err := s.resolver.FindRelated(ctx, req.Identity, req.Targets)
	if err != nil {
		report.State = StateAborted
		return report, err
	}

	if req.KeepPrimary {
		primaries = nil
	}
	plan := PlanPurge(primaries, related)
	report.Intents = plan.Intents
	report.Affected = plan.Affected
	s.logger.Info("purge planned",
		"identity", req.Identity, "primaries", len(primaries),
		"targets", len(req.Targets), "intents", len(plan.Intents))

	req.Gate.RequireConfirmation = true
	return s.runGate(ctx, report, req.Gate)
}

// LookupEstablishments returns the records in collection whose name field
// contains query, case-insensitively. Read-only.
func (s *Service) LookupEstablishments(ctx context.Context, collection, nameField, query string) ([]Record, error) {
	records, err := s.client.FetchAll(ctx, collection, nil)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", collection, err)
	}

	q := strings.ToLower(strings.TrimSpace(query))
	var matches []Record
	for _, r := range records {
		if strings.Contains(strings.ToLower(r.Field(nameField)), q) {
			matches = append(matches, r)
		}
	}
	return matches, nil
}

func (s *Service) newReport(mode, collection string, scope Scope) *RunReport {
	return &RunReport{
		RunID:      s.idgen.New(),
		Mode:       mode,
		Collection: collection,
		Scope:      scope,
		State:      StatePlanned,
		StartedAt:  s.clock.Now(),
	}
}

func (s *Service) runGate(ctx context.Context, report *RunReport, cfg GateConfig) (*RunReport, error) {
	err := s.gate.Run(ctx, report, cfg)
	report.FinishedAt = s.clock.Now()
	return report, err
}
