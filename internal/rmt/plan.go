package rmt

import (
	"fmt"
	"sort"
)

// Plan is an ordered, de-duplicated list of mutation intents plus the
// records they touch. Intent order is meaningful only within one record's
// archive-and-clear pair; across records the executor is free to
// interleave.
type Plan struct {
	Intents  []MutationIntent
	Affected []Record

	seenIntents map[string]bool
	seenRecords map[string]bool
}

// NewPlan returns an empty plan.
func NewPlan() *Plan {
	return &Plan{
		seenIntents: make(map[string]bool),
		seenRecords: make(map[string]bool),
	}
}

// add appends intent unless an equal (collection, record, op) intent is
// already planned, and tracks record as affected.
func (p *Plan) add(intent MutationIntent, record Record) {
	k := intent.key()
	if p.seenIntents[k] {
		return
	}
	p.seenIntents[k] = true
	p.Intents = append(p.Intents, intent)

	rk := record.Collection + "\x00" + record.ID
	if !p.seenRecords[rk] {
		p.seenRecords[rk] = true
		p.Affected = append(p.Affected, record)
	}
}

// PlanDedup emits one Delete intent per non-survivor record in each
// duplicate group. Survivors are never touched; singleton groups
// contribute nothing.
func PlanDedup(groups []Group, policy SurvivorPolicy) *Plan {
	plan := NewPlan()
	for _, g := range Duplicates(groups) {
		survivor, duplicates := SelectSurvivor(g, policy)
		for _, d := range duplicates {
			plan.add(MutationIntent{
				Collection: d.Collection,
				RecordID:   d.ID,
				Op:         OpDelete,
				Reason:     fmt.Sprintf("duplicate of %s (%s, policy %s)", survivor.ID, g.Key, policy),
			}, d)
		}
	}
	return plan
}

// PlanArchiveClear emits, per record, an ArchiveCopy of the full record
// followed by a ClearFields blanking every populated field not on the
// preserved list. The copy is planned first because clearing is
// irreversible without it. Records with nothing to clear are skipped.
func PlanArchiveClear(records []Record, fm FieldMap) (*Plan, error) {
	if fm.ArchiveCollection == "" {
		return nil, &ConfigError{Reason: fmt.Sprintf("collection %q has no archive collection configured", fm.Collection)}
	}

	plan := NewPlan()
	for _, r := range records {
		cleared := make(map[string]string)
		for key, value := range r.Fields {
			if value != "" && !fm.IsPreserved(key) {
				cleared[key] = ""
			}
		}
		if len(cleared) == 0 {
			continue
		}

		archived := make(map[string]string, len(r.Fields))
		for key, value := range r.Fields {
			archived[key] = value
		}

		plan.add(MutationIntent{
			Collection:        r.Collection,
			RecordID:          r.ID,
			Op:                OpArchiveCopy,
			Fields:            archived,
			ArchiveCollection: fm.ArchiveCollection,
			Reason:            "archive before clear",
		}, r)
		plan.add(MutationIntent{
			Collection: r.Collection,
			RecordID:   r.ID,
			Op:         OpClearFields,
			Fields:     cleared,
			Reason:     "archive-and-clear",
		}, r)
	}
	return plan, nil
}

// PlanPurge emits a Delete for each primary record plus one Delete per
// related record found by the cascade resolver. A record reachable via
// two cascade paths is planned once.
func PlanPurge(primaries []Record, related map[string][]Record) *Plan {
	plan := NewPlan()
	for _, p := range primaries {
		plan.add(MutationIntent{
			Collection: p.Collection,
			RecordID:   p.ID,
			Op:         OpDelete,
			Reason:     "purge primary record",
		}, p)
	}
	collections := make([]string, 0, len(related))
	for collection := range related {
		collections = append(collections, collection)
	}
	sort.Strings(collections)
	for _, collection := range collections {
		for _, r := range related[collection] {
			plan.add(MutationIntent{
				Collection: collection,
				RecordID:   r.ID,
				Op:         OpDelete,
				Reason:     "purge cascade from " + collection,
			}, r)
		}
	}
	return plan
}
