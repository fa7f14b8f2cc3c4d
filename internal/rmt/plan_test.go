package rmt_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"rmt-go/internal/rmt"
)

func TestPlanDedup(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("deletes every non-survivor", func(t *testing.T) {
		groups := []rmt.Group{
			{
				Collection: "Students",
				Key:        "jane@school.org",
				Records: []rmt.Record{
					student("s1", "jane@school.org", base),
					student("s2", "jane@school.org", base.Add(time.Hour)),
					student("s3", "jane@school.org", base.Add(2*time.Hour)),
				},
			},
		}
		plan := rmt.PlanDedup(groups, rmt.PolicyOldest)
		if len(plan.Intents) != 2 {
			t.Fatalf("got %d intents, want 2", len(plan.Intents))
		}
		for _, intent := range plan.Intents {
			if intent.Op != rmt.OpDelete {
				t.Errorf("intent op = %v, want delete", intent.Op)
			}
			if intent.RecordID == "s1" {
				t.Error("survivor s1 must not be planned for deletion")
			}
			if !strings.Contains(intent.Reason, "s1") {
				t.Errorf("reason %q should name the survivor", intent.Reason)
			}
		}
	})

	t.Run("singleton groups contribute nothing", func(t *testing.T) {
		groups := []rmt.Group{
			{Records: []rmt.Record{student("s1", "a@school.org", base)}},
			{Records: []rmt.Record{student("s2", "b@school.org", base)}},
		}
		plan := rmt.PlanDedup(groups, rmt.PolicyOldest)
		if len(plan.Intents) != 0 {
			t.Errorf("got %d intents, want 0", len(plan.Intents))
		}
		if len(plan.Affected) != 0 {
			t.Errorf("got %d affected records, want 0", len(plan.Affected))
		}
	})
}

func TestPlanArchiveClear(t *testing.T) {
	fm := studentFieldMap()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("pairs archive copy with clear", func(t *testing.T) {
		r := rmt.Record{
			ID:         "s1",
			Collection: "Students",
			CreatedAt:  base,
			Fields: map[string]string{
				"Email":         "jane@school.org",
				"Phone":         "01234 567890",
				"Establishment": "est-1",
				"YearGroup":     "10",
				"Notes":         "",
			},
		}
		plan, err := rmt.PlanArchiveClear([]rmt.Record{r}, fm)
		if err != nil {
			t.Fatalf("PlanArchiveClear: %v", err)
		}
		if len(plan.Intents) != 2 {
			t.Fatalf("got %d intents, want 2", len(plan.Intents))
		}

		archive := plan.Intents[0]
		if archive.Op != rmt.OpArchiveCopy {
			t.Fatalf("first intent is %v, want archive-copy", archive.Op)
		}
		if archive.ArchiveCollection != "StudentsArchive" {
			t.Errorf("archive collection = %q, want StudentsArchive", archive.ArchiveCollection)
		}
		if len(archive.Fields) != len(r.Fields) {
			t.Errorf("archive copy carries %d fields, want all %d", len(archive.Fields), len(r.Fields))
		}

		clear := plan.Intents[1]
		if clear.Op != rmt.OpClearFields {
			t.Fatalf("second intent is %v, want clear-fields", clear.Op)
		}
		for _, key := range []string{"Email", "Phone"} {
			v, ok := clear.Fields[key]
			if !ok || v != "" {
				t.Errorf("clear should blank %q", key)
			}
		}
		for _, key := range []string{"Establishment", "YearGroup"} {
			if _, ok := clear.Fields[key]; ok {
				t.Errorf("preserved field %q must not be cleared", key)
			}
		}
		if _, ok := clear.Fields["Notes"]; ok {
			t.Error("already-empty field should not be cleared")
		}
	})

	t.Run("skips records with nothing to clear", func(t *testing.T) {
		r := rmt.Record{
			ID:         "s1",
			Collection: "Students",
			Fields:     map[string]string{"Establishment": "est-1", "Notes": ""},
		}
		plan, err := rmt.PlanArchiveClear([]rmt.Record{r}, fm)
		if err != nil {
			t.Fatalf("PlanArchiveClear: %v", err)
		}
		if len(plan.Intents) != 0 {
			t.Errorf("got %d intents, want 0", len(plan.Intents))
		}
	})

	t.Run("requires an archive collection", func(t *testing.T) {
		bare := fm
		bare.ArchiveCollection = ""
		_, err := rmt.PlanArchiveClear(nil, bare)
		if err == nil {
			t.Fatal("expected error for missing archive collection")
		}
		var cfgErr *rmt.ConfigError
		if !errors.As(err, &cfgErr) {
			t.Fatalf("error = %T, want *ConfigError", err)
		}
	})
}

func TestPlanPurge(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	primary := student("s1", "jane@school.org", base)
	related := map[string][]rmt.Record{
		"Submissions": {
			{ID: "sub-1", Collection: "Submissions"},
			{ID: "sub-2", Collection: "Submissions"},
		},
		"Attendance": {
			{ID: "att-1", Collection: "Attendance"},
		},
	}

	plan := rmt.PlanPurge([]rmt.Record{primary}, related)
	if len(plan.Intents) != 4 {
		t.Fatalf("got %d intents, want 4", len(plan.Intents))
	}
	if plan.Intents[0].RecordID != "s1" {
		t.Errorf("primary must come first, got %s", plan.Intents[0].RecordID)
	}
	for _, intent := range plan.Intents {
		if intent.Op != rmt.OpDelete {
			t.Errorf("intent %s op = %v, want delete", intent.RecordID, intent.Op)
		}
	}

	t.Run("related record reachable twice is planned once", func(t *testing.T) {
		twice := map[string][]rmt.Record{
			"Submissions": {
				{ID: "sub-1", Collection: "Submissions"},
				{ID: "sub-1", Collection: "Submissions"},
			},
		}
		plan := rmt.PlanPurge(nil, twice)
		if len(plan.Intents) != 1 {
			t.Errorf("got %d intents, want 1", len(plan.Intents))
		}
	})

	t.Run("cascade ordering is deterministic", func(t *testing.T) {
		first := rmt.PlanPurge([]rmt.Record{primary}, related)
		for i := 0; i < 5; i++ {
			again := rmt.PlanPurge([]rmt.Record{primary}, related)
			for j := range first.Intents {
				if again.Intents[j].RecordID != first.Intents[j].RecordID {
					t.Fatalf("intent order changed: got %s at %d, want %s",
						again.Intents[j].RecordID, j, first.Intents[j].RecordID)
				}
			}
		}
	})
}
