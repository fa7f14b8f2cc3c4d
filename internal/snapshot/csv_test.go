package snapshot_test

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"rmt-go/internal/config"
	"rmt-go/internal/encryption"
	"rmt-go/internal/rmt"
	"rmt-go/internal/snapshot"
)

func sampleRecords() []rmt.Record {
	return []rmt.Record{
		{
			ID:         "s1",
			Collection: "Students",
			CreatedAt:  time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC),
			Fields:     map[string]string{"Email": "a@school.org", "Phone": "01234"},
		},
		{
			ID:         "s2",
			Collection: "Students",
			CreatedAt:  time.Date(2025, 1, 2, 12, 0, 0, 0, time.UTC),
			Fields:     map[string]string{"Email": "b@school.org", "Notes": ""},
		},
	}
}

func TestEncode(t *testing.T) {
	var buf bytes.Buffer
	if err := snapshot.Encode(&buf, sampleRecords()); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want header plus 2 records", len(rows))
	}

	header := strings.Join(rows[0], ",")
	if header != "id,collection,createdAt,Email,Phone" {
		t.Errorf("header = %q", header)
	}
	if rows[1][0] != "s1" || rows[1][2] != "2025-01-01T12:00:00Z" {
		t.Errorf("first row = %v", rows[1])
	}
	if rows[2][3] != "b@school.org" || rows[2][4] != "" {
		t.Errorf("second row = %v", rows[2])
	}
}

func TestEncode_OmitsEmptyOnlyFields(t *testing.T) {
	var buf bytes.Buffer
	records := []rmt.Record{
		{ID: "s1", Collection: "Students", Fields: map[string]string{"Notes": "", "Email": "a@school.org"}},
	}
	if err := snapshot.Encode(&buf, records); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if strings.Contains(buf.String(), "Notes") {
		t.Error("field with no non-empty value should be omitted")
	}
}

func TestEncode_NoRecords(t *testing.T) {
	var buf bytes.Buffer
	if err := snapshot.Encode(&buf, nil); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if strings.TrimSpace(buf.String()) != "id,collection,createdAt" {
		t.Errorf("empty snapshot = %q, want bare header", buf.String())
	}
}

func TestFileSink(t *testing.T) {
	dir := t.TempDir()
	sink, err := snapshot.NewFileSink(dir, nil)
	if err != nil {
		t.Fatalf("NewFileSink: %v", err)
	}

	if err := sink.WriteSnapshot("pre-dedup.csv", sampleRecords()); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "pre-dedup.csv"))
	if err != nil {
		t.Fatalf("reading snapshot: %v", err)
	}
	if !strings.HasPrefix(string(data), "id,collection,createdAt") {
		t.Errorf("snapshot content = %q", data)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("listing dir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("got %d files, want 1 (no leftover temp files)", len(entries))
	}
}

func TestFileSink_Encrypted(t *testing.T) {
	dir := t.TempDir()
	sink, err := snapshot.NewFileSink(dir, encryption.NewTestEncryptor())
	if err != nil {
		t.Fatalf("NewFileSink: %v", err)
	}

	if err := sink.WriteSnapshot("pre-dedup.csv", sampleRecords()); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "pre-dedup.csv.age")); err != nil {
		t.Fatalf("encrypted snapshot should carry the .age suffix: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "pre-dedup.csv.age"))
	if err != nil {
		t.Fatalf("reading snapshot: %v", err)
	}
	if strings.HasPrefix(string(data), "id,collection") {
		t.Error("encrypted snapshot should not start with plaintext CSV")
	}
}

func TestMemorySink(t *testing.T) {
	sink := snapshot.NewMemorySink(nil)
	if err := sink.WriteSnapshot("run-1.csv", sampleRecords()); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}
	data, ok := sink.Get("run-1.csv")
	if !ok {
		t.Fatal("snapshot not stored")
	}
	if !strings.HasPrefix(string(data), "id,collection,createdAt") {
		t.Errorf("snapshot content = %q", data)
	}
	if sink.Len() != 1 {
		t.Errorf("Len() = %d, want 1", sink.Len())
	}
}

func TestNewSinkFromConfig(t *testing.T) {
	t.Run("memory", func(t *testing.T) {
		sink, err := snapshot.NewSinkFromConfig(config.BackupConfig{Type: "memory"}, nil)
		if err != nil {
			t.Fatalf("NewSinkFromConfig: %v", err)
		}
		if _, ok := sink.(*snapshot.MemorySink); !ok {
			t.Errorf("sink = %T, want *MemorySink", sink)
		}
	})

	t.Run("filesystem", func(t *testing.T) {
		sink, err := snapshot.NewSinkFromConfig(config.BackupConfig{Type: "filesystem", Dir: t.TempDir()}, nil)
		if err != nil {
			t.Fatalf("NewSinkFromConfig: %v", err)
		}
		if _, ok := sink.(*snapshot.FileSink); !ok {
			t.Errorf("sink = %T, want *FileSink", sink)
		}
	})

	t.Run("filesystem requires dir", func(t *testing.T) {
		if _, err := snapshot.NewSinkFromConfig(config.BackupConfig{Type: "filesystem"}, nil); err == nil {
			t.Fatal("expected error for missing dir")
		}
	})

	t.Run("encryption without encryptor fails", func(t *testing.T) {
		_, err := snapshot.NewSinkFromConfig(config.BackupConfig{Type: "memory", Encrypt: true}, nil)
		if err == nil {
			t.Fatal("expected error when encryption is enabled without an encryptor")
		}
	})

	t.Run("unknown type fails", func(t *testing.T) {
		if _, err := snapshot.NewSinkFromConfig(config.BackupConfig{Type: "tape"}, nil); err == nil {
			t.Fatal("expected error for unknown sink type")
		}
	})
}
