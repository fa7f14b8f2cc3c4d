package snapshot

import (
	"fmt"
	"os"
	"path/filepath"

	"rmt-go/internal/rmt"
)

// FileSink writes snapshots to a directory on local disk. Writes go to a
// temp file and are renamed into place, so a crash mid-write never leaves
// a truncated snapshot that looks complete.
type FileSink struct {
	dir string
	enc rmt.Encryptor
}

var _ rmt.SnapshotSink = (*FileSink)(nil)

// NewFileSink creates a sink rooted at dir, creating it if needed. enc
// may be nil for plaintext snapshots.
func NewFileSink(dir string, enc rmt.Encryptor) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating snapshot directory: %w", err)
	}
	return &FileSink{dir: dir, enc: enc}, nil
}

// WriteSnapshot encodes records and writes them to <dir>/<name>.
func (s *FileSink) WriteSnapshot(name string, records []rmt.Record) error {
	data, name, err := encodeSnapshot(name, records, s.enc)
	if err != nil {
		return err
	}

	dest := filepath.Join(s.dir, name)
	tmp, err := os.CreateTemp(s.dir, name+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing snapshot: %w", err)
	}

	if err := os.Rename(tmp.Name(), dest); err != nil {
		return fmt.Errorf("finalizing snapshot: %w", err)
	}
	return nil
}
