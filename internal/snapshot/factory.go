package snapshot

import (
	"context"
	"fmt"

	"rmt-go/internal/config"
	"rmt-go/internal/rmt"
)

// NewSinkFromConfig creates a SnapshotSink based on the backup config
// type. enc is only attached when the config asks for encryption.
func NewSinkFromConfig(cfg config.BackupConfig, enc rmt.Encryptor) (rmt.SnapshotSink, error) {
	if !cfg.Encrypt {
		enc = nil
	} else if enc == nil {
		return nil, fmt.Errorf("backup encryption enabled but no encryptor configured")
	}

	switch cfg.Type {
	case "memory":
		return NewMemorySink(enc), nil
	case "s3":
		return NewS3Sink(context.Background(), cfg.S3Bucket, cfg.S3Prefix, cfg.S3Region, enc)
	case "filesystem":
		if cfg.Dir == "" {
			return nil, fmt.Errorf("filesystem sink requires dir to be set")
		}
		return NewFileSink(cfg.Dir, enc)
	default:
		return nil, fmt.Errorf("unknown backup sink type: %s", cfg.Type)
	}
}
