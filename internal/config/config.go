package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for rmt.
type Config struct {
	LogDir      string             `toml:"log_dir"`
	Store       StoreConfig        `toml:"store"`
	Pipeline    PipelineConfig     `toml:"pipeline"`
	Collections []CollectionConfig `toml:"collections"`
	Lookup      LookupConfig       `toml:"lookup"`
	Backup      BackupConfig       `toml:"backup"`
	Database    DatabaseConfig     `toml:"database"`
	Encryption  EncryptionConfig   `toml:"encryption"`
}

// StoreConfig holds the remote record store connection settings. The API
// token can be left empty in the file and supplied via RMT_API_TOKEN.
type StoreConfig struct {
	BaseURL        string  `toml:"base_url"`
	APIToken       string  `toml:"api_token,omitempty"`
	RateLimit      float64 `toml:"rate_limit"` // requests per second
	RateBurst      int     `toml:"rate_burst"`
	MaxRetries     int     `toml:"max_retries"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
	PageSize       int     `toml:"page_size"`
}

// PipelineConfig holds pipeline-wide tuning knobs.
type PipelineConfig struct {
	// Workers bounds mutation concurrency during execution.
	Workers int `toml:"workers"`
	// DisableGmailRules turns off Gmail dot/plus normalization; leaving
	// it unset keeps the rules on.
	DisableGmailRules bool `toml:"disable_gmail_rules"`
}

// CollectionConfig maps one remote collection's field layout. Every
// collection the pipeline touches must be listed; there is no defaulting
// for unknown collections.
type CollectionConfig struct {
	Name               string   `toml:"name"`
	IdentityField      string   `toml:"identity_field"`
	EstablishmentField string   `toml:"establishment_field"`
	TutorGroupField    string   `toml:"tutor_group_field,omitempty"`
	YearGroupField     string   `toml:"year_group_field,omitempty"`
	ArchiveCollection  string   `toml:"archive_collection,omitempty"`
	Preserved          []string `toml:"preserved,omitempty"`
}

// LookupConfig names the establishments collection for the read-only
// lookup command.
type LookupConfig struct {
	Collection string `toml:"collection"`
	NameField  string `toml:"name_field"`
}

// BackupConfig represents configuration for the snapshot sink.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type BackupConfig struct {
	Type string `toml:"type"` // "filesystem", "s3", or "memory"

	// Filesystem-specific fields (only used when Type == "filesystem")
	Dir string `toml:"dir,omitempty"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket string `toml:"s3_bucket,omitempty"`
	S3Prefix string `toml:"s3_prefix,omitempty"`
	S3Region string `toml:"s3_region,omitempty"`

	// Encrypt wraps every snapshot with the configured encryptor.
	Encrypt bool `toml:"encrypt"`
}

// DatabaseConfig represents configuration for the run-history database.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// EncryptionConfig holds paths to the age key pair used for snapshot
// encryption.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "age" (default) or "test"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// NewConfig creates a new Config with sensible defaults rooted at baseDir.
func NewConfig(baseDir string) *Config {
	return &Config{
		LogDir: filepath.Join(baseDir, "log"),
		Store: StoreConfig{
			RateLimit:      5,
			RateBurst:      1,
			MaxRetries:     3,
			TimeoutSeconds: 30,
			PageSize:       100,
		},
		Pipeline: PipelineConfig{
			Workers: 4,
		},
		Lookup: LookupConfig{
			Collection: "Establishments",
			NameField:  "Name",
		},
		Backup: BackupConfig{
			Type: "filesystem",
			Dir:  filepath.Join(baseDir, "snapshots"),
		},
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "data"),
		},
		Encryption: EncryptionConfig{
			PublicKeyPath:  filepath.Join(baseDir, "keys", "rmt.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "rmt.key"),
		},
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
// This is an internal helper and should not be exported.
func writeToFile(path string, cfg *Config) error {
	// Ensure the directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	// Check if config already exists
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
