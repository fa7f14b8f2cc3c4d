package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"rmt-go/internal/config"
	"rmt-go/internal/encryption"
	"rmt-go/internal/history"
	"rmt-go/internal/rmt"
	"rmt-go/internal/snapshot"
	"rmt-go/internal/store"
)

// App is the application layer between the CLI and the Service. It
// constructs all dependencies from config, exposes the high-level
// operations, and manages the history DB lifecycle on Close.
type App struct {
	cfg       *config.Config
	service   *rmt.Service
	history   *history.Store
	encryptor rmt.Encryptor
	logFile   *os.File
}

// NewApp creates a fully wired App from the given config.
// operation identifies the CLI command being run (e.g. "Dedup", "Purge").
// The caller must call Close when done.
func NewApp(cfg *config.Config, operation string) (*App, error) {
	token := cfg.Store.APIToken
	if env := os.Getenv("RMT_API_TOKEN"); env != "" {
		token = env
	}

	httpStore, err := store.NewHTTPStore(store.Config{
		BaseURL:    cfg.Store.BaseURL,
		APIToken:   token,
		Timeout:    time.Duration(cfg.Store.TimeoutSeconds) * time.Second,
		MaxRetries: cfg.Store.MaxRetries,
		RateLimit:  cfg.Store.RateLimit,
		RateBurst:  cfg.Store.RateBurst,
	})
	if err != nil {
		return nil, fmt.Errorf("creating record store: %w", err)
	}

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}

	var sink rmt.SnapshotSink
	if cfg.Backup.Type != "" {
		sink, err = snapshot.NewSinkFromConfig(cfg.Backup, enc)
		if err != nil {
			return nil, fmt.Errorf("creating snapshot sink: %w", err)
		}
	}

	hist, err := history.NewStoreFromConfig(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("creating history store: %w", err)
	}

	opID := time.Now().UTC().Format("20060102T150405Z")
	logger, logFile, err := newLogger(cfg.LogDir, opID)
	if err != nil {
		hist.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger.Info("operation started", "operation", operation)

	client := rmt.NewClient(httpStore, cfg.Store.PageSize, &slogAdapter{l: logger})
	norm := &rmt.Normalizer{GmailAware: !cfg.Pipeline.DisableGmailRules}
	svc := rmt.NewService(client, sink, FieldMaps(cfg), norm,
		&slogAdapter{l: logger}, rmt.RealClock{}, rmt.UUIDGenerator{})

	return &App{
		cfg:       cfg,
		service:   svc,
		history:   hist,
		encryptor: enc,
		logFile:   logFile,
	}, nil
}

// FieldMaps converts the configured collections into the registry the
// pipeline consumes.
func FieldMaps(cfg *config.Config) rmt.FieldMaps {
	fms := make(rmt.FieldMaps, len(cfg.Collections))
	for _, c := range cfg.Collections {
		fms[c.Name] = rmt.FieldMap{
			Collection:         c.Name,
			IdentityField:      c.IdentityField,
			EstablishmentField: c.EstablishmentField,
			TutorGroupField:    c.TutorGroupField,
			YearGroupField:     c.YearGroupField,
			ArchiveCollection:  c.ArchiveCollection,
			Preserved:          c.Preserved,
		}
	}
	return fms
}

// Dedup runs a deduplication pass and records the run in the history DB.
func (a *App) Dedup(ctx context.Context, req rmt.DedupRequest) (*rmt.RunReport, error) {
	a.fillGate(&req.Gate)
	report, err := a.service.Dedup(ctx, req)
	a.record(report)
	return report, err
}

// ArchiveClear runs an archive-and-clear pass and records the run.
func (a *App) ArchiveClear(ctx context.Context, req rmt.ArchiveRequest) (*rmt.RunReport, error) {
	a.fillGate(&req.Gate)
	report, err := a.service.ArchiveClear(ctx, req)
	a.record(report)
	return report, err
}

// Purge runs a cascading delete for one identity and records the run.
func (a *App) Purge(ctx context.Context, req rmt.PurgeRequest) (*rmt.RunReport, error) {
	a.fillGate(&req.Gate)
	report, err := a.service.Purge(ctx, req)
	a.record(report)
	return report, err
}

// Establishment is one lookup match.
type Establishment struct {
	ID   string
	Name string
}

// LookupEstablishments finds establishments whose name contains query.
func (a *App) LookupEstablishments(ctx context.Context, query string) ([]Establishment, error) {
	records, err := a.service.LookupEstablishments(ctx, a.cfg.Lookup.Collection, a.cfg.Lookup.NameField, query)
	if err != nil {
		return nil, err
	}
	matches := make([]Establishment, 0, len(records))
	for _, r := range records {
		matches = append(matches, Establishment{ID: r.ID, Name: r.Field(a.cfg.Lookup.NameField)})
	}
	return matches, nil
}

// GetHistory returns the most recent recorded runs.
func (a *App) GetHistory(limit int) ([]*history.RunSummary, error) {
	return a.history.ListRuns(limit)
}

// GetOutcomes returns the recorded per-intent outcomes of one run.
func (a *App) GetOutcomes(runID string) ([]rmt.IntentOutcome, error) {
	return a.history.ListOutcomes(runID)
}

// Encryptor exposes the configured snapshot encryptor for key management
// commands.
func (a *App) Encryptor() rmt.Encryptor {
	return a.encryptor
}

// Close releases the history DB and the log file.
func (a *App) Close() error {
	var firstErr error
	if err := a.history.Close(); err != nil {
		firstErr = fmt.Errorf("closing history store: %w", err)
	}
	if a.logFile != nil {
		if err := a.logFile.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing log file: %w", err)
		}
	}
	return firstErr
}

func (a *App) fillGate(gate *rmt.GateConfig) {
	if gate.Workers == 0 {
		gate.Workers = a.cfg.Pipeline.Workers
	}
}

// record persists a run report; history failures are reported on stderr
// but never fail the run itself.
func (a *App) record(report *rmt.RunReport) {
	if report == nil {
		return
	}
	if err := a.history.RecordRun(report); err != nil {
		fmt.Fprintf(os.Stderr, "warning: recording run history: %v\n", err)
	}
}
