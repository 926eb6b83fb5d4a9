package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/cuongbtq/constituent-transfer/internal/domain"
	"github.com/google/uuid"
)

// Config holds manager dependencies
type Config struct {
	Logger    *slog.Logger
	Store     ConstituentStore
	Registry  *Registry
	Broker    *Broker
	Tokens    *TokenIssuer
	Events    EventPublisher
	ExportDir string
	UploadDir string
	Now       func() time.Time
	NewID     func() string
}

// Manager runs export and upload jobs and answers queries about them
type Manager struct {
	logger     *slog.Logger
	store      ConstituentStore
	registry   *Registry
	broker     *Broker
	tokens     *TokenIssuer
	events     EventPublisher
	supervisor *Supervisor
	exportDir  string
	uploadDir  string
	now        func() time.Time
	newID      func() string

	baseCtx    context.Context
	cancelBase context.CancelFunc
}

// NewManager creates a manager and makes sure the artifact directories exist
func NewManager(cfg *Config) (*Manager, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("constituent store is required")
	}
	if cfg.Tokens == nil {
		return nil, fmt.Errorf("token issuer is required")
	}

	for _, dir := range []string{cfg.ExportDir, cfg.UploadDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create artifact directory %s: %w", dir, err)
		}
	}

	m := &Manager{
		logger:     cfg.Logger,
		store:      cfg.Store,
		registry:   cfg.Registry,
		broker:     cfg.Broker,
		tokens:     cfg.Tokens,
		events:     cfg.Events,
		supervisor: NewSupervisor(cfg.Logger),
		exportDir:  cfg.ExportDir,
		uploadDir:  cfg.UploadDir,
		now:        cfg.Now,
		newID:      cfg.NewID,
	}

	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.registry == nil {
		m.registry = NewRegistry()
	}
	if m.broker == nil {
		m.broker = NewBroker()
	}
	if m.events == nil {
		m.events = NopPublisher{}
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.newID == nil {
		m.newID = func() string { return uuid.New().String() }
	}

	m.baseCtx, m.cancelBase = context.WithCancel(context.Background())

	return m, nil
}

// CreateExport starts an export of the owner's records matching spec. If the
// owner already has an active export its id is returned and nothing starts.
func (m *Manager) CreateExport(ctx context.Context, ownerID string, spec domain.PaginationSpec) (string, error) {
	if id, ok := m.registry.ActiveExport(ownerID); ok {
		return id, nil
	}

	if err := spec.Validate(); err != nil {
		return "", err
	}

	total, err := m.store.Count(ctx, ownerID, spec)
	if err != nil {
		return "", fmt.Errorf("failed to count constituents: %w", err)
	}

	job, jobCtx, created, err := m.registry.CreateExport(m.baseCtx, ExportJob{
		ID:         m.newID(),
		OwnerID:    ownerID,
		CreatedAt:  m.now(),
		Status:     StatusPending,
		Pagination: spec,
		Progress:   ExportProgress{Total: total},
	})
	if err != nil {
		return "", err
	}
	if !created {
		return job.ID, nil
	}

	m.logger.Info("Export job created",
		slog.String("export_id", job.ID),
		slog.String("owner_id", ownerID),
		slog.Int("total", total),
	)

	if err := m.supervisor.Go("export:"+job.ID, func() { m.runExport(jobCtx, job.ID) }); err != nil {
		m.registry.RemoveExport(job.ID)
		return "", err
	}

	return job.ID, nil
}

// ActiveExport returns the owner's running export id
func (m *Manager) ActiveExport(ownerID string) (string, error) {
	id, ok := m.registry.ActiveExport(ownerID)
	if !ok {
		return "", fmt.Errorf("%w: no active export", domain.ErrNotFound)
	}
	return id, nil
}

// GetExport returns the owner's export job
func (m *Manager) GetExport(ownerID, id string) (ExportJob, error) {
	job, ok := m.registry.GetExport(id)
	if !ok || job.OwnerID != ownerID {
		return ExportJob{}, fmt.Errorf("%w: export %s", domain.ErrNotFound, id)
	}
	return job, nil
}

// CancelExport removes the job. Its processor stops at the next batch boundary
// and deletes the partial artifact.
func (m *Manager) CancelExport(ownerID, id string) error {
	if _, err := m.GetExport(ownerID, id); err != nil {
		return err
	}

	job, ok := m.registry.RemoveExport(id)
	if !ok {
		return fmt.Errorf("%w: export %s", domain.ErrNotFound, id)
	}
	m.broker.Drop(ownerID, id)

	m.logger.Info("Export job canceled",
		slog.String("export_id", id),
		slog.String("status", job.Status),
	)

	return nil
}

// WatchExport subscribes to the export's progress. The returned snapshot is
// read after the subscription is registered, so nothing is missed in between.
func (m *Manager) WatchExport(ownerID, id string) (*Subscription, Snapshot, error) {
	if _, err := m.GetExport(ownerID, id); err != nil {
		return nil, Snapshot{}, err
	}

	sub := m.broker.Subscribe(ownerID, id)
	job, ok := m.registry.GetExport(id)
	if !ok {
		sub.Close()
		return nil, Snapshot{}, fmt.Errorf("%w: export %s", domain.ErrNotFound, id)
	}

	return sub, job.Snapshot(), nil
}

// IssueDownloadToken mints a download token for a completed export
func (m *Manager) IssueDownloadToken(ownerID, id string) (string, time.Time, error) {
	job, err := m.GetExport(ownerID, id)
	if err != nil {
		return "", time.Time{}, err
	}
	if job.Status != StatusCompleted {
		return "", time.Time{}, fmt.Errorf("%w: export %s is %s", domain.ErrNotReady, id, job.Status)
	}

	return m.tokens.Issue(id)
}

// RedeemDownload verifies token and returns the artifact path and file name
func (m *Manager) RedeemDownload(token string) (string, string, error) {
	id, err := m.tokens.Verify(token)
	if err != nil {
		return "", "", err
	}

	job, ok := m.registry.GetExport(id)
	if !ok || job.Status != StatusCompleted || job.ArtifactName == "" {
		return "", "", fmt.Errorf("%w: export %s", domain.ErrNotFound, id)
	}

	path := filepath.Join(m.exportDir, job.ArtifactName)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", "", fmt.Errorf("%w: artifact %s", domain.ErrNotFound, job.ArtifactName)
		}
		return "", "", domain.NewTransientError(fmt.Errorf("failed to stat artifact: %w", err))
	}

	return path, job.ArtifactName, nil
}

// Shutdown stops accepting jobs, cancels running exports and waits for every
// job goroutine until ctx ends
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("Shutting down transfer manager")

	m.registry.Close()
	m.cancelBase()
	err := m.supervisor.Close(ctx)
	m.broker.Close()

	if err != nil {
		m.logger.Warn("Transfer manager shutdown incomplete", slog.Any("error", err))
		return err
	}

	m.logger.Info("Transfer manager stopped")
	return nil
}

func (m *Manager) publishEvent(event Event) {
	event.EventID = uuid.New().String()
	event.OccurredAt = m.now().UTC()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := m.events.Publish(ctx, event); err != nil {
		m.logger.Warn("Failed to publish job event",
			slog.String("type", event.Type),
			slog.String("job_id", event.JobID),
			slog.Any("error", err),
		)
	}
}
