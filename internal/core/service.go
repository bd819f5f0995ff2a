package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/datasheets/internal/sheet"
)

var (
	// ErrRunNotFound is returned for unknown run ids.
	ErrRunNotFound = errors.New("datasheet not found")

	// ErrRunDeleted is returned when performing a soft-deleted run.
	ErrRunDeleted = errors.New("datasheet has been deleted")

	// ErrUnsupportedFile is returned for uploads that are not spreadsheets.
	ErrUnsupportedFile = errors.New("unsupported file type")

	// ErrFileTooLarge is returned for uploads over the configured size.
	ErrFileTooLarge = errors.New("file too large")

	// ErrEmptyFile is returned for zero-byte uploads.
	ErrEmptyFile = errors.New("empty file")
)

// Defaults applied by NewService for zero ServiceConfig fields.
const (
	DefaultUploadDir   = "uploads/product_datasheets"
	DefaultMaxFileSize = 50 << 20
	DefaultRunTimeout  = 30 * time.Minute
)

// ServiceConfig holds the service's tunables.
type ServiceConfig struct {
	UploadDir     string        // Root directory for stored datasheets
	MaxFileSize   int64         // Largest accepted upload in bytes
	MaxConcurrent int           // Runs performing at once
	MaxWait       time.Duration // Wait for a run slot before ErrTooManyRuns
	RunTimeout    time.Duration // Upper bound for a background run
	TaxonomyName  string        // Taxonomy receiving category paths
}

// Service manages import runs: storing uploaded datasheets, performing them
// through the Engine and soft-deleting them.
type Service struct {
	runs    RunStore
	engine  *Engine
	limiter *RunLimiter

	uploadDir   string
	maxFileSize int64
	runTimeout  time.Duration
	now         func() time.Time
}

// NewService creates a Service over stores.
func NewService(stores Stores, cfg ServiceConfig) *Service {
	if cfg.UploadDir == "" {
		cfg.UploadDir = DefaultUploadDir
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = DefaultMaxFileSize
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = DefaultRunTimeout
	}

	return &Service{
		runs:        stores.Runs,
		engine:      NewEngine(stores, cfg.TaxonomyName),
		limiter:     NewRunLimiter(cfg.MaxConcurrent, cfg.MaxWait),
		uploadDir:   cfg.UploadDir,
		maxFileSize: cfg.MaxFileSize,
		runTimeout:  cfg.RunTimeout,
		now:         time.Now,
	}
}

// CreateRun stores an uploaded datasheet under <upload dir>/<run id>/<name>
// and records a new, unprocessed run for it. size is the declared upload
// size; the copy is capped at the configured maximum either way.
func (s *Service) CreateRun(ctx context.Context, fileName, contentType string, r io.Reader, size int64) (*ImportRun, error) {
	base := filepath.Base(strings.ReplaceAll(fileName, "\\", "/"))
	if base == "." || base == "/" || base == "" {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFile, fileName)
	}
	if !sheet.Supported(base) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFile, filepath.Ext(base))
	}
	if size > s.maxFileSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrFileTooLarge, size, s.maxFileSize)
	}

	now := s.now().UTC()
	run := &ImportRun{
		ID:          uuid.New(),
		FileName:    base,
		ContentType: contentType,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	dir := filepath.Join(s.uploadDir, run.ID.String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload directory: %w", err)
	}
	run.FilePath = filepath.Join(dir, base)

	written, err := s.writeFile(run.FilePath, r)
	if err != nil {
		os.RemoveAll(dir)
		return nil, err
	}
	run.FileSize = written

	if err := s.runs.CreateRun(ctx, run); err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("create run: %w", err)
	}

	slog.Info("datasheet stored",
		"run_id", run.ID,
		"file", run.FileName,
		"bytes", run.FileSize,
	)
	return run, nil
}

func (s *Service) writeFile(path string, r io.Reader) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create datasheet file: %w", err)
	}
	defer f.Close()

	// One byte past the limit tells an oversized body from an exact fit.
	written, err := io.Copy(f, io.LimitReader(r, s.maxFileSize+1))
	if err != nil {
		return 0, fmt.Errorf("write datasheet file: %w", err)
	}
	if written > s.maxFileSize {
		return 0, fmt.Errorf("%w: exceeds %d bytes", ErrFileTooLarge, s.maxFileSize)
	}
	if written == 0 {
		return 0, ErrEmptyFile
	}
	return written, f.Close()
}

// GetRun returns the run with id, or ErrRunNotFound.
func (s *Service) GetRun(ctx context.Context, id uuid.UUID) (*ImportRun, error) {
	run, err := s.runs.GetRun(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// ListRuns returns the runs in scope, newest first.
func (s *Service) ListRuns(ctx context.Context, scope RunScope) ([]ImportRun, error) {
	runs, err := s.runs.ListRuns(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// PerformRun processes the run synchronously and returns it with its
// statistics. Runs are serialized per id; a run already in progress yields
// ErrRunBusy. Processed runs may be performed again.
func (s *Service) PerformRun(ctx context.Context, id uuid.UUID) (*ImportRun, error) {
	if err := s.limiter.Acquire(ctx, id); err != nil {
		return nil, err
	}
	defer s.limiter.Release(id)

	return s.perform(ctx, id)
}

// StartRun performs the run in the background and returns once it holds a
// slot. The run is bounded by the configured run timeout, not by ctx.
func (s *Service) StartRun(ctx context.Context, id uuid.UUID) error {
	if _, err := s.GetRun(ctx, id); err != nil {
		return err
	}
	if err := s.limiter.Acquire(ctx, id); err != nil {
		return err
	}

	go func() {
		defer s.limiter.Release(id)
		defer func() {
			if r := recover(); r != nil {
				slog.Error("panic in datasheet run", "run_id", id, "panic", r)
			}
		}()

		runCtx, cancel := context.WithTimeout(context.Background(), s.runTimeout)
		defer cancel()

		if _, err := s.perform(runCtx, id); err != nil {
			slog.Error("datasheet run failed", "run_id", id, "error", err, "code", MapError(err).Code)
		}
	}()

	return nil
}

// perform loads a fresh copy of the run, so counters always start from the
// stored state, and hands it to the engine. Callers hold the run's claim.
func (s *Service) perform(ctx context.Context, id uuid.UUID) (*ImportRun, error) {
	run, err := s.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	if run.Deleted() {
		return nil, fmt.Errorf("%w: %s", ErrRunDeleted, id)
	}

	if err := s.engine.Perform(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

// DeleteRun soft deletes the run. Deleting a deleted run is a no-op.
func (s *Service) DeleteRun(ctx context.Context, id uuid.UUID) (*ImportRun, error) {
	run, err := s.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	if run.Deleted() {
		return run, nil
	}

	now := s.now().UTC()
	run.DeletedAt = &now
	if err := s.runs.SaveRun(ctx, run); err != nil {
		return nil, fmt.Errorf("delete run: %w", err)
	}

	slog.Info("datasheet deleted", "run_id", run.ID, "file", run.FileName)
	return run, nil
}

// RunLimiterStatus returns the current run slot usage.
func (s *Service) RunLimiterStatus() RunLimiterStatus {
	return s.limiter.Status()
}

// WaitForRuns blocks until every active run completes or ctx is done.
func (s *Service) WaitForRuns(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}
