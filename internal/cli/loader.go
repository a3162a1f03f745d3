package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/roach88/entigraph/internal/config"
	"github.com/roach88/entigraph/internal/engine"
	"github.com/roach88/entigraph/internal/record"
	"github.com/roach88/entigraph/internal/record/memory"
	"github.com/roach88/entigraph/internal/record/sqlite"
	"github.com/roach88/entigraph/internal/recordstore"
	"github.com/roach88/entigraph/internal/schema"
)

// Error codes reported by commands.
const (
	ErrCodeGeneric    = "E001" // Generic/unknown error
	ErrCodeConfig     = "E002" // Config file missing or invalid
	ErrCodeSchema     = "E003" // Schema file missing or invalid
	ErrCodeStore      = "E004" // Record store could not be opened or read
	ErrCodeNotFound   = "E005" // Entity or type not found
	ErrCodeQuery      = "E006" // Query rejected or not compilable
	ErrCodeUnitOfWork = "E007" // Unit of work failure
)

// session is an open repository and everything it was built from.
type session struct {
	config   *config.Config
	registry *schema.Registry
	records  record.Store
	store    *recordstore.Store
	repo     *engine.Repository
	logger   *slog.Logger
}

// newLogger returns the text logger commands use: Debug under --verbose,
// Info otherwise.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// loadConfig reads the config file, or returns the defaults when path is
// the default and no such file exists.
func loadConfig(path string, explicit bool) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if !explicit && errors.Is(err, os.ErrNotExist) {
		return config.Default(), nil
	}
	return nil, err
}

// openSession loads the configuration and schema and opens the
// repository. Failures are returned as ExitErrors with a command error
// code.
func openSession(opts *RootOptions, logger *slog.Logger) (*session, error) {
	cfg, err := loadConfig(opts.Config, opts.configSet)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeConfig, Message: "failed to load config", Err: err}
	}
	if opts.Store != "" {
		cfg.Store.Path = opts.Store
	}

	logger.Debug("loading schema", "path", cfg.Schema)
	reg, err := schema.LoadCUEFile(cfg.Schema)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeSchema, Message: "failed to load schema", Err: err}
	}

	records, err := openRecords(cfg.Store)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeStore, Message: "failed to open store", Err: err}
	}
	logger.Debug("store ready", "backend", cfg.Store.Backend, "path", cfg.Store.Path)

	store := recordstore.New(records, reg, recordstore.WithLogger(logger))
	repo, err := engine.Open(store, reg,
		engine.WithCommitLock(commitLock(cfg.CommitLock)),
		engine.WithCacheSize(cfg.Cache.MaxEntries),
		engine.WithLogger(logger),
	)
	if err != nil {
		records.Close()
		return nil, &LoadError{Code: ErrCodeConfig, Message: "failed to open repository", Err: err}
	}

	return &session{
		config:   cfg,
		registry: reg,
		records:  records,
		store:    store,
		repo:     repo,
		logger:   logger,
	}, nil
}

func (s *session) Close() error {
	return s.repo.Close()
}

func openRecords(cfg config.StoreConfig) (record.Store, error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		return sqlite.Open(cfg.Path)
	case config.BackendMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unsupported store backend: %q", cfg.Backend)
	}
}

func commitLock(cfg config.CommitLockConfig) engine.CommitLock {
	switch cfg.Strategy {
	case config.LockFailFast:
		return engine.FailFastLock()
	case config.LockSerialize:
		return engine.SerializeLock(cfg.Timeout)
	default:
		return engine.IgnoreLock()
	}
}

// LoadError is a failure to set up a command's repository.
type LoadError struct {
	Code    string
	Message string
	Err     error
}

func (e *LoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}
