package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/roach88/entigraph/internal/cache"
	"github.com/roach88/entigraph/internal/schema"
)

// Repository binds a schema to a store and opens units of work on it.
//
// A Repository is safe for concurrent use. Units of work are not.
type Repository struct {
	store    Store
	registry *schema.Registry
	lock     CommitLock
	idGen    IDGenerator
	logger   *slog.Logger
	metrics  *Metrics

	// cacheSize bounds each unit of work's entity cache. Zero is unbounded.
	cacheSize int

	concerns  map[propertyKey][]Concern
	computed  map[propertyKey]ComputeFunc
	lifecycle map[string][]LifecycleHook

	closed atomic.Bool
}

type propertyKey struct {
	typ  string
	prop string
}

// Option configures a Repository.
type Option func(*Repository)

// WithCommitLock sets the commit lock strategy. It is required.
func WithCommitLock(lock CommitLock) Option {
	return func(r *Repository) {
		r.lock = lock
	}
}

// WithIDGenerator replaces the default UUIDv7 id generator.
func WithIDGenerator(gen IDGenerator) Option {
	return func(r *Repository) {
		r.idGen = gen
	}
}

// WithCacheSize bounds each unit of work's entity cache. LOADED entities
// pushed out of a full cache become EVICTED. Entities with uncommitted
// changes are never lost: the unit of work's modified set keeps them.
func WithCacheSize(n int) Option {
	return func(r *Repository) {
		r.cacheSize = n
	}
}

// WithConcern adds concerns to a value property of a type. Concerns added
// first run outermost.
func WithConcern(typeName, prop string, concerns ...Concern) Option {
	return func(r *Repository) {
		key := propertyKey{typ: typeName, prop: prop}
		r.concerns[key] = append(r.concerns[key], concerns...)
	}
}

// WithLifecycle registers a lifecycle hook for an entity type.
func WithLifecycle(typeName string, hook LifecycleHook) Option {
	return func(r *Repository) {
		r.lifecycle[typeName] = append(r.lifecycle[typeName], hook)
	}
}

// WithMetrics records unit of work activity.
func WithMetrics(m *Metrics) Option {
	return func(r *Repository) {
		r.metrics = m
	}
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Repository) {
		r.logger = logger
	}
}

// Open creates a Repository over store for the types in registry.
//
// A commit lock strategy must be given with WithCommitLock.
func Open(store Store, registry *schema.Registry, opts ...Option) (*Repository, error) {
	r := &Repository{
		store:     store,
		registry:  registry,
		idGen:     UUIDv7Generator{},
		logger:    slog.Default(),
		concerns:  make(map[propertyKey][]Concern),
		computed:  make(map[propertyKey]ComputeFunc),
		lifecycle: make(map[string][]LifecycleHook),
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.lock == nil {
		return nil, newError(ErrCodeUsage, "a commit lock strategy is required")
	}
	if r.cacheSize < 0 {
		return nil, newError(ErrCodeUsage, "cache size must not be negative")
	}
	if err := r.validateBindings(); err != nil {
		return nil, &ModelError{Code: ErrCodeUsage, Message: "invalid repository options", Err: err}
	}
	return r, nil
}

func (r *Repository) validateBindings() error {
	var errs []error
	for key := range r.concerns {
		t, ok := r.registry.Lookup(key.typ)
		if !ok {
			errs = append(errs, fmt.Errorf("concern on unknown type %q", key.typ))
			continue
		}
		p, ok := t.Property(key.prop)
		if !ok || p.Kind != schema.KindValue {
			errs = append(errs, fmt.Errorf("concern on %s.%s: not a value property", key.typ, key.prop))
		}
	}
	for key, fn := range r.computed {
		t, ok := r.registry.Lookup(key.typ)
		if !ok {
			errs = append(errs, fmt.Errorf("computed function on unknown type %q", key.typ))
			continue
		}
		p, ok := t.Property(key.prop)
		switch {
		case !ok || p.Kind != schema.KindValue || !p.Computed:
			errs = append(errs, fmt.Errorf("computed function on %s.%s: not a computed value property", key.typ, key.prop))
		case fn == nil:
			errs = append(errs, fmt.Errorf("computed function on %s.%s is nil", key.typ, key.prop))
		}
	}
	for _, t := range r.registry.Types() {
		for _, p := range t.Properties {
			if p.Computed && p.Kind == schema.KindValue && r.computed[propertyKey{typ: t.Name, prop: p.Name}] == nil {
				errs = append(errs, fmt.Errorf("%s.%s is computed but has no function", t.Name, p.Name))
			}
		}
	}
	for name := range r.lifecycle {
		if _, err := r.registry.Entity(name); err != nil {
			errs = append(errs, fmt.Errorf("lifecycle hook: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Registry returns the schema the repository serves.
func (r *Repository) Registry() *schema.Registry {
	return r.registry
}

// NewUnitOfWork opens a root unit of work.
func (r *Repository) NewUnitOfWork(ctx context.Context) (*UnitOfWork, error) {
	if r.closed.Load() {
		return nil, newError(ErrCodeUsage, "repository is closed")
	}
	sw, err := r.store.NewUnitOfWork(ctx)
	if err != nil {
		return nil, backendFailure("open store unit of work", err)
	}
	u := newUnitOfWork(r, nil)
	u.store = sw
	if err := u.initCache(); err != nil {
		sw.Close()
		return nil, err
	}
	r.logger.Debug("unit of work opened")
	return u, nil
}

// Close closes the store. Open units of work must be closed first.
func (r *Repository) Close() error {
	if r.closed.Swap(true) {
		return nil
	}
	return r.store.Close()
}

func (r *Repository) concernsFor(typeName, prop string) []Concern {
	return r.concerns[propertyKey{typ: typeName, prop: prop}]
}

func (r *Repository) newCache(onEvict func(entityKey, *Entity)) (cache.Cache[entityKey, *Entity], error) {
	if r.cacheSize == 0 {
		return cache.NewMap[entityKey, *Entity](), nil
	}
	c, err := cache.NewLRU(r.cacheSize, onEvict)
	if err != nil {
		return nil, &ModelError{Code: ErrCodeUsage, Message: "entity cache", Err: err}
	}
	return c, nil
}
