// Package registry resolves model identifiers to loaded, read-only model
// handles.
//
// Handles are loaded lazily on first Resolve and cached in a bounded LRU.
// Concurrent resolves of one identifier share a single load. Watch evicts a
// cached handle when its artifact file changes on disk; callers already
// holding the old handle keep using it unchanged.
package registry

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/YuminosukeSato/tumorscope/core/model"
	"github.com/YuminosukeSato/tumorscope/core/schema"
	"github.com/YuminosukeSato/tumorscope/pkg/errors"
	"github.com/YuminosukeSato/tumorscope/pkg/log"
	"github.com/YuminosukeSato/tumorscope/pkg/telemetry"
	"github.com/YuminosukeSato/tumorscope/sklearn/ensemble"
	"github.com/YuminosukeSato/tumorscope/sklearn/linear_model"
)

// DefaultLoadTimeout bounds a single artifact load.
const DefaultLoadTimeout = 10 * time.Second

// Entry maps one model identifier to its artifact file.
type Entry struct {
	ID   string
	Path string
}

// BuildFunc turns a validated artifact into a handle of one family.
type BuildFunc func(env *model.Envelope) (model.Handle, error)

// DefaultBuilders returns the builders for the linear and tree-ensemble
// families.
func DefaultBuilders() map[model.Family]BuildFunc {
	return map[model.Family]BuildFunc{
		model.FamilyLinear: func(env *model.Envelope) (model.Handle, error) {
			return linear_model.FromEnvelope(env)
		},
		model.FamilyTreeEnsemble: func(env *model.Envelope) (model.Handle, error) {
			return ensemble.FromEnvelope(env)
		},
	}
}

// Options configures a Registry.
type Options struct {
	Schema      *schema.Schema
	Models      []Entry
	LoadTimeout time.Duration
	// CacheSize bounds the number of cached handles; 0 means len(Models).
	CacheSize int
	Builders  map[model.Family]BuildFunc
	Logger    log.Logger
	Metrics   *telemetry.Metrics
}

// Registry resolves identifiers configured at construction time.
type Registry struct {
	schema      *schema.Schema
	order       []string
	paths       map[string]string
	loadTimeout time.Duration
	builders    map[model.Family]BuildFunc
	cache       *lru.Cache[string, model.Handle]
	group       singleflight.Group
	logger      log.Logger
	metrics     *telemetry.Metrics

	// generations counts evictions per id; a load only caches its handle
	// when no eviction happened while it ran.
	genMu       sync.Mutex
	generations map[string]uint64
}

// New creates a registry. No artifact is read until the first Resolve.
func New(opts Options) (*Registry, error) {
	if opts.Schema == nil {
		opts.Schema = schema.Default()
	}
	if opts.LoadTimeout <= 0 {
		opts.LoadTimeout = DefaultLoadTimeout
	}
	if opts.Builders == nil {
		opts.Builders = DefaultBuilders()
	}
	if opts.Logger == nil {
		opts.Logger = log.GetLogger()
	}

	r := &Registry{
		schema:      opts.Schema,
		paths:       make(map[string]string, len(opts.Models)),
		generations: make(map[string]uint64, len(opts.Models)),
		loadTimeout: opts.LoadTimeout,
		builders:    opts.Builders,
		logger:      opts.Logger.With(log.ComponentKey, "registry"),
		metrics:     opts.Metrics,
	}
	for _, e := range opts.Models {
		if e.ID == "" {
			return nil, errors.NewValidationError("models.id", "must not be empty", e.Path)
		}
		if _, dup := r.paths[e.ID]; dup {
			return nil, errors.NewValidationError("models.id", "duplicate model identifier", e.ID)
		}
		r.paths[e.ID] = filepath.Clean(e.Path)
		r.order = append(r.order, e.ID)
	}

	size := opts.CacheSize
	if size <= 0 {
		size = len(r.order)
	}
	if size <= 0 {
		size = 1
	}
	cache, err := lru.New[string, model.Handle](size)
	if err != nil {
		return nil, errors.Wrap(err, "create handle cache")
	}
	r.cache = cache
	return r, nil
}

// Models returns the configured identifiers in configuration order.
func (r *Registry) Models() []string {
	return append([]string(nil), r.order...)
}

// Schema returns the schema every artifact is checked against.
func (r *Registry) Schema() *schema.Schema { return r.schema }

// Path returns the artifact path configured for id.
func (r *Registry) Path(id string) (string, bool) {
	p, ok := r.paths[id]
	return p, ok
}

// Resolve returns the handle for id, loading it on first use.
func (r *Registry) Resolve(ctx context.Context, id string) (model.Handle, error) {
	path, ok := r.paths[id]
	if !ok {
		return nil, errors.NewModelNotFoundError(id, r.Models())
	}
	if h, ok := r.cache.Get(id); ok {
		return h, nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.loadTimeout)
	defer cancel()

	ch := r.group.DoChan(id, func() (interface{}, error) {
		if h, ok := r.cache.Get(id); ok {
			return h, nil
		}
		gen := r.generation(id)
		h, err := r.load(id, path)
		r.metrics.ModelLoad(id, err == nil)
		if err != nil {
			return nil, err
		}
		r.genMu.Lock()
		if r.generations[id] == gen {
			r.cache.Add(id, h)
		}
		r.genMu.Unlock()
		return h, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			r.logger.Error("model load failed", res.Err, log.ModelNameKey, id, log.ArtifactPathKey, path)
			return nil, res.Err
		}
		return res.Val.(model.Handle), nil
	case <-ctx.Done():
		return nil, errors.NewModelLoadError(id, path, "load timed out", ctx.Err())
	}
}

// Evict drops the cached handle for id. A load already in flight for id
// still answers its waiters but is not cached; the next Resolve reloads.
func (r *Registry) Evict(id string) bool {
	r.genMu.Lock()
	r.generations[id]++
	removed := r.cache.Remove(id)
	r.genMu.Unlock()
	r.group.Forget(id)
	return removed
}

func (r *Registry) generation(id string) uint64 {
	r.genMu.Lock()
	defer r.genMu.Unlock()
	return r.generations[id]
}

// Cached reports whether a handle for id is currently cached.
func (r *Registry) Cached(id string) bool {
	return r.cache.Contains(id)
}

func (r *Registry) load(id, path string) (model.Handle, error) {
	var h model.Handle
	err := errors.SafeExecute("registry.load", func() error {
		var err error
		h, err = r.loadArtifact(id, path)
		return err
	})
	if err != nil {
		var le *errors.ModelLoadError
		if !errors.As(err, &le) {
			err = errors.NewModelLoadError(id, path, "panic while loading", err)
		}
		return nil, err
	}
	return h, nil
}

func (r *Registry) loadArtifact(id, path string) (model.Handle, error) {
	start := time.Now()
	env, err := model.LoadEnvelope(path)
	if err != nil {
		return nil, errors.NewModelLoadError(id, path, "cannot read artifact", err)
	}
	if err := env.Validate(); err != nil {
		return nil, errors.NewModelLoadError(id, path, "invalid artifact", err)
	}
	switch {
	case len(env.FeatureNames) == 0:
		// 特徴量名のないアーティファクトはスキーマ順で学習されたものとみなす
		env.FeatureNames = r.schema.Names()
	case !r.schema.SameNames(env.FeatureNames):
		return nil, errors.NewModelLoadError(id, path, "feature names disagree with schema "+r.schema.Version(), nil)
	}
	if env.Name == "" {
		env.Name = id
	}

	build, ok := r.builders[env.Family]
	if !ok {
		return nil, errors.NewModelLoadError(id, path, "no builder for family",
			errors.NewUnsupportedModelFamilyError("registry.load", string(env.Family)))
	}
	h, err := build(env)
	if err != nil {
		return nil, errors.NewModelLoadError(id, path, "cannot build model", err)
	}
	if !env.HasCapability(model.CapabilityPredictProba) {
		h = model.WithoutProbability(h)
	}

	r.logger.Info("model loaded",
		log.ModelNameKey, id,
		log.ModelFamilyKey, string(env.Family),
		log.ArtifactPathKey, path,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return h, nil
}
