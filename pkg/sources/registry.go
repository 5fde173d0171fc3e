package sources

import (
	"fmt"
	"maps"
	"slices"

	"go.uber.org/zap"
)

// Registry maps source names to constructed sources. It is filled once at
// startup and only read afterwards, so lookups need no locking.
type Registry struct {
	log     *zap.Logger
	sources map[string]Source
}

func NewRegistry(log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		log:     log,
		sources: make(map[string]Source),
	}
}

// Register constructs def with a logger named after it. A second registration
// under the same name replaces the first.
func (r *Registry) Register(def Definition) {
	r.sources[def.Name] = def.New(r.log.Named(def.Name))
	r.log.Info("registered source", zap.String("source", def.Name))
}

func (r *Registry) Get(name string) (Source, error) {
	src, ok := r.sources[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, name)
	}
	return src, nil
}

func (r *Registry) Has(name string) bool {
	_, ok := r.sources[name]
	return ok
}

// All returns a copy of the registered sources.
func (r *Registry) All() map[string]Source {
	return maps.Clone(r.sources)
}

func (r *Registry) Names() []string {
	return slices.Sorted(maps.Keys(r.sources))
}

func (r *Registry) Len() int {
	return len(r.sources)
}
