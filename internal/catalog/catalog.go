package catalog

import (
	"context"
	"errors"
	"fmt"

	"TrackPublisher/internal/domain"
)

// ErrUnsupported is returned by sources that do not implement a query mode.
var ErrUnsupported = errors.New("catalog: query mode not supported")

// Query carries the parameters of one catalog request.
type Query struct {
	Region   string
	Category string
	Keywords string
	ChartURL string
	Limit    int
}

// Source is one catalog strategy. Either mode may be unavailable at any time.
type Source interface {
	Name() string
	Ranked(ctx context.Context, q Query) ([]domain.CatalogItem, error)
	Search(ctx context.Context, q Query) ([]domain.CatalogItem, error)
}

// Registry keeps a mapping from source names to their implementations.
type Registry struct {
	sources map[string]Source
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{sources: map[string]Source{}}
}

// Register adds or replaces a source implementation.
func (r *Registry) Register(source Source) {
	if r.sources == nil {
		r.sources = map[string]Source{}
	}
	r.sources[source.Name()] = source
}

// Resolve returns a source by name or an error if it is absent.
func (r *Registry) Resolve(name string) (Source, error) {
	if source, ok := r.sources[name]; ok {
		return source, nil
	}
	return nil, fmt.Errorf("catalog source %s is not registered", name)
}
