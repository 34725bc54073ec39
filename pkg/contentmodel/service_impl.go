package contentmodel

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
)

// service implements the Service interface
type service struct {
	logger         *slog.Logger
	registry       *Registry
	metadata       *MetadataRegistrar
	listener       *ChangeListener
	adapters       []Adapter
	placeholders   placeholderChain
	postProcessors []PostProcessor
	fieldMappers   map[string]FieldMapper
	hooks          *Hooks
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithLogger sets the logger of the service
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		s.logger = logger
	}
}

// WithAdapter adds an adapter consulted before the built-in adapters
func WithAdapter(adapter Adapter) Option {
	return func(s *service) {
		s.adapters = append(s.adapters, adapter)
	}
}

// WithPlaceholderResolver adds a resolver for ${name} placeholders in field paths
func WithPlaceholderResolver(resolver PlaceholderResolver) Option {
	return func(s *service) {
		s.placeholders = append(s.placeholders, resolver)
	}
}

// WithPostProcessor adds a post processor invoked around every mapping
func WithPostProcessor(processor PostProcessor) Option {
	return func(s *service) {
		s.postProcessors = append(s.postProcessors, processor)
	}
}

// WithFieldMapper registers a field mapper for fields tagged mapper=name
func WithFieldMapper(name string, mapper FieldMapper) Option {
	return func(s *service) {
		if s.fieldMappers == nil {
			s.fieldMappers = make(map[string]FieldMapper)
		}
		s.fieldMappers[name] = mapper
	}
}

// WithHooks adds lifecycle hooks
func WithHooks(hooks *Hooks) Option {
	return func(s *service) {
		s.hooks.Merge(hooks)
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{
		metadata:     NewMetadataRegistrar(),
		fieldMappers: make(map[string]FieldMapper),
		hooks:        &Hooks{},
	}

	for _, option := range options {
		option(s)
	}

	if s.logger == nil {
		s.logger = slog.Default()
	}
	for name, mapper := range s.fieldMappers {
		if mapper == nil {
			return nil, fmt.Errorf("field mapper %q is nil", name)
		}
	}
	s.registry = NewRegistry(s.logger)
	s.listener = NewChangeListener(s.registry, s.logger)

	return s, nil
}

// Resolution

type queryKind string

const (
	queryMostSpecific queryKind = "most-specific"
	queryByType       queryKind = "type"
	queryByName       queryKind = "name"
)

type resolveQuery struct {
	kind             queryKind
	param            string
	target           reflect.Type
	includeBaseTypes bool
}

func (q resolveQuery) lookup(ctx context.Context, registry *Registry, node Node) ([]LookupResult, error) {
	switch q.kind {
	case queryByType:
		return registry.LookupMostSpecificType(ctx, node, q.target)
	case queryByName:
		return registry.LookupMostSpecificName(ctx, node, q.param)
	default:
		return registry.LookupMostSpecific(ctx, node)
	}
}

// resolve looks up the models of node and maps the model if exactly one
// applies. Outcomes, including the absence of a model, are cached in the
// request cache of ctx.
func (s *service) resolve(ctx context.Context, node Node, q resolveQuery) (any, error) {
	if node == nil {
		return nil, ErrNilNode
	}

	cache := RequestCacheFrom(ctx)
	key := newCacheKey(node, string(q.kind), q.param, q.includeBaseTypes)
	if entry, ok := cache.get(key); ok {
		if entry.metadata != nil {
			entry.metadata.Statistics.CountCacheHit()
			s.hooks.executeOnCacheHit(ctx, entry.metadata)
		}
		return entry.model, nil
	}

	results, err := q.lookup(ctx, s.registry, node)
	if err != nil {
		s.hooks.executeOnError(ctx, "lookup", err)
		return nil, err
	}

	var entry cacheEntry
	switch {
	case len(results) > 1:
		s.logger.DebugContext(ctx, "ambiguous model lookup",
			"path", node.Path(), "query", q.kind, "param", q.param, "models", len(results))
	case len(results) == 1 && (q.includeBaseTypes || !isBaseType(results[0].ResolvedType)):
		model, err := s.Map(ctx, node, results[0])
		if err != nil {
			return nil, err
		}
		meta, err := s.metadata.Metadata(results[0].Source.Type())
		if err != nil {
			return nil, err
		}
		entry = cacheEntry{model: model, metadata: meta}
	}

	cache.put(key, entry)
	return entry.model, nil
}

func (s *service) ResolveMostSpecific(ctx context.Context, node Node) (any, error) {
	return s.resolve(ctx, node, resolveQuery{kind: queryMostSpecific})
}

func (s *service) ResolveMostSpecificIncludingBaseTypes(ctx context.Context, node Node) (any, error) {
	return s.resolve(ctx, node, resolveQuery{kind: queryMostSpecific, includeBaseTypes: true})
}

func (s *service) ResolveMostSpecificType(ctx context.Context, node Node, target reflect.Type) (any, error) {
	return s.resolveType(ctx, node, target, false)
}

func (s *service) ResolveMostSpecificTypeIncludingBaseTypes(ctx context.Context, node Node, target reflect.Type) (any, error) {
	return s.resolveType(ctx, node, target, true)
}

func (s *service) resolveType(ctx context.Context, node Node, target reflect.Type, includeBaseTypes bool) (any, error) {
	if target == nil {
		return nil, fmt.Errorf("%w: target type is nil", ErrInvalidSource)
	}
	return s.resolve(ctx, node, resolveQuery{
		kind:             queryByType,
		param:            target.String(),
		target:           target,
		includeBaseTypes: includeBaseTypes,
	})
}

func (s *service) ResolveMostSpecificName(ctx context.Context, node Node, name string) (any, error) {
	return s.resolve(ctx, node, resolveQuery{kind: queryByName, param: name})
}

func (s *service) ResolveMostSpecificNameIncludingBaseTypes(ctx context.Context, node Node, name string) (any, error) {
	return s.resolve(ctx, node, resolveQuery{kind: queryByName, param: name, includeBaseTypes: true})
}

// Registry lookups

func (s *service) LookupMostSpecific(ctx context.Context, node Node) ([]LookupResult, error) {
	return s.registry.LookupMostSpecific(ctx, node)
}

func (s *service) LookupMostSpecificType(ctx context.Context, node Node, target reflect.Type) ([]LookupResult, error) {
	return s.registry.LookupMostSpecificType(ctx, node, target)
}

func (s *service) LookupMostSpecificName(ctx context.Context, node Node, name string) ([]LookupResult, error) {
	return s.registry.LookupMostSpecificName(ctx, node, name)
}

func (s *service) LookupAll(ctx context.Context, node Node) ([]LookupResult, error) {
	return s.registry.LookupAll(ctx, node)
}

// Administration

func (s *service) ClearLookupCaches() {
	s.registry.ClearLookupCaches()
}

func (s *service) TypeMappings() map[string][]ModelSource {
	return s.registry.TypeMappings()
}

func (s *service) Metadata(t reflect.Type) (*ModelMetadata, error) {
	return s.metadata.Metadata(t)
}

func (s *service) AllMetadata() []*ModelMetadata {
	return s.metadata.All()
}

func (s *service) ChangeListener() *ChangeListener {
	return s.listener
}
