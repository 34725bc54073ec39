package contentmodel

import (
	"context"
	"log/slog"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
)

type lookupKind int

const (
	lookupMostSpecific lookupKind = iota
	lookupByType
	lookupByName
	lookupAll
)

// lookupKey identifies a lookup by the tree and type signature of the node
// and the query. Trees may define the same types differently.
type lookupKey struct {
	tree              string
	resourceType      string
	resourceSuperType string
	primaryType       string
	mixins            string
	kind              lookupKind
	name              string
	target            reflect.Type
}

func newLookupKey(node Node, kind lookupKind) lookupKey {
	key := lookupKey{
		tree:         treeIdentity(node.Tree()),
		resourceType: node.ResourceType(),
		kind:         kind,
	}
	if nodeType := node.NodeType(); nodeType != nil {
		key.resourceSuperType = node.ResourceSuperType()
		key.primaryType = nodeType.Primary
		key.mixins = strings.Join(nodeType.Mixins, ",")
	}
	return key
}

// Registry associates type names with model sources and answers which
// sources apply to a node. Lookup results, including empty ones, are cached
// until the registry changes or ClearLookupCaches is called.
//
// Slices returned by lookups are shared with the cache and must not be
// modified.
type Registry struct {
	logger  *slog.Logger
	sources *distinctMultiMap[string, ModelSource]

	// mu orders cache writes against ClearLookupCaches
	mu          sync.Mutex
	state       atomic.Uint64
	lookupCache sync.Map // lookupKey -> []LookupResult
	unmapped    sync.Map // lookupKey -> struct{}
}

// NewRegistry creates an empty registry
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		logger:  logger,
		sources: newDistinctMultiMap[string, ModelSource](sameSource),
	}
}

// Add registers source for every type name in types
func (r *Registry) Add(types []string, source ModelSource) {
	for _, typeName := range types {
		r.sources.Put(typeName, source)
	}
	r.ClearLookupCaches()
}

// Remove removes source from all type names
func (r *Registry) Remove(source ModelSource) int {
	removed := r.sources.RemoveFunc(func(s ModelSource) bool {
		return sameSource(s, source)
	})
	r.ClearLookupCaches()
	return removed
}

// RemoveModule removes every source registered by the module
func (r *Registry) RemoveModule(moduleID string) int {
	r.logger.Info("removing models of module", "module", moduleID)
	removed := r.sources.RemoveFunc(func(s ModelSource) bool {
		return s.ModuleID() == moduleID
	})
	r.ClearLookupCaches()
	r.logger.Info("removed models of module", "module", moduleID, "count", removed)
	return removed
}

// Clear removes all registrations
func (r *Registry) Clear() {
	r.sources.Clear()
	r.ClearLookupCaches()
}

// ClearLookupCaches invalidates all cached lookup results. Lookups that
// started before the call do not store their results.
func (r *Registry) ClearLookupCaches() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.state.Add(1)
	r.lookupCache.Clear()
	r.unmapped.Clear()
	r.logger.Debug("model lookup caches cleared")
}

// TypeMappings returns a copy of all type name to source associations
func (r *Registry) TypeMappings() map[string][]ModelSource {
	return r.sources.Contents()
}

// Sources returns all registered sources, in type name then registration order
func (r *Registry) Sources() []ModelSource {
	var sources []ModelSource
	for _, values := range r.sources.Contents() {
		sources = append(sources, values...)
	}
	return sources
}

// LookupMostSpecific returns all sources registered at the first type of
// the node's hierarchy that has any registration.
func (r *Registry) LookupMostSpecific(ctx context.Context, node Node) ([]LookupResult, error) {
	if node == nil {
		return nil, ErrNilNode
	}
	return r.lookup(ctx, node, newLookupKey(node, lookupMostSpecific), func() ([]LookupResult, error) {
		return r.resolve(ctx, node, nil, true)
	})
}

// LookupMostSpecificType returns the sources whose model type is assignable
// to target, registered at the first type of the node's hierarchy that has
// any such source.
func (r *Registry) LookupMostSpecificType(ctx context.Context, node Node, target reflect.Type) ([]LookupResult, error) {
	if node == nil {
		return nil, ErrNilNode
	}
	key := newLookupKey(node, lookupByType)
	key.target = target
	return r.lookup(ctx, node, key, func() ([]LookupResult, error) {
		return r.resolve(ctx, node, func(s ModelSource) bool {
			return assignable(s.Type(), target)
		}, true)
	})
}

// LookupMostSpecificName returns the first registered source named name at
// the first type of the node's hierarchy that has such a source.
func (r *Registry) LookupMostSpecificName(ctx context.Context, node Node, name string) ([]LookupResult, error) {
	if node == nil {
		return nil, ErrNilNode
	}
	key := newLookupKey(node, lookupByName)
	key.name = name
	return r.lookup(ctx, node, key, func() ([]LookupResult, error) {
		results, err := r.resolve(ctx, node, func(s ModelSource) bool {
			return s.Name() == name
		}, true)
		if len(results) > 1 {
			results = results[:1]
		}
		return results, err
	})
}

// LookupAll returns the sources of every type in the node's hierarchy
func (r *Registry) LookupAll(ctx context.Context, node Node) ([]LookupResult, error) {
	if node == nil {
		return nil, ErrNilNode
	}
	return r.lookup(ctx, node, newLookupKey(node, lookupAll), func() ([]LookupResult, error) {
		return r.resolve(ctx, node, nil, false)
	})
}

func (r *Registry) lookup(ctx context.Context, node Node, key lookupKey, resolve func() ([]LookupResult, error)) ([]LookupResult, error) {
	if _, ok := r.unmapped.Load(key); ok {
		return nil, nil
	}
	if cached, ok := r.lookupCache.Load(key); ok {
		return cached.([]LookupResult), nil
	}

	state := r.state.Load()
	results, err := resolve()
	if err != nil {
		return nil, &LookupError{Path: node.Path(), Op: "lookup", Err: err}
	}

	r.mu.Lock()
	if state == r.state.Load() {
		if len(results) == 0 {
			r.unmapped.Store(key, struct{}{})
		} else {
			r.lookupCache.Store(key, results)
		}
	}
	r.mu.Unlock()

	if len(results) == 0 {
		return nil, nil
	}
	return results, nil
}

// resolve walks the type hierarchy of node collecting the sources accepted
// by filter. With mostSpecific, the walk stops at the first matching type.
func (r *Registry) resolve(ctx context.Context, node Node, filter func(ModelSource) bool, mostSpecific bool) ([]LookupResult, error) {
	var results []LookupResult
	h := NewTypeHierarchy(ctx, node)
	for h.Next() {
		typeName := h.Type()
		matched := false
		for _, source := range r.sources.Get(typeName) {
			if filter != nil && !filter(source) {
				continue
			}
			matched = true
			results = append(results, LookupResult{Source: source, ResolvedType: typeName})
		}
		if matched && mostSpecific {
			break
		}
	}
	if err := h.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func assignable(modelType, target reflect.Type) bool {
	if modelType == nil || target == nil {
		return false
	}
	return modelType.AssignableTo(target)
}
