package contentmodel

import (
	"context"
	"reflect"
)

// Node is an addressable unit in a content tree.
type Node interface {
	// Path returns the absolute path of the node
	Path() string

	// Name returns the last segment of the node path
	Name() string

	// ResourceType returns the declared type of the node
	ResourceType() string

	// ResourceSuperType returns the super type declared on the node itself, if any
	ResourceSuperType() string

	// Properties returns the node's property view; nil if the node has none
	Properties() Properties

	// NodeType returns the physical type of the backing node, or nil for
	// synthetic nodes
	NodeType() *NodeType

	// Tree returns the tree the node was read from
	Tree() Tree
}

// Tree is read access to a content tree. Lookups of absent nodes return
// (nil, nil); errors are reserved for access failures.
type Tree interface {
	// Get returns the node at the absolute path
	Get(ctx context.Context, path string) (Node, error)

	// Resolve returns the node at path, which is either absolute or relative to base
	Resolve(ctx context.Context, base Node, path string) (Node, error)

	// Children returns the direct children of node in their stored order
	Children(ctx context.Context, node Node) ([]Node, error)

	// Parent returns the parent of node, nil for the root
	Parent(ctx context.Context, node Node) (Node, error)

	// ParentResourceType returns the super type declared by the definition
	// of resourceType under the tree's search paths, or "" if there is none
	ParentResourceType(ctx context.Context, resourceType string) (string, error)

	// NodeSuperTypes returns the declared super types of a physical node type
	NodeSuperTypes(ctx context.Context, nodeType string) ([]string, error)
}

// ModelSource provides instances of one registered model type.
// Sources are equal when their module id and name are equal.
type ModelSource interface {
	// ModuleID returns the id of the module that registered the source
	ModuleID() string

	// Name returns the declared model name, unique within the module
	Name() string

	// Type returns the model type, typically a pointer to a struct
	Type() reflect.Type

	// New returns a new, unpopulated model instance
	New(ctx context.Context) (any, error)
}

// Adapter converts a node to an arbitrary target type. It returns (nil, nil)
// if it cannot provide the target type.
type Adapter interface {
	Adapt(ctx context.Context, node Node, target reflect.Type) (any, error)
}

// AdapterFunc is a function implementing Adapter
type AdapterFunc func(ctx context.Context, node Node, target reflect.Type) (any, error)

// Adapt calls f
func (f AdapterFunc) Adapt(ctx context.Context, node Node, target reflect.Type) (any, error) {
	return f(ctx, node, target)
}

// PlaceholderResolver resolves the name of a ${name} placeholder to its value.
type PlaceholderResolver interface {
	ResolvePlaceholder(name string) (string, bool)
}

// PlaceholderResolverFunc is a function implementing PlaceholderResolver
type PlaceholderResolverFunc func(name string) (string, bool)

// ResolvePlaceholder calls f
func (f PlaceholderResolverFunc) ResolvePlaceholder(name string) (string, bool) {
	return f(name)
}

// PostProcessor is invoked immediately before and after a model's fields are
// populated. A non-nil returned model replaces the current instance.
type PostProcessor interface {
	ProcessBeforeMapping(ctx context.Context, model any, node Node) (any, error)
	ProcessAfterMapping(ctx context.Context, model any, node Node) (any, error)
}

// FieldMapper post-processes the value resolved for a field tagged with
// mapper=<name>. The returned value is assigned to the field instead.
type FieldMapper interface {
	MapField(ctx context.Context, mapping *OngoingFieldMapping) (any, error)
}

// FieldMapperFunc is a function implementing FieldMapper
type FieldMapperFunc func(ctx context.Context, mapping *OngoingFieldMapping) (any, error)

// MapField calls f
func (f FieldMapperFunc) MapField(ctx context.Context, mapping *OngoingFieldMapping) (any, error) {
	return f(ctx, mapping)
}
