package contentmodel

import (
	"context"
	"fmt"
	"reflect"
	"strings"
)

const (
	// SyntheticResourceTypeRoot is the virtual type appended to the type
	// hierarchy of nodes that have no backing physical node.
	SyntheticResourceTypeRoot = "contentmodel:syntheticRoot"

	// NodeTypeUnstructured is the generic physical node type
	NodeTypeUnstructured = "nt:unstructured"

	// NodeTypeBase is the root of all physical node types
	NodeTypeBase = "nt:base"
)

// isBaseType reports whether models matched at typeName are generic models
// that every node would receive.
func isBaseType(typeName string) bool {
	switch typeName {
	case NodeTypeUnstructured, NodeTypeBase, SyntheticResourceTypeRoot:
		return true
	}
	return false
}

// NodeType describes the physical type of a node backed by the repository
type NodeType struct {
	Primary string   `json:"primary" yaml:"primary"`
	Mixins  []string `json:"mixins,omitempty" yaml:"mixins,omitempty"`
}

// Properties is the property view of a node
type Properties map[string]any

// Get returns the raw value of a property
func (p Properties) Get(name string) (any, bool) {
	if p == nil {
		return nil, false
	}
	v, ok := p[name]
	return v, ok
}

// Has reports whether the property exists
func (p Properties) Has(name string) bool {
	_, ok := p.Get(name)
	return ok
}

// String returns the property converted to a string, or "" if absent
func (p Properties) String(name string) string {
	v, ok := p.Get(name)
	if !ok || v == nil {
		return ""
	}
	if s, ok := convertValue(v, stringType); ok {
		return s.(string)
	}
	return fmt.Sprint(v)
}

// Strings returns the property converted to a string slice. A single value
// is returned as a one-element slice.
func (p Properties) Strings(name string) []string {
	v, ok := p.Get(name)
	if !ok || v == nil {
		return nil
	}
	if s, ok := convertValue(v, stringsType); ok {
		return s.([]string)
	}
	return nil
}

// LookupResult is a model source together with the type name at which it
// matched during a registry lookup.
type LookupResult struct {
	Source       ModelSource
	ResolvedType string
}

func (r LookupResult) String() string {
	return fmt.Sprintf("%s@%s", sourceKey(r.Source), r.ResolvedType)
}

// ModelDefinition declares a model source and the types it is registered for
type ModelDefinition struct {
	Types  []string
	Source ModelSource
}

// NewSource returns a ModelSource creating new(T) for every mapping. The
// model type is *T.
func NewSource[T any](moduleID, name string) ModelSource {
	return &typeSource{
		moduleID: moduleID,
		name:     name,
		typ:      reflect.TypeOf((*T)(nil)),
		newFunc: func(context.Context) (any, error) {
			return new(T), nil
		},
	}
}

// NewFactorySource returns a ModelSource delegating instantiation to fn.
// typ must be the type of the values fn returns.
func NewFactorySource(moduleID, name string, typ reflect.Type, fn func(ctx context.Context) (any, error)) ModelSource {
	return &typeSource{moduleID: moduleID, name: name, typ: typ, newFunc: fn}
}

type typeSource struct {
	moduleID string
	name     string
	typ      reflect.Type
	newFunc  func(ctx context.Context) (any, error)
}

func (s *typeSource) ModuleID() string   { return s.moduleID }
func (s *typeSource) Name() string       { return s.name }
func (s *typeSource) Type() reflect.Type { return s.typ }

func (s *typeSource) New(ctx context.Context) (any, error) {
	return s.newFunc(ctx)
}

func (s *typeSource) String() string {
	return sourceKey(s)
}

// sameSource compares sources by module id and name
func sameSource(a, b ModelSource) bool {
	return a.ModuleID() == b.ModuleID() && a.Name() == b.Name()
}

func sourceKey(s ModelSource) string {
	return s.ModuleID() + "/" + s.Name()
}

// BindingKind is how a model field obtains its value
type BindingKind int

const (
	// BindComplex maps the node at the field path onto the field type
	BindComplex BindingKind = iota
	// BindThis assigns (an adaptation of) the mapped node itself
	BindThis
	// BindProperty reads a property value
	BindProperty
	// BindReference resolves paths stored in a property
	BindReference
	// BindChildren maps the children of a node
	BindChildren
)

func (k BindingKind) String() string {
	switch k {
	case BindThis:
		return "this"
	case BindProperty:
		return "property"
	case BindReference:
		return "reference"
	case BindChildren:
		return "children"
	default:
		return "complex"
	}
}

// CollectionKind classifies collection-typed fields
type CollectionKind int

const (
	// NotCollection is any non-collection field
	NotCollection CollectionKind = iota
	// ListCollection is a slice
	ListCollection
	// SetCollection is a map[T]struct{}
	SetCollection
	// UnsupportedCollection is an array or any other map type
	UnsupportedCollection
)

// Instantiable reports whether the engine can create empty instances of the kind
func (k CollectionKind) Instantiable() bool {
	return k == ListCollection || k == SetCollection
}

// OngoingFieldMapping is the state handed to a FieldMapper
type OngoingFieldMapping struct {
	// Model is the model under construction; post processors have not run yet
	Model any
	// Node is the node being mapped
	Node Node
	// Field describes the mapped field
	Field *FieldMetadata
	// Path is the field path with placeholders resolved
	Path string
	// Value is the resolved value, nil if nothing could be resolved
	Value any
	// Properties is the property view of Node
	Properties Properties
}

// isAbsolutePath reports whether path starts at the tree root
func isAbsolutePath(path string) bool {
	return strings.HasPrefix(path, "/")
}

// isRelativePath reports whether path traverses below or above the node
func isRelativePath(path string) bool {
	return !isAbsolutePath(path) && strings.Contains(path, "/")
}
