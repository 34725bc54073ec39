package contentmodel

import (
	"context"
	"reflect"
)

// Service defines the main interface of the content-model library
type Service interface {
	// Model registration
	Register(types []string, source ModelSource) (*Registration, error)
	RegisterModule(moduleID string, definitions ...ModelDefinition) ([]*Registration, error)
	UnregisterModule(moduleID string) int

	// Model resolution. A nil model without error means no unique model applies.
	ResolveMostSpecific(ctx context.Context, node Node) (any, error)
	ResolveMostSpecificIncludingBaseTypes(ctx context.Context, node Node) (any, error)
	ResolveMostSpecificType(ctx context.Context, node Node, target reflect.Type) (any, error)
	ResolveMostSpecificTypeIncludingBaseTypes(ctx context.Context, node Node, target reflect.Type) (any, error)
	ResolveMostSpecificName(ctx context.Context, node Node, name string) (any, error)
	ResolveMostSpecificNameIncludingBaseTypes(ctx context.Context, node Node, name string) (any, error)

	// Registry lookups
	LookupMostSpecific(ctx context.Context, node Node) ([]LookupResult, error)
	LookupMostSpecificType(ctx context.Context, node Node, target reflect.Type) ([]LookupResult, error)
	LookupMostSpecificName(ctx context.Context, node Node, name string) ([]LookupResult, error)
	LookupAll(ctx context.Context, node Node) ([]LookupResult, error)

	// Mapping and adaptation
	Map(ctx context.Context, node Node, result LookupResult) (any, error)
	Adapt(ctx context.Context, node Node, target reflect.Type) (any, error)

	// Administration
	ClearLookupCaches()
	TypeMappings() map[string][]ModelSource
	Metadata(t reflect.Type) (*ModelMetadata, error)
	AllMetadata() []*ModelMetadata
	ChangeListener() *ChangeListener
}

// ResolveAs resolves the most specific model of node assignable to T
func ResolveAs[T any](ctx context.Context, s Service, node Node) (T, error) {
	var zero T
	model, err := s.ResolveMostSpecificType(ctx, node, reflect.TypeOf((*T)(nil)).Elem())
	if err != nil || model == nil {
		return zero, err
	}
	typed, ok := model.(T)
	if !ok {
		return zero, nil
	}
	return typed, nil
}
