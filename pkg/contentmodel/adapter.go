package contentmodel

import (
	"context"
	"fmt"
	"reflect"
)

// Adapt converts node to target. The configured adapters are asked first,
// then Properties targets receive the property view of the node, and finally
// the model registered for the node that is assignable to target is mapped.
// A nil result means node cannot be adapted.
func (s *service) Adapt(ctx context.Context, node Node, target reflect.Type) (any, error) {
	if node == nil {
		return nil, ErrNilNode
	}
	if target == nil {
		return nil, fmt.Errorf("adapt %s: target type is nil", node.Path())
	}
	if reflect.TypeOf(node).AssignableTo(target) {
		return node, nil
	}

	for _, adapter := range s.adapters {
		adapted, err := adapter.Adapt(ctx, node, target)
		if err != nil {
			return nil, &LookupError{Path: node.Path(), Op: "adapt", Err: err}
		}
		if adapted != nil {
			return adapted, nil
		}
	}

	if target == propertiesType {
		if properties := node.Properties(); properties != nil {
			return properties, nil
		}
		return nil, nil
	}

	return s.resolve(ctx, node, resolveQuery{
		kind:             queryByType,
		param:            target.String(),
		target:           target,
		includeBaseTypes: true,
	})
}

// convertNode returns node if it is assignable to target, its adaptation otherwise
func (s *service) convertNode(ctx context.Context, node Node, target reflect.Type) (any, error) {
	if node == nil {
		return nil, nil
	}
	if reflect.TypeOf(node).AssignableTo(target) {
		return node, nil
	}
	return s.Adapt(ctx, node, target)
}
