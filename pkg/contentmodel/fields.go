package contentmodel

import (
	"context"
	"path"
	"reflect"
	"unsafe"
)

// fieldMapping populates the fields of one model instance from one node
type fieldMapping struct {
	service    *service
	model      any
	ptr        unsafe.Pointer
	node       Node
	properties Properties
}

func (fm *fieldMapping) mapField(ctx context.Context, field *FieldMetadata) error {
	fieldPath := field.Path.Resolve(fm.service.placeholders)
	if field.IsLazy() {
		fm.setLazy(ctx, field, fieldPath)
		return nil
	}

	// collections are never left nil, unless they were initialized by the model
	preset := field.Collection.Instantiable() && !fm.isNil(field)
	value, err := fm.load(ctx, field, fieldPath, preset)
	if err != nil {
		return err
	}
	if value != nil {
		fm.set(ctx, field, value)
	}
	return nil
}

// load resolves the value of field, applying its field mapper. Collections
// without a preset value resolve to an empty instance rather than nil.
func (fm *fieldMapping) load(ctx context.Context, field *FieldMetadata, fieldPath string, preset bool) (any, error) {
	var (
		value any
		err   error
	)
	if fm.isMappable(field, fieldPath) {
		value, err = fm.resolve(ctx, field, fieldPath)
		if err != nil {
			return nil, err
		}
	}

	var defaultValue any
	if value == nil && field.Collection.Instantiable() && !preset {
		defaultValue = newCollection(field.Type, 0).Interface()
	}
	if value == nil {
		value = defaultValue
	}

	if field.Mapper != "" {
		value, err = fm.applyFieldMapper(ctx, field, fieldPath, value)
		if err != nil {
			return nil, err
		}
		if value == nil {
			value = defaultValue
		}
	}
	return value, nil
}

// setLazy assigns a *Lazy[T] loading the field value on first access
func (fm *fieldMapping) setLazy(ctx context.Context, field *FieldMetadata, fieldPath string) {
	lazy := reflect.New(field.lazy.Elem())
	lazy.Interface().(lazyValue).setLoader(func() (any, error) {
		value, err := fm.load(ctx, field, fieldPath, false)
		if err != nil || value == nil {
			return nil, err
		}
		rv, ok := fm.assignable(ctx, field, value)
		if !ok {
			return nil, nil
		}
		return rv.Interface(), nil
	})
	field.value(fm.ptr).Set(lazy)
}

// isMappable reports whether the field can obtain a value. Without
// properties, only fields referring to the node itself or other nodes can.
func (fm *fieldMapping) isMappable(field *FieldMetadata, fieldPath string) bool {
	return fm.properties != nil ||
		field.Binding != BindProperty ||
		isAbsolutePath(fieldPath) ||
		isRelativePath(fieldPath)
}

func (fm *fieldMapping) resolve(ctx context.Context, field *FieldMetadata, fieldPath string) (any, error) {
	switch field.Binding {
	case BindThis:
		return fm.service.convertNode(ctx, fm.node, field.Type)
	case BindChildren:
		return fm.children(ctx, field, fieldPath)
	case BindReference:
		return fm.reference(ctx, field, fieldPath)
	case BindProperty:
		if field.Collection.Instantiable() {
			return fm.propertyCollection(ctx, field, fieldPath)
		}
		return fm.property(ctx, fieldPath, field.Type)
	default:
		node, err := fm.resolveNode(ctx, fieldPath)
		if err != nil || node == nil {
			return nil, err
		}
		return fm.service.convertNode(ctx, node, field.Type)
	}
}

// property reads the property at fieldPath converted to target. Absolute and
// relative paths address a property of another node.
func (fm *fieldMapping) property(ctx context.Context, fieldPath string, target reflect.Type) (any, error) {
	properties := fm.properties
	name := fieldPath
	if isAbsolutePath(fieldPath) || isRelativePath(fieldPath) {
		owner, err := fm.resolveNode(ctx, path.Dir(fieldPath))
		if err != nil || owner == nil {
			return nil, err
		}
		properties = owner.Properties()
		name = lastSegment(fieldPath)
	}

	raw, ok := properties.Get(name)
	if !ok || raw == nil {
		return nil, nil
	}
	value, ok := convertValue(raw, target)
	if !ok {
		fm.service.logger.DebugContext(ctx, "property cannot be converted",
			"path", fm.node.Path(), "property", fieldPath, "type", target.String())
		return nil, nil
	}
	return value, nil
}

func (fm *fieldMapping) propertyCollection(ctx context.Context, field *FieldMetadata, fieldPath string) (any, error) {
	elements, err := fm.property(ctx, fieldPath, reflect.SliceOf(field.ComponentType))
	if err != nil || elements == nil {
		return nil, err
	}
	values := reflect.ValueOf(elements)
	collection := newCollection(field.Type, values.Len())
	for i := 0; i < values.Len(); i++ {
		collection = addToCollection(collection, values.Index(i))
	}
	return collection.Interface(), nil
}

func (fm *fieldMapping) reference(ctx context.Context, field *FieldMetadata, fieldPath string) (any, error) {
	if field.Collection == NotCollection {
		referenced, err := fm.property(ctx, fieldPath, stringType)
		if err != nil || referenced == nil || referenced.(string) == "" {
			return nil, err
		}
		node, err := fm.resolveNode(ctx, joinPath(referenced.(string), field.AppendPath))
		if err != nil || node == nil {
			return nil, err
		}
		return fm.service.convertNode(ctx, node, field.Type)
	}

	referenced, err := fm.property(ctx, fieldPath, stringsType)
	if err != nil || referenced == nil {
		return nil, err
	}
	paths := referenced.([]string)
	collection := newCollection(field.Type, len(paths))
	for _, p := range paths {
		node, err := fm.resolveNode(ctx, joinPath(p, field.AppendPath))
		if err != nil {
			return nil, err
		}
		if collection, err = fm.addNode(ctx, collection, node, field.ComponentType); err != nil {
			return nil, err
		}
	}
	return nonEmpty(collection), nil
}

func (fm *fieldMapping) children(ctx context.Context, field *FieldMetadata, fieldPath string) (any, error) {
	collection := newCollection(field.Type, 0)

	var (
		parent Node
		err    error
	)
	switch {
	case field.IsReference():
		referenced, rerr := fm.property(ctx, fieldPath, stringType)
		if rerr != nil {
			return nil, rerr
		}
		if referenced != nil && referenced.(string) != "" {
			parent, err = fm.resolveNode(ctx, referenced.(string))
		}
	default:
		// the field path defaults to a child named after the field; "." is the node itself
		parent, err = fm.resolveNode(ctx, fieldPath)
	}
	if err != nil {
		return nil, err
	}
	if parent == nil {
		return nil, nil
	}

	tree := parent.Tree()
	if tree == nil {
		return nil, ErrNoTree
	}
	children, err := tree.Children(ctx, parent)
	if err != nil {
		return nil, err
	}
	for _, child := range children {
		if field.BelowEveryChild != "" {
			child, err = tree.Resolve(ctx, child, field.BelowEveryChild)
			if err != nil {
				return nil, err
			}
			if child == nil {
				continue
			}
		}
		if collection, err = fm.addNode(ctx, collection, child, field.ComponentType); err != nil {
			return nil, err
		}
	}
	return nonEmpty(collection), nil
}

// addNode converts node to the component type and adds it to collection.
// Nodes that cannot be converted are dropped.
func (fm *fieldMapping) addNode(ctx context.Context, collection reflect.Value, node Node, component reflect.Type) (reflect.Value, error) {
	if node == nil {
		return collection, nil
	}
	element, err := fm.service.convertNode(ctx, node, component)
	if err != nil || element == nil {
		return collection, err
	}
	value := reflect.ValueOf(element)
	if !value.Type().AssignableTo(component) {
		return collection, nil
	}
	return addToCollection(collection, value), nil
}

func (fm *fieldMapping) resolveNode(ctx context.Context, p string) (Node, error) {
	tree := fm.node.Tree()
	if tree == nil {
		return nil, ErrNoTree
	}
	return tree.Resolve(ctx, fm.node, p)
}

func (fm *fieldMapping) applyFieldMapper(ctx context.Context, field *FieldMetadata, fieldPath string, value any) (any, error) {
	mapper, ok := fm.service.fieldMappers[field.Mapper]
	if !ok {
		fm.service.logger.WarnContext(ctx, "no field mapper registered", "mapper", field.Mapper, "field", field.Name)
		return value, nil
	}
	return mapper.MapField(ctx, &OngoingFieldMapping{
		Model:      fm.model,
		Node:       fm.node,
		Field:      field,
		Path:       fieldPath,
		Value:      value,
		Properties: fm.properties,
	})
}

func (fm *fieldMapping) isNil(field *FieldMetadata) bool {
	return field.value(fm.ptr).IsNil()
}

// set assigns value to the field. Values of another type are converted if
// possible and dropped otherwise.
func (fm *fieldMapping) set(ctx context.Context, field *FieldMetadata, value any) {
	if rv, ok := fm.assignable(ctx, field, value); ok {
		field.value(fm.ptr).Set(rv)
	}
}

func (fm *fieldMapping) assignable(ctx context.Context, field *FieldMetadata, value any) (reflect.Value, bool) {
	rv := reflect.ValueOf(value)
	if rv.Type().AssignableTo(field.Type) {
		return rv, true
	}
	converted, ok := convertReflect(rv, field.Type)
	if !ok {
		fm.service.logger.DebugContext(ctx, "value not assignable to field",
			"path", fm.node.Path(), "field", field.Name, "type", rv.Type().String())
		return reflect.Value{}, false
	}
	return converted, true
}

// newCollection creates an empty list or set of type t
func newCollection(t reflect.Type, capacity int) reflect.Value {
	if t.Kind() == reflect.Map {
		return reflect.MakeMapWithSize(t, capacity)
	}
	return reflect.MakeSlice(t, 0, capacity)
}

// nonEmpty returns the collection, or nil if it has no elements so that
// preset field values survive
func nonEmpty(collection reflect.Value) any {
	if collection.Len() == 0 {
		return nil
	}
	return collection.Interface()
}

func addToCollection(collection, element reflect.Value) reflect.Value {
	if collection.Kind() == reflect.Map {
		collection.SetMapIndex(element, reflect.Zero(collection.Type().Elem()))
		return collection
	}
	return reflect.Append(collection, element)
}
