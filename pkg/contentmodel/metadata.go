package contentmodel

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/viant/xunsafe"
)

const (
	tagName            = "content"
	beforeMappingHooks = "BeforeMapping"
	afterMappingHooks  = "AfterMapping"
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// FieldMetadata describes how one model field is mapped
type FieldMetadata struct {
	// Name is the Go field name; embedded fields are qualified by their embedding path
	Name string
	// Path is the declared or implicit path of the field
	Path ResourcePath
	// Binding is how the field obtains its value
	Binding BindingKind
	// Type is the type of the field value; T for fields declared as *Lazy[T]
	Type reflect.Type
	// ComponentType is the element type of collection fields
	ComponentType reflect.Type
	// Collection classifies the field type
	Collection CollectionKind
	// AppendPath is appended to every referenced path
	AppendPath string
	// BelowEveryChild narrows every child to the node at this relative path
	BelowEveryChild string
	// Mapper is the name of the custom FieldMapper applied to the field
	Mapper string

	explicitPath bool
	reference    bool
	lazy         reflect.Type
	offset       uintptr
	field        *xunsafe.Field
}

// HasExplicitPath reports whether the path was declared in the tag
func (f *FieldMetadata) HasExplicitPath() bool {
	return f.explicitPath
}

// IsLazy reports whether the field is declared as *Lazy[T]
func (f *FieldMetadata) IsLazy() bool {
	return f.lazy != nil
}

// IsReference reports whether the field path is read from a reference property
func (f *FieldMetadata) IsReference() bool {
	return f.reference
}

func (f *FieldMetadata) String() string {
	return fmt.Sprintf("%s(%s %s)", f.Name, f.Binding, f.Path)
}

// pointer returns the address of the field within the struct at structPtr
func (f *FieldMetadata) pointer(structPtr unsafe.Pointer) unsafe.Pointer {
	return f.field.Pointer(unsafe.Add(structPtr, f.offset))
}

// value returns the settable field of the struct at structPtr
func (f *FieldMetadata) value(structPtr unsafe.Pointer) reflect.Value {
	declared := f.Type
	if f.lazy != nil {
		declared = f.lazy
	}
	return reflect.NewAt(declared, f.pointer(structPtr)).Elem()
}

// ModelMetadata describes a model type; computed once per type
type ModelMetadata struct {
	// Type is the model type, a pointer to a struct
	Type reflect.Type
	// Fields are the mappable fields in declaration order
	Fields []*FieldMetadata
	// Statistics are the runtime statistics of the model type
	Statistics *ModelStatistics

	beforeHooks []reflect.Method
	afterHooks  []reflect.Method
}

// TypeName returns the qualified name of the model struct
func (m *ModelMetadata) TypeName() string {
	return m.Type.Elem().String()
}

// BeforeMappingMethods returns the names of the pre-mapping hook methods
func (m *ModelMetadata) BeforeMappingMethods() []string {
	return methodNames(m.beforeHooks)
}

// AfterMappingMethods returns the names of the post-mapping hook methods
func (m *ModelMetadata) AfterMappingMethods() []string {
	return methodNames(m.afterHooks)
}

func methodNames(methods []reflect.Method) []string {
	names := make([]string, len(methods))
	for i, m := range methods {
		names[i] = m.Name
	}
	return names
}

// newModelMetadata inspects the model type t, which must be a pointer to a struct
func newModelMetadata(t reflect.Type) (*ModelMetadata, error) {
	if t == nil || t.Kind() != reflect.Pointer || t.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: model type %v is not a pointer to a struct", ErrInvalidSource, t)
	}
	meta := &ModelMetadata{
		Type:       t,
		Statistics: newModelStatistics(),
	}
	fields, err := collectFields(t.Elem(), 0, "")
	if err != nil {
		return nil, err
	}
	meta.Fields = fields

	for i := 0; i < t.NumMethod(); i++ {
		method := t.Method(i)
		if !isHookSignature(method.Type) {
			continue
		}
		switch {
		case strings.HasPrefix(method.Name, beforeMappingHooks):
			meta.beforeHooks = append(meta.beforeHooks, method)
		case strings.HasPrefix(method.Name, afterMappingHooks):
			meta.afterHooks = append(meta.afterHooks, method)
		}
	}
	sort.Slice(meta.beforeHooks, func(i, j int) bool { return meta.beforeHooks[i].Name < meta.beforeHooks[j].Name })
	sort.Slice(meta.afterHooks, func(i, j int) bool { return meta.afterHooks[i].Name < meta.afterHooks[j].Name })
	return meta, nil
}

// isHookSignature accepts methods without arguments returning nothing or an error
func isHookSignature(m reflect.Type) bool {
	if m.NumIn() != 1 {
		return false
	}
	switch m.NumOut() {
	case 0:
		return true
	case 1:
		return m.Out(0) == errorType
	}
	return false
}

func collectFields(t reflect.Type, offset uintptr, prefix string) ([]*FieldMetadata, error) {
	var fields []*FieldMetadata
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		tag, tagged := sf.Tag.Lookup(tagName)
		if tag == "-" {
			continue
		}
		if sf.Anonymous && !tagged && sf.Type.Kind() == reflect.Struct {
			embedded, err := collectFields(sf.Type, offset+sf.Offset, prefix+sf.Name+".")
			if err != nil {
				return nil, err
			}
			fields = append(fields, embedded...)
			continue
		}
		if !sf.IsExported() && !tagged {
			continue
		}
		if !isMappableKind(sf.Type) {
			continue
		}

		field, err := newFieldMetadata(sf, tag, offset, prefix)
		if err != nil {
			return nil, fmt.Errorf("field %s%s of %s: %w", prefix, sf.Name, t, err)
		}
		if field != nil {
			fields = append(fields, field)
		}
	}
	return fields, nil
}

func isMappableKind(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Func, reflect.Chan, reflect.UnsafePointer, reflect.Uintptr:
		return false
	}
	return true
}

// newFieldMetadata returns nil for fields the engine cannot map
func newFieldMetadata(sf reflect.StructField, tag string, offset uintptr, prefix string) (*FieldMetadata, error) {
	opts, err := parseTag(tag)
	if err != nil {
		return nil, err
	}

	valueType := sf.Type
	if elem, ok := lazyElemOf(sf.Type); ok {
		valueType = elem
	}
	field := &FieldMetadata{
		Name:            prefix + sf.Name,
		Type:            valueType,
		AppendPath:      opts.appendPath,
		BelowEveryChild: opts.below,
		Mapper:          opts.mapper,
		explicitPath:    opts.path != "",
		reference:       opts.reference,
		offset:          offset,
		field:           xunsafe.NewField(sf),
	}
	path := opts.path
	if path == "" {
		path = sf.Name
	}
	if valueType != sf.Type {
		field.lazy = sf.Type
	}
	field.Path = newResourcePath(path, field.explicitPath)
	field.Collection, field.ComponentType = collectionOf(valueType)

	switch {
	case opts.this:
		field.Binding = BindThis
	case opts.children:
		if !field.Collection.Instantiable() {
			return nil, nil
		}
		field.Binding = BindChildren
	case opts.reference:
		if field.Collection != NotCollection && !field.Collection.Instantiable() {
			return nil, nil
		}
		field.Binding = BindReference
	case field.Collection == UnsupportedCollection:
		return nil, nil
	case isPropertyType(valueType),
		field.Collection.Instantiable() && isPropertyType(field.ComponentType):
		field.Binding = BindProperty
	default:
		field.Binding = BindComplex
	}
	if field.AppendPath != "" && field.Binding != BindReference {
		return nil, fmt.Errorf("%w: append requires reference", ErrInvalidTag)
	}
	if field.BelowEveryChild != "" && field.Binding != BindChildren {
		return nil, fmt.Errorf("%w: below requires children", ErrInvalidTag)
	}
	return field, nil
}

func collectionOf(t reflect.Type) (CollectionKind, reflect.Type) {
	switch t.Kind() {
	case reflect.Slice:
		return ListCollection, t.Elem()
	case reflect.Array:
		return UnsupportedCollection, t.Elem()
	case reflect.Map:
		if t == propertiesType {
			return NotCollection, nil
		}
		if t.Elem().Kind() == reflect.Struct && t.Elem().NumField() == 0 {
			return SetCollection, t.Key()
		}
		return UnsupportedCollection, nil
	}
	return NotCollection, nil
}

type tagOptions struct {
	path       string
	this       bool
	reference  bool
	children   bool
	appendPath string
	below      string
	mapper     string
}

// parseTag parses `content:"path,option,key=value"`
func parseTag(tag string) (tagOptions, error) {
	var opts tagOptions
	if tag == "" {
		return opts, nil
	}
	parts := strings.Split(tag, ",")
	opts.path = strings.TrimSpace(parts[0])
	if parts[0] != "" && opts.path == "" {
		return opts, fmt.Errorf("%w: blank path", ErrInvalidTag)
	}
	for _, part := range parts[1:] {
		key, value, _ := strings.Cut(strings.TrimSpace(part), "=")
		switch key {
		case "this":
			opts.this = true
		case "reference":
			opts.reference = true
		case "children":
			opts.children = true
		case "append":
			opts.appendPath = value
		case "below":
			opts.below = value
		case "mapper":
			opts.mapper = value
		case "":
		default:
			return opts, fmt.Errorf("%w: unknown option %q", ErrInvalidTag, key)
		}
	}
	if opts.this && (opts.reference || opts.children) {
		return opts, fmt.Errorf("%w: this cannot be combined with reference or children", ErrInvalidTag)
	}
	return opts, nil
}

type metadataEntry struct {
	// registrations per module
	modules  map[string]int
	metadata *ModelMetadata
}

func (e metadataEntry) withRegistrations(moduleID string, delta int) metadataEntry {
	modules := make(map[string]int, len(e.modules)+1)
	for m, n := range e.modules {
		modules[m] = n
	}
	if n := modules[moduleID] + delta; n > 0 {
		modules[moduleID] = n
	} else {
		delete(modules, moduleID)
	}
	return metadataEntry{modules: modules, metadata: e.metadata}
}

// MetadataRegistrar computes model metadata once per model type and keeps
// it until every registration of the type is released or its module
// removed. Reads never lock.
type MetadataRegistrar struct {
	mu      sync.Mutex
	entries atomic.Pointer[map[reflect.Type]metadataEntry]
}

// NewMetadataRegistrar creates an empty registrar
func NewMetadataRegistrar() *MetadataRegistrar {
	r := &MetadataRegistrar{}
	empty := make(map[reflect.Type]metadataEntry)
	r.entries.Store(&empty)
	return r
}

// Register returns the metadata of t, computing it on first registration
func (r *MetadataRegistrar) Register(moduleID string, t reflect.Type) (*ModelMetadata, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current := *r.entries.Load()
	entry, ok := current[t]
	if !ok {
		meta, err := newModelMetadata(t)
		if err != nil {
			return nil, err
		}
		entry = metadataEntry{metadata: meta}
	}
	r.store(current, t, entry.withRegistrations(moduleID, 1))
	return entry.metadata, nil
}

// Release drops one registration of t by the module. The metadata is
// removed with the last registration of the type.
func (r *MetadataRegistrar) Release(moduleID string, t reflect.Type) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current := *r.entries.Load()
	entry, ok := current[t]
	if !ok || entry.modules[moduleID] == 0 {
		return
	}
	r.store(current, t, entry.withRegistrations(moduleID, -1))
}

// store replaces the entry of t, dropping it when no registrations remain;
// r.mu must be held
func (r *MetadataRegistrar) store(current map[reflect.Type]metadataEntry, t reflect.Type, entry metadataEntry) {
	next := make(map[reflect.Type]metadataEntry, len(current)+1)
	for k, v := range current {
		next[k] = v
	}
	if len(entry.modules) > 0 {
		next[t] = entry
	} else {
		delete(next, t)
	}
	r.entries.Store(&next)
}

// Metadata returns the metadata of a registered model type
func (r *MetadataRegistrar) Metadata(t reflect.Type) (*ModelMetadata, error) {
	entry, ok := (*r.entries.Load())[t]
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrMetadataNotFound, t)
	}
	return entry.metadata, nil
}

// All returns the metadata of all registered model types, ordered by type name
func (r *MetadataRegistrar) All() []*ModelMetadata {
	entries := *r.entries.Load()
	all := make([]*ModelMetadata, 0, len(entries))
	for _, entry := range entries {
		all = append(all, entry.metadata)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].TypeName() < all[j].TypeName() })
	return all
}

// RemoveModule drops the metadata of model types no other module registered
func (r *MetadataRegistrar) RemoveModule(moduleID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current := *r.entries.Load()
	next := make(map[reflect.Type]metadataEntry, len(current))
	for k, v := range current {
		if v = v.withRegistrations(moduleID, -v.modules[moduleID]); len(v.modules) > 0 {
			next[k] = v
		}
	}
	r.entries.Store(&next)
}
