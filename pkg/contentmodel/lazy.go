package contentmodel

import (
	"reflect"
	"sync"
	"sync/atomic"
)

// Lazy is a model field value resolved on first access. Model fields of type
// *Lazy[T] are bound like fields of type T but are never nil after mapping;
// the node is only read when Get is called.
type Lazy[T any] struct {
	once   sync.Once
	loaded atomic.Bool
	load   func() (any, error)
	value  T
	err    error
}

// NewLazy returns a lazy value loaded by fn
func NewLazy[T any](fn func() (T, error)) *Lazy[T] {
	return &Lazy[T]{load: func() (any, error) { return fn() }}
}

// Get loads the value on the first call and returns it on every call
func (l *Lazy[T]) Get() (T, error) {
	l.once.Do(func() {
		defer l.loaded.Store(true)
		if l.load == nil {
			return
		}
		value, err := l.load()
		l.load = nil
		if err != nil {
			l.err = err
			return
		}
		if typed, ok := value.(T); ok {
			l.value = typed
		}
	})
	return l.value, l.err
}

// Value returns the loaded value, the zero value if loading failed
func (l *Lazy[T]) Value() T {
	value, _ := l.Get()
	return value
}

// Loaded reports whether the value was loaded
func (l *Lazy[T]) Loaded() bool {
	return l.loaded.Load()
}

func (l *Lazy[T]) valueType() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

func (l *Lazy[T]) setLoader(fn func() (any, error)) {
	l.load = fn
}

// lazyValue is implemented by *Lazy[T] for any T
type lazyValue interface {
	valueType() reflect.Type
	setLoader(fn func() (any, error))
}

var lazyValueType = reflect.TypeOf((*lazyValue)(nil)).Elem()

// lazyElemOf returns T for t = *Lazy[T]
func lazyElemOf(t reflect.Type) (reflect.Type, bool) {
	if t.Kind() != reflect.Pointer || !t.Implements(lazyValueType) {
		return nil, false
	}
	return reflect.New(t.Elem()).Interface().(lazyValue).valueType(), true
}
