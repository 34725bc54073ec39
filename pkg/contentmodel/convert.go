package contentmodel

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"golang.org/x/exp/constraints"
)

var (
	stringType     = reflect.TypeOf("")
	stringsType    = reflect.TypeOf([]string(nil))
	timeType       = reflect.TypeOf(time.Time{})
	nodeType       = reflect.TypeOf((*Node)(nil)).Elem()
	propertiesType = reflect.TypeOf(Properties(nil))
)

// dateLayouts are the string formats accepted for time.Time properties
var dateLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}

// isPropertyType reports whether values of t are read from node properties
func isPropertyType(t reflect.Type) bool {
	if t == timeType {
		return true
	}
	switch t.Kind() {
	case reflect.String, reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	case reflect.Pointer:
		return isPropertyType(t.Elem())
	}
	return false
}

// convertValue converts a raw property value to a value of exactly type target
func convertValue(v any, target reflect.Type) (any, bool) {
	rv, ok := convertReflect(reflect.ValueOf(v), target)
	if !ok {
		return nil, false
	}
	return rv.Interface(), true
}

func convertReflect(rv reflect.Value, target reflect.Type) (reflect.Value, bool) {
	for rv.IsValid() && (rv.Kind() == reflect.Interface || rv.Kind() == reflect.Pointer) {
		if rv.IsNil() {
			return reflect.Value{}, false
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		return reflect.Value{}, false
	}
	if rv.Type() == target {
		return rv, true
	}

	switch target.Kind() {
	case reflect.Pointer:
		elem, ok := convertReflect(rv, target.Elem())
		if !ok {
			return reflect.Value{}, false
		}
		ptr := reflect.New(target.Elem())
		ptr.Elem().Set(elem)
		return ptr, true
	case reflect.Slice:
		return convertSlice(rv, target)
	}

	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		// a multi-valued property read as a single value yields its first entry
		if rv.Len() == 0 {
			return reflect.Value{}, false
		}
		return convertReflect(rv.Index(0), target)
	}

	if target == timeType {
		t, ok := toTime(rv)
		if !ok {
			return reflect.Value{}, false
		}
		return reflect.ValueOf(t), true
	}

	var (
		converted reflect.Value
		ok        bool
	)
	switch target.Kind() {
	case reflect.String:
		var s string
		s, ok = toString(rv)
		converted = reflect.ValueOf(s)
	case reflect.Bool:
		var b bool
		b, ok = toBool(rv)
		converted = reflect.ValueOf(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		var n int64
		n, ok = number[int64](rv)
		converted = reflect.ValueOf(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		var n uint64
		n, ok = number[uint64](rv)
		converted = reflect.ValueOf(n)
	case reflect.Float32, reflect.Float64:
		var f float64
		f, ok = number[float64](rv)
		converted = reflect.ValueOf(f)
	default:
		if rv.Type().AssignableTo(target) {
			return rv, true
		}
		return reflect.Value{}, false
	}
	if !ok {
		return reflect.Value{}, false
	}
	return converted.Convert(target), true
}

func convertSlice(rv reflect.Value, target reflect.Type) (reflect.Value, bool) {
	elemType := target.Elem()
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		elem, ok := convertReflect(rv, elemType)
		if !ok {
			return reflect.Value{}, false
		}
		return reflect.Append(reflect.MakeSlice(target, 0, 1), elem), true
	}
	out := reflect.MakeSlice(target, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		elem, ok := convertReflect(rv.Index(i), elemType)
		if !ok {
			continue
		}
		out = reflect.Append(out, elem)
	}
	return out, true
}

// number converts numeric, boolean and numeric string values
func number[T constraints.Integer | constraints.Float](rv reflect.Value) (T, bool) {
	switch {
	case rv.CanInt():
		return T(rv.Int()), true
	case rv.CanUint():
		return T(rv.Uint()), true
	case rv.CanFloat():
		return T(rv.Float()), true
	case rv.Kind() == reflect.Bool:
		if rv.Bool() {
			return 1, true
		}
		return 0, true
	case rv.Kind() == reflect.String:
		s := strings.TrimSpace(rv.String())
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return T(i), true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return T(f), true
		}
	}
	return 0, false
}

func toString(rv reflect.Value) (string, bool) {
	switch {
	case rv.Kind() == reflect.String:
		return rv.String(), true
	case rv.Kind() == reflect.Bool:
		return strconv.FormatBool(rv.Bool()), true
	case rv.CanInt():
		return strconv.FormatInt(rv.Int(), 10), true
	case rv.CanUint():
		return strconv.FormatUint(rv.Uint(), 10), true
	case rv.CanFloat():
		return strconv.FormatFloat(rv.Float(), 'f', -1, 64), true
	case rv.Type() == timeType:
		return rv.Interface().(time.Time).Format(time.RFC3339), true
	}
	if s, ok := rv.Interface().(fmt.Stringer); ok {
		return s.String(), true
	}
	return "", false
}

func toBool(rv reflect.Value) (bool, bool) {
	switch {
	case rv.Kind() == reflect.Bool:
		return rv.Bool(), true
	case rv.Kind() == reflect.String:
		b, err := strconv.ParseBool(strings.TrimSpace(rv.String()))
		return b, err == nil
	case rv.CanInt(), rv.CanUint(), rv.CanFloat():
		n, _ := number[float64](rv)
		return n != 0, true
	}
	return false, false
}

func toTime(rv reflect.Value) (time.Time, bool) {
	switch {
	case rv.Type() == timeType:
		return rv.Interface().(time.Time), true
	case rv.Kind() == reflect.String:
		s := strings.TrimSpace(rv.String())
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, true
			}
		}
	case rv.CanInt():
		return time.UnixMilli(rv.Int()).UTC(), true
	}
	return time.Time{}, false
}
