package contentmodel

import (
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type level string

func TestConvertValue(t *testing.T) {
	tests := []struct {
		name   string
		value  any
		target reflect.Type
		want   any
		ok     bool
	}{
		{"SameType", "a", stringType, "a", true},
		{"NumericString", "42", reflect.TypeOf(0), 42, true},
		{"FloatToInt", 4.9, reflect.TypeOf(int32(0)), int32(4), true},
		{"IntToString", 7, stringType, "7", true},
		{"BoolString", "true", reflect.TypeOf(false), true, true},
		{"NumberToBool", 0, reflect.TypeOf(false), false, true},
		{"NamedString", "info", reflect.TypeOf(level("")), level("info"), true},
		{"FirstOfMany", []string{"x", "y"}, stringType, "x", true},
		{"EmptyMany", []string{}, stringType, nil, false},
		{"SingleToSlice", "x", stringsType, []string{"x"}, true},
		{"AnySlice", []any{"1", 2, "nope"}, reflect.TypeOf([]int(nil)), []int{1, 2}, true},
		{"Unconvertible", "abc", reflect.TypeOf(0), nil, false},
		{"Nil", nil, stringType, nil, false},
		{"Struct", "x", reflect.TypeOf(struct{}{}), nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := convertValue(tt.value, tt.target)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConvertValue_Pointers(t *testing.T) {
	got, ok := convertValue("2.5", reflect.TypeOf((*float64)(nil)))
	require.True(t, ok)
	require.IsType(t, (*float64)(nil), got)
	assert.Equal(t, 2.5, *got.(*float64))

	var nilString *string
	_, ok = convertValue(nilString, stringType)
	assert.False(t, ok)
}

func TestConvertValue_Time(t *testing.T) {
	want := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	got, ok := convertValue("2024-01-02", timeType)
	require.True(t, ok)
	assert.True(t, want.Equal(got.(time.Time)))

	got, ok = convertValue("2024-01-02T00:00:00Z", timeType)
	require.True(t, ok)
	assert.True(t, want.Equal(got.(time.Time)))

	got, ok = convertValue(want.UnixMilli(), timeType)
	require.True(t, ok)
	assert.True(t, want.Equal(got.(time.Time)))

	_, ok = convertValue("yesterday", timeType)
	assert.False(t, ok)
}

func TestIsPropertyType(t *testing.T) {
	assert.True(t, isPropertyType(stringType))
	assert.True(t, isPropertyType(reflect.TypeOf((*int)(nil))))
	assert.True(t, isPropertyType(timeType))
	assert.True(t, isPropertyType(reflect.TypeOf(level(""))))
	assert.False(t, isPropertyType(stringsType))
	assert.False(t, isPropertyType(propertiesType))
	assert.False(t, isPropertyType(reflect.TypeOf(struct{}{})))
}
