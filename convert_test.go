package dbqprep

import (
	"math"
	"testing"
	"time"
)

func TestToFloat64(t *testing.T) {
	tests := []struct {
		name        string
		input       interface{}
		expected    float64
		expectError bool
	}{
		{"float64", float64(123.45), 123.45, false},
		{"float32", float32(123.45), float64(float32(123.45)), false},
		{"int", int(123), 123.0, false},
		{"int8", int8(123), 123.0, false},
		{"int16", int16(123), 123.0, false},
		{"int32", int32(123), 123.0, false},
		{"int64", int64(123), 123.0, false},
		{"uint", uint(123), 123.0, false},
		{"uint8", uint8(123), 123.0, false},
		{"uint16", uint16(123), 123.0, false},
		{"uint32", uint32(123), 123.0, false},
		{"uint64", uint64(123), 123.0, false},
		{"string valid", "123.45", 123.45, false},
		{"string padded", " 29.85 ", 29.85, false},
		{"bytes", []byte("7"), 7, false},
		{"string blank", " ", 0, true},
		{"string invalid", "not-a-number", 0, true},
		{"bool", true, 0, true},
		{"unsupported type", []int{1, 2, 3}, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ToFloat64(tt.input)

			if tt.expectError {
				if err == nil {
					t.Errorf("ToFloat64() expected error but got none")
				}
			} else {
				if err != nil {
					t.Errorf("ToFloat64() unexpected error: %v", err)
				}
				if result != tt.expected {
					t.Errorf("ToFloat64() = %v, expected %v", result, tt.expected)
				}
			}
		})
	}
}

func TestIsNull(t *testing.T) {
	tests := []struct {
		input    any
		expected bool
	}{
		{nil, true},
		{math.NaN(), true},
		{float32(math.NaN()), true},
		{0.0, false},
		{"", false},
		{" ", false},
		{int64(0), false},
	}

	for _, tt := range tests {
		if got := IsNull(tt.input); got != tt.expected {
			t.Errorf("IsNull(%#v) = %v, expected %v", tt.input, got, tt.expected)
		}
	}
}

func TestValueKey(t *testing.T) {
	same := [][]any{
		{int64(1), 1, 1.0, uint8(1), float32(1)},
		{"Male", []byte("Male")},
		{time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), time.Date(2024, 1, 2, 4, 4, 5, 0, time.FixedZone("CET", 3600))},
	}
	for _, group := range same {
		for _, v := range group[1:] {
			if ValueKey(v) != ValueKey(group[0]) {
				t.Errorf("ValueKey(%#v) = %q, expected %q", v, ValueKey(v), ValueKey(group[0]))
			}
		}
	}

	distinct := []any{nil, "1", int64(1), true, "true", 1.5}
	seen := make(map[string]any)
	for _, v := range distinct {
		key := ValueKey(v)
		if prev, ok := seen[key]; ok {
			t.Errorf("ValueKey(%#v) collides with ValueKey(%#v): %q", v, prev, key)
		}
		seen[key] = v
	}
}

func TestInferDType(t *testing.T) {
	tests := []struct {
		input    any
		expected DType
	}{
		{int64(1), DTypeInt},
		{uint16(1), DTypeInt},
		{1.5, DTypeFloat},
		{"x", DTypeString},
		{false, DTypeBool},
		{time.Now(), DTypeDatetime},
		{struct{}{}, DTypeUnknown},
	}

	for _, tt := range tests {
		if got := InferDType(tt.input); got != tt.expected {
			t.Errorf("InferDType(%#v) = %v, expected %v", tt.input, got, tt.expected)
		}
	}
}

func TestParseDType(t *testing.T) {
	for tag, expected := range map[string]DType{
		"int": DTypeInt, "int64": DTypeInt, "float": DTypeFloat, "double": DTypeFloat, "decimal": DTypeFloat,
		"str": DTypeString, "object": DTypeString, "bool": DTypeBool, "timestamp": DTypeDatetime,
	} {
		got, err := ParseDType(tag)
		if err != nil || got != expected {
			t.Errorf("ParseDType(%q) = %v, %v, expected %v", tag, got, err, expected)
		}
	}

	if _, err := ParseDType("varchar2"); err == nil {
		t.Error("ParseDType(\"varchar2\") expected error")
	}
}
