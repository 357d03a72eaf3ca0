package coderunner

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompare(t *testing.T) {
	cases := []struct {
		name       string
		actual     string
		expected   string
		structured bool
		want       bool
	}{
		{name: "identical lists", actual: "[0,1]", expected: "[0,1]", structured: true, want: true},
		{name: "order matters in lists", actual: "[1,0]", expected: "[0,1]", structured: true, want: false},
		{name: "numbers", actual: "5", expected: "5", structured: true, want: true},
		{name: "formatting ignored", actual: "[0,1]", expected: "[0, 1]", structured: true, want: true},
		{name: "float and int", actual: "2.0", expected: "2", structured: true, want: true},
		{name: "mapping key order ignored", actual: `{"b":2,"a":1}`, expected: `{"a": 1, "b": 2}`, structured: true, want: true},
		{name: "python literal expected", actual: "[true,null]", expected: "[True, None]", structured: true, want: true},
		{name: "single quoted expected", actual: `"abc"`, expected: "'abc'", structured: true, want: true},
		{name: "bare word expected", actual: `"hello"`, expected: "hello", structured: true, want: true},
		{name: "different values", actual: "3", expected: "4", structured: true, want: false},
		{name: "large integers exact", actual: "12345678901234567", expected: "12345678901234567", structured: true, want: true},
		{name: "large integers differ past float precision", actual: "12345678901234568", expected: "12345678901234567", structured: true, want: false},
		{name: "nested large integers", actual: "[9007199254740993]", expected: "[9007199254740992]", structured: true, want: false},
		{name: "exponent equals integer", actual: "1000", expected: "1e3", structured: true, want: true},
		{name: "decimal fractions", actual: "0.1", expected: "0.10", structured: true, want: true},
		{name: "number is not string", actual: `"5"`, expected: "5", structured: true, want: false},
		{name: "string actual equals expected", actual: "Node(1)", expected: "Node(1)", structured: false, want: true},
		{name: "string actual differs", actual: "Node(1)", expected: "Node(2)", structured: false, want: false},
		{name: "unstructured text is not parsed", actual: "1", expected: "1.0", structured: false, want: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Compare(tc.actual, tc.expected, tc.structured))
		})
	}
}
