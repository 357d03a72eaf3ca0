package coderunner

import (
	"bytes"
	"encoding/json"
	"math/big"
	"sort"
	"strconv"
	"strings"
)

// Compare decides whether an actual result matches the expected text.
//
// Both sides are parsed as structured values when possible and compared by
// canonical serialisation, so whitespace and mapping key order do not matter
// and numbers compare by exact value.
// Expected text that is not JSON is read with the literal parser, which accepts
// Python spellings such as True, None and single-quoted strings. When either
// side cannot be parsed, actual is compared against the JSON encoding of
// expected and finally against expected verbatim.
func Compare(actual, expected string, structured bool) bool {
	if structured {
		actualValue, actualErr := decodeJSON(actual)
		expectedValue, expectedErr := decodeExpected(expected)
		if actualErr == nil && expectedErr == nil {
			return bytes.Equal(canonical(actualValue), canonical(expectedValue))
		}
	}

	if encoded, err := json.Marshal(expected); err == nil && actual == string(encoded) {
		return true
	}
	return actual == expected
}

func decodeJSON(text string) (any, error) {
	var value any
	decoder := json.NewDecoder(strings.NewReader(text))
	decoder.UseNumber()
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}
	if decoder.More() {
		return nil, &json.SyntaxError{Offset: decoder.InputOffset()}
	}
	return value, nil
}

func decodeExpected(text string) (any, error) {
	if value, err := decodeJSON(text); err == nil {
		return value, nil
	}
	return ParseLiteral(text)
}

// canonical serialises a decoded value with sorted mapping keys and numbers
// reduced to exact rationals, so 2 and 2.0 match while integers beyond float
// precision still differ.
func canonical(value any) []byte {
	var buf bytes.Buffer
	writeCanonical(&buf, value)
	return buf.Bytes()
}

func writeCanonical(buf *bytes.Buffer, value any) {
	switch v := value.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		buf.WriteString(strconv.FormatBool(v))
	case json.Number:
		buf.WriteString(canonicalNumber(v.String()))
	case float64:
		buf.WriteString(canonicalNumber(strconv.FormatFloat(v, 'g', -1, 64)))
	case []any:
		buf.WriteByte('[')
		for i, item := range v {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeCanonical(buf, item)
		}
		buf.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, key := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeString(buf, key)
			buf.WriteByte(':')
			writeCanonical(buf, v[key])
		}
		buf.WriteByte('}')
	case string:
		writeString(buf, v)
	default:
		encoded, _ := json.Marshal(v)
		buf.Write(encoded)
	}
}

func writeString(buf *bytes.Buffer, s string) {
	encoded, _ := json.Marshal(s)
	buf.Write(encoded)
}

const maxExactExponent = 400

func canonicalNumber(text string) string {
	if value, ok := exactNumber(text); ok {
		return value.RatString()
	}
	if f, err := strconv.ParseFloat(text, 64); err == nil {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return text
}

// exactNumber parses decimal number text as a rational. Huge exponents are
// refused rather than expanded.
func exactNumber(text string) (*big.Rat, bool) {
	if i := strings.IndexAny(text, "eE"); i >= 0 {
		exp, err := strconv.Atoi(text[i+1:])
		if err != nil || exp > maxExactExponent || exp < -maxExactExponent {
			return nil, false
		}
	}
	return new(big.Rat).SetString(text)
}
