// Package canonicalize implements a JSON canonicalization modelled on
// RFC 8785 (JCS): deterministic key ordering and number formatting so
// that structurally equal documents always serialize to identical bytes.
// Its number formatting is not RFC 8785's: integer literals pass through
// unchanged and every other number keeps a fractional part. It is used
// wherever two independently-constructed payloads must hash identically
// (ledger event payloads, policy bundle fingerprints, LLM record input
// hashes). The evidence exporter uses gowebpki/jcs instead.
package canonicalize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// Transform parses raw JSON and re-serializes it in canonical form: object
// keys sorted ascending (byte order on the UTF-16 code unit, which for our
// ASCII field names is equivalent to Go's default string ordering), no
// insignificant whitespace, and numbers rendered by encodeNumber: integer
// literals as written, any other number in shortest decimal form with at
// least one fractional digit (3.0 stays "3.0").
func Transform(raw []byte) ([]byte, error) {
	var v any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("canonicalize: decode: %w", err)
	}
	var buf bytes.Buffer
	if err := encode(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MarshalCanonical canonicalizes a Go value by round-tripping it through
// encoding/json first (so struct tags and map ordering are normalized the
// same way a raw JSON document would be).
func MarshalCanonical(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: marshal: %w", err)
	}
	return Transform(raw)
}

func encode(buf *bytes.Buffer, v any) error {
	switch t := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if t {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case json.Number:
		return encodeNumber(buf, t)
	case string:
		encodeString(buf, t)
	case []any:
		buf.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encode(buf, e); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			encodeString(buf, k)
			buf.WriteByte(':')
			if err := encode(buf, t[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("canonicalize: unsupported type %T", v)
	}
	return nil
}

func encodeString(buf *bytes.Buffer, s string) {
	raw, _ := json.Marshal(s)
	buf.Write(raw)
}

// encodeNumber renders a JSON number per JCS: integral floats with no
// fractional part still keep at least one digit after a decimal point
// when the source value was a float (callers wanting an integer literal
// should pass a value with no '.' or exponent in the original encoding).
// Whole numbers that came in without a decimal point are passed through
// unchanged, preserving the caller's integer-vs-real distinction — this
// is essential for the ledger's latency_ms contract, which requires a
// real-number literal even when the value is mathematically whole.
func encodeNumber(buf *bytes.Buffer, n json.Number) error {
	s := n.String()
	if !bytes.ContainsAny([]byte(s), ".eE") {
		buf.WriteString(s)
		return nil
	}
	f, err := n.Float64()
	if err != nil {
		return fmt.Errorf("canonicalize: number: %w", err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("canonicalize: non-finite number %v", f)
	}
	buf.WriteString(formatReal(f))
	return nil
}

// formatReal renders a float64 the way the ledger hash contract requires:
// always with a fractional part, e.g. 3 -> "3.0", 3.5 -> "3.5".
func formatReal(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !bytes.ContainsRune([]byte(s), '.') {
		s += ".0"
	}
	return s
}

// Real wraps a float64 so that MarshalCanonical / Transform always treat
// it as a JSON real number (forcing a decimal point) regardless of
// whether the value happens to be integral. Ledger payload encoding uses
// this for latency_ms so "3" can never leak through as a bare integer.
type Real float64

// MarshalJSON emits the value with a guaranteed decimal point so that a
// later Transform pass (which inspects the literal text) treats it as a
// real number even when JSON's own number syntax would otherwise elide
// the fraction.
func (r Real) MarshalJSON() ([]byte, error) {
	return []byte(formatReal(float64(r))), nil
}
