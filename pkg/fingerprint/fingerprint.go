// Package fingerprint computes content hashes of render requests.
//
// A fingerprint is the hex-encoded SHA-256 digest of a request's canonical
// serialization. The canonical form is JSON with:
//
//   - object keys sorted recursively (Go map iteration order never leaks)
//   - numbers normalized from their exact decimal value, so 10, 10.0 and
//     json.Number("10") produce the same bytes while integers beyond the
//     float64 mantissa stay distinct
//   - no insignificant whitespace
//
// Two requests that are field-for-field equal therefore always share a
// fingerprint, regardless of how they were constructed.
package fingerprint

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/matzehuels/chartcn/pkg/chart"
	"github.com/matzehuels/chartcn/pkg/errors"
)

// Size is the length of a fingerprint in hex characters.
const Size = sha256.Size * 2

// Of returns the fingerprint of a render request.
func Of(req *chart.Request) (string, error) {
	data, err := CanonicalRequest(req)
	if err != nil {
		return "", err
	}
	return Hash(data), nil
}

// CanonicalRequest returns the canonical serialization of a request.
func CanonicalRequest(req *chart.Request) ([]byte, error) {
	if req == nil {
		return nil, errors.New(errors.ErrCodeEncoding, "nil request")
	}
	return Canonical(map[string]any{
		"type":       string(req.Type),
		"width":      req.Width,
		"height":     req.Height,
		"format":     string(req.Format),
		"theme":      string(req.Theme),
		"background": req.Background,
		"config":     req.Spec,
	})
}

// Hash computes a SHA-256 hash of the input data.
// Returns the full 64-character hex string.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Canonical serializes v into canonical JSON.
func Canonical(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := encode(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encode(buf *bytes.Buffer, v any) error {
	switch t := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		buf.WriteString(strconv.FormatBool(t))
	case string:
		return encodeString(buf, t)
	case json.Number:
		return encodeNumber(buf, t.String())
	case float64:
		return encodeFloat(buf, t)
	case float32:
		return encodeFloat(buf, float64(t))
	case int:
		return encodeNumber(buf, strconv.Itoa(t))
	case int64:
		return encodeNumber(buf, strconv.FormatInt(t, 10))
	case int32:
		return encodeNumber(buf, strconv.FormatInt(int64(t), 10))
	case uint:
		return encodeNumber(buf, strconv.FormatUint(uint64(t), 10))
	case uint64:
		return encodeNumber(buf, strconv.FormatUint(t, 10))
	case map[string]any:
		return encodeMap(buf, t)
	case []any:
		return encodeSlice(buf, len(t), func(i int) any { return t[i] })
	case []map[string]any:
		return encodeSlice(buf, len(t), func(i int) any { return t[i] })
	default:
		return encodeReflect(buf, v)
	}
	return nil
}

func encodeString(buf *bytes.Buffer, s string) error {
	data, err := json.Marshal(s)
	if err != nil {
		return errors.Wrap(errors.ErrCodeEncoding, err, "encode string")
	}
	buf.Write(data)
	return nil
}

func encodeFloat(buf *bytes.Buffer, f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return errors.New(errors.ErrCodeEncoding, "unsupported number: %v", f)
	}
	return encodeNumber(buf, strconv.FormatFloat(f, 'e', -1, 64))
}

// encodeNumber writes the decimal text s in canonical form. The value is
// never rounded through float64, so integers beyond 2^53 stay distinct.
func encodeNumber(buf *bytes.Buffer, s string) error {
	neg, digits, exp, ok := parseDecimal(s)
	if !ok {
		return errors.New(errors.ErrCodeEncoding, "invalid number %q", s)
	}
	buf.WriteString(formatDecimal(neg, digits, exp))
	return nil
}

// parseDecimal splits JSON number text into sign, significant digits and a
// base-10 exponent such that the value is digits × 10^exp. digits carries
// no leading or trailing zeros and is empty for zero.
func parseDecimal(s string) (neg bool, digits string, exp int, ok bool) {
	if strings.HasPrefix(s, "-") {
		neg, s = true, s[1:]
	}
	mant, exponent, hasExp := strings.Cut(strings.ToLower(s), "e")
	if hasExp {
		e, err := strconv.Atoi(exponent)
		if err != nil {
			return false, "", 0, false
		}
		exp = e
	}
	intPart, frac, hasDot := strings.Cut(mant, ".")
	if !isDigits(intPart) || (hasDot && !isDigits(frac)) {
		return false, "", 0, false
	}

	all := intPart + frac
	exp -= len(frac)
	digits = strings.TrimLeft(all, "0")
	if digits == "" {
		return false, "", 0, true
	}
	trimmed := strings.TrimRight(digits, "0")
	exp += len(digits) - len(trimmed)
	return neg, trimmed, exp, true
}

// formatDecimal renders digits × 10^exp: plain notation for magnitudes in
// [1e-6, 1e21), exponent notation otherwise.
func formatDecimal(neg bool, digits string, exp int) string {
	if digits == "" {
		return "0"
	}
	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	n := len(digits)
	point := n + exp
	switch {
	case exp >= 0 && point <= 21:
		b.WriteString(digits)
		b.WriteString(strings.Repeat("0", exp))
	case exp < 0 && point > 0:
		b.WriteString(digits[:point])
		b.WriteByte('.')
		b.WriteString(digits[point:])
	case exp < 0 && point > -6:
		b.WriteString("0.")
		b.WriteString(strings.Repeat("0", -point))
		b.WriteString(digits)
	default:
		b.WriteString(digits[:1])
		if n > 1 {
			b.WriteByte('.')
			b.WriteString(digits[1:])
		}
		b.WriteByte('e')
		if point-1 >= 0 {
			b.WriteByte('+')
		}
		b.WriteString(strconv.Itoa(point - 1))
	}
	return b.String()
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func encodeMap(buf *bytes.Buffer, m map[string]any) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := encodeString(buf, k); err != nil {
			return err
		}
		buf.WriteByte(':')
		if err := encode(buf, m[k]); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

func encodeSlice(buf *bytes.Buffer, n int, at func(int) any) error {
	buf.WriteByte('[')
	for i := 0; i < n; i++ {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := encode(buf, at(i)); err != nil {
			return err
		}
	}
	buf.WriteByte(']')
	return nil
}

// encodeReflect handles typed maps and slices built by programmatic
// callers. Structs and other kinds are rejected: their field order is a
// property of the Go type, not of the request.
func encodeReflect(buf *bytes.Buffer, v any) error {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return errors.New(errors.ErrCodeEncoding, "unsupported map key type %s", rv.Type().Key())
		}
		m := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			m[iter.Key().String()] = iter.Value().Interface()
		}
		return encodeMap(buf, m)
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			buf.WriteString("null")
			return nil
		}
		return encodeSlice(buf, rv.Len(), func(i int) any { return rv.Index(i).Interface() })
	case reflect.String:
		return encodeString(buf, rv.String())
	case reflect.Bool:
		buf.WriteString(strconv.FormatBool(rv.Bool()))
		return nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return encodeNumber(buf, strconv.FormatInt(rv.Int(), 10))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return encodeNumber(buf, strconv.FormatUint(rv.Uint(), 10))
	case reflect.Float32, reflect.Float64:
		return encodeFloat(buf, rv.Float())
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			buf.WriteString("null")
			return nil
		}
		return encode(buf, rv.Elem().Interface())
	}
	return errors.New(errors.ErrCodeEncoding, "unsupported value of type %T", v)
}
