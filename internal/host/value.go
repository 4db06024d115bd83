package host

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Value is a typed input value.
type Value struct {
	Kind    InputKind
	Number  float64
	Integer int64
	Bool    bool
	Text    string
}

// Any returns the value as its natural Go type for JSON encoding.
func (v Value) Any() interface{} {
	switch v.Kind {
	case KindNumber:
		return v.Number
	case KindInteger:
		return v.Integer
	case KindBoolean:
		return v.Bool
	case KindText:
		return v.Text
	}
	return nil
}

func (v Value) String() string {
	switch v.Kind {
	case KindNumber:
		return strconv.FormatFloat(v.Number, 'g', -1, 64)
	case KindInteger:
		return strconv.FormatInt(v.Integer, 10)
	case KindBoolean:
		return strconv.FormatBool(v.Bool)
	case KindText:
		return v.Text
	}
	return "<unsupported>"
}

// ParseValue coerces a raw archive string to kind. Numbers use the invariant
// format (dot decimal separator). Integers accept fractional input and round
// it. Booleans are true only for "1" or "true" (any case).
func ParseValue(kind InputKind, raw string) (Value, error) {
	s := strings.TrimSpace(raw)
	switch kind {
	case KindNumber:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Value{}, fmt.Errorf("parsing %q as number: %w", raw, err)
		}
		return Value{Kind: kind, Number: f}, nil
	case KindInteger:
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return Value{Kind: kind, Integer: n}, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return Value{}, fmt.Errorf("parsing %q as integer: invalid value", raw)
		}
		r := math.Round(f)
		if r >= math.MaxInt64 || r < math.MinInt64 {
			return Value{}, fmt.Errorf("parsing %q as integer: value out of range", raw)
		}
		return Value{Kind: kind, Integer: int64(r)}, nil
	case KindBoolean:
		return Value{Kind: kind, Bool: s == "1" || strings.EqualFold(s, "true")}, nil
	case KindText:
		return Value{Kind: kind, Text: raw}, nil
	}
	return Value{}, fmt.Errorf("input kind %s cannot hold %q", kind, raw)
}

// InferKind guesses the kind of a raw archive value.
func InferKind(raw string) InputKind {
	s := strings.TrimSpace(raw)
	if _, err := strconv.ParseInt(s, 10, 64); err == nil {
		return KindInteger
	}
	if _, err := strconv.ParseFloat(s, 64); err == nil {
		return KindNumber
	}
	if _, err := strconv.ParseBool(s); err == nil {
		return KindBoolean
	}
	return KindText
}
