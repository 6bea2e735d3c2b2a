package scraper

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"unicode"
)

// The helpers below read loosely typed upstream JSON decoded into
// map[string]any with json.Number numbers.

// AsMap returns v as a JSON object, or nil.
func AsMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

// AsSlice returns v as a JSON array, or nil.
func AsSlice(v any) []any {
	s, _ := v.([]any)
	return s
}

// Text renders a scalar JSON value as trimmed text. Objects are unwrapped
// through their "name" field.
func Text(v any) string {
	switch t := v.(type) {
	case string:
		return NormaliseText(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case map[string]any:
		return Text(t["name"])
	}
	return ""
}

// FirstText returns the first non-empty Text among m's keys, in order.
func FirstText(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := Text(m[k]); s != "" {
			return s
		}
	}
	return ""
}

// PriceValue extracts a price from a number, a Finnish price string or a
// list whose first element is the tax-inclusive value. Zero, negative and
// unparseable values are reported as absent.
func PriceValue(v any) (float64, bool) {
	var (
		val float64
		ok  bool
	)
	switch t := v.(type) {
	case json.Number:
		f, err := t.Float64()
		val, ok = f, err == nil
	case float64:
		val, ok = t, true
	case int:
		val, ok = float64(t), true
	case string:
		val, ok = ParsePrice(t)
	case []any:
		if len(t) == 0 {
			return 0, false
		}
		return PriceValue(t[0])
	}
	if !ok || val <= 0 {
		return 0, false
	}
	return val, true
}

// RequirePrice is PriceValue for a mandatory price. A missing or
// non-positive value is ErrIncomplete; text the parser cannot read is
// ErrUnparseablePrice.
func RequirePrice(v any) (float64, error) {
	if p, ok := PriceValue(v); ok {
		return p, nil
	}
	switch t := v.(type) {
	case string:
		if strings.TrimSpace(t) != "" {
			if _, ok := ParsePrice(t); !ok {
				return 0, fmt.Errorf("%w: %q", ErrUnparseablePrice, t)
			}
		}
	case []any:
		if len(t) > 0 {
			return RequirePrice(t[0])
		}
	}
	return 0, fmt.Errorf("%w: no price", ErrIncomplete)
}

// OriginalPrice returns the prior price when v holds one that differs
// from current.
func OriginalPrice(v any, current float64) *float64 {
	orig, ok := PriceValue(v)
	if !ok || orig == current {
		return nil
	}
	return &orig
}

// Truthy interprets v as a boolean signal. present is false when v carries
// no signal at all.
func Truthy(v any) (value, present bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return false, false
		}
		return f > 0, true
	case float64:
		return t > 0, true
	case int:
		return t > 0, true
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "1", "yes", "instock", "in_stock", "available":
			return true, true
		case "false", "0", "no", "outofstock", "out_of_stock", "unavailable":
			return false, true
		}
	}
	return false, false
}

// AnyAvailable ORs the stock signals. Without any signal the product is
// assumed available.
func AnyAvailable(signals ...any) bool {
	seen := false
	for _, s := range signals {
		val, present := Truthy(s)
		if !present {
			continue
		}
		if val {
			return true
		}
		seen = true
	}
	return !seen
}

// IDString renders a JSON identifier as text.
func IDString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	}
	return ""
}

// IDSet records the product ids an iterator has already emitted. It is
// owned by a single ScrapeAll or DiscoverCandidates call.
type IDSet map[string]struct{}

// Add reports whether id was not in the set yet.
func (s IDSet) Add(id string) bool {
	if _, dup := s[id]; dup {
		return false
	}
	s[id] = struct{}{}
	return true
}

// AbsoluteURL resolves ref against baseURL. Absolute refs are returned as is.
func AbsoluteURL(baseURL, ref string) string {
	if ref == "" {
		return ""
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return ref
	}
	rel, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(rel).String()
}

// NormaliseText strips leading/trailing whitespace and collapses internal whitespace.
func NormaliseText(s string) string {
	fields := strings.FieldsFunc(s, unicode.IsSpace)
	return strings.Join(fields, " ")
}
