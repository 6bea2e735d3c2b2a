package scraper

import (
	"math"
	"strconv"
	"strings"
	"unicode"
)

// ParsePrice parses a Finnish-formatted price such as "1 234,56 €".
//
// Currency symbols and (narrow) no-break spaces are stripped, spaces and
// dots are removed as thousands separators and the decimal comma becomes a
// dot. A dot is therefore never a decimal point: "15.90" parses as 1590.
// The second result is false for empty or garbage input.
func ParsePrice(text string) (float64, bool) {
	if text == "" {
		return 0, false
	}

	cleaned := strings.Map(func(r rune) rune {
		switch {
		case unicode.Is(unicode.Sc, r):
			return -1
		case r == '\u00a0', r == '\u202f', r == ' ', r == '.':
			return -1
		case r == ',':
			return '.'
		}
		return r
	}, text)
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return 0, false
	}

	val, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsNaN(val) || math.IsInf(val, 0) {
		return 0, false
	}
	return val, true
}
