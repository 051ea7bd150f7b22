package entities

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// unitAbbreviations maps the abbreviated units that appear after a "/" or
// "per" in limit/pricing strings to their canonical long form (spec.md §4.6).
var unitAbbreviations = map[string]string{
	"min": "minute",
	"hr":  "hour",
	"sec": "second",
	"mo":  "month",
}

var numberUnitPattern = regexp.MustCompile(`(?i)^\s*([0-9][0-9,]*(?:\.[0-9]+)?)\s*(?:/|per)\s*([a-z]+)\s*$`)
var currencyPattern = regexp.MustCompile(`(?i)^\s*[^\d]*([0-9][0-9,]*(?:\.[0-9]+)?)\s*(?:/|per)\s*([a-z]+)\s*$`)

// Normalize produces the normalised_value for an entity of the given type,
// per spec.md §4.6:
//   - limit: "N_per_unit" with abbreviated units expanded.
//   - pricing: "microcents_per_unit" (amount × 1_000_000), so sub-cent
//     prices survive as an integer.
//   - everything else: lowercased and trimmed.
func Normalize(entityType, raw string) string {
	switch entityType {
	case "limit":
		return normalizeLimit(raw)
	case "pricing":
		return normalizePricing(raw)
	default:
		return strings.ToLower(strings.TrimSpace(raw))
	}
}

func normalizeLimit(raw string) string {
	matches := numberUnitPattern.FindStringSubmatch(raw)
	if matches == nil {
		return strings.ToLower(strings.TrimSpace(raw))
	}

	amountStr := strings.ReplaceAll(matches[1], ",", "")
	amount, err := strconv.ParseFloat(amountStr, 64)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(raw))
	}

	unit := canonicalUnit(matches[2])
	return fmt.Sprintf("%s_per_%s", trimTrailingZeros(amount), unit)
}

func normalizePricing(raw string) string {
	matches := currencyPattern.FindStringSubmatch(raw)
	if matches == nil {
		return strings.ToLower(strings.TrimSpace(raw))
	}

	amountStr := strings.ReplaceAll(matches[1], ",", "")
	amount, err := strconv.ParseFloat(amountStr, 64)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(raw))
	}

	unit := canonicalUnit(matches[2])
	microcents := int64(amount*1_000_000 + 0.5)
	return fmt.Sprintf("%d_microcents_per_%s", microcents, unit)
}

func canonicalUnit(unit string) string {
	lower := strings.ToLower(unit)
	if long, ok := unitAbbreviations[lower]; ok {
		return long
	}
	return lower
}

// trimTrailingZeros renders amount without a trailing ".0" for whole numbers,
// matching the integer-looking limits the normaliser typically sees.
func trimTrailingZeros(amount float64) string {
	if amount == float64(int64(amount)) {
		return strconv.FormatInt(int64(amount), 10)
	}
	return strconv.FormatFloat(amount, 'f', -1, 64)
}
