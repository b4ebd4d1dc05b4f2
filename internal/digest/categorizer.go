// Package digest implements the alert digest engine: categorization of raw
// sensor alerts, atomic aggregation into per-recipient digests, the send
// coordinator that enforces the 24h cooldown and 3-attempt ceiling, and the
// token-authenticated acknowledgment service.
package digest

import (
	"strings"

	"puretrack/internal/types"
)

// CategoryMultiParam is the catch-all category. Unmapped parameter/threshold
// combinations fall through here rather than erroring: an alert is never
// dropped for lack of a category.
const CategoryMultiParam = "multi_param"

// knownParams maps normalized sensor parameter names to the stem used for
// category strings. Aliases cover the field names the device gateway and
// the legacy dashboard send for the same physical sensor.
var knownParams = map[string]string{
	"ph":           "ph",
	"turbidity":    "turbidity",
	"ntu":          "turbidity",
	"tds":          "tds",
	"conductivity": "tds",
	"temperature":  "temperature",
	"temp":         "temperature",
}

// Categorize maps a raw alert event's parameter, reading, and thresholds to
// a stable digest category string (e.g. "ph_high", "turbidity_high",
// "multi_param").
//
// The function is pure, total, and deterministic; the category is part of
// the digest storage key, so the same inputs must always produce the same
// string. It never fails: anything it cannot classify lands in
// CategoryMultiParam.
func Categorize(parameter string, value *float64, thresholds types.ParameterThresholds) string {
	stem, ok := knownParams[strings.ToLower(strings.TrimSpace(parameter))]
	if !ok {
		return CategoryMultiParam
	}

	if value == nil {
		return CategoryMultiParam
	}

	// Direction is derived from which bound the reading crossed. When the
	// reading sits inside (or exactly on) both bounds, the upstream
	// pipeline fired for a reason this engine cannot reconstruct, so the
	// event is filed under the catch-all rather than guessed at.
	switch {
	case thresholds.Max != nil && *value > *thresholds.Max:
		return stem + "_high"
	case thresholds.Min != nil && *value < *thresholds.Min:
		return stem + "_low"
	default:
		return CategoryMultiParam
	}
}
