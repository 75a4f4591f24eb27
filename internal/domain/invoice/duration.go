package invoice

import (
	"strconv"
	"strings"
)

// DefaultDurationHours is used when the free-text duration cannot be parsed.
const DefaultDurationHours = 4

const hoursPerDay = 24

// ParseDurationHours parses free-text durations like "2 days", "4 hours" or
// "1 day" into whole hours. The grammar is a leading integer followed by a
// unit token (day/days -> 24h each, hour/hours/h -> as given); a bare "day"
// counts as one day. Anything else falls back to DefaultDurationHours.
func ParseDurationHours(raw string) int {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(raw)))
	if len(fields) == 0 {
		return DefaultDurationHours
	}

	// bare unit with no count, e.g. "day"
	if len(fields) == 1 {
		if isDayUnit(fields[0]) {
			return hoursPerDay
		}
		// single token may still be "2days" / "4h"
		if n, unit, ok := splitNumberUnit(fields[0]); ok {
			return applyUnit(n, unit)
		}
		return DefaultDurationHours
	}

	n, err := strconv.Atoi(fields[0])
	if err != nil || n < 1 {
		return DefaultDurationHours
	}
	return applyUnit(n, fields[1])
}

// applyUnit converts a count plus unit token into hours.
func applyUnit(n int, unit string) int {
	switch {
	case isDayUnit(unit):
		return n * hoursPerDay
	case isHourUnit(unit):
		return n
	default:
		return DefaultDurationHours
	}
}

func isDayUnit(tok string) bool {
	return tok == "day" || tok == "days" || tok == "d"
}

func isHourUnit(tok string) bool {
	return tok == "hour" || tok == "hours" || tok == "hr" || tok == "hrs" || tok == "h"
}

// splitNumberUnit splits glued forms like "2days" into (2, "days").
func splitNumberUnit(tok string) (int, string, bool) {
	i := 0
	for i < len(tok) && tok[i] >= '0' && tok[i] <= '9' {
		i++
	}
	if i == 0 || i == len(tok) {
		return 0, "", false
	}
	n, err := strconv.Atoi(tok[:i])
	if err != nil || n < 1 {
		return 0, "", false
	}
	return n, tok[i:], true
}
