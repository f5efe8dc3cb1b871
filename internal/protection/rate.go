package protection

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// Rate is a request budget per window.
type Rate struct {
	Limit  int
	Window time.Duration
}

var errBadRate = errors.New(`must look like "5/m", "100/10m" or "5 per minute"`)

var units = map[string]time.Duration{
	"s": time.Second, "sec": time.Second, "second": time.Second, "seconds": time.Second,
	"m": time.Minute, "min": time.Minute, "minute": time.Minute, "minutes": time.Minute,
	"h": time.Hour, "hour": time.Hour, "hours": time.Hour,
	"d": 24 * time.Hour, "day": 24 * time.Hour, "days": 24 * time.Hour,
}

// ParseRate accepts "N/unit", "N/Kunit" and "N per unit".
func ParseRate(s string) (Rate, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	var count, period string
	switch {
	case strings.Contains(s, "/"):
		count, period, _ = strings.Cut(s, "/")
	case strings.Contains(s, " per "):
		count, period, _ = strings.Cut(s, " per ")
	default:
		return Rate{}, errBadRate
	}

	limit, err := strconv.Atoi(strings.TrimSpace(count))
	if err != nil || limit < 1 {
		return Rate{}, errBadRate
	}

	period = strings.TrimSpace(period)
	digits := 0
	for digits < len(period) && period[digits] >= '0' && period[digits] <= '9' {
		digits++
	}
	multiplier := 1
	if digits > 0 {
		multiplier, err = strconv.Atoi(period[:digits])
		if err != nil || multiplier < 1 {
			return Rate{}, errBadRate
		}
	}
	unit, ok := units[strings.TrimSpace(period[digits:])]
	if !ok {
		return Rate{}, errBadRate
	}
	return Rate{Limit: limit, Window: time.Duration(multiplier) * unit}, nil
}
