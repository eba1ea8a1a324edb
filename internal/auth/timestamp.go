package auth

import (
	"time"
)

// DefaultTimestampTolerance is the accepted skew between Created and now.
const DefaultTimestampTolerance = 300 * time.Second

// createdLayout is the only accepted Created shape: YYYY-MM-DDTHH:MM:SSZ.
const createdLayout = "0000-00-00T00:00:00Z"

// ParseCreated parses a Created value. Fractional seconds and offsets other
// than Z are rejected. Day may be anything in 1-31 regardless of month; an
// impossible date such as 02-31 is normalised into the following month.
func ParseCreated(created string) (time.Time, bool) {
	if len(created) != len(createdLayout) {
		return time.Time{}, false
	}
	for i := 0; i < len(createdLayout); i++ {
		c := created[i]
		if createdLayout[i] == '0' {
			if c < '0' || c > '9' {
				return time.Time{}, false
			}
			continue
		}
		if c != createdLayout[i] {
			return time.Time{}, false
		}
	}

	year := atoi(created[0:4])
	month := atoi(created[5:7])
	day := atoi(created[8:10])
	hour := atoi(created[11:13])
	minute := atoi(created[14:16])
	second := atoi(created[17:19])

	switch {
	case year < 1900 || year > 3000,
		month < 1 || month > 12,
		day < 1 || day > 31,
		hour > 23,
		minute > 59,
		second > 59:
		return time.Time{}, false
	}

	return time.Date(year, time.Month(month), day, hour, minute, second, 0, time.UTC), true
}

// atoi converts a string of ASCII digits already checked by ParseCreated.
func atoi(s string) int {
	n := 0
	for i := 0; i < len(s); i++ {
		n = n*10 + int(s[i]-'0')
	}
	return n
}

// IsFresh reports whether created parses and lies within tolerance of now,
// in either direction. now is truncated to whole seconds.
func IsFresh(created string, tolerance time.Duration, now time.Time) bool {
	ts, ok := ParseCreated(created)
	if !ok {
		return false
	}

	skew := now.UTC().Truncate(time.Second).Sub(ts)
	if skew < 0 {
		skew = -skew
	}
	return skew <= tolerance
}
