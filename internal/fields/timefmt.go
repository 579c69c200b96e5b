package fields

import (
	"regexp"
	"strconv"
	"time"
)

// GMTLayout is the RFC 1123 style layout session dates use when stored as text.
const GMTLayout = "Mon, 02 Jan 2006 15:04:05 GMT"

var gmtPattern = regexp.MustCompile(`^(Mon|Tue|Wed|Thu|Fri|Sat|Sun), \d{2} (Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec) \d{4} \d{2}:\d{2}:\d{2} GMT$`)

// FormatGMT renders Unix epoch milliseconds as a GMT string in UTC.
func FormatGMT(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(GMTLayout)
}

// IsGMT reports whether s looks like a GMT session date string.
func IsGMT(s string) bool {
	return gmtPattern.MatchString(s)
}

// ParseGMT converts a GMT session date string back to Unix epoch milliseconds.
func ParseGMT(s string) (int64, bool) {
	if !IsGMT(s) {
		return 0, false
	}
	t, err := time.Parse(GMTLayout, s)
	if err != nil {
		return 0, false
	}
	return t.UnixMilli(), true
}

// Conform rewrites a session date value into the encoding existing already
// uses, so a write never changes a store's date format. Other fields, and
// values whose encoding cannot be matched, are returned unchanged.
func Conform(n Name, v, existing Value) Value {
	if !IsSessionDate(n) {
		return v
	}
	switch {
	case IsGMT(existing.String()):
		if ms, ok := v.Int(); ok {
			return String(FormatGMT(ms))
		}
	case existing.IsNumeric():
		if ms, ok := millis(v); ok {
			return Int(ms)
		}
	default:
		if _, ok := existing.Int(); ok {
			if ms, ok := millis(v); ok {
				return String(strconv.FormatInt(ms, 10))
			}
		}
	}
	return v
}

func millis(v Value) (int64, bool) {
	if ms, ok := v.Int(); ok {
		return ms, true
	}
	return ParseGMT(v.String())
}
