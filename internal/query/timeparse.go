package query

import (
	"fmt"
	"strings"
	"time"

	"adsb_history/internal/position"
)

// timeLayouts are tried in order. Values without an offset are UTC.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	position.TimestampLayout,
	"2006-01-02",
}

// ParseTime reads a query time bound in RFC 3339, "YYYY-MM-DDTHH:MM:SS",
// "YYYY-MM-DD HH:MM:SS" or "YYYY-MM-DD" form.
func ParseTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return t, nil
		}
	}
	// An unescaped '+' offset in a query string arrives as a space.
	if i := strings.LastIndexByte(raw, ' '); i > 0 && strings.Contains(raw, "T") {
		if t, err := time.Parse(time.RFC3339, raw[:i]+"+"+raw[i+1:]); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%q is not a recognised time", raw)
}
