// Package position defines the canonical aircraft position record and the
// normalisation from raw feed entries.
package position

import (
	"strings"
	"time"

	"adsb_history/internal/feed"
)

// Missing is stored for optional text fields absent from the feed.
const Missing = "N/A"

// TimestampLayout is the second-precision layout used to persist observed_at.
// It sorts lexicographically in time order, which the TEXT timestamp column
// relies on for range predicates.
const TimestampLayout = "2006-01-02 15:04:05"

// Position is one observation of one aircraft at one tick.
type Position struct {
	Hex        string    `json:"hex"`
	Lat        float64   `json:"lat"`
	Lon        float64   `json:"lon"`
	Flight     string    `json:"flight"`
	Squawk     string    `json:"squawk"`
	Altitude   float64   `json:"altitude"`
	ObservedAt Timestamp `json:"timestamp"`
	Category   string    `json:"category"`
	Heading    float64   `json:"heading"`
}

// Key returns the natural key (hex, timestamp) as stored.
func (p Position) Key() (string, string) {
	return p.Hex, p.ObservedAt.String()
}

// Normalize maps a raw feed entry to a Position observed at observedAt.
// It returns false when the entry lacks latitude or longitude.
func Normalize(a feed.Aircraft, observedAt time.Time) (Position, bool) {
	if a.Lat == nil || a.Lon == nil {
		return Position{}, false
	}

	p := Position{
		Hex:        stringOr(a.Hex, Missing),
		Lat:        *a.Lat,
		Lon:        *a.Lon,
		Flight:     stringOr(a.Flight, Missing),
		Squawk:     stringOr(a.Squawk, Missing),
		ObservedAt: NewTimestamp(observedAt),
		Category:   stringOr(a.Category, Missing),
	}
	if a.AltBaro != nil {
		p.Altitude = a.AltBaro.Float64()
	}
	if a.Track != nil {
		p.Heading = *a.Track
	}

	return p, true
}

// NormalizeAll normalises every entry with one shared observation time and
// drops entries without coordinates. The result is never nil.
func NormalizeAll(entries []feed.Aircraft, observedAt time.Time) []Position {
	out := make([]Position, 0, len(entries))
	for _, a := range entries {
		if p, ok := Normalize(a, observedAt); ok {
			out = append(out, p)
		}
	}
	return out
}

// stringOr returns the trimmed value, or def when it is absent or blank.
// readsb pads callsigns to eight characters.
func stringOr(v *string, def string) string {
	if v == nil {
		return def
	}
	s := strings.TrimSpace(*v)
	if s == "" {
		return def
	}
	return s
}
