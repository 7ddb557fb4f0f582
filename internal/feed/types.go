// Package feed reads aircraft snapshots from a readsb/dump1090 style JSON feed.
package feed

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Feed is the decoded aircraft.json payload.
type Feed struct {
	Now      float64    `json:"now,omitempty"`
	Messages int64      `json:"messages,omitempty"`
	Aircraft []Aircraft `json:"aircraft"`
}

// Aircraft is a single raw entry. Every field is optional in the source, so
// absent and null values decode to nil.
type Aircraft struct {
	Hex      *string    `json:"hex,omitempty"`
	Lat      *float64   `json:"lat,omitempty"`
	Lon      *float64   `json:"lon,omitempty"`
	Flight   *string    `json:"flight,omitempty"`
	Squawk   *string    `json:"squawk,omitempty"`
	AltBaro  *FlexFloat `json:"alt_baro,omitempty"`
	Category *string    `json:"category,omitempty"`
	Track    *float64   `json:"track,omitempty"`
}

// FlexFloat handles fields that can be either a number or a string.
// readsb reports alt_baro as "ground" for aircraft on the surface.
type FlexFloat float64

func (f *FlexFloat) UnmarshalJSON(data []byte) error {
	// Try as number first
	var v float64
	if err := json.Unmarshal(data, &v); err == nil {
		*f = FlexFloat(v)
		return nil
	}

	// Try as string
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			*f = 0 // "ground" and other markers
			return nil
		}
		*f = FlexFloat(v)
		return nil
	}

	*f = 0
	return nil
}

// Float64 returns the value as a float64.
func (f FlexFloat) Float64() float64 {
	return float64(f)
}
