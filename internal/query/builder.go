// Package query builds parameterised predicate sets for historical position
// lookups.
package query

import (
	"strconv"
	"strings"
	"time"

	"adsb_history/internal/position"
)

// DefaultWindow is the look-back used when no start time is supplied.
const DefaultWindow = 24 * time.Hour

// Filters holds the optional historical query parameters. Empty strings and
// nil pointers are treated as absent.
type Filters struct {
	Start *time.Time
	End   *time.Time

	Hex      string // Exact match.
	Flight   string // Case-insensitive substring match.
	Squawk   string // Exact match.
	Category string // Exact match.
	Heading  *float64

	AltitudeMin *float64
	AltitudeMax *float64

	// Geographic bounds must be supplied together.
	LatMin *float64
	LatMax *float64
	LonMin *float64
	LonMax *float64
}

// ValidationError reports a filter combination that cannot be queried.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// PredicateSet is an ordered list of SQL predicates with `?` placeholders
// and the values bound to them, in placeholder order.
type PredicateSet struct {
	Clauses []string
	Args    []any
}

// Where joins the clauses with AND.
func (p PredicateSet) Where() string {
	return strings.Join(p.Clauses, " AND ")
}

func (p *PredicateSet) add(clause string, args ...any) {
	p.Clauses = append(p.Clauses, clause)
	p.Args = append(p.Args, args...)
}

// Build validates f and turns it into a predicate set. Time defaults are
// resolved against now, which callers must take per request.
//
// Clause order is fixed: time range, hex, flight, squawk, category, heading,
// altitude min, altitude max, latitude range, longitude range.
func Build(f Filters, now time.Time) (PredicateSet, error) {
	if err := validateGeoBounds(f); err != nil {
		return PredicateSet{}, err
	}

	end := now
	if f.End != nil {
		end = *f.End
	}
	start := now.Add(-DefaultWindow)
	if f.Start != nil {
		start = *f.Start
	}

	var p PredicateSet
	p.add("timestamp BETWEEN ? AND ?",
		position.NewTimestamp(start).String(),
		position.NewTimestamp(end).String(),
	)

	if f.Hex != "" {
		p.add("hex = ?", f.Hex)
	}
	if f.Flight != "" {
		p.add("LOWER(flight) LIKE ?", "%"+strings.ToLower(f.Flight)+"%")
	}
	if f.Squawk != "" {
		p.add("squawk = ?", f.Squawk)
	}
	if f.Category != "" {
		p.add("category = ?", f.Category)
	}
	if f.Heading != nil {
		p.add("heading = ?", *f.Heading)
	}
	if f.AltitudeMin != nil {
		p.add("altitude >= ?", *f.AltitudeMin)
	}
	if f.AltitudeMax != nil {
		p.add("altitude <= ?", *f.AltitudeMax)
	}
	if f.LatMin != nil {
		p.add("lat BETWEEN ? AND ?", *f.LatMin, *f.LatMax)
	}
	if f.LonMin != nil {
		p.add("lon BETWEEN ? AND ?", *f.LonMin, *f.LonMax)
	}

	return p, nil
}

func validateGeoBounds(f Filters) error {
	present := 0
	for _, v := range []*float64{f.LatMin, f.LatMax, f.LonMin, f.LonMax} {
		if v != nil {
			present++
		}
	}
	if present != 0 && present != 4 {
		return &ValidationError{
			Field:   "lat_min,lat_max,lon_min,lon_max",
			Message: "incomplete geographic bound group: all four bounds must be provided if one is used",
		}
	}
	return nil
}

// Rebind rewrites `?` placeholders as PostgreSQL positional parameters
// ($1, $2, ...). Clauses never contain literal question marks.
func Rebind(sql string) string {
	var b strings.Builder
	b.Grow(len(sql) + 8)
	n := 0
	for i := 0; i < len(sql); i++ {
		if sql[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(sql[i])
	}
	return b.String()
}
