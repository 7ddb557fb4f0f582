package query

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"
)

func f64(v float64) *float64 { return &v }

var now = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

func TestBuildDefaults(t *testing.T) {
	p, err := Build(Filters{}, now)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if len(p.Clauses) != 1 {
		t.Fatalf("len(Clauses) = %d, want 1", len(p.Clauses))
	}
	if p.Clauses[0] != "timestamp BETWEEN ? AND ?" {
		t.Errorf("Clauses[0] = %q", p.Clauses[0])
	}

	want := []any{"2026-10-14 12:00:00", "2026-10-15 12:00:00"}
	if !reflect.DeepEqual(p.Args, want) {
		t.Errorf("Args = %v, want %v", p.Args, want)
	}
}

func TestBuildDefaultsTrackNow(t *testing.T) {
	first, _ := Build(Filters{}, now)
	second, _ := Build(Filters{}, now.Add(time.Hour))

	if reflect.DeepEqual(first.Args, second.Args) {
		t.Error("expected defaults to follow the supplied now")
	}
}

func TestBuildExplicitRange(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 1, 2, 6, 30, 15, 0, time.UTC)

	p, err := Build(Filters{Start: &start, End: &end}, now)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	want := []any{"2026-01-01 00:00:00", "2026-01-02 06:30:15"}
	if !reflect.DeepEqual(p.Args, want) {
		t.Errorf("Args = %v, want %v", p.Args, want)
	}
}

func TestBuildOnlyEnd(t *testing.T) {
	end := time.Date(2026, 10, 15, 6, 0, 0, 0, time.UTC)
	p, _ := Build(Filters{End: &end}, now)

	want := []any{"2026-10-14 12:00:00", "2026-10-15 06:00:00"}
	if !reflect.DeepEqual(p.Args, want) {
		t.Errorf("Args = %v, want %v", p.Args, want)
	}
}

func TestBuildAllFilters(t *testing.T) {
	f := Filters{
		Hex:         "7C6CA3",
		Flight:      "QfA",
		Squawk:      "4521",
		Category:    "A5",
		Heading:     f64(270),
		AltitudeMin: f64(1000),
		AltitudeMax: f64(40000),
		LatMin:      f64(-34),
		LatMax:      f64(-33),
		LonMin:      f64(150),
		LonMax:      f64(152),
	}

	p, err := Build(f, now)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	wantClauses := []string{
		"timestamp BETWEEN ? AND ?",
		"hex = ?",
		"LOWER(flight) LIKE ?",
		"squawk = ?",
		"category = ?",
		"heading = ?",
		"altitude >= ?",
		"altitude <= ?",
		"lat BETWEEN ? AND ?",
		"lon BETWEEN ? AND ?",
	}
	if !reflect.DeepEqual(p.Clauses, wantClauses) {
		t.Errorf("Clauses =\n%v\nwant\n%v", p.Clauses, wantClauses)
	}

	wantArgs := []any{
		"2026-10-14 12:00:00", "2026-10-15 12:00:00",
		"7C6CA3",
		"%qfa%",
		"4521",
		"A5",
		270.0,
		1000.0,
		40000.0,
		-34.0, -33.0,
		150.0, 152.0,
	}
	if !reflect.DeepEqual(p.Args, wantArgs) {
		t.Errorf("Args =\n%v\nwant\n%v", p.Args, wantArgs)
	}

	if got := strings.Count(p.Where(), "?"); got != len(p.Args) {
		t.Errorf("placeholders = %d, args = %d", got, len(p.Args))
	}
}

func TestBuildPartialAltitude(t *testing.T) {
	p, err := Build(Filters{AltitudeMax: f64(5000)}, now)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if p.Clauses[len(p.Clauses)-1] != "altitude <= ?" {
		t.Errorf("last clause = %q, want altitude <= ?", p.Clauses[len(p.Clauses)-1])
	}
	if len(p.Clauses) != 2 {
		t.Errorf("len(Clauses) = %d, want 2", len(p.Clauses))
	}
}

func TestBuildZeroValuedFilters(t *testing.T) {
	p, err := Build(Filters{Heading: f64(0), AltitudeMin: f64(0)}, now)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if len(p.Clauses) != 3 {
		t.Errorf("len(Clauses) = %d, want 3 (zero values are present)", len(p.Clauses))
	}
}

func TestBuildGeoGroupValidation(t *testing.T) {
	tests := []struct {
		name    string
		f       Filters
		wantErr bool
	}{
		{"none", Filters{}, false},
		{"all four", Filters{LatMin: f64(1), LatMax: f64(2), LonMin: f64(3), LonMax: f64(4)}, false},
		{"all four zero", Filters{LatMin: f64(0), LatMax: f64(0), LonMin: f64(0), LonMax: f64(0)}, false},
		{"lat_min only", Filters{LatMin: f64(1)}, true},
		{"lat pair only", Filters{LatMin: f64(1), LatMax: f64(2)}, true},
		{"three of four", Filters{LatMin: f64(1), LatMax: f64(2), LonMin: f64(3)}, true},
		{"lon_max only", Filters{LonMax: f64(0)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(tt.f, now)
			if !tt.wantErr {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}

			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("error = %v, want *ValidationError", err)
			}
			if !strings.Contains(ve.Error(), "incomplete geographic bound group") {
				t.Errorf("message = %q", ve.Error())
			}
		})
	}
}

func TestBuildDeterministic(t *testing.T) {
	f := Filters{
		Hex:         "A1",
		Flight:      "ual",
		AltitudeMin: f64(100),
		LatMin:      f64(1), LatMax: f64(2), LonMin: f64(3), LonMax: f64(4),
	}

	a, err := Build(f, now)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	b, err := Build(f, now)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if a.Where() != b.Where() {
		t.Errorf("Where differs:\n%s\n%s", a.Where(), b.Where())
	}
	if !reflect.DeepEqual(a.Args, b.Args) {
		t.Errorf("Args differ: %v vs %v", a.Args, b.Args)
	}
}

func TestBuildNeverInterpolates(t *testing.T) {
	hostile := []string{
		"'; DROP TABLE aircraft; --",
		"x' OR '1'='1",
		"%' OR 1=1 --",
	}

	for _, v := range hostile {
		t.Run(v, func(t *testing.T) {
			p, err := Build(Filters{Hex: v, Flight: v, Squawk: v, Category: v}, now)
			if err != nil {
				t.Fatalf("Build failed: %v", err)
			}
			where := p.Where()
			if strings.Contains(where, v) || strings.Contains(where, strings.ToLower(v)) {
				t.Errorf("filter value leaked into SQL text: %s", where)
			}
			if strings.Contains(where, "'") {
				t.Errorf("unexpected quote in SQL text: %s", where)
			}
		})
	}
}

func TestWhere(t *testing.T) {
	p := PredicateSet{Clauses: []string{"a = ?", "b = ?"}, Args: []any{1, 2}}
	if got := p.Where(); got != "a = ? AND b = ?" {
		t.Errorf("Where = %q", got)
	}
}

func TestRebind(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"hex = ?", "hex = $1"},
		{"timestamp BETWEEN ? AND ? AND hex = ?", "timestamp BETWEEN $1 AND $2 AND hex = $3"},
		{"no placeholders", "no placeholders"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := Rebind(tt.in); got != tt.want {
				t.Errorf("Rebind(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}

	var many []string
	for i := 0; i < 12; i++ {
		many = append(many, "?")
	}
	if got := Rebind(strings.Join(many, ",")); !strings.HasSuffix(got, "$11,$12") {
		t.Errorf("Rebind with 12 params = %q", got)
	}
}

func TestParseTime(t *testing.T) {
	tests := []struct {
		raw  string
		want time.Time
	}{
		{"2026-10-15T12:30:00Z", time.Date(2026, 10, 15, 12, 30, 0, 0, time.UTC)},
		{"2026-10-15T22:30:00+10:00", time.Date(2026, 10, 15, 12, 30, 0, 0, time.UTC)},
		{"2026-10-15T22:30:00 10:00", time.Date(2026, 10, 15, 12, 30, 0, 0, time.UTC)},
		{"2026-10-15T12:30:00", time.Date(2026, 10, 15, 12, 30, 0, 0, time.UTC)},
		{"2026-10-15 12:30:00", time.Date(2026, 10, 15, 12, 30, 0, 0, time.UTC)},
		{" 2026-10-15 ", time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseTime(tt.raw)
			if err != nil {
				t.Fatalf("ParseTime: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}

	for _, bad := range []string{"", "yesterday", "2026-13-45", "15/10/2026"} {
		if _, err := ParseTime(bad); err == nil {
			t.Errorf("ParseTime(%q) succeeded, want error", bad)
		}
	}
}
