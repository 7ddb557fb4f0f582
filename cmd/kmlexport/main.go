// Package main exports stored aircraft tracks to KML. KML (Keyhole Markup
// Language) files can be viewed in Google Earth, Google Maps, and other
// mapping applications.
//
// Usage:
//
//	kmlexport [-db-driver sqlite -sqlite-path aircraft.db] [-hex 7C6CA3] [-flight QFA]
//	          [-start 2026-10-14T00:00:00Z] [-end 2026-10-15] [-output tracks.kml] [-v]
//
// The time window defaults to the last 24 hours.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"adsb_history/internal/config"
	"adsb_history/internal/kml"
	"adsb_history/internal/query"
	"adsb_history/internal/storage"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	var store storage.Config
	config.BindStorageFlags(flag.CommandLine, os.Getenv, &store)

	hex := flag.String("hex", "", "Only export this ICAO hex code")
	flight := flag.String("flight", "", "Only export callsigns containing this text")
	start := flag.String("start", "", "Window start (RFC 3339 or YYYY-MM-DD HH:MM:SS, UTC)")
	end := flag.String("end", "", "Window end")
	output := flag.String("output", "", "Output KML file (default: stdout)")
	verbose := flag.Bool("v", false, "Verbose output")

	flag.Parse()

	filters := query.Filters{Hex: *hex, Flight: *flight}
	for _, tp := range []struct {
		raw string
		dst **time.Time
	}{{*start, &filters.Start}, {*end, &filters.End}} {
		if tp.raw == "" {
			continue
		}
		t, err := query.ParseTime(tp.raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(2)
		}
		*tp.dst = &t
	}

	now := time.Now()
	preds, err := query.Build(filters, now)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	ctx := context.Background()

	db, err := storage.Open(ctx, store)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening store: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	positions, err := db.Query(ctx, preds)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error querying positions: %v\n", err)
		os.Exit(1)
	}

	if len(positions) == 0 {
		fmt.Fprintf(os.Stderr, "No positions found matching criteria\n")
		return
	}

	doc := kml.Tracks(positions, now)
	if *verbose {
		fmt.Fprintf(os.Stderr, "Exporting %d positions across %d aircraft\n", len(positions), len(doc.Document.Placemarks))
	}

	var buf bytes.Buffer
	if err := kml.Encode(&buf, doc); err != nil {
		fmt.Fprintf(os.Stderr, "Error generating KML: %v\n", err)
		os.Exit(1)
	}

	if *output == "" {
		_, _ = os.Stdout.Write(buf.Bytes())
		return
	}
	if err := os.WriteFile(*output, buf.Bytes(), 0644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing file: %v\n", err)
		os.Exit(1)
	}
	if *verbose {
		fmt.Fprintf(os.Stderr, "Wrote %s\n", *output)
	}
}
