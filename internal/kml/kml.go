// Package kml renders stored positions as KML flight tracks viewable in
// Google Earth and other mapping applications.
package kml

import (
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"adsb_history/internal/position"
)

// KML structures follow the KML 2.2 reference:
// https://developers.google.com/kml/documentation/kmlreference

// KML is the root element of a KML document.
type KML struct {
	XMLName   xml.Name `xml:"kml"`
	Namespace string   `xml:"xmlns,attr"`
	Document  Document `xml:"Document"`
}

// Document contains the document metadata and features.
type Document struct {
	Name        string      `xml:"name"`
	Description string      `xml:"description,omitempty"`
	Styles      []Style     `xml:"Style,omitempty"`
	Placemarks  []Placemark `xml:"Placemark"`
}

// Style defines the visual appearance of features.
type Style struct {
	ID        string    `xml:"id,attr"`
	LineStyle LineStyle `xml:"LineStyle"`
}

// LineStyle sets track colour (aabbggrr) and width.
type LineStyle struct {
	Color string  `xml:"color"`
	Width float64 `xml:"width"`
}

// Placemark is one aircraft's track.
type Placemark struct {
	Name         string        `xml:"name"`
	Description  string        `xml:"description,omitempty"`
	StyleURL     string        `xml:"styleUrl,omitempty"`
	LineString   LineString    `xml:"LineString"`
	ExtendedData *ExtendedData `xml:"ExtendedData,omitempty"`
}

// LineString is an ordered list of track points.
type LineString struct {
	AltitudeMode string `xml:"altitudeMode"`
	Coordinates  string `xml:"coordinates"` // lon,lat,alt tuples separated by spaces
}

// ExtendedData holds custom data associated with a placemark.
type ExtendedData struct {
	Data []Data `xml:"Data"`
}

// Data represents a single piece of extended data.
type Data struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value"`
}

const feetToMetres = 0.3048

// Tracks groups positions by aircraft and returns one placemark per hex,
// points in time order. Input order does not matter.
func Tracks(positions []position.Position, generated time.Time) KML {
	byHex := make(map[string][]position.Position)
	for _, p := range positions {
		byHex[p.Hex] = append(byHex[p.Hex], p)
	}

	hexes := make([]string, 0, len(byHex))
	for hex := range byHex {
		hexes = append(hexes, hex)
	}
	sort.Strings(hexes)

	placemarks := make([]Placemark, 0, len(hexes))
	for _, hex := range hexes {
		track := byHex[hex]
		sort.SliceStable(track, func(i, j int) bool {
			return track[i].ObservedAt.Time().Before(track[j].ObservedAt.Time())
		})
		placemarks = append(placemarks, placemark(hex, track))
	}

	return KML{
		Namespace: "http://www.opengis.net/kml/2.2",
		Document: Document{
			Name:        "ADS-B Tracks",
			Description: fmt.Sprintf("%d aircraft, %d positions. Generated %s.", len(hexes), len(positions), generated.UTC().Format(position.TimestampLayout)),
			Styles: []Style{
				{ID: "trackStyle", LineStyle: LineStyle{Color: "ff00aaff", Width: 2}},
			},
			Placemarks: placemarks,
		},
	}
}

func placemark(hex string, track []position.Position) Placemark {
	coords := make([]string, len(track))
	callsigns := []string{}
	seen := map[string]bool{}
	for i, p := range track {
		coords[i] = fmt.Sprintf("%.6f,%.6f,%.0f", p.Lon, p.Lat, p.Altitude*feetToMetres)
		if p.Flight != position.Missing && !seen[p.Flight] {
			seen[p.Flight] = true
			callsigns = append(callsigns, p.Flight)
		}
	}

	first, last := track[0], track[len(track)-1]
	name := hex
	if len(callsigns) > 0 {
		name = hex + " " + callsigns[0]
	}

	return Placemark{
		Name: name,
		Description: fmt.Sprintf(
			"Callsigns: %s\nFirst seen: %s UTC\nLast seen: %s UTC\nPoints: %d",
			strings.Join(callsigns, ", "), first.ObservedAt, last.ObservedAt, len(track),
		),
		StyleURL: "#trackStyle",
		LineString: LineString{
			AltitudeMode: "absolute",
			Coordinates:  strings.Join(coords, " "),
		},
		ExtendedData: &ExtendedData{
			Data: []Data{
				{Name: "hex", Value: hex},
				{Name: "category", Value: last.Category},
				{Name: "squawk", Value: last.Squawk},
				{Name: "points", Value: strconv.Itoa(len(track))},
				{Name: "first_seen", Value: first.ObservedAt.Time().Format(time.RFC3339)},
				{Name: "last_seen", Value: last.ObservedAt.Time().Format(time.RFC3339)},
			},
		},
	}
}

// Encode writes doc with the XML header.
func Encode(w io.Writer, doc KML) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode kml: %w", err)
	}
	_, err := io.WriteString(w, "\n")
	return err
}
