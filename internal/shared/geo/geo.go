// Package geo provides geodesic distance math and WKT helpers shared by the
// fact stores. All distances are meters on a spherical earth.
package geo

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

const earthRadiusM = 6371008.8

// Point is a WGS84 coordinate pair in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether the point lies inside WGS84 bounds.
func (p Point) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// ValidLine reports whether line is a usable polyline: at least two points,
// all inside bounds. Coincident consecutive points are allowed; distance
// math treats such segments as points.
func ValidLine(line []Point) bool {
	if len(line) < 2 {
		return false
	}
	for _, p := range line {
		if !p.Valid() {
			return false
		}
	}
	return true
}

// DistanceM returns the haversine great-circle distance between a and b.
func DistanceM(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusM * math.Asin(math.Sqrt(h))
}

// PointToSegmentM returns the distance from p to the segment a-b, clamped to
// the endpoints. Uses a local equirectangular projection around p, which is
// accurate at the city-to-regional scales this store serves.
func PointToSegmentM(p, a, b Point) float64 {
	ax, ay := project(a, p)
	bx, by := project(b, p)

	dx, dy := bx-ax, by-ay
	segLen2 := dx*dx + dy*dy
	if segLen2 == 0 {
		// Degenerate segment, treat as a point.
		return DistanceM(p, a)
	}

	// p projects to the origin in its own local plane.
	t := -(ax*dx + ay*dy) / segLen2
	t = math.Max(0, math.Min(1, t))
	cx, cy := ax+t*dx, ay+t*dy
	return math.Hypot(cx, cy)
}

// PointToLineM returns the minimum distance from p to any segment of line.
// A single-point line degrades to point distance.
func PointToLineM(p Point, line []Point) float64 {
	if len(line) == 0 {
		return math.Inf(1)
	}
	if len(line) == 1 {
		return DistanceM(p, line[0])
	}
	min := math.Inf(1)
	for i := 0; i < len(line)-1; i++ {
		if d := PointToSegmentM(p, line[i], line[i+1]); d < min {
			min = d
		}
	}
	return min
}

func project(pt, origin Point) (x, y float64) {
	x = (pt.Lng - origin.Lng) * math.Pi / 180 * earthRadiusM * math.Cos(origin.Lat*math.Pi/180)
	y = (pt.Lat - origin.Lat) * math.Pi / 180 * earthRadiusM
	return x, y
}

// LineStringWKT renders line as a WKT LINESTRING (lng lat order, as PostGIS
// expects) suitable for ST_GeogFromText.
func LineStringWKT(line []Point) string {
	var b strings.Builder
	b.WriteString("LINESTRING(")
	for i, p := range line {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(p.Lng, 'f', -1, 64))
		b.WriteByte(' ')
		b.WriteString(strconv.FormatFloat(p.Lat, 'f', -1, 64))
	}
	b.WriteByte(')')
	return b.String()
}

// ParseLineString parses a WKT LINESTRING as returned by ST_AsText.
func ParseLineString(wkt string) ([]Point, error) {
	s := strings.TrimSpace(wkt)
	upper := strings.ToUpper(s)
	if !strings.HasPrefix(upper, "LINESTRING") {
		return nil, fmt.Errorf("not a linestring: %q", wkt)
	}
	open := strings.IndexByte(s, '(')
	close := strings.LastIndexByte(s, ')')
	if open < 0 || close < open {
		return nil, fmt.Errorf("malformed linestring: %q", wkt)
	}

	var line []Point
	for _, pair := range strings.Split(s[open+1:close], ",") {
		fields := strings.Fields(strings.TrimSpace(pair))
		if len(fields) != 2 {
			return nil, fmt.Errorf("malformed coordinate %q in %q", pair, wkt)
		}
		lng, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return nil, fmt.Errorf("bad longitude %q: %w", fields[0], err)
		}
		lat, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, fmt.Errorf("bad latitude %q: %w", fields[1], err)
		}
		line = append(line, Point{Lat: lat, Lng: lng})
	}
	if len(line) < 2 {
		return nil, fmt.Errorf("linestring with %d points: %q", len(line), wkt)
	}
	return line, nil
}
