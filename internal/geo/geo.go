// Package geo provides shared geographic constants and distance helpers.
package geo

import "math"

// EarthRadiusMeters is the spherical Earth radius used for haversine distances.
const EarthRadiusMeters = 6371000.0

// Local meter-to-degree approximations. These are good enough for the
// sub-kilometre offsets used by grid construction and radial sampling;
// distances between arbitrary points always use Haversine.
const (
	MetersPerDegreeLat = 110540.0
	MetersPerDegreeLon = 111320.0 // at the equator; scale by cos(lat)
)

// Point is a geographic coordinate in decimal degrees.
type Point struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// Haversine returns the great-circle distance between two points in meters.
func Haversine(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return EarthRadiusMeters * c
}

// Offset returns the point displaced from p by (eastMeters, northMeters)
// using the local flat-earth approximation.
func Offset(p Point, eastMeters, northMeters float64) Point {
	return Point{
		Lon: p.Lon + eastMeters/(MetersPerDegreeLon*math.Cos(p.Lat*math.Pi/180)),
		Lat: p.Lat + northMeters/MetersPerDegreeLat,
	}
}

// RadialPoint returns the i-th of n points evenly spaced on a circle of
// radiusMeters around center. Angle 0 points east and increases
// counter-clockwise, matching the usual mathematical convention.
func RadialPoint(center Point, radiusMeters float64, i, n int) Point {
	angle := 2 * math.Pi * float64(i) / float64(n)
	return Offset(center, radiusMeters*math.Cos(angle), radiusMeters*math.Sin(angle))
}

// Bounds is a rectangular lon/lat region.
type Bounds struct {
	MinLon float64 `json:"min_lon"`
	MinLat float64 `json:"min_lat"`
	MaxLon float64 `json:"max_lon"`
	MaxLat float64 `json:"max_lat"`
}

// Valid reports whether the bounds describe a non-empty region.
func (b Bounds) Valid() bool {
	return b.MaxLon >= b.MinLon && b.MaxLat >= b.MinLat
}

// MidLat returns the latitude of the region's horizontal midline, used for
// the lon-degree scaling when gridding.
func (b Bounds) MidLat() float64 {
	return (b.MinLat + b.MaxLat) / 2
}

// Grid returns the cell centers of a regular grid over b with the requested
// spacing in meters. Cells are emitted row-major, south to north, west to
// east, so iteration order is deterministic.
func (b Bounds) Grid(cellMeters float64) []Point {
	if !b.Valid() || cellMeters <= 0 {
		return nil
	}

	latStep := cellMeters / MetersPerDegreeLat
	lonStep := cellMeters / (MetersPerDegreeLon * math.Cos(b.MidLat()*math.Pi/180))

	var points []Point
	for lat := b.MinLat; lat <= b.MaxLat; lat += latStep {
		for lon := b.MinLon; lon <= b.MaxLon; lon += lonStep {
			points = append(points, Point{Lon: lon, Lat: lat})
		}
	}
	return points
}
