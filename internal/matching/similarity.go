package matching

import (
	"math"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"

	"github.com/custodia-labs/cityseed/internal/core/domain"
)

const earthRadiusKm = 6371.0

// NameSimilarity compares two normalised names in [0, 1]. It takes the
// better of a direct Jaro-Winkler comparison and one over token-sorted names.
func NameSimilarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	jw := metrics.NewJaroWinkler()
	direct := strutil.Similarity(a, b, jw)
	sorted := strutil.Similarity(tokenSort(a), tokenSort(b), jw)
	return math.Max(direct, sorted)
}

// HaversineKm returns the great-circle distance between two points in km.
func HaversineKm(a, b domain.Coordinates) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusKm * c
}

// GeoSimilarity maps a distance onto [0, 1]: 1 at the same point, falling
// linearly to 0 at radiusKm and beyond.
func GeoSimilarity(distanceKm, radiusKm float64) float64 {
	if radiusKm <= 0 {
		return 0
	}
	return math.Max(0, 1-distanceKm/radiusKm)
}
