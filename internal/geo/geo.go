// Package geo provides the pure geolocation math used by job matching and
// check-in validation: haversine distance, coordinate validation, and
// bounding-box precomputation for cheap storage-side prefiltering.
package geo

import (
	"fmt"
	"math"
)

// EarthRadiusKm is the mean Earth radius used by the haversine formula.
const EarthRadiusKm = 6371.0

// kmPerDegree approximates one degree of latitude.
const kmPerDegree = 111.0

// Distance returns the great-circle distance in kilometers between two
// points given in decimal degrees.
func Distance(lat1, lng1, lat2, lng2 float64) float64 {
	lat1Rad := lat1 * math.Pi / 180
	lng1Rad := lng1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	lng2Rad := lng2 * math.Pi / 180

	dLat := lat2Rad - lat1Rad
	dLng := lng2Rad - lng1Rad

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Asin(math.Sqrt(a))

	return EarthRadiusKm * c
}

// WithinRadius reports whether the two points are at most radiusKm apart.
func WithinRadius(lat1, lng1, lat2, lng2, radiusKm float64) bool {
	return Distance(lat1, lng1, lat2, lng2) <= radiusKm
}

// ValidateCoordinates checks that lat is in [-90, 90] and lng in [-180, 180].
func ValidateCoordinates(lat, lng float64) error {
	if math.IsNaN(lat) || math.IsNaN(lng) {
		return fmt.Errorf("coordinates must be numeric")
	}
	if lat < -90 || lat > 90 {
		return fmt.Errorf("invalid latitude: must be between -90 and 90, got %v", lat)
	}
	if lng < -180 || lng > 180 {
		return fmt.Errorf("invalid longitude: must be between -180 and 180, got %v", lng)
	}
	return nil
}

// BoundingBox is the rectangular coordinate range used to prefilter
// candidates in storage before the exact distance computation.
type BoundingBox struct {
	MinLat float64
	MaxLat float64
	MinLng float64
	MaxLng float64
}

// ComputeBoundingBox returns the bounding box around a center point for the
// given radius. One degree of latitude is taken as ~111 km; the longitude
// width is corrected by cos(latitude).
func ComputeBoundingBox(lat, lng, radiusKm float64) BoundingBox {
	latDelta := radiusKm / kmPerDegree
	lngDelta := radiusKm / (kmPerDegree * math.Cos(lat*math.Pi/180))

	return BoundingBox{
		MinLat: lat - latDelta,
		MaxLat: lat + latDelta,
		MinLng: lng - lngDelta,
		MaxLng: lng + lngDelta,
	}
}
