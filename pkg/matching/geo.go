package matching

import "math"

const earthRadiusMeters = 6371000.0

// HaversineMeters is the great-circle distance between two coordinates.
func HaversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	toRad := func(d float64) float64 { return d * math.Pi / 180 }

	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}

// DistanceProximity maps a distance onto 1.0 (same point) down to 0.0 at
// maxMeters.
func (s *Scorer) DistanceProximity(lat1, lon1, lat2, lon2, maxMeters float64) float64 {
	if maxMeters <= 0 {
		return 0.0
	}
	return s.NumericProximity(0, HaversineMeters(lat1, lon1, lat2, lon2), maxMeters)
}
