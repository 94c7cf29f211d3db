package match

import (
	"math"

	"github.com/geoproapp/geopro-server/internal/domain"
)

// earthRadiusMeters is the mean Earth radius used by Haversine.
const earthRadiusMeters = 6371000.0

// Haversine returns the great-circle distance between a and b in metres.
func Haversine(a, b domain.Coordinates) float64 {
	phi1 := a.Lat * math.Pi / 180
	phi2 := b.Lat * math.Pi / 180
	dPhi := (b.Lat - a.Lat) * math.Pi / 180
	dLambda := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	return 2 * earthRadiusMeters * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// proximity maps a distance to [0,1]: 1 at zero distance, falling linearly to
// 0 at cutoff and beyond.
func proximity(distance, cutoff float64) float64 {
	if cutoff <= 0 || distance >= cutoff {
		return 0
	}
	return clamp01(1 - distance/cutoff)
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
