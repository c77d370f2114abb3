package routing

import (
	"math"

	"delivery-tracking/internal/domain"
)

const (
	earthRadiusKm   = 6371.0
	defaultSpeedKmh = 30.0 // cruise speed assumed when telemetry omits one
)

// DistanceKm is the haversine great-circle distance.
func DistanceKm(a, b domain.Coordinate) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// EtaSeconds estimates remaining flight time at the given speed, falling back
// to the default cruise speed for zero or negative input.
func EtaSeconds(from, to domain.Coordinate, speedKmh float64) int {
	if speedKmh <= 0 {
		speedKmh = defaultSpeedKmh
	}
	return int(DistanceKm(from, to) / speedKmh * 3600)
}

// Interpolate returns the point at fraction t along the straight line a→b.
func Interpolate(a, b domain.Coordinate, t float64) domain.Coordinate {
	if t < 0 {
		t = 0
	}
	if t > 1 {
		t = 1
	}
	return domain.Coordinate{
		Lat: a.Lat + (b.Lat-a.Lat)*t,
		Lng: a.Lng + (b.Lng-a.Lng)*t,
	}
}

// ProgressAlong reports how far pos is along the route as a percentage of
// total path length: the position is projected onto every segment and the
// elapsed length to the nearest projection is taken. A position at the origin
// reports 0, at the final point 100.
func ProgressAlong(route domain.RouteGeometry, pos domain.Coordinate) float64 {
	pts := route.Points
	if len(pts) < 2 {
		return 0
	}
	total := 0.0
	for i := 1; i < len(pts); i++ {
		total += DistanceKm(pts[i-1], pts[i])
	}
	if total == 0 {
		return 0
	}
	best := math.MaxFloat64
	elapsed := 0.0
	walked := 0.0
	for i := 1; i < len(pts); i++ {
		seg := DistanceKm(pts[i-1], pts[i])
		frac, closest := projectOnSegment(pts[i-1], pts[i], pos)
		if d := DistanceKm(closest, pos); d < best {
			best = d
			elapsed = walked + seg*frac
		}
		walked += seg
	}
	pct := elapsed / total * 100
	if pct > 100 {
		pct = 100
	}
	return pct
}

// projectOnSegment returns the clamped parametric position of pos on the
// segment a→b and the corresponding point. Equirectangular approximation,
// fine at delivery distances.
func projectOnSegment(a, b, pos domain.Coordinate) (float64, domain.Coordinate) {
	scale := math.Cos(a.Lat * math.Pi / 180)
	dx := (b.Lng - a.Lng) * scale
	dy := b.Lat - a.Lat
	den := dx*dx + dy*dy
	if den == 0 {
		return 0, a
	}
	t := (((pos.Lng-a.Lng)*scale)*dx + (pos.Lat-a.Lat)*dy) / den
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	return t, Interpolate(a, b, t)
}
