package routing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"delivery-tracking/internal/common/logger"
	"delivery-tracking/internal/domain"
)

type stubProvider struct {
	calls  int
	points []domain.Coordinate
	err    error
}

func (p *stubProvider) Route(_ context.Context, _, _ domain.Coordinate) ([]domain.Coordinate, error) {
	p.calls++
	return p.points, p.err
}

var (
	hanoi    = domain.Coordinate{Lat: 21.0278, Lng: 105.8342}
	westLake = domain.Coordinate{Lat: 21.0587, Lng: 105.8230}
)

func TestResolveUsesProviderGeometry(t *testing.T) {
	p := &stubProvider{points: []domain.Coordinate{hanoi, {Lat: 21.04, Lng: 105.83}, westLake}}
	r := NewResolver(p, logger.Nop())

	geo := r.Resolve(context.Background(), hanoi, westLake)
	assert.Len(t, geo.Points, 3)
	assert.Equal(t, CoordKey(hanoi), geo.OriginKey)
	assert.Equal(t, CoordKey(westLake), geo.DestinationKey)
}

func TestResolveFallsBackToStraightLine(t *testing.T) {
	p := &stubProvider{err: errors.New("provider down")}
	r := NewResolver(p, logger.Nop())

	geo := r.Resolve(context.Background(), hanoi, westLake)
	require.Len(t, geo.Points, 2)
	assert.Equal(t, hanoi, geo.Points[0])
	assert.Equal(t, westLake, geo.Points[1])
}

func TestResolveWithoutProvider(t *testing.T) {
	r := NewResolver(nil, logger.Nop())
	geo := r.Resolve(context.Background(), hanoi, westLake)
	assert.Len(t, geo.Points, 2)
}

func TestResolveCachesByRoundedEndpoints(t *testing.T) {
	p := &stubProvider{points: []domain.Coordinate{hanoi, westLake}}
	r := NewResolver(p, logger.Nop())

	r.Resolve(context.Background(), hanoi, westLake)
	require.Equal(t, 1, p.calls)

	// GPS jitter below the 4-decimal tolerance hits the cache.
	jittered := domain.Coordinate{Lat: hanoi.Lat + 0.00003, Lng: hanoi.Lng - 0.00002}
	r.Resolve(context.Background(), jittered, westLake)
	assert.Equal(t, 1, p.calls)

	// A genuinely different origin refetches.
	far := domain.Coordinate{Lat: hanoi.Lat + 0.01, Lng: hanoi.Lng}
	r.Resolve(context.Background(), far, westLake)
	assert.Equal(t, 2, p.calls)
}

func TestDistanceKm(t *testing.T) {
	assert.InDelta(t, 0, DistanceKm(hanoi, hanoi), 1e-9)
	d := DistanceKm(hanoi, westLake)
	assert.Greater(t, d, 3.0)
	assert.Less(t, d, 5.0)
}

func TestEtaSeconds(t *testing.T) {
	eta := EtaSeconds(hanoi, westLake, 30)
	assert.Greater(t, eta, 0)
	// Zero speed falls back to the default cruise speed.
	assert.Equal(t, eta, EtaSeconds(hanoi, westLake, 0))
	// Twice the speed halves the estimate, within rounding.
	assert.InDelta(t, eta/2, EtaSeconds(hanoi, westLake, 60), 1)
}

func TestInterpolateClamps(t *testing.T) {
	mid := Interpolate(hanoi, westLake, 0.5)
	assert.InDelta(t, (hanoi.Lat+westLake.Lat)/2, mid.Lat, 1e-9)
	assert.Equal(t, hanoi, Interpolate(hanoi, westLake, -1))
	assert.Equal(t, westLake, Interpolate(hanoi, westLake, 2))
}

func TestProgressAlong(t *testing.T) {
	route := domain.RouteGeometry{Points: []domain.Coordinate{hanoi, westLake}}
	assert.InDelta(t, 0, ProgressAlong(route, hanoi), 0.5)
	assert.InDelta(t, 50, ProgressAlong(route, Interpolate(hanoi, westLake, 0.5)), 1)
	assert.InDelta(t, 100, ProgressAlong(route, westLake), 0.5)
	assert.Equal(t, 0.0, ProgressAlong(domain.RouteGeometry{}, hanoi))
}

func TestProgressAlongMultiSegment(t *testing.T) {
	mid := Interpolate(hanoi, westLake, 0.5)
	route := domain.RouteGeometry{Points: []domain.Coordinate{hanoi, mid, westLake}}

	// The first vertex is a candidate too: a drone still at the origin has
	// made no progress.
	assert.InDelta(t, 0, ProgressAlong(route, hanoi), 0.5)
	assert.InDelta(t, 50, ProgressAlong(route, mid), 1)
	assert.InDelta(t, 75, ProgressAlong(route, Interpolate(mid, westLake, 0.5)), 1)
	assert.InDelta(t, 100, ProgressAlong(route, westLake), 0.5)

	// Positions slightly off the path project onto it.
	off := Interpolate(hanoi, mid, 0.5)
	off.Lng += 0.0005
	assert.InDelta(t, 25, ProgressAlong(route, off), 3)
}
