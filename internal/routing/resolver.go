// Package routing resolves drawable path geometry between two coordinates,
// caching results so GPS jitter never causes a refetch.
package routing

import (
	"context"
	"fmt"

	gocache "github.com/patrickmn/go-cache"

	"delivery-tracking/internal/common/logger"
	"delivery-tracking/internal/domain"
)

// Provider fetches routable geometry from an external service. Absence of a
// route is reported as an error; the resolver treats it as non-fatal.
type Provider interface {
	Route(ctx context.Context, origin, destination domain.Coordinate) ([]domain.Coordinate, error)
}

// Resolver caches geometry by rounded endpoint pair. Writes are
// last-resolved-wins, so concurrent sessions need no coordination.
type Resolver struct {
	provider Provider
	cache    *gocache.Cache
	lg       *logger.Logger
}

func NewResolver(provider Provider, lg *logger.Logger) *Resolver {
	return &Resolver{
		provider: provider,
		cache:    gocache.New(gocache.NoExpiration, 0),
		lg:       lg,
	}
}

// Resolve always returns drawable geometry: cached, freshly fetched, or the
// two-point straight line when the provider is unavailable or has no route.
func (r *Resolver) Resolve(ctx context.Context, origin, destination domain.Coordinate) domain.RouteGeometry {
	originKey := CoordKey(origin)
	destKey := CoordKey(destination)
	key := originKey + "|" + destKey

	if cached, ok := r.cache.Get(key); ok {
		return cached.(domain.RouteGeometry)
	}

	points := r.fetch(ctx, origin, destination)
	geo := domain.RouteGeometry{
		OriginKey:      originKey,
		DestinationKey: destKey,
		Points:         points,
	}
	r.cache.Set(key, geo, gocache.NoExpiration)
	return geo
}

func (r *Resolver) fetch(ctx context.Context, origin, destination domain.Coordinate) []domain.Coordinate {
	if r.provider == nil {
		return []domain.Coordinate{origin, destination}
	}
	points, err := r.provider.Route(ctx, origin, destination)
	if err != nil || len(points) < 2 {
		r.lg.Warn("route_fallback", map[string]any{
			"origin":      CoordKey(origin),
			"destination": CoordKey(destination),
			"reason":      errString(err),
		})
		return []domain.Coordinate{origin, destination}
	}
	return points
}

// CoordKey rounds a coordinate to 4 decimal places (~11 m), the jitter
// tolerance for cache invalidation.
func CoordKey(c domain.Coordinate) string {
	return fmt.Sprintf("%.4f,%.4f", c.Lat, c.Lng)
}

func errString(err error) string {
	if err == nil {
		return "no route"
	}
	return err.Error()
}
