// README: Truck position index backed by Redis GEO.
package location

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"

	"haulbook/internal/types"
)

const truckGeoKey = "fleet:trucks:geo"

// GeoIndex mirrors truck coordinates into a Redis GEO set so radius searches
// do not need to scan the fleet table. It is a cache: Postgres stays the
// source of truth, and distances are recomputed by the caller.
type GeoIndex struct {
	redis *redis.Client
	key   string
}

func NewGeoIndex(redis *redis.Client) *GeoIndex {
	return &GeoIndex{redis: redis, key: truckGeoKey}
}

func (g *GeoIndex) Set(ctx context.Context, id types.ID, p types.Point) error {
	if err := ValidatePoint(p); err != nil {
		return err
	}
	return g.redis.GeoAdd(ctx, g.key, &redis.GeoLocation{
		Name:      string(id),
		Longitude: p.Lng,
		Latitude:  p.Lat,
	}).Err()
}

func (g *GeoIndex) Remove(ctx context.Context, id types.ID) error {
	return g.redis.ZRem(ctx, g.key, string(id)).Err()
}

// Within returns ids inside radiusKm of p, closest first.
func (g *GeoIndex) Within(ctx context.Context, p types.Point, radiusKm float64) ([]types.ID, error) {
	results, err := g.redis.GeoSearch(ctx, g.key, &redis.GeoSearchQuery{
		Longitude:  p.Lng,
		Latitude:   p.Lat,
		Radius:     radiusKm,
		RadiusUnit: "km",
		Sort:       "ASC",
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	ids := make([]types.ID, len(results))
	for i, r := range results {
		ids[i] = types.ID(r)
	}
	return ids, nil
}
