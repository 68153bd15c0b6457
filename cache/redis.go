package cache

import (
	"context"
	"fmt"
	"log"
	"strconv"

	"github.com/go-redis/redis/v8"

	"fleet-dispatch/config"
	"fleet-dispatch/geo"
	"fleet-dispatch/models"
)

// InitRedis connects the client and verifies the connection.
func InitRedis(cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	log.Println("Connected to Redis successfully.")
	return rdb, nil
}

// Positions is the live driver position store. Driver clients write it at
// high frequency through the location endpoint; dispatch reads through it at
// filter time and never caches the result. Layout per tenant: one GEO set
// with exact positions, plus geohash bucket sets for coarse nearby listings.
type Positions struct {
	rdb       *redis.Client
	precision uint
}

func NewPositions(rdb *redis.Client, precision uint) *Positions {
	return &Positions{rdb: rdb, precision: precision}
}

func geoKey(tenantID int64) string {
	return fmt.Sprintf("tenant:%d:driver:pos", tenantID)
}

func bucketKey(tenantID int64, hash string) string {
	return fmt.Sprintf("tenant:%d:drivers:%s", tenantID, hash)
}

// Update moves the driver to its new position and geohash bucket.
func (p *Positions) Update(ctx context.Context, tenantID, driverID int64, oldHash, newHash string, c models.Coordinate) error {
	member := strconv.FormatInt(driverID, 10)
	pipe := p.rdb.TxPipeline()
	if oldHash != "" && oldHash != newHash {
		pipe.SRem(ctx, bucketKey(tenantID, oldHash), member)
	}
	pipe.SAdd(ctx, bucketKey(tenantID, newHash), member)
	pipe.GeoAdd(ctx, geoKey(tenantID), &redis.GeoLocation{
		Name:      member,
		Longitude: c.Lng,
		Latitude:  c.Lat,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("update position of driver %d: %w", driverID, err)
	}
	return nil
}

// Remove drops the driver from the live index, e.g. when it goes offline.
func (p *Positions) Remove(ctx context.Context, tenantID, driverID int64, hash string) error {
	member := strconv.FormatInt(driverID, 10)
	pipe := p.rdb.TxPipeline()
	if hash != "" {
		pipe.SRem(ctx, bucketKey(tenantID, hash), member)
	}
	pipe.ZRem(ctx, geoKey(tenantID), member)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("remove position of driver %d: %w", driverID, err)
	}
	return nil
}

// Positions returns the freshest known coordinates for the given drivers.
// Drivers without a live position are simply absent from the result.
func (p *Positions) Positions(ctx context.Context, tenantID int64, driverIDs []int64) (map[int64]models.Coordinate, error) {
	if len(driverIDs) == 0 {
		return nil, nil
	}
	members := make([]string, len(driverIDs))
	for i, id := range driverIDs {
		members[i] = strconv.FormatInt(id, 10)
	}
	locations, err := p.rdb.GeoPos(ctx, geoKey(tenantID), members...).Result()
	if err != nil {
		return nil, fmt.Errorf("read positions for tenant %d: %w", tenantID, err)
	}
	fresh := make(map[int64]models.Coordinate, len(driverIDs))
	for i, loc := range locations {
		if loc == nil {
			continue
		}
		fresh[driverIDs[i]] = models.Coordinate{Lat: loc.Latitude, Lng: loc.Longitude}
	}
	return fresh, nil
}

// Nearby lists driver ids in the geohash cell around c and its neighbors.
// This serves operator lookups, not the dispatch path.
func (p *Positions) Nearby(ctx context.Context, tenantID int64, c models.Coordinate) ([]int64, error) {
	hash := geo.EncodePosition(c, p.precision)
	seen := make(map[int64]bool)
	var ids []int64
	for _, cell := range geo.NeighborCells(hash) {
		members, err := p.rdb.SMembers(ctx, bucketKey(tenantID, cell)).Result()
		if err != nil {
			return nil, fmt.Errorf("nearby drivers in cell %s: %w", cell, err)
		}
		for _, m := range members {
			id, err := strconv.ParseInt(m, 10, 64)
			if err != nil || seen[id] {
				continue
			}
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids, nil
}
