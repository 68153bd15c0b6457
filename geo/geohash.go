package geo

import (
	"github.com/mmcloughlin/geohash"

	"fleet-dispatch/models"
)

// EncodePosition encodes a coordinate into a geohash cell with the given
// precision.
func EncodePosition(c models.Coordinate, precision uint) string {
	return geohash.EncodeWithPrecision(c.Lat, c.Lng, precision)
}

// NeighborCells returns the hash's cell plus its eight neighbors, the search
// window for coarse nearby-driver lookups.
func NeighborCells(hash string) []string {
	cells := geohash.Neighbors(hash)
	return append(cells, hash)
}
