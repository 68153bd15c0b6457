package geo

import (
	"context"
	"log"
	"math"
	"sync"

	"github.com/dhconnelly/rtreego"

	"fleet-dispatch/models"
)

// rectTolerance pads point queries and degenerate bounding boxes so the
// R-tree always holds well-formed rectangles.
const rectTolerance = 1e-9

// ZoneSource loads a tenant's zones in containment order (creation order).
type ZoneSource interface {
	ZonesByTenant(ctx context.Context, tenantID int64) ([]models.Zone, error)
}

// Index answers point-in-zone queries per tenant. The accelerated path is an
// R-tree over zone bounding boxes; when a tenant's tree cannot be built (or
// acceleration is disabled) the same ray-casting test runs linearly over the
// tenant's zones. Both paths return identical results.
type Index struct {
	source   ZoneSource
	useRTree bool

	mu      sync.RWMutex
	tenants map[int64]*tenantZones
}

type tenantZones struct {
	zones []models.Zone  // creation order, the containment tie-break
	tree  *rtreego.Rtree // nil when the linear path is in effect
}

type zoneEntry struct {
	rect rtreego.Rect
	idx  int
}

func (e *zoneEntry) Bounds() rtreego.Rect {
	return e.rect
}

func NewIndex(source ZoneSource, useRTree bool) *Index {
	return &Index{
		source:   source,
		useRTree: useRTree,
		tenants:  make(map[int64]*tenantZones),
	}
}

// ZoneFor returns the id of the first zone (in creation order) containing
// the point, or nil when no zone contains it. A point on a zone boundary
// counts as inside. Unzoned points are a valid state, not an error.
func (idx *Index) ZoneFor(ctx context.Context, tenantID int64, pt models.Coordinate) (*int64, error) {
	tz, err := idx.tenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	if tz.tree != nil {
		query := rtreego.Point{pt.Lat, pt.Lng}.ToRect(rectTolerance)
		best := -1
		for _, hit := range tz.tree.SearchIntersect(query) {
			entry := hit.(*zoneEntry)
			if best != -1 && entry.idx >= best {
				continue
			}
			if ContainsPoint(tz.zones[entry.idx].Polygon, pt) {
				best = entry.idx
			}
		}
		if best == -1 {
			return nil, nil
		}
		id := tz.zones[best].ID
		return &id, nil
	}

	for _, z := range tz.zones {
		if ContainsPoint(z.Polygon, pt) {
			id := z.ID
			return &id, nil
		}
	}
	return nil, nil
}

// Invalidate drops the cached zones for a tenant. The next query reloads
// them from the source; admin zone edits call this before the next dispatch.
func (idx *Index) Invalidate(tenantID int64) {
	idx.mu.Lock()
	delete(idx.tenants, tenantID)
	idx.mu.Unlock()
}

func (idx *Index) tenant(ctx context.Context, tenantID int64) (*tenantZones, error) {
	idx.mu.RLock()
	tz, ok := idx.tenants[tenantID]
	idx.mu.RUnlock()
	if ok {
		return tz, nil
	}

	zones, err := idx.source.ZonesByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	tz = &tenantZones{zones: zones}
	if idx.useRTree && len(zones) > 0 {
		tz.tree = buildTree(tenantID, zones)
	}

	idx.mu.Lock()
	idx.tenants[tenantID] = tz
	idx.mu.Unlock()
	return tz, nil
}

// buildTree indexes zone bounding boxes. Returns nil (linear fallback) when
// any rectangle cannot be constructed.
func buildTree(tenantID int64, zones []models.Zone) *rtreego.Rtree {
	tree := rtreego.NewTree(2, 25, 50)
	for i, z := range zones {
		if len(z.Polygon) < 3 {
			continue
		}
		minLat, minLng := math.Inf(1), math.Inf(1)
		maxLat, maxLng := math.Inf(-1), math.Inf(-1)
		for _, v := range z.Polygon {
			minLat = math.Min(minLat, v.Lat)
			maxLat = math.Max(maxLat, v.Lat)
			minLng = math.Min(minLng, v.Lng)
			maxLng = math.Max(maxLng, v.Lng)
		}
		rect, err := rtreego.NewRect(
			rtreego.Point{minLat - rectTolerance, minLng - rectTolerance},
			[]float64{maxLat - minLat + 2*rectTolerance, maxLng - minLng + 2*rectTolerance},
		)
		if err != nil {
			log.Printf("geo: zone %d bounding box rejected, tenant %d falls back to linear scan: %v", z.ID, tenantID, err)
			return nil
		}
		tree.Insert(&zoneEntry{rect: rect, idx: i})
	}
	return tree
}

// ContainsPoint runs a ray-casting test over the polygon ring. Points on an
// edge or vertex count as inside.
func ContainsPoint(polygon []models.Coordinate, pt models.Coordinate) bool {
	n := len(polygon)
	if n < 3 {
		return false
	}
	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		a, b := polygon[j], polygon[i]
		if onSegment(a, b, pt) {
			return true
		}
		if (a.Lat > pt.Lat) != (b.Lat > pt.Lat) {
			crossLng := (b.Lng-a.Lng)*(pt.Lat-a.Lat)/(b.Lat-a.Lat) + a.Lng
			if pt.Lng < crossLng {
				inside = !inside
			}
		}
	}
	return inside
}

const onSegmentEpsilon = 1e-12

func onSegment(a, b, pt models.Coordinate) bool {
	cross := (b.Lat-a.Lat)*(pt.Lng-a.Lng) - (b.Lng-a.Lng)*(pt.Lat-a.Lat)
	if math.Abs(cross) > onSegmentEpsilon {
		return false
	}
	return pt.Lat >= math.Min(a.Lat, b.Lat) && pt.Lat <= math.Max(a.Lat, b.Lat) &&
		pt.Lng >= math.Min(a.Lng, b.Lng) && pt.Lng <= math.Max(a.Lng, b.Lng)
}
