package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"fleet-dispatch/models"
)

// Postgres implements the store interfaces over database/sql. All conditional
// writes are single UPDATE statements; zero rows affected is the optimistic
// concurrency loss signal.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) CreateTenant(ctx context.Context, t *models.Tenant) error {
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO tenants (name) VALUES ($1) RETURNING id, created_at`,
		t.Name,
	).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return fmt.Errorf("create tenant: %w", err)
	}
	return nil
}

func (s *Postgres) GetTenant(ctx context.Context, id int64) (*models.Tenant, error) {
	var t models.Tenant
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM tenants WHERE id=$1`, id,
	).Scan(&t.ID, &t.Name, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get tenant %d: %w", id, err)
	}
	return &t, nil
}

func (s *Postgres) CreateDriver(ctx context.Context, d *models.Driver) error {
	var lat, lng sql.NullFloat64
	if d.Coordinate != nil {
		lat = sql.NullFloat64{Float64: d.Coordinate.Lat, Valid: true}
		lng = sql.NullFloat64{Float64: d.Coordinate.Lng, Valid: true}
	}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO drivers (tenant_id, name, online, approved, active, latitude, longitude, geohash, zone_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id, created_at, updated_at`,
		d.TenantID, d.Name, d.Online, d.Approved, d.Active, lat, lng, d.Geohash, d.ZoneID,
	).Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create driver: %w", err)
	}
	return nil
}

const driverColumns = `id, tenant_id, name, online, approved, active, latitude, longitude, geohash, zone_id, created_at, updated_at`

func scanDriver(row interface{ Scan(...interface{}) error }) (*models.Driver, error) {
	var d models.Driver
	var lat, lng sql.NullFloat64
	var zoneID sql.NullInt64
	err := row.Scan(
		&d.ID, &d.TenantID, &d.Name, &d.Online, &d.Approved, &d.Active,
		&lat, &lng, &d.Geohash, &zoneID, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lat.Valid && lng.Valid {
		d.Coordinate = &models.Coordinate{Lat: lat.Float64, Lng: lng.Float64}
	}
	if zoneID.Valid {
		d.ZoneID = &zoneID.Int64
	}
	return &d, nil
}

func (s *Postgres) GetDriver(ctx context.Context, id int64) (*models.Driver, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+driverColumns+` FROM drivers WHERE id=$1`, id)
	d, err := scanDriver(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get driver %d: %w", id, err)
	}
	return d, nil
}

func (s *Postgres) UpdateLocation(ctx context.Context, id int64, c models.Coordinate, hash string, zoneID *int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE drivers SET latitude=$2, longitude=$3, geohash=$4, zone_id=$5, updated_at=NOW() WHERE id=$1`,
		id, c.Lat, c.Lng, hash, zoneID,
	)
	if err != nil {
		return fmt.Errorf("update driver %d location: %w", id, err)
	}
	return requireRow(res)
}

func (s *Postgres) SetOnline(ctx context.Context, id int64, online bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE drivers SET online=$2, updated_at=NOW() WHERE id=$1`, id, online)
	if err != nil {
		return fmt.Errorf("set driver %d online=%t: %w", id, online, err)
	}
	return requireRow(res)
}

func (s *Postgres) SetActive(ctx context.Context, id int64, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE drivers SET active=$2, updated_at=NOW() WHERE id=$1`, id, active)
	if err != nil {
		return fmt.Errorf("set driver %d active=%t: %w", id, active, err)
	}
	return requireRow(res)
}

func (s *Postgres) Eligible(ctx context.Context, tenantID int64, zoneID *int64, exclude []int64) ([]models.Driver, error) {
	if exclude == nil {
		exclude = []int64{}
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+driverColumns+` FROM drivers d
		 WHERE d.tenant_id = $1
		   AND d.online AND d.approved AND d.active
		   AND d.latitude IS NOT NULL AND d.longitude IS NOT NULL
		   AND ($2::bigint IS NULL OR d.zone_id = $2)
		   AND NOT (d.id = ANY($3))
		   AND NOT EXISTS (
			SELECT 1 FROM trips t
			WHERE t.driver_id = d.id AND t.status IN ('pending', 'active')
		   )
		 ORDER BY d.id`,
		tenantID, zoneID, pq.Array(exclude),
	)
	if err != nil {
		return nil, fmt.Errorf("eligible drivers for tenant %d: %w", tenantID, err)
	}
	defer rows.Close()

	var drivers []models.Driver
	for rows.Next() {
		d, err := scanDriver(rows)
		if err != nil {
			return nil, fmt.Errorf("scan eligible driver: %w", err)
		}
		drivers = append(drivers, *d)
	}
	return drivers, rows.Err()
}

func (s *Postgres) CreateZone(ctx context.Context, z *models.Zone) error {
	polygon, err := json.Marshal(z.Polygon)
	if err != nil {
		return fmt.Errorf("encode zone polygon: %w", err)
	}
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO zones (tenant_id, name, color, polygon) VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		z.TenantID, z.Name, z.Color, polygon,
	).Scan(&z.ID, &z.CreatedAt)
	if err != nil {
		return fmt.Errorf("create zone: %w", err)
	}
	return nil
}

func (s *Postgres) DeleteZone(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM zones WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete zone %d: %w", id, err)
	}
	return requireRow(res)
}

func (s *Postgres) GetZone(ctx context.Context, id int64) (*models.Zone, error) {
	var z models.Zone
	var polygon []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, name, color, polygon, created_at FROM zones WHERE id=$1`, id,
	).Scan(&z.ID, &z.TenantID, &z.Name, &z.Color, &polygon, &z.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get zone %d: %w", id, err)
	}
	if err := json.Unmarshal(polygon, &z.Polygon); err != nil {
		return nil, fmt.Errorf("decode zone %d polygon: %w", id, err)
	}
	return &z, nil
}

func (s *Postgres) ZonesByTenant(ctx context.Context, tenantID int64) ([]models.Zone, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tenant_id, name, color, polygon, created_at FROM zones
		 WHERE tenant_id=$1 ORDER BY created_at, id`,
		tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("zones for tenant %d: %w", tenantID, err)
	}
	defer rows.Close()

	var zones []models.Zone
	for rows.Next() {
		var z models.Zone
		var polygon []byte
		if err := rows.Scan(&z.ID, &z.TenantID, &z.Name, &z.Color, &polygon, &z.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan zone: %w", err)
		}
		if err := json.Unmarshal(polygon, &z.Polygon); err != nil {
			return nil, fmt.Errorf("decode zone %d polygon: %w", z.ID, err)
		}
		zones = append(zones, z)
	}
	return zones, rows.Err()
}

func (s *Postgres) CreateTrip(ctx context.Context, t *models.Trip) error {
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO trips (tenant_id, pickup_lat, pickup_lng, dest_lat, dest_lng, zone_id, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at, updated_at`,
		t.TenantID, t.Pickup.Lat, t.Pickup.Lng, t.Destination.Lat, t.Destination.Lng, t.ZoneID, t.Status,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create trip: %w", err)
	}
	return nil
}

func (s *Postgres) GetTrip(ctx context.Context, id int64) (*models.Trip, error) {
	var t models.Trip
	var zoneID, driverID sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, pickup_lat, pickup_lng, dest_lat, dest_lng, zone_id, status, driver_id, created_at, updated_at
		 FROM trips WHERE id=$1`, id,
	).Scan(
		&t.ID, &t.TenantID, &t.Pickup.Lat, &t.Pickup.Lng, &t.Destination.Lat, &t.Destination.Lng,
		&zoneID, &t.Status, &driverID, &t.CreatedAt, &t.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get trip %d: %w", id, err)
	}
	if zoneID.Valid {
		t.ZoneID = &zoneID.Int64
	}
	if driverID.Valid {
		t.DriverID = &driverID.Int64
	}
	return &t, nil
}

func (s *Postgres) SetTripZone(ctx context.Context, tripID, zoneID int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE trips SET zone_id=$2, updated_at=NOW() WHERE id=$1 AND zone_id IS NULL`, tripID, zoneID)
	if err != nil {
		return fmt.Errorf("tag trip %d with zone %d: %w", tripID, zoneID, err)
	}
	return nil
}

func (s *Postgres) AssignDriver(ctx context.Context, tripID, driverID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE trips SET driver_id=$2, updated_at=NOW()
		 WHERE id=$1 AND status='pending' AND driver_id IS NULL`,
		tripID, driverID,
	)
	if err != nil {
		return false, fmt.Errorf("assign driver %d to trip %d: %w", driverID, tripID, err)
	}
	return oneRow(res)
}

func (s *Postgres) UpdateStatus(ctx context.Context, tripID, driverID int64, from, to string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE trips SET status=$4, updated_at=NOW()
		 WHERE id=$1 AND driver_id=$2 AND status=$3`,
		tripID, driverID, from, to,
	)
	if err != nil {
		return false, fmt.Errorf("move trip %d %s->%s: %w", tripID, from, to, err)
	}
	return oneRow(res)
}

func (s *Postgres) ClearAssignment(ctx context.Context, tripID, driverID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE trips SET driver_id=NULL, status='pending', updated_at=NOW()
		 WHERE id=$1 AND driver_id=$2 AND status IN ('pending', 'active')`,
		tripID, driverID,
	)
	if err != nil {
		return false, fmt.Errorf("clear assignment of trip %d: %w", tripID, err)
	}
	return oneRow(res)
}

func (s *Postgres) RecordDecline(ctx context.Context, tripID, driverID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO trip_declines (trip_id, driver_id) VALUES ($1, $2)
		 ON CONFLICT (trip_id, driver_id) DO NOTHING`,
		tripID, driverID,
	)
	if err != nil {
		return fmt.Errorf("record decline of trip %d by driver %d: %w", tripID, driverID, err)
	}
	return nil
}

func (s *Postgres) Declines(ctx context.Context, tripID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT driver_id FROM trip_declines WHERE trip_id=$1 ORDER BY driver_id`, tripID)
	if err != nil {
		return nil, fmt.Errorf("declines for trip %d: %w", tripID, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Postgres) HasDeclined(ctx context.Context, tripID, driverID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM trip_declines WHERE trip_id=$1 AND driver_id=$2)`,
		tripID, driverID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("decline lookup for trip %d: %w", tripID, err)
	}
	return exists, nil
}

func oneRow(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
