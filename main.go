package main

import (
	"log"
	"net/http"
	"time"

	"fleet-dispatch/api"
	"fleet-dispatch/cache"
	"fleet-dispatch/config"
	"fleet-dispatch/database"
	"fleet-dispatch/dispatch"
	"fleet-dispatch/geo"
	"fleet-dispatch/migration"
	"fleet-dispatch/store"
)

func main() {
	// Initialize configuration
	config.InitConfig()
	cfg := config.Cfg

	// Initialize the store. Without a configured database the service runs
	// on the in-memory store (local development only).
	var (
		tenants store.TenantStore
		drivers store.DriverStore
		zones   store.ZoneStore
		trips   store.TripStore
	)
	usePostgres := cfg.DB.Host != ""
	if usePostgres {
		if cfg.DB.AutoMigrate {
			if err := migration.RunMigrations(cfg.DB.MigrationsPath, database.DSN()); err != nil {
				log.Fatal(err)
			}
		}
		if err := database.InitDB(); err != nil {
			log.Fatal(err)
		}
		pg := store.NewPostgres(database.DB)
		tenants, drivers, zones, trips = pg, pg, pg, pg
	} else {
		log.Println("No database configured, running on the in-memory store.")
		mem := store.NewMemory()
		tenants, drivers, zones, trips = mem, mem, mem, mem
	}

	// Initialize the live position store (optional).
	var positions *cache.Positions
	if cfg.Redis.Addr != "" {
		rdb, err := cache.InitRedis(cfg.Redis)
		if err != nil {
			log.Fatal(err)
		}
		positions = cache.NewPositions(rdb, cfg.Geo.GeohashPrecision)
	}

	// Geofence index and distance estimator. The geodesic strategy rides on
	// PostGIS; haversine takes over silently when it is unavailable.
	geofence := geo.NewIndex(zones, cfg.Geo.UseRTree)
	estimator := &geo.Resilient{Fallback: geo.Haversine{}}
	if usePostgres && cfg.Geo.UsePostGIS {
		estimator.Primary = &geo.Geodesic{DB: database.DB}
	}

	var notifier dispatch.Notifier = dispatch.NoopNotifier{}
	if cfg.Notify.URL != "" {
		notifier = dispatch.NewWebhookNotifier(cfg.Notify.URL, time.Duration(cfg.Notify.TimeoutMS)*time.Millisecond)
	}

	var posSource dispatch.PositionSource
	if positions != nil {
		posSource = positions
	}
	engine := dispatch.NewEngine(tenants, drivers, zones, trips, geofence, estimator, posSource, notifier)

	// Register routes
	server := api.NewServer(engine, tenants, drivers, zones, trips, geofence, positions, cfg.Geo.GeohashPrecision)
	router := server.Routes()

	// Start the server
	log.Println("Server started on " + cfg.Server.Addr)
	log.Fatal(http.ListenAndServe(cfg.Server.Addr, router))
}
