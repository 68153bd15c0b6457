package config

import (
	"log"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server ServerConfig
	DB     DBConfig
	Redis  RedisConfig
	Notify NotifyConfig
	Geo    GeoConfig
}

type ServerConfig struct {
	Addr string
}

type DBConfig struct {
	User           string
	Password       string
	DBName         string
	SSLMode        string
	Host           string
	Port           string
	MigrationsPath string
	AutoMigrate    bool
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type NotifyConfig struct {
	URL       string
	TimeoutMS int
}

type GeoConfig struct {
	// GeohashPrecision sizes the nearby-driver buckets (5 ~ 4.9x4.9 km).
	GeohashPrecision uint
	// UseRTree toggles the accelerated geofence path.
	UseRTree bool
	// UsePostGIS toggles the geodesic distance strategy; haversine remains
	// the automatic fallback either way.
	UsePostGIS bool
}

var Cfg *Config

func InitConfig() {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.addr", ":8080")
	viper.SetDefault("db.sslmode", "disable")
	viper.SetDefault("db.migrationspath", "file://database/migrations")
	viper.SetDefault("notify.timeoutms", 3000)
	viper.SetDefault("geo.geohashprecision", 5)
	viper.SetDefault("geo.usertree", true)
	viper.SetDefault("geo.usepostgis", true)

	err := viper.ReadInConfig()
	if err != nil {
		log.Fatalf("Error reading config file, %s", err)
	}

	err = viper.Unmarshal(&Cfg)
	if err != nil {
		log.Fatalf("Unable to decode into struct, %v", err)
	}
}
