package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// ProjectionConfig holds the map-image pyramid parameters that drive the
// world<->map affine transform.
type ProjectionConfig struct {
	TileSize    int     `json:"tileSize" mapstructure:"tileSize"`
	MinZoom     int     `json:"minZoom" mapstructure:"minZoom"`
	MaxZoom     int     `json:"maxZoom" mapstructure:"maxZoom"`
	ImageWidth  float64 `json:"imageWidth" mapstructure:"imageWidth"`
	ImageHeight float64 `json:"imageHeight" mapstructure:"imageHeight"`
	WorldMinX   float64 `json:"worldMinX" mapstructure:"worldMinX"`
	WorldMaxX   float64 `json:"worldMaxX" mapstructure:"worldMaxX"`
	WorldMinY   float64 `json:"worldMinY" mapstructure:"worldMinY"`
	WorldMaxY   float64 `json:"worldMaxY" mapstructure:"worldMaxY"`
}

// Load reads configuration from a JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	// Set default values
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./livemaplogs")

	// candidate game-server endpoints; selection is persisted by the host app
	viper.SetDefault("telemetry.endpoints", []string{})
	viper.SetDefault("telemetry.requireSecure", false)
	viper.SetDefault("telemetry.secret", "")
	viper.SetDefault("telemetry.reconnectAttempts", 10)

	viper.SetDefault("lookup.type", "api")
	viper.SetDefault("lookup.timeoutSeconds", 5)
	viper.SetDefault("lookup.ratePerSecond", 10)
	viper.SetDefault("lookup.rateBurst", 20)

	viper.SetDefault("api.serverUrl", "http://localhost:8080")
	viper.SetDefault("api.apiKey", "")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "cad")

	viper.SetDefault("catalogue.path", "./livemap_catalogue.db")

	viper.SetDefault("signage.confirmTimeoutSeconds", 30)

	// 8192px square map image over the playable extent
	viper.SetDefault("projection.tileSize", 256)
	viper.SetDefault("projection.minZoom", 0)
	viper.SetDefault("projection.maxZoom", 5)
	viper.SetDefault("projection.imageWidth", 8192.0)
	viper.SetDefault("projection.imageHeight", 8192.0)
	viper.SetDefault("projection.worldMinX", -4230.0)
	viper.SetDefault("projection.worldMaxX", 7970.0)
	viper.SetDefault("projection.worldMinY", -4000.0)
	viper.SetDefault("projection.worldMaxY", 8200.0)

	viper.SetDefault("http.listen", ":4140")

	viper.SetDefault("monitor.intervalSeconds", 30)

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "")
	viper.SetDefault("influx.org", "livemap-metrics")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "livemap-engine")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	viper.SetConfigName("livemap.cfg.json")
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

// OTelConfig holds OpenTelemetry settings.
type OTelConfig struct {
	Enabled      bool
	ServiceName  string
	BatchTimeout time.Duration
	Endpoint     string
	Insecure     bool
}

// GetOTelConfig returns the configured OTel settings.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}

// Projection returns the configured projection parameters.
func Projection() ProjectionConfig {
	var p ProjectionConfig
	if err := viper.UnmarshalKey("projection", &p); err != nil {
		return ProjectionConfig{}
	}
	return p
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetStringSlice returns a string-slice config value.
func GetStringSlice(key string) []string {
	return viper.GetStringSlice(key)
}
