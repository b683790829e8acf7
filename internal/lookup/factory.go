package lookup

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/cadlive/livemap/internal/config"
	"github.com/cadlive/livemap/internal/lookup/api"
	"github.com/cadlive/livemap/internal/lookup/postgres"
)

// New creates a lookup collaborator based on configuration.
func New(log zerolog.Logger) (Lookup, error) {
	switch t := config.GetString("lookup.type"); t {
	case "api":
		return api.New(api.Config{
			BaseURL: config.GetString("api.serverUrl"),
			APIKey:  config.GetString("api.apiKey"),
		}), nil
	case "postgres":
		return postgres.New(postgres.Config{
			Host:     config.GetString("db.host"),
			Port:     config.GetString("db.port"),
			Username: config.GetString("db.username"),
			Password: config.GetString("db.password"),
			Database: config.GetString("db.database"),
		}, log)
	default:
		return nil, fmt.Errorf("unknown lookup type: %s", t)
	}
}
