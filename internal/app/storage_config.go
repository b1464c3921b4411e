package app

import (
	"strings"
	"time"

	"github.com/charlesng35/campuslink/internal/database"
	"github.com/charlesng35/campuslink/internal/inbox"
)

// Inbox backends.
const (
	InboxBackendSQL     = "sql"
	InboxBackendMongoDB = "mongodb"
)

// DatabaseSettings converts DatabaseConfig into the parameters expected by database.Open.
func (c DatabaseConfig) DatabaseSettings() database.Config {
	driver := strings.ToLower(strings.TrimSpace(c.Driver))
	cfg := database.Config{
		Driver: driver,
		Path:   c.Path,
		DSN:    c.DSN,
	}

	var host DBAuthConfig
	switch driver {
	case "postgres", "postgresql":
		host = c.Postgres
	case "mysql":
		host = c.MySQL
	default:
		return cfg
	}
	cfg.Host = host.Host
	cfg.Port = host.Port
	cfg.Name = host.Database
	cfg.User = host.Username
	cfg.Password = host.Password
	return cfg
}

// BackendName returns the normalised inbox backend, defaulting to sql.
func (c InboxConfig) BackendName() string {
	backend := strings.ToLower(strings.TrimSpace(c.Backend))
	if backend == "" {
		return InboxBackendSQL
	}
	return backend
}

// MongoSettings converts the mongodb section into inbox connection settings.
func (c InboxConfig) MongoSettings() inbox.MongoConfig {
	return inbox.MongoConfig{
		URI:        c.MongoDB.URI,
		Database:   c.MongoDB.Database,
		Collection: c.MongoDB.Collection,
		Timeout:    c.MongoDB.Timeout,
	}
}

// Retention returns how long read notifications are kept. Zero disables the purge.
func (c InboxConfig) Retention() time.Duration {
	if c.RetentionDays <= 0 {
		return 0
	}
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}
