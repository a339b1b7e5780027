package ygggo_sql

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"dario.cat/mergo"
	mysql "github.com/go-sql-driver/mysql"
)

// TelemetryConfig switches on OpenTelemetry instrumentation.
type TelemetryConfig struct {
	// Enabled wraps the database/sql driver with otelsql and subscribes a
	// tracing observer.
	Enabled bool `mapstructure:"enabled"`
	// Metrics subscribes a metrics observer on the global meter provider.
	Metrics     bool   `mapstructure:"metrics"`
	ServiceName string `mapstructure:"service_name"`
}

// Config holds connection configuration. A zero field is "not set": when
// layers are merged, only non-zero fields override earlier layers.
type Config struct {
	// Driver names the engine: "mysql", "postgres" or "sqlite".
	Driver string `mapstructure:"driver"`
	// DSN, when set, is used verbatim instead of the field-based DSN.
	DSN string `mapstructure:"dsn"`

	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	Database  string `mapstructure:"database"`
	Charset   string `mapstructure:"charset"`
	Collation string `mapstructure:"collation"`
	// SSL is one of "disable", "require", "verify-ca", "verify-full".
	SSL string `mapstructure:"ssl"`
	// Prefix is prepended to every table name the builder renders.
	Prefix string `mapstructure:"prefix"`

	MaxClients        int           `mapstructure:"max_clients"`
	MinClients        int           `mapstructure:"min_clients"`
	TimeoutConnection time.Duration `mapstructure:"timeout_connection"`
	TimeoutIdle       time.Duration `mapstructure:"timeout_idle"`

	ConnectRetries int         `mapstructure:"connect_retries"`
	Retry          RetryPolicy `mapstructure:"retry"`

	Params             map[string]string `mapstructure:"params"`
	SlowQueryThreshold time.Duration     `mapstructure:"slow_query_threshold"`
	Telemetry          TelemetryConfig   `mapstructure:"telemetry"`
}

// DefaultConfig returns the engine-independent base layer.
func DefaultConfig() Config {
	return Config{
		Driver:            EngineMySQL,
		Host:              "localhost",
		MaxClients:        10,
		TimeoutConnection: 10 * time.Second,
		TimeoutIdle:       30 * time.Second,
		ConnectRetries:    2,
		Retry: RetryPolicy{
			BaseBackoff: 50 * time.Millisecond,
			MaxBackoff:  2 * time.Second,
			Jitter:      true,
		},
	}
}

// MySQLDefaults returns the MySQL engine layer.
func MySQLDefaults() Config {
	return Config{
		Driver:      EngineMySQL,
		Port:        3306,
		Charset:     "utf8mb4",
		MinClients:  1,
		TimeoutIdle: 60 * time.Second,
	}
}

// PostgresDefaults returns the PostgreSQL engine layer.
func PostgresDefaults() Config {
	return Config{
		Driver:      EnginePostgres,
		Port:        5432,
		Charset:     "UTF8",
		MinClients:  1,
		TimeoutIdle: 30 * time.Second,
	}
}

// SQLiteDefaults returns the SQLite engine layer.
func SQLiteDefaults() Config {
	return Config{
		Driver:     EngineSQLite,
		MaxClients: 4,
	}
}

// engineDefaults returns the defaults layer for driver.
func engineDefaults(driver string) Config {
	switch strings.ToLower(driver) {
	case EnginePostgres, "postgresql":
		return PostgresDefaults()
	case EngineSQLite:
		return SQLiteDefaults()
	case EngineMySQL:
		return MySQLDefaults()
	}
	return Config{}
}

// MergeConfig merges layers left to right. Every non-zero field of a later
// layer overwrites the same field of the result so far; Params are merged
// per key. A zero field counts as unset, so a layer cannot force a value
// back to zero.
func MergeConfig(layers ...Config) Config {
	var out Config
	for _, l := range layers {
		l.Params = cloneParams(l.Params)
		// Merge only fails for mismatched types, which Config cannot have.
		_ = mergo.Merge(&out, l, mergo.WithOverride)
	}
	return out
}

func cloneParams(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// ResolveConfig layers base defaults, the engine defaults for the caller's
// driver and the caller's own settings, then validates the result.
func ResolveConfig(cfg Config) (Config, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DefaultConfig().Driver
	}
	merged := MergeConfig(DefaultConfig(), engineDefaults(driver), cfg)
	if err := merged.Validate(); err != nil {
		return Config{}, err
	}
	return merged, nil
}

var sslModes = map[string]bool{"": true, "disable": true, "require": true, "verify-ca": true, "verify-full": true}

// Validate checks a merged configuration.
func (c Config) Validate() error {
	if _, err := DialectFor(c.Driver); err != nil {
		return &ConfigError{Field: "driver", Reason: fmt.Sprintf("unknown engine %q", c.Driver)}
	}
	if c.MaxClients < 1 {
		return &ConfigError{Field: "max_clients", Reason: "must be at least 1"}
	}
	if c.MinClients < 0 || c.MinClients > c.MaxClients {
		return &ConfigError{Field: "min_clients", Reason: fmt.Sprintf("must be within [0, %d]", c.MaxClients)}
	}
	if c.Port < 0 || c.Port > 65535 {
		return &ConfigError{Field: "port", Reason: "out of range"}
	}
	if c.TimeoutConnection < 0 {
		return &ConfigError{Field: "timeout_connection", Reason: "must not be negative"}
	}
	if c.TimeoutIdle < 0 {
		return &ConfigError{Field: "timeout_idle", Reason: "must not be negative"}
	}
	if c.ConnectRetries < 0 {
		return &ConfigError{Field: "connect_retries", Reason: "must not be negative"}
	}
	if !sslModes[c.SSL] {
		return &ConfigError{Field: "ssl", Reason: fmt.Sprintf("unknown mode %q", c.SSL)}
	}
	if strings.TrimSpace(c.DSN) == "" {
		if c.Driver == EngineSQLite {
			if c.Database == "" {
				return &ConfigError{Field: "database", Reason: "sqlite needs a database path"}
			}
		} else if c.Host == "" {
			return &ConfigError{Field: "host", Reason: "required"}
		}
	}
	return nil
}

// driverName maps an engine to its registered database/sql driver.
func driverName(engine string) string {
	switch strings.ToLower(engine) {
	case EnginePostgres, "postgresql":
		return "postgres"
	case EngineSQLite:
		return "sqlite"
	}
	return "mysql"
}

// dsnFromConfig returns the DSN for c. A non-empty Config.DSN is returned
// unchanged; otherwise one is built from the fields for c.Driver.
func dsnFromConfig(c Config) (string, error) {
	if strings.TrimSpace(c.DSN) != "" {
		return c.DSN, nil
	}
	switch driverName(c.Driver) {
	case "postgres":
		return postgresDSN(c), nil
	case "sqlite":
		return sqliteDSN(c), nil
	}
	return mysqlDSN(c)
}

func mysqlDSN(c Config) (string, error) {
	mc := mysql.NewConfig()
	mc.Net = "tcp"
	mc.Addr = c.Host
	if c.Port > 0 {
		mc.Addr = net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
	}
	mc.User = c.Username
	mc.Passwd = c.Password
	mc.DBName = c.Database
	mc.Collation = c.Collation
	mc.Timeout = c.TimeoutConnection
	switch c.SSL {
	case "disable":
		mc.TLSConfig = "false"
	case "require":
		mc.TLSConfig = "skip-verify"
	case "verify-ca", "verify-full":
		mc.TLSConfig = "true"
	}
	params := cloneParams(c.Params)
	if c.Charset != "" {
		if params == nil {
			params = map[string]string{}
		}
		if _, ok := params["charset"]; !ok {
			params["charset"] = c.Charset
		}
	}
	for k, v := range params {
		// The driver consumes parseTime into a typed field.
		if k == "parseTime" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return "", &ConfigError{Field: "params.parseTime", Reason: err.Error()}
			}
			mc.ParseTime = b
			delete(params, k)
		}
	}
	if len(params) > 0 {
		mc.Params = params
	}
	return mc.FormatDSN(), nil
}

func postgresDSN(c Config) string {
	u := url.URL{Scheme: "postgres", Host: c.Host, Path: "/" + c.Database}
	if c.Port > 0 {
		u.Host = net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
	}
	if c.Username != "" {
		if c.Password != "" {
			u.User = url.UserPassword(c.Username, c.Password)
		} else {
			u.User = url.User(c.Username)
		}
	}
	q := url.Values{}
	if c.SSL != "" {
		q.Set("sslmode", c.SSL)
	}
	if c.Charset != "" {
		q.Set("client_encoding", c.Charset)
	}
	if secs := int(c.TimeoutConnection / time.Second); secs > 0 {
		q.Set("connect_timeout", strconv.Itoa(secs))
	}
	for k, v := range c.Params {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func sqliteDSN(c Config) string {
	if len(c.Params) == 0 {
		return c.Database
	}
	q := url.Values{}
	for k, v := range c.Params {
		q.Set(k, v)
	}
	return c.Database + "?" + q.Encode()
}
