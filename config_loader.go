package ygggo_sql

import (
	"errors"
	"io/fs"
	"net/url"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable LoadConfig reads, e.g.
// YGGGO_SQL_HOST or YGGGO_SQL_TELEMETRY_ENABLED.
const EnvPrefix = "YGGGO_SQL"

var configKeys = []string{
	"driver", "dsn", "host", "port", "username", "password", "database",
	"charset", "collation", "ssl", "prefix",
	"max_clients", "min_clients", "timeout_connection", "timeout_idle",
	"connect_retries", "retry.base_backoff", "retry.max_backoff", "retry.jitter", "retry.max_elapsed",
	"params", "slow_query_threshold",
	"telemetry.enabled", "telemetry.metrics", "telemetry.service_name",
}

// LoadConfig builds a caller layer from an optional config file (YAML, JSON
// or TOML, by extension), dotenv files and YGGGO_SQL_* environment
// variables. Environment values win over the file. With no envFiles a
// missing ./.env is ignored. The result is meant to be passed to Open,
// which merges it over the defaults.
func LoadConfig(path string, envFiles ...string) (Config, error) {
	if err := godotenv.Load(envFiles...); err != nil {
		if len(envFiles) > 0 || !errors.Is(err, fs.ErrNotExist) {
			return Config{}, &ConfigError{Field: "env", Reason: err.Error()}
		}
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, k := range configKeys {
		_ = v.BindEnv(k)
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, &ConfigError{Field: "file", Reason: err.Error()}
		}
	}

	cfg := Config{
		Driver:             v.GetString("driver"),
		DSN:                v.GetString("dsn"),
		Host:               v.GetString("host"),
		Port:               v.GetInt("port"),
		Username:           v.GetString("username"),
		Password:           v.GetString("password"),
		Database:           v.GetString("database"),
		Charset:            v.GetString("charset"),
		Collation:          v.GetString("collation"),
		SSL:                v.GetString("ssl"),
		Prefix:             v.GetString("prefix"),
		MaxClients:         v.GetInt("max_clients"),
		MinClients:         v.GetInt("min_clients"),
		TimeoutConnection:  v.GetDuration("timeout_connection"),
		TimeoutIdle:        v.GetDuration("timeout_idle"),
		ConnectRetries:     v.GetInt("connect_retries"),
		SlowQueryThreshold: v.GetDuration("slow_query_threshold"),
		Retry: RetryPolicy{
			BaseBackoff: v.GetDuration("retry.base_backoff"),
			MaxBackoff:  v.GetDuration("retry.max_backoff"),
			Jitter:      v.GetBool("retry.jitter"),
			MaxElapsed:  v.GetDuration("retry.max_elapsed"),
		},
		Telemetry: TelemetryConfig{
			Enabled:     v.GetBool("telemetry.enabled"),
			Metrics:     v.GetBool("telemetry.metrics"),
			ServiceName: v.GetString("telemetry.service_name"),
		},
	}
	params, err := loadParams(v)
	if err != nil {
		return Config{}, err
	}
	cfg.Params = params
	return cfg, nil
}

// loadParams accepts params as a map from a file or as a query string
// ("parseTime=true&loc=Local") from the environment.
func loadParams(v *viper.Viper) (map[string]string, error) {
	raw := v.Get("params")
	if raw == nil {
		return nil, nil
	}
	s, ok := raw.(string)
	if !ok {
		return v.GetStringMapString("params"), nil
	}
	if s == "" {
		return nil, nil
	}
	q, err := url.ParseQuery(s)
	if err != nil {
		return nil, &ConfigError{Field: "params", Reason: err.Error()}
	}
	out := make(map[string]string, len(q))
	for k := range q {
		out[k] = q.Get(k)
	}
	return out, nil
}
