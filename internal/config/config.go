// Package config loads Grace's process configuration from environment
// variables into a typed struct, using the `env`/`envDefault` struct
// tag convention the teacher's bootstrap.Config follows (there backed
// by the sibling lib-commons module, not present in this retrieval —
// Grace re-derives the same reflect-over-tags loader directly).
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
)

// Config is the top level process configuration for the grace server.
type Config struct {
	EnvName  string `env:"ENV_NAME" envDefault:"local"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	Version  string `env:"VERSION" envDefault:"dev"`

	ServerAddress string `env:"SERVER_ADDRESS" envDefault:":8080"`

	StateStoreBackend     string `env:"STATE_STORE_BACKEND" envDefault:"memory"`
	PostgresPrimaryDSN    string `env:"POSTGRES_PRIMARY_DSN"`
	PostgresReplicaDSN    string `env:"POSTGRES_REPLICA_DSN"`
	PostgresMigrationsDir string `env:"POSTGRES_MIGRATIONS_DIR" envDefault:"internal/platform/statestore/postgres/migrations"`

	EventBusBackend  string `env:"EVENT_BUS_BACKEND" envDefault:"memory"`
	RabbitMQURI      string `env:"RABBITMQ_URI"`
	RabbitMQExchange string `env:"RABBITMQ_EXCHANGE" envDefault:"grace.events"`

	CacheTTLSeconds int `env:"CACHE_TTL_SECONDS" envDefault:"120"`

	RedisLockURI string `env:"REDIS_LOCK_URI"`

	ActorIdleEvictionMinutes int `env:"ACTOR_IDLE_EVICTION_MINUTES" envDefault:"10"`

	OtelServiceName    string `env:"OTEL_RESOURCE_SERVICE_NAME" envDefault:"grace"`
	OtelExporterOTLP   string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	EnableTelemetry    bool   `env:"ENABLE_TELEMETRY" envDefault:"false"`
}

// Load populates a Config from os.Getenv, applying envDefault for
// unset variables. Only string, bool and int fields are supported,
// matching the subset the teacher's convention actually exercises.
func Load() (*Config, error) {
	cfg := &Config{}

	v := reflect.ValueOf(cfg).Elem()
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		key, ok := field.Tag.Lookup("env")
		if !ok {
			continue
		}

		raw, present := os.LookupEnv(key)
		if !present {
			raw = field.Tag.Get("envDefault")
		}

		if raw == "" {
			continue
		}

		if err := setField(v.Field(i), raw); err != nil {
			return nil, fmt.Errorf("config: field %s (%s): %w", field.Name, key, err)
		}
	}

	return cfg, nil
}

func setField(field reflect.Value, raw string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}

		field.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return err
		}

		field.SetInt(n)
	default:
		return fmt.Errorf("unsupported config field kind %s", field.Kind())
	}

	return nil
}
