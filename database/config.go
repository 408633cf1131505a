/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
	yamlv3 "gopkg.in/yaml.v3"
)

const (
	// EnvPrefix namespaces environment overrides, with "__" separating
	// levels: TABULA_CONNECTION__HOST sets connection.host.
	EnvPrefix = "TABULA_"
	// LegacyEnvPrefix maps DB_HOST, DB_NAME and friends onto connection.*.
	LegacyEnvPrefix = "DB_"
)

var legacyEnvKeys = map[string]string{
	"name":        "connection.dbname",
	"auto_create": "bootstrap.auto_create",
}

// flagKeys maps CLI flag names that do not follow the connection.<name>
// convention.
var flagKeys = map[string]string{
	"log-level":       "log.level",
	"log-format":      "log.format",
	"notify-channel":  "notify.channel",
	"auto-create":     "bootstrap.auto_create",
	"ignore-existing": "bootstrap.ignore_existing",
}

func defaultValues() map[string]interface{} {
	d := DefaultConfig()
	c := d.Connection
	return map[string]interface{}{
		"connection.type":                  c.Type,
		"connection.dbname":                c.DBName,
		"connection.max_idle_conns":        c.MaxIdleConns,
		"connection.max_open_conns":        c.MaxOpenConns,
		"connection.conn_max_lifetime":     c.ConnMaxLifetime.String(),
		"connection.conn_max_idle_time":    c.ConnMaxIdleTime.String(),
		"connection.connect_timeout":       c.ConnectTimeout.String(),
		"connection.statement_timeout":     c.StatementTimeout.String(),
		"connection.read_timeout":          c.ReadTimeout.String(),
		"connection.write_timeout":         c.WriteTimeout.String(),
		"connection.enable_reconnect":      c.EnableReconnect,
		"connection.reconnect_interval":    c.ReconnectInterval.String(),
		"connection.max_reconnect_tries":   c.MaxReconnectTries,
		"connection.health_check_interval": c.HealthCheckInterval.String(),
		"connection.enable_query_log":      c.EnableQueryLog,
		"connection.slow_query_time":       c.SlowQueryTime.String(),
		"notify.channel":                   d.Notify.Channel,
		"log.level":                        d.Log.Level,
		"log.format":                       d.Log.Format,
	}
}

// LoadConfig layers, from lowest to highest precedence: defaults, the YAML
// file at path (skipped when empty), DB_* and TABULA_* environment
// variables, then the flags that were explicitly set.
func LoadConfig(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaultValues(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(LegacyEnvPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, LegacyEnvPrefix))
		if mapped, ok := legacyEnvKeys[key]; ok {
			return mapped
		}
		return "connection." + key
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		if !strings.Contains(key, "__") {
			// TABULA_LOG_LEVEL and similar belong to the logging setup
			return ""
		}
		return strings.ReplaceAll(key, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			if key, ok := flagKeys[f.Name]; ok {
				return key, posflag.FlagVal(flags, f)
			}
			return "connection." + strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var configValidator = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the connection settings.
func (c *Config) Validate() error {
	if err := configValidator.Struct(&c.Connection); err != nil {
		return fmt.Errorf("invalid connection config: %w", err)
	}
	if !c.Connection.Flavour().IsValid() {
		return fmt.Errorf("invalid connection config: unsupported database type %q", c.Connection.Type)
	}
	if _, err := DriverName(&c.Connection); err != nil {
		return fmt.Errorf("invalid connection config: %w", err)
	}
	return nil
}

// Redacted renders the config as YAML with the password masked.
func (c *Config) Redacted() (string, error) {
	cp := *c
	if cp.Connection.Password != "" {
		cp.Connection.Password = "******"
	}
	if cp.Connection.DSN != "" {
		cp.Connection.DSN = "******"
	}
	b, err := yamlv3.Marshal(&cp)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
