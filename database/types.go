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
	"time"

	"github.com/tomoncle/tabula/types"
)

// HealthStatus holds the result of a health check against the database.
type HealthStatus struct {
	Healthy       bool          `json:"healthy"`
	Connected     bool          `json:"connected"`
	ResponseTime  time.Duration `json:"response_time"`
	ActiveConns   int           `json:"active_conns"`
	IdleConns     int           `json:"idle_conns"`
	MaxOpenConns  int           `json:"max_open_conns"`
	LastError     string        `json:"last_error,omitempty"`
	LastCheckTime time.Time     `json:"last_check_time"`
}

// DBStats mirrors database/sql pool stats plus the adapter's own wait queue.
type DBStats struct {
	MaxOpenConns      int           `json:"max_open_conns"`
	OpenConns         int           `json:"open_conns"`
	InUse             int           `json:"in_use"`
	Idle              int           `json:"idle"`
	WaitCount         int64         `json:"wait_count"`
	WaitDuration      time.Duration `json:"wait_duration"`
	MaxIdleClosed     int64         `json:"max_idle_closed"`
	MaxIdleTimeClosed int64         `json:"max_idle_time_closed"`
	MaxLifetimeClosed int64         `json:"max_lifetime_closed"`
	Statements        int64         `json:"statements"`
	Timeouts          int64         `json:"timeouts"`
}

// ConnectionConfig describes how to reach a database and tune the pool.
type ConnectionConfig struct {
	Type                string        `json:"type" yaml:"type" koanf:"type" validate:"required"` // postgres, mysql, sqlite
	Driver              string        `json:"driver" yaml:"driver" koanf:"driver"`
	DSN                 string        `json:"dsn" yaml:"dsn" koanf:"dsn"`
	Host                string        `json:"host" yaml:"host" koanf:"host"`
	Port                int           `json:"port" yaml:"port" koanf:"port" validate:"gte=0,lte=65535"`
	Username            string        `json:"username" yaml:"username" koanf:"username"`
	Password            string        `json:"password" yaml:"password" koanf:"password"`
	DBName              string        `json:"dbname" yaml:"dbname" koanf:"dbname"`
	SSLMode             string        `json:"sslmode" yaml:"sslmode" koanf:"sslmode"`
	TLS                 bool          `json:"tls" yaml:"tls" koanf:"tls"`
	MaxIdleConns        int           `json:"max_idle_conns" yaml:"max_idle_conns" koanf:"max_idle_conns" validate:"gte=0"`
	MaxOpenConns        int           `json:"max_open_conns" yaml:"max_open_conns" koanf:"max_open_conns" validate:"gte=0"`
	ConnMaxLifetime     time.Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime" koanf:"conn_max_lifetime"`
	ConnMaxIdleTime     time.Duration `json:"conn_max_idle_time" yaml:"conn_max_idle_time" koanf:"conn_max_idle_time"`
	ConnectTimeout      time.Duration `json:"connect_timeout" yaml:"connect_timeout" koanf:"connect_timeout"`
	StatementTimeout    time.Duration `json:"statement_timeout" yaml:"statement_timeout" koanf:"statement_timeout"`
	ReadTimeout         time.Duration `json:"read_timeout" yaml:"read_timeout" koanf:"read_timeout"`
	WriteTimeout        time.Duration `json:"write_timeout" yaml:"write_timeout" koanf:"write_timeout"`
	EnableReconnect     bool          `json:"enable_reconnect" yaml:"enable_reconnect" koanf:"enable_reconnect"`
	ReconnectInterval   time.Duration `json:"reconnect_interval" yaml:"reconnect_interval" koanf:"reconnect_interval"`
	MaxReconnectTries   int           `json:"max_reconnect_tries" yaml:"max_reconnect_tries" koanf:"max_reconnect_tries" validate:"gte=0"`
	HealthCheckInterval time.Duration `json:"health_check_interval" yaml:"health_check_interval" koanf:"health_check_interval"`
	EnableQueryLog      bool          `json:"enable_query_log" yaml:"enable_query_log" koanf:"enable_query_log"`
	SlowQueryTime       time.Duration `json:"slow_query_time" yaml:"slow_query_time" koanf:"slow_query_time"`
	Charset             string        `json:"charset" yaml:"charset" koanf:"charset"` // MySQL: utf8mb4, Postgres: UTF8
}

// Flavour resolves Type.
func (c *ConnectionConfig) Flavour() types.Flavour {
	return types.ParseFlavour(c.Type)
}

// BootstrapConfig controls table creation for registered models.
type BootstrapConfig struct {
	AutoCreate     bool `json:"auto_create" yaml:"auto_create" koanf:"auto_create"`
	IgnoreExisting bool `json:"ignore_existing" yaml:"ignore_existing" koanf:"ignore_existing"`
}

// NotifyConfig controls the LISTEN bridge that feeds observers from
// database-side triggers. Postgres only.
type NotifyConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled" koanf:"enabled"`
	Channel string `json:"channel" yaml:"channel" koanf:"channel"`
}

// LogConfig selects the level and console format of the named loggers.
type LogConfig struct {
	Level  string `json:"level" yaml:"level" koanf:"level"`
	Format string `json:"format" yaml:"format" koanf:"format"`
}

// Config aggregates connection, bootstrap, notification and log settings.
type Config struct {
	Connection ConnectionConfig `json:"connection" yaml:"connection" koanf:"connection"`
	Bootstrap  BootstrapConfig  `json:"bootstrap" yaml:"bootstrap" koanf:"bootstrap"`
	Notify     NotifyConfig     `json:"notify" yaml:"notify" koanf:"notify"`
	Log        LogConfig        `json:"log" yaml:"log" koanf:"log"`
}

const DefaultNotifyChannel = "tabula_events"

// DefaultConnectionConfig returns a connection config with sensible defaults.
func DefaultConnectionConfig() *ConnectionConfig {
	return &ConnectionConfig{
		Type:                "sqlite",
		DBName:              "tabula",
		MaxIdleConns:        10,
		MaxOpenConns:        100,
		ConnMaxLifetime:     time.Hour,
		ConnMaxIdleTime:     time.Minute * 30,
		ConnectTimeout:      time.Second * 10,
		StatementTimeout:    time.Second * 30,
		ReadTimeout:         time.Second * 30,
		WriteTimeout:        time.Second * 30,
		EnableReconnect:     true,
		ReconnectInterval:   time.Second * 5,
		MaxReconnectTries:   3,
		HealthCheckInterval: 0,
		EnableQueryLog:      false,
		SlowQueryTime:       time.Second * 2,
	}
}

// DefaultConfig wraps DefaultConnectionConfig.
func DefaultConfig() *Config {
	return &Config{
		Connection: *DefaultConnectionConfig(),
		Notify:     NotifyConfig{Channel: DefaultNotifyChannel},
		Log:        LogConfig{Level: "info", Format: "text"},
	}
}
