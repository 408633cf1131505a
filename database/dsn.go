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
	"database/sql"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/schema"

	"github.com/tomoncle/tabula/types"
)

// DriverName returns the database/sql driver used for cfg.
func DriverName(cfg *ConnectionConfig) (string, error) {
	switch cfg.Flavour() {
	case types.Postgres:
		switch strings.ToLower(cfg.Driver) {
		case "", "pq", "postgres", "lib/pq":
			return "postgres", nil
		case "pgx":
			return "pgx", nil
		}
		return "", fmt.Errorf("unsupported postgres driver: %s", cfg.Driver)
	case types.MySQL:
		return "mysql", nil
	case types.SQLite:
		return sqliteshim.ShimName, nil
	}
	return "", fmt.Errorf("unsupported database type: %s", cfg.Type)
}

// BuildDSN renders the connection string for cfg. An explicit DSN wins.
func BuildDSN(cfg *ConnectionConfig) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}
	switch cfg.Flavour() {
	case types.Postgres:
		return postgresDSN(cfg), nil
	case types.MySQL:
		return mysqlDSN(cfg), nil
	case types.SQLite:
		return sqliteDSN(cfg), nil
	}
	return "", fmt.Errorf("unsupported database type: %s", cfg.Type)
}

func postgresDSN(cfg *ConnectionConfig) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
		if cfg.TLS {
			sslMode = "require"
		}
	}
	q := url.Values{}
	q.Set("sslmode", sslMode)
	if cfg.ConnectTimeout > 0 {
		q.Set("connect_timeout", strconv.Itoa(int(cfg.ConnectTimeout.Seconds())))
	}
	u := url.URL{
		Scheme:   "postgres",
		Host:     fmt.Sprintf("%s:%d", cfg.Host, defaultPort(cfg.Port, 5432)),
		Path:     "/" + cfg.DBName,
		RawQuery: q.Encode(),
	}
	if cfg.Username != "" {
		u.User = url.UserPassword(cfg.Username, cfg.Password)
	}
	return u.String()
}

func mysqlDSN(cfg *ConnectionConfig) string {
	c := mysql.NewConfig()
	c.User = cfg.Username
	c.Passwd = cfg.Password
	c.Net = "tcp"
	c.Addr = fmt.Sprintf("%s:%d", cfg.Host, defaultPort(cfg.Port, 3306))
	c.DBName = cfg.DBName
	c.ParseTime = true
	c.Timeout = cfg.ConnectTimeout
	c.ReadTimeout = cfg.ReadTimeout
	c.WriteTimeout = cfg.WriteTimeout
	charset := cfg.Charset
	if charset == "" {
		charset = "utf8mb4"
	}
	c.Params = map[string]string{"charset": charset}
	if cfg.TLS {
		c.TLSConfig = "true"
	}
	return c.FormatDSN()
}

// sqliteDSN names every in-memory database uniquely, so adapters opened on
// ":memory:" never see each other's tables. The adapter pins the name once
// so that Reconnect returns to the same database.
func sqliteDSN(cfg *ConnectionConfig) string {
	if isMemoryName(cfg.DBName) {
		return "file:tabula-" + uuid.NewString() + "?mode=memory&cache=shared"
	}
	if strings.HasPrefix(cfg.DBName, "file:") {
		return cfg.DBName
	}
	if strings.HasSuffix(cfg.DBName, ".db") {
		return cfg.DBName
	}
	return cfg.DBName + ".db"
}

func isMemoryName(name string) bool {
	return name == "" || name == ":memory:"
}

func defaultPort(port, fallback int) int {
	if port <= 0 {
		return fallback
	}
	return port
}

func bunDialect(f types.Flavour) (schema.Dialect, error) {
	switch f {
	case types.Postgres:
		return pgdialect.New(), nil
	case types.MySQL:
		return mysqldialect.New(), nil
	case types.SQLite:
		return sqlitedialect.New(), nil
	}
	return nil, fmt.Errorf("unsupported flavour: %s", f)
}

// openDB opens the pool described by cfg without contacting the server.
func openDB(cfg *ConnectionConfig) (*sql.DB, error) {
	driver, err := DriverName(cfg)
	if err != nil {
		return nil, err
	}
	dsn, err := BuildDSN(cfg)
	if err != nil {
		return nil, err
	}
	return sql.Open(driver, dsn)
}

func newBunDB(sqlDB *sql.DB, f types.Flavour) (*bun.DB, error) {
	d, err := bunDialect(f)
	if err != nil {
		return nil, err
	}
	return bun.NewDB(sqlDB, d), nil
}
