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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const sampleConfig = `
connection:
  type: postgres
  host: db.internal
  port: 5433
  username: app
  password: s3cret
  dbname: orders
  max_open_conns: 20
  statement_timeout: 5s
bootstrap:
  auto_create: true
notify:
  enabled: true
log:
  level: debug
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tabula.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("", nil)
	require.NoError(t, err)

	want := DefaultConfig()
	assert.Equal(t, want.Connection.Type, cfg.Connection.Type)
	assert.Equal(t, want.Connection.MaxOpenConns, cfg.Connection.MaxOpenConns)
	assert.Equal(t, want.Connection.ConnectTimeout, cfg.Connection.ConnectTimeout)
	assert.Equal(t, want.Connection.StatementTimeout, cfg.Connection.StatementTimeout)
	assert.Equal(t, DefaultNotifyChannel, cfg.Notify.Channel)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadConfig_File(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, sampleConfig), nil)
	require.NoError(t, err)

	c := cfg.Connection
	assert.Equal(t, "postgres", c.Type)
	assert.Equal(t, "db.internal", c.Host)
	assert.Equal(t, 5433, c.Port)
	assert.Equal(t, "orders", c.DBName)
	assert.Equal(t, 20, c.MaxOpenConns)
	assert.Equal(t, 5*time.Second, c.StatementTimeout)
	assert.Equal(t, 10*time.Second, c.ConnectTimeout)
	assert.True(t, cfg.Bootstrap.AutoCreate)
	assert.True(t, cfg.Notify.Enabled)
	assert.Equal(t, DefaultNotifyChannel, cfg.Notify.Channel)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadConfig_Precedence(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	t.Setenv("DB_NAME", "legacy")
	t.Setenv("DB_PORT", "6000")
	t.Setenv("TABULA_CONNECTION__HOST", "env.internal")
	t.Setenv("TABULA_CONNECTION__PORT", "6432")
	t.Setenv("TABULA_LOG__LEVEL", "warn")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("host", "", "")
	flags.String("dbname", "", "")
	flags.Duration("statement-timeout", 0, "")
	flags.String("log-level", "", "")
	require.NoError(t, flags.Parse([]string{"--host", "flag.internal", "--statement-timeout", "1m"}))

	cfg, err := LoadConfig(path, flags)
	require.NoError(t, err)

	c := cfg.Connection
	assert.Equal(t, "flag.internal", c.Host)
	assert.Equal(t, 6432, c.Port)
	assert.Equal(t, "legacy", c.DBName)
	assert.Equal(t, time.Minute, c.StatementTimeout)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadConfig_Invalid(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "connection:\n  type: oracle\n"), nil)
	assert.Error(t, err)

	_, err = LoadConfig(writeConfig(t, "connection:\n  type: postgres\n  driver: odbc\n"), nil)
	assert.Error(t, err)

	_, err = LoadConfig(writeConfig(t, "connection:\n  type: mysql\n  port: 70000\n"), nil)
	assert.Error(t, err)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.Error(t, err)
}

func TestConfig_Redacted(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, sampleConfig), nil)
	require.NoError(t, err)

	out, err := cfg.Redacted()
	require.NoError(t, err)
	assert.NotContains(t, out, "s3cret")
	assert.Equal(t, "s3cret", cfg.Connection.Password)

	var back Config
	require.NoError(t, yaml.Unmarshal([]byte(out), &back))
	assert.Equal(t, "******", back.Connection.Password)
	assert.Equal(t, "db.internal", back.Connection.Host)
	assert.Equal(t, 5*time.Second, back.Connection.StatementTimeout)
}
