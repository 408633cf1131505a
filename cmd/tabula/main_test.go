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

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomoncle/tabula/types"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func memoryDSN(t *testing.T) string {
	return "file:" + t.Name() + "?mode=memory&cache=shared"
}

func TestConfigShow_MasksSecrets(t *testing.T) {
	out, err := execute(t, "config", "show", "--type", "postgres", "--host", "db.internal", "--password", "hunter2", "--log-level", "warn")
	require.NoError(t, err)
	assert.Contains(t, out, "type: postgres")
	assert.Contains(t, out, "host: db.internal")
	assert.Contains(t, out, "******")
	assert.Contains(t, out, "level: warn")
	assert.NotContains(t, out, "hunter2")
}

func TestConfigShow_FileAndFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tabula.yaml")
	require.NoError(t, os.WriteFile(path, []byte("connection:\n  type: mysql\n  host: file-host\n  port: 3307\n"), 0o600))

	out, err := execute(t, "config", "show", "--config", path, "--host", "flag-host")
	require.NoError(t, err)
	assert.Contains(t, out, "type: mysql")
	assert.Contains(t, out, "host: flag-host")
	assert.Contains(t, out, "port: 3307")
}

func TestRoot_RejectsInvalidConfig(t *testing.T) {
	_, err := execute(t, "config", "show", "--type", "oracle")
	assert.Error(t, err)

	_, err = execute(t, "config", "show", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestPing_SQLite(t *testing.T) {
	out, err := execute(t, "ping", "--type", "sqlite", "--dsn", memoryDSN(t))
	require.NoError(t, err)
	assert.Contains(t, out, "sqlite ok")

	out, err = execute(t, "ping", "--json", "--type", "sqlite", "--dsn", memoryDSN(t))
	require.NoError(t, err)
	assert.Contains(t, out, `"healthy": true`)
}

func TestProvisioning_UnsupportedOnSQLite(t *testing.T) {
	dsn := memoryDSN(t)

	_, err := execute(t, "db", "create", "reports", "--type", "sqlite", "--dsn", dsn)
	assert.True(t, types.IsUnsupportedOperation(err))

	_, err = execute(t, "user", "create", "reporter", "--user-password", "pw", "--type", "sqlite", "--dsn", dsn)
	assert.True(t, types.IsUnsupportedOperation(err))

	_, err = execute(t, "notify", "install", "--type", "sqlite", "--dsn", dsn)
	assert.True(t, types.IsUnsupportedOperation(err))

	_, err = execute(t, "notify", "listen", "--type", "sqlite", "--dsn", dsn)
	assert.True(t, types.IsUnsupportedOperation(err))
}

func TestUserCreate_RequiresPassword(t *testing.T) {
	_, err := execute(t, "user", "create", "reporter", "--type", "sqlite", "--dsn", memoryDSN(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--user-password")
}

func TestDatabase_RequiresName(t *testing.T) {
	_, err := execute(t, "db", "drop", "--type", "sqlite")
	assert.Error(t, err)
}
