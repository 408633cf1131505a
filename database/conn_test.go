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
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGlobalDB_Lifecycle(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, CloseDB())
	assert.Nil(t, GetDB())
	assert.False(t, GetHealthStatus(ctx).Healthy)
	assert.Equal(t, &DBStats{}, GetDatabaseStats())

	cfg := DefaultConfig()
	cfg.Connection.DSN = "file:" + t.Name() + "?mode=memory&cache=shared"
	first, err := InitDB(ctx, cfg)
	require.NoError(t, err)
	assert.Same(t, first, GetDB())
	assert.True(t, GetHealthStatus(ctx).Healthy)
	assert.Equal(t, 100, GetDatabaseStats().MaxOpenConns)

	second, err := InitDB(ctx, cfg)
	require.NoError(t, err)
	assert.True(t, first.IsClosed())
	assert.Same(t, second, GetDB())

	require.NoError(t, CloseDB())
	assert.True(t, second.IsClosed())
	assert.Nil(t, GetDB())
}

func TestInitDB_Rejects(t *testing.T) {
	_, err := InitDB(context.Background(), nil)
	assert.Error(t, err)

	cfg := DefaultConfig()
	cfg.Connection.Type = "oracle"
	_, err = InitDB(context.Background(), cfg)
	assert.Error(t, err)
}
