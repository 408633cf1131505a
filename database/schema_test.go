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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"github.com/tomoncle/tabula/dialect"
	"github.com/tomoncle/tabula/model"
	"github.com/tomoncle/tabula/types"
)

type indexedMember struct {
	bun.BaseModel `bun:"table:indexed_members"`

	ID   int64  `bun:"id,pk,autoincrement"`
	Age  int    `bun:"age" validate:"required" tabula:"index:desc|asc"`
	Name string `bun:"name,unique"`
}

func openSQLite(t *testing.T) *Adapter {
	t.Helper()
	cfg := DefaultConnectionConfig()
	cfg.Type = "sqlite"
	cfg.DSN = "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	cfg.MaxOpenConns = 1
	cfg.SlowQueryTime = 0
	a, err := Connect(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func sqliteIndexQuery(table string) dialect.Statement {
	return dialect.Statement{
		Text: "SELECT name FROM sqlite_master WHERE type = 'index' AND tbl_name = ?",
		Args: []any{table},
	}
}

func TestSchema_CreateAndDropTable(t *testing.T) {
	a := openSQLite(t)
	ctx := context.Background()
	d := model.MustDescribe[member]()

	exists, err := a.TableExists(ctx, d)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, a.CreateTable(ctx, d))
	cols, err := a.TableColumns(ctx, d.Table)
	require.NoError(t, err)
	assert.Equal(t, memberColumns, cols)

	err = a.CreateTable(ctx, d)
	require.Error(t, err)
	assert.True(t, types.IsConflict(err))
	cols, err = a.TableColumns(ctx, d.Table)
	require.NoError(t, err)
	assert.Len(t, cols, len(memberColumns))

	require.NoError(t, a.DropTable(ctx, d))
	err = a.DropTable(ctx, d)
	require.Error(t, err)
	assert.True(t, types.IsNotFound(err))
}

func TestSchema_CreatesIndexes(t *testing.T) {
	a := openSQLite(t)
	ctx := context.Background()
	d := model.MustDescribe[indexedMember]()
	require.NoError(t, a.CreateTable(ctx, d))

	res, err := a.Query(ctx, sqliteIndexQuery(d.Table))
	require.NoError(t, err)
	var names []string
	for _, row := range RowMaps(res) {
		names = append(names, row["name"].(string))
	}
	assert.Contains(t, names, "indexed_members_age_desc_index")
	assert.Contains(t, names, "indexed_members_age_asc_index")
}

func TestSchema_Bootstrap(t *testing.T) {
	a := openSQLite(t)
	ctx := context.Background()

	reg := NewModelRegistry()
	require.NoError(t, reg.Register(&indexedMember{}, 2))
	require.NoError(t, reg.Register(member{}, 1))
	require.NoError(t, reg.Register(&member{}, 5))
	require.Error(t, reg.Register(42, 0))

	models := reg.Models()
	require.Len(t, models, 2)
	assert.Equal(t, "members", models[0].Descriptor().Table)
	assert.Equal(t, "indexed_members", models[1].Descriptor().Table)

	require.NoError(t, a.bootstrap(ctx, models, false))
	err := a.bootstrap(ctx, models, false)
	assert.True(t, types.IsConflict(err))
	assert.NoError(t, a.bootstrap(ctx, models, true))

	for _, m := range models {
		ok, err := a.TableExists(ctx, m.Descriptor())
		require.NoError(t, err)
		assert.True(t, ok)
	}
}
