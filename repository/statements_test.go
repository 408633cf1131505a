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

package repository

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomoncle/tabula/database"
	"github.com/tomoncle/tabula/observer"
	"github.com/tomoncle/tabula/query"
	"github.com/tomoncle/tabula/types"
)

func newMockRepository(t *testing.T, f types.Flavour) (Repository[user], sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	if f == types.MySQL {
		mock.ExpectQuery("SELECT version()").
			WillReturnRows(sqlmock.NewRows([]string{"version()"}).AddRow("8.0.36"))
	}
	cfg := database.DefaultConnectionConfig()
	cfg.SlowQueryTime = 0
	a, err := database.NewAdapter(db, f, cfg)
	require.NoError(t, err)
	return MustNew[user](a), mock
}

var userColumns = []string{"id", "name", "age", "sex", "email", "created"}

func TestStatements_PostgresCreateReturning(t *testing.T) {
	repo, mock := newMockRepository(t, types.Postgres)
	in := newUser(1)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "users" ("name", "age", "sex", "email", "created") VALUES ($1, $2, $3, $4, $5) RETURNING "id", "name", "age", "sex", "email", "created"`).
		WithArgs("user-01", 18, "F", nil, in.Created).
		WillReturnRows(sqlmock.NewRows(userColumns).AddRow(int64(7), "user-01", int64(18), "F", nil, in.Created))
	mock.ExpectCommit()

	created, err := repo.Create(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, int64(7), created.ID)
	assert.Equal(t, in.Created, created.Created)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStatements_PostgresUniqueViolation(t *testing.T) {
	repo, mock := newMockRepository(t, types.Postgres)
	in := newUser(1)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "users" ("name", "age", "sex", "email", "created") VALUES ($1, $2, $3, $4, $5) RETURNING "id", "name", "age", "sex", "email", "created"`).
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})
	mock.ExpectRollback()

	_, err := repo.Create(context.Background(), in)
	assert.True(t, types.IsConflict(err))
	var pqErr *pq.Error
	assert.ErrorAs(t, err, &pqErr)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStatements_MySQLCreateReadsBack(t *testing.T) {
	repo, mock := newMockRepository(t, types.MySQL)
	in := newUser(2)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `users` (`name`, `age`, `sex`, `email`, `created`) VALUES (?, ?, ?, ?, ?)").
		WithArgs("user-02", 18, "M", nil, in.Created).
		WillReturnResult(sqlmock.NewResult(42, 1))
	mock.ExpectQuery("SELECT `id`, `name`, `age`, `sex`, `email`, `created` FROM `users` WHERE `id` = ? LIMIT ?").
		WithArgs(int64(42), 1).
		WillReturnRows(sqlmock.NewRows(userColumns).AddRow([]byte("42"), []byte("user-02"), []byte("18"), []byte("M"), nil, in.Created))
	mock.ExpectCommit()

	created, err := repo.Create(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, int64(42), created.ID)
	assert.Equal(t, "user-02", created.Name)
	assert.Equal(t, 18, created.Age)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStatements_PostgresUpdateWhere(t *testing.T) {
	repo, mock := newMockRepository(t, types.Postgres)
	log := &eventLog{}
	require.NoError(t, repo.Observe(log))

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT "id" FROM "users" WHERE "age" = $1 ORDER BY "id" ASC`).
		WithArgs(18).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)).AddRow(int64(2)))
	mock.ExpectExec(`UPDATE "users" SET "name" = $1, "sex" = $2 WHERE "age" = $3`).
		WithArgs("adult", "M", 18).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	n, err := repo.UpdateWhere(context.Background(), query.Attribute("age").Eq(18), query.Changes{"sex": "M", "name": "adult"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	require.NoError(t, mock.ExpectationsWereMet())

	events := log.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, observer.Update, events[0].Operation)
	assert.Equal(t, []any{int64(1), int64(2)}, events[0].IDs)
}

func TestStatements_PostgresDelete(t *testing.T) {
	repo, mock := newMockRepository(t, types.Postgres)
	u := newUser(3)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT "id", "name", "age", "sex", "email", "created" FROM "users" WHERE "id" = $1 LIMIT $2`).
		WithArgs(int64(3), 1).
		WillReturnRows(sqlmock.NewRows(userColumns).AddRow(int64(3), u.Name, int64(u.Age), u.Sex, "c@example.com", u.Created))
	mock.ExpectExec(`DELETE FROM "users" WHERE "id" = $1`).
		WithArgs(int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	deleted, err := repo.Delete(context.Background(), int64(3))
	require.NoError(t, err)
	assert.Equal(t, u.Name, deleted.Name)
	require.NotNil(t, deleted.Email)
	assert.Equal(t, "c@example.com", *deleted.Email)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStatements_PostgresCount(t *testing.T) {
	repo, mock := newMockRepository(t, types.Postgres)

	mock.ExpectQuery(`SELECT COUNT(*) FROM "users" WHERE "name" ILIKE $1`).
		WithArgs("user%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(5)))

	n, err := repo.Select().Where(query.Attribute("name").ILike("user%")).OrderBy(query.Asc("id")).Limit(2).Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
	require.NoError(t, mock.ExpectationsWereMet())
}
