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
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomoncle/tabula/types"
)

func TestIsSqlError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want SQLError
	}{
		{"pq duplicate", &pq.Error{Code: "23505"}, DuplicateKeyErr},
		{"pq table exists", &pq.Error{Code: "42P07"}, ExistTableErr},
		{"pq no database", &pq.Error{Code: "3D000"}, NoDatabaseErr},
		{"pq role exists", &pq.Error{Code: "42710"}, ExistObjectErr},
		{"pq canceled", &pq.Error{Code: "57014"}, QueryCanceledErr},
		{"pgx no table", &pgconn.PgError{Code: "42P01"}, NoTableErr},
		{"pgx database exists", &pgconn.PgError{Code: "42P04"}, ExistDatabaseErr},
		{"mysql duplicate", &mysql.MySQLError{Number: 1062}, DuplicateKeyErr},
		{"mysql no table", &mysql.MySQLError{Number: 1146}, NoTableErr},
		{"mysql timeout", &mysql.MySQLError{Number: 3024}, QueryCanceledErr},
		{"mysql create user", &mysql.MySQLError{Number: 1396, Message: "Operation CREATE USER failed for 'u'@'%'"}, ExistObjectErr},
		{"mysql drop user", &mysql.MySQLError{Number: 1396, Message: "Operation DROP USER failed for 'u'@'%'"}, NoObjectErr},
		{"sqlite unique", errors.New("constraint failed: UNIQUE constraint failed: users.email (2067)"), DuplicateKeyErr},
		{"sqlite table exists", errors.New(`SQL logic error: table "users" already exists (1)`), ExistTableErr},
		{"sqlite no table", errors.New("SQL logic error: no such table: users (1)"), NoTableErr},
		{"no rows", fmt.Errorf("read: %w", sql.ErrNoRows), NoRowsErr},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			is, got := IsSqlError(tc.err)
			assert.True(t, is)
			assert.Equal(t, tc.want, got)
		})
	}

	is, _ := IsSqlError(errors.New("network unreachable"))
	assert.False(t, is)
	is, _ = IsSqlError(nil)
	assert.False(t, is)
}

func TestClassify(t *testing.T) {
	cause := &pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"}
	err := classify(cause, "users")
	assert.True(t, types.IsConflict(err))
	var pqErr *pq.Error
	require.True(t, errors.As(err, &pqErr))
	assert.Equal(t, cause, pqErr)

	err = classify(&mysql.MySQLError{Number: 1146}, "users")
	assert.True(t, types.IsNotFound(err))

	err = classify(&pgconn.PgError{Code: "57014"}, "users")
	assert.True(t, types.IsStatementTimeout(err))

	typed := types.NewNotFoundError("users", 1, nil)
	assert.Same(t, typed, classify(typed, "users"))

	plain := errors.New("broken pipe")
	assert.Equal(t, plain, classify(plain, "users"))
	assert.NoError(t, classify(nil, "users"))
}

func TestTimeoutError(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	err := timeoutError(ctx, errors.New("canceling query"), "SELECT 1", time.Second)
	require.Error(t, err)
	assert.True(t, types.IsStatementTimeout(err))

	assert.NoError(t, timeoutError(context.Background(), errors.New("x"), "SELECT 1", time.Second))
}
