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
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"github.com/tomoncle/tabula/types"
)

type SQLError int

const (
	UnknownErr SQLError = iota
	NoRowsErr
	NoIndexErr
	NoColumnErr
	ExistIndexErr
	ExistColumnErr
	NoTableErr
	ExistTableErr
	DuplicateKeyErr
	NotNullViolationErr
	ForeignKeyViolationErr
	CheckConstraintViolationErr
	DataTruncatedErr
	InvalidTypeCastErr
	NoDatabaseErr
	ExistDatabaseErr
	NoObjectErr
	ExistObjectErr
	QueryCanceledErr
)

// postgres SQLSTATE codes, shared by lib/pq and pgx
var pgCodes = map[string]SQLError{
	"23505": DuplicateKeyErr,
	"23502": NotNullViolationErr,
	"23503": ForeignKeyViolationErr,
	"23514": CheckConstraintViolationErr,
	"22001": DataTruncatedErr,
	"42804": InvalidTypeCastErr,
	"42703": NoColumnErr,
	"42701": ExistColumnErr,
	"42P01": NoTableErr,
	"42P07": ExistTableErr,
	"3D000": NoDatabaseErr,
	"42P04": ExistDatabaseErr,
	"42704": NoObjectErr,
	"42710": ExistObjectErr,
	"42723": ExistObjectErr,
	"57014": QueryCanceledErr,
}

var mysqlCodes = map[uint16]SQLError{
	1091: NoIndexErr,
	1054: NoColumnErr,
	1061: ExistIndexErr,
	1060: ExistColumnErr,
	1062: DuplicateKeyErr,
	1048: NotNullViolationErr,
	1216: ForeignKeyViolationErr,
	1217: ForeignKeyViolationErr,
	3819: CheckConstraintViolationErr,
	1265: DataTruncatedErr,
	1050: ExistTableErr,
	1146: NoTableErr,
	1051: NoTableErr,
	1049: NoDatabaseErr,
	1008: NoDatabaseErr,
	1007: ExistDatabaseErr,
	3024: QueryCanceledErr,
}

// IsSqlError classifies a driver error. The first result is false when err
// was not recognised as a database error.
func IsSqlError(err error) (is bool, sqlErr SQLError) {
	if err == nil {
		return false, UnknownErr
	}
	if errors.Is(err, sql.ErrNoRows) {
		return true, NoRowsErr
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return true, pgCodes[string(pqErr.Code)]
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return true, pgCodes[pgErr.Code]
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		if mysqlErr.Number == 1396 {
			// ER_CANNOT_USER covers both CREATE on an existing and DROP on a
			// missing account
			if strings.Contains(mysqlErr.Message, "CREATE USER") {
				return true, ExistObjectErr
			}
			return true, NoObjectErr
		}
		return true, mysqlCodes[mysqlErr.Number]
	}

	s := strings.ToLower(err.Error())
	switch {
	case strings.Contains(s, "sqlstate 42703"),
		strings.Contains(s, "no such column"):
		return true, NoColumnErr
	case strings.Contains(s, "sqlstate 42p01"),
		strings.Contains(s, "no such table"):
		return true, NoTableErr
	case strings.Contains(s, "no such index"):
		return true, NoIndexErr
	case strings.Contains(s, "already exists") && strings.Contains(s, "index"):
		return true, ExistIndexErr
	case strings.Contains(s, "already exists") && (strings.Contains(s, "table") || strings.Contains(s, "relation")):
		return true, ExistTableErr
	case strings.Contains(s, "unique constraint failed"),
		strings.Contains(s, "sqlstate 23505"):
		return true, DuplicateKeyErr
	case strings.Contains(s, "not null constraint failed"),
		strings.Contains(s, "sqlstate 23502"):
		return true, NotNullViolationErr
	case strings.Contains(s, "foreign key constraint failed"):
		return true, ForeignKeyViolationErr
	case strings.Contains(s, "check constraint failed"):
		return true, CheckConstraintViolationErr
	}
	return false, UnknownErr
}

// classify maps a driver error into the error taxonomy, keeping the driver
// error as the cause. object names what the statement addressed.
func classify(err error, object string) error {
	if err == nil {
		return nil
	}
	if isTaxonomy(err) {
		return err
	}
	_, kind := IsSqlError(err)
	switch kind {
	case DuplicateKeyErr, ExistTableErr, ExistIndexErr, ExistDatabaseErr, ExistObjectErr, ExistColumnErr:
		return types.NewConflictError(object, err)
	case NoRowsErr, NoTableErr, NoDatabaseErr, NoObjectErr:
		return types.NewNotFoundError(object, nil, err)
	case QueryCanceledErr:
		return &types.StatementTimeoutError{Statement: object, Cause: err}
	}
	return err
}

func isTaxonomy(err error) bool {
	for _, target := range []error{
		types.ErrValidation, types.ErrConflict, types.ErrNotFound,
		types.ErrUnsupportedOperation, types.ErrTypeMismatch, types.ErrUnknownAttribute,
		types.ErrConnectionTimeout, types.ErrStatementTimeout, types.ErrConnectionClosed,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// timeoutError reports a statement that ran past the deadline of sctx.
// It returns nil when the failure was not caused by that deadline.
func timeoutError(sctx context.Context, err error, stmt string, limit time.Duration) error {
	if err != nil && errors.Is(sctx.Err(), context.DeadlineExceeded) {
		return &types.StatementTimeoutError{Timeout: limit, Statement: stmt, Cause: err}
	}
	return nil
}
