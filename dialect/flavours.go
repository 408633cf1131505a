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

package dialect

import (
	"strconv"

	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"github.com/tomoncle/tabula/model"
	"github.com/tomoncle/tabula/query"
	"github.com/tomoncle/tabula/types"
)

var commonOperators = map[query.Operator]string{
	query.OpEq:      "=",
	query.OpNeq:     "<>",
	query.OpGt:      ">",
	query.OpGte:     ">=",
	query.OpLt:      "<",
	query.OpLte:     "<=",
	query.OpIn:      "IN",
	query.OpLike:    "LIKE",
	query.OpIsNull:  "IS NULL",
	query.OpNotNull: "IS NOT NULL",
}

func withOperators(extra map[query.Operator]string) map[query.Operator]string {
	ops := make(map[query.Operator]string, len(commonOperators)+len(extra))
	for k, v := range commonOperators {
		ops[k] = v
	}
	for k, v := range extra {
		ops[k] = v
	}
	return ops
}

// NewPostgres returns the PostgreSQL dialect: double-quoted identifiers and
// $n placeholders.
func NewPostgres() Dialect {
	return &sqlDialect{
		flavour: types.Postgres,
		bun:     pgdialect.New(),
		placeholder: func(n int) string {
			return "$" + strconv.Itoa(n)
		},
		operators: withOperators(map[query.Operator]string{
			query.OpILike:  "ILIKE",
			query.OpRegexp: "~",
		}),
		emptyInsert: "DEFAULT VALUES",
		columnType: func(a *model.Attribute) string {
			switch a.Kind {
			case model.Integer:
				if a.AutoIncrement {
					return "BIGSERIAL"
				}
				return "BIGINT"
			case model.Float:
				return "DOUBLE PRECISION"
			case model.Bool:
				return "BOOLEAN"
			case model.Time:
				return "TIMESTAMPTZ"
			case model.JSON:
				return "JSONB"
			case model.UUID:
				return "UUID"
			case model.Bytes:
				return "BYTEA"
			default:
				return "TEXT"
			}
		},
		primaryKey: func(a *model.Attribute) string {
			return "PRIMARY KEY"
		},
	}
}

// NewMySQL returns the MySQL dialect: backtick identifiers and ? placeholders.
// MySQL has no INSERT ... RETURNING, so inserted rows are re-read by key.
func NewMySQL() Dialect {
	return &sqlDialect{
		flavour:     types.MySQL,
		bun:         mysqldialect.New(),
		placeholder: func(int) string { return "?" },
		operators: withOperators(map[query.Operator]string{
			query.OpRegexp: "REGEXP",
		}),
		noLimit:     "18446744073709551615",
		emptyInsert: "() VALUES ()",
		columnType: func(a *model.Attribute) string {
			switch a.Kind {
			case model.Integer:
				return "BIGINT"
			case model.Float:
				return "DOUBLE"
			case model.Bool:
				return "TINYINT(1)"
			case model.Time:
				return "DATETIME(6)"
			case model.JSON:
				return "JSON"
			case model.UUID:
				return "CHAR(36)"
			case model.Bytes:
				return "LONGBLOB"
			default:
				return "VARCHAR(255)"
			}
		},
		primaryKey: func(a *model.Attribute) string {
			if a.AutoIncrement {
				return "AUTO_INCREMENT PRIMARY KEY"
			}
			return "PRIMARY KEY"
		},
	}
}

// NewSQLite returns the SQLite dialect. SQLite has no ILIKE and no built-in
// REGEXP function.
func NewSQLite() Dialect {
	return &sqlDialect{
		flavour:     types.SQLite,
		bun:         sqlitedialect.New(),
		placeholder: func(int) string { return "?" },
		operators:   withOperators(nil),
		noLimit:     "-1",
		emptyInsert: "DEFAULT VALUES",
		columnType: func(a *model.Attribute) string {
			switch a.Kind {
			case model.Integer:
				return "INTEGER"
			case model.Float:
				return "REAL"
			case model.Bool:
				return "BOOLEAN"
			case model.Time:
				return "TIMESTAMP"
			case model.Bytes:
				return "BLOB"
			default:
				return "TEXT"
			}
		},
		primaryKey: func(a *model.Attribute) string {
			if a.AutoIncrement {
				return "PRIMARY KEY AUTOINCREMENT"
			}
			return "PRIMARY KEY"
		},
	}
}
