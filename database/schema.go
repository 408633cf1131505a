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
	"fmt"

	"github.com/tomoncle/tabula/dialect"
	"github.com/tomoncle/tabula/model"
	"github.com/tomoncle/tabula/types"
)

// CreateTable creates the table and indexes of d in one transaction. An
// existing table yields a ConflictError and is left untouched.
func (a *Adapter) CreateTable(ctx context.Context, d *model.Descriptor) error {
	stmts, err := a.dialect.RenderCreateTable(d)
	if err != nil {
		return err
	}
	err = a.Tx(ctx, func(ex Executor) error {
		for _, stmt := range stmts {
			if _, err := ex.Exec(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if types.IsConflict(err) {
			return types.NewConflictError("table "+d.Table, unwrapCause(err))
		}
		return err
	}
	a.logger.Info("table created", "table", d.Table, "indexes", len(stmts)-1)
	return nil
}

// DropTable drops the table of d. A missing table yields a NotFoundError.
func (a *Adapter) DropTable(ctx context.Context, d *model.Descriptor) error {
	stmt, err := a.dialect.RenderDropTable(d)
	if err != nil {
		return err
	}
	if _, err := a.Exec(ctx, stmt); err != nil {
		if types.IsNotFound(err) {
			return types.NewNotFoundError("table", d.Table, unwrapCause(err))
		}
		return err
	}
	a.logger.Info("table dropped", "table", d.Table)
	return nil
}

// TableColumns lists the columns of an existing table. It returns an empty
// slice when the table does not exist.
func (a *Adapter) TableColumns(ctx context.Context, table string) ([]string, error) {
	var stmt dialect.Statement
	switch a.flavour {
	case types.Postgres:
		stmt = dialect.Statement{
			Text: "SELECT column_name FROM information_schema.columns WHERE table_schema = current_schema() AND table_name = $1 ORDER BY ordinal_position",
			Args: []any{table},
		}
	case types.MySQL:
		stmt = dialect.Statement{
			Text: "SELECT COLUMN_NAME FROM INFORMATION_SCHEMA.COLUMNS WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ? ORDER BY ORDINAL_POSITION",
			Args: []any{table},
		}
	default:
		stmt = dialect.Statement{
			Text: "SELECT name FROM pragma_table_info(?) ORDER BY cid",
			Args: []any{table},
		}
	}
	stmt.Table = table
	res, err := a.Query(ctx, stmt)
	if err != nil {
		return nil, err
	}
	cols := make([]string, 0, len(res.Rows))
	for _, row := range res.Rows {
		switch v := row[0].(type) {
		case string:
			cols = append(cols, v)
		case []byte:
			cols = append(cols, string(v))
		default:
			cols = append(cols, fmt.Sprint(v))
		}
	}
	return cols, nil
}

// TableExists reports whether the table of d exists.
func (a *Adapter) TableExists(ctx context.Context, d *model.Descriptor) (bool, error) {
	cols, err := a.TableColumns(ctx, d.Table)
	if err != nil {
		return false, err
	}
	return len(cols) > 0, nil
}

// Bootstrap creates the tables of every registered model in priority order.
// With ignoreExisting set, tables that already exist are skipped instead of
// failing the bootstrap.
func (a *Adapter) Bootstrap(ctx context.Context, ignoreExisting bool) error {
	return a.bootstrap(ctx, RegisteredModels(), ignoreExisting)
}

func (a *Adapter) bootstrap(ctx context.Context, models []SQLModel, ignoreExisting bool) error {
	for _, m := range models {
		d := m.Descriptor()
		if d.Flavour != types.FlavourUnknown && d.Flavour != a.flavour {
			a.logger.Debug("skipping model of another flavour", "model", d.Name, "flavour", d.Flavour)
			continue
		}
		err := a.CreateTable(ctx, d)
		if err == nil {
			continue
		}
		if ignoreExisting && types.IsConflict(err) {
			a.logger.Debug("table already exists", "table", d.Table)
			continue
		}
		return fmt.Errorf("bootstrap %s: %w", d.Name, err)
	}
	return nil
}

// unwrapCause returns the driver error carried by a taxonomy error.
func unwrapCause(err error) error {
	switch e := err.(type) {
	case *types.ConflictError:
		return e.Cause
	case *types.NotFoundError:
		return e.Cause
	}
	return err
}
