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

// Package dialect renders query specs into parameterized statements for one
// SQL flavour. Values are always bound, never interpolated.
package dialect

import (
	"fmt"

	"github.com/uptrace/bun/schema"

	"github.com/tomoncle/tabula/model"
	"github.com/tomoncle/tabula/query"
	"github.com/tomoncle/tabula/types"
)

// Shape describes what a statement returns.
type Shape struct {
	// Columns lists the returned columns in order, nil for statements that
	// return no rows.
	Columns []string
	// Partial is set when Columns is a projection of the model.
	Partial bool
	// Returning is set on INSERTs that return the stored row.
	Returning bool
}

// Statement is rendered SQL with its positional arguments. Table names the
// table it addresses, used when reporting errors.
type Statement struct {
	Text  string
	Args  []any
	Table string
	Shape Shape
}

func (s Statement) String() string {
	return fmt.Sprintf("%s %v", s.Text, s.Args)
}

// Dialect renders statements for one flavour. Implementations are stateless
// and safe for concurrent use.
type Dialect interface {
	Flavour() types.Flavour
	// Bun returns the bun dialect carrying the flavour's feature set.
	Bun() schema.Dialect
	Quote(ident string) string
	Placeholder(n int) string

	RenderSelect(spec query.Spec) (Statement, error)
	RenderCount(spec query.Spec) (Statement, error)
	RenderInsert(m *model.Descriptor, sets []query.Assignment) (Statement, error)
	RenderUpdate(m *model.Descriptor, sets []query.Assignment, where query.Condition) (Statement, error)
	RenderDelete(m *model.Descriptor, where query.Condition) (Statement, error)
	RenderCreateTable(m *model.Descriptor) ([]Statement, error)
	RenderDropTable(m *model.Descriptor) (Statement, error)
}

// For returns the dialect of a flavour.
func For(f types.Flavour) (Dialect, error) {
	switch f {
	case types.Postgres:
		return NewPostgres(), nil
	case types.MySQL:
		return NewMySQL(), nil
	case types.SQLite:
		return NewSQLite(), nil
	default:
		return nil, fmt.Errorf("dialect: unsupported flavour %q", f)
	}
}
