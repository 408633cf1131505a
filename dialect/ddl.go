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
	"fmt"
	"strings"

	"github.com/tomoncle/tabula/model"
)

// ColumnType returns the SQL type of a, honouring a bun:"type:..." override.
func (d *sqlDialect) ColumnType(a *model.Attribute) string {
	if a.SQLType != "" {
		return a.SQLType
	}
	return d.columnType(a)
}

func (d *sqlDialect) columnDefinition(a *model.Attribute) string {
	var b strings.Builder
	b.WriteString(d.Quote(a.Name))
	b.WriteByte(' ')
	b.WriteString(d.ColumnType(a))
	if a.PrimaryKey {
		b.WriteByte(' ')
		b.WriteString(d.primaryKey(a))
		return b.String()
	}
	if a.Required && !a.Nullable {
		b.WriteString(" NOT NULL")
	}
	if a.Default != "" {
		b.WriteString(" DEFAULT ")
		b.WriteString(a.Default)
	}
	if a.Unique {
		b.WriteString(" UNIQUE")
	}
	return b.String()
}

// IndexName is the name of the index on a in direction dir.
func IndexName(m *model.Descriptor, a *model.Attribute, dir fmt.Stringer) string {
	return fmt.Sprintf("%s_%s_%s_index", m.Table, a.Name, strings.ToLower(dir.String()))
}

// RenderCreateTable returns the CREATE TABLE statement followed by one
// CREATE INDEX per declared index direction. The table statement carries no
// IF NOT EXISTS clause: creating an existing table is an error.
func (d *sqlDialect) RenderCreateTable(m *model.Descriptor) ([]Statement, error) {
	if len(m.Attributes) == 0 {
		return nil, fmt.Errorf("dialect: model %s has no attributes", m.Name)
	}
	defs := make([]string, len(m.Attributes))
	for i, a := range m.Attributes {
		defs[i] = d.columnDefinition(a)
	}
	stmts := []Statement{{
		Text:  fmt.Sprintf("CREATE TABLE %s (%s)", d.Quote(m.Table), strings.Join(defs, ", ")),
		Table: m.Table,
	}}

	for _, a := range m.Attributes {
		for _, dir := range a.Index {
			stmts = append(stmts, Statement{
				Text: fmt.Sprintf("CREATE INDEX %s ON %s (%s %s)",
					d.Quote(IndexName(m, a, dir)), d.Quote(m.Table), d.Quote(a.Name), dir.String()),
				Table: m.Table,
			})
		}
	}
	return stmts, nil
}

func (d *sqlDialect) RenderDropTable(m *model.Descriptor) (Statement, error) {
	return Statement{Text: "DROP TABLE " + d.Quote(m.Table), Table: m.Table}, nil
}
