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
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/uptrace/bun/dialect/feature"
	"github.com/uptrace/bun/schema"

	"github.com/tomoncle/tabula/model"
	"github.com/tomoncle/tabula/query"
	"github.com/tomoncle/tabula/types"
)

type sqlDialect struct {
	flavour     types.Flavour
	bun         schema.Dialect
	placeholder func(n int) string
	operators   map[query.Operator]string
	noLimit     string
	emptyInsert string
	columnType  func(a *model.Attribute) string
	primaryKey  func(a *model.Attribute) string
}

var _ Dialect = (*sqlDialect)(nil)

func (d *sqlDialect) Flavour() types.Flavour   { return d.flavour }
func (d *sqlDialect) Bun() schema.Dialect      { return d.bun }
func (d *sqlDialect) Placeholder(n int) string { return d.placeholder(n) }

// Quote wraps ident in the flavour's identifier quote, doubling any quote
// characters inside it.
func (d *sqlDialect) Quote(ident string) string {
	q := string(d.bun.IdentQuote())
	return q + strings.ReplaceAll(ident, q, q+q) + q
}

// writer accumulates statement text and arguments. Placeholders are numbered
// in the order values are bound.
type writer struct {
	d    *sqlDialect
	m    *model.Descriptor
	sb   strings.Builder
	args []any
}

func (d *sqlDialect) newWriter(m *model.Descriptor) *writer {
	return &writer{d: d, m: m}
}

func (w *writer) WriteString(s string) { w.sb.WriteString(s) }

func (w *writer) ident(s string) { w.sb.WriteString(w.d.Quote(s)) }

func (w *writer) bind(a *model.Attribute, v any) error {
	arg, err := encodeArg(a, v)
	if err != nil {
		return err
	}
	w.args = append(w.args, arg)
	w.sb.WriteString(w.d.placeholder(len(w.args)))
	return nil
}

func (w *writer) statement(shape Shape) Statement {
	return Statement{Text: w.sb.String(), Args: w.args, Table: w.m.Table, Shape: shape}
}

// encodeArg turns JSON attribute values without their own Valuer into text.
func encodeArg(a *model.Attribute, v any) (any, error) {
	if v == nil || a.Kind != model.JSON {
		return v, nil
	}
	if _, ok := v.(driver.Valuer); ok {
		return v, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", a.Name, err)
	}
	return string(b), nil
}

func mismatch(a *model.Attribute, v any) error {
	actual := "null"
	if v != nil {
		actual = fmt.Sprintf("%s (%T)", model.KindOf(v), v)
	}
	return &types.TypeMismatchError{Attribute: a.Name, Expected: a.Kind.String(), Actual: actual}
}

// checkLiteral enforces that v has exactly the declared kind of a. There is
// no coercion between kinds, integers included.
func checkLiteral(a *model.Attribute, op query.Operator, v any) error {
	if v == nil {
		if op == query.OpNone && a.Nullable {
			return nil
		}
		return mismatch(a, v)
	}
	if op.IsPattern() {
		if a.Kind != model.String {
			return &types.TypeMismatchError{Attribute: a.Name, Expected: "string attribute for " + op.String(), Actual: a.Kind.String()}
		}
	}
	if model.KindOf(v) != a.Kind {
		return mismatch(a, v)
	}
	return nil
}

func (w *writer) condition(c query.Condition) error {
	switch c.Kind() {
	case query.Leaf:
		return w.leaf(c)
	case query.Group:
		w.WriteString("(")
		if err := w.condition(c.Left()); err != nil {
			return err
		}
		w.WriteString(" " + c.Operator().String() + " ")
		if err := w.condition(c.Right()); err != nil {
			return err
		}
		w.WriteString(")")
	case query.Negation:
		w.WriteString("NOT (")
		if err := w.condition(c.Left()); err != nil {
			return err
		}
		w.WriteString(")")
	}
	return nil
}

func (w *writer) leaf(c query.Condition) error {
	a, err := w.m.Lookup(c.Attribute())
	if err != nil {
		return err
	}
	op := c.Operator()
	sqlOp, ok := w.d.operators[op]
	if !ok {
		return &types.UnsupportedOperationError{Flavour: w.d.flavour, Operation: op.String()}
	}

	switch op {
	case query.OpIsNull, query.OpNotNull:
		w.ident(a.Name)
		w.WriteString(" " + sqlOp)
		return nil
	case query.OpIn:
		values := c.Values()
		if len(values) == 0 {
			w.WriteString("1 = 0")
			return nil
		}
		w.ident(a.Name)
		w.WriteString(" IN (")
		for i, v := range values {
			if err := checkLiteral(a, op, v); err != nil {
				return err
			}
			if i > 0 {
				w.WriteString(", ")
			}
			if err := w.bind(a, v); err != nil {
				return err
			}
		}
		w.WriteString(")")
		return nil
	}

	if err := checkLiteral(a, op, c.Value()); err != nil {
		return err
	}
	w.ident(a.Name)
	w.WriteString(" " + sqlOp + " ")
	return w.bind(a, c.Value())
}

func (w *writer) where(c query.Condition) error {
	if c.IsEmpty() {
		return nil
	}
	w.WriteString(" WHERE ")
	return w.condition(c)
}

func (w *writer) columnList(names []string) ([]string, error) {
	cols := make([]string, 0, len(names))
	for i, name := range names {
		a, err := w.m.Lookup(name)
		if err != nil {
			return nil, err
		}
		if i > 0 {
			w.WriteString(", ")
		}
		w.ident(a.Name)
		cols = append(cols, a.Name)
	}
	return cols, nil
}

func (d *sqlDialect) RenderSelect(spec query.Spec) (Statement, error) {
	m := spec.Model()
	if m == nil {
		return Statement{}, fmt.Errorf("dialect: select without model")
	}
	w := d.newWriter(m)
	names := spec.Projection()
	if names == nil {
		names = m.Columns()
	}

	w.WriteString("SELECT ")
	cols, err := w.columnList(names)
	if err != nil {
		return Statement{}, err
	}
	w.WriteString(" FROM ")
	w.ident(m.Table)
	if err := w.where(spec.Condition()); err != nil {
		return Statement{}, err
	}

	orders := spec.Orders()
	for i, o := range orders {
		a, err := m.Lookup(o.Attribute)
		if err != nil {
			return Statement{}, err
		}
		if !o.Direction.IsValid() {
			return Statement{}, fmt.Errorf("dialect: invalid direction for %s", a.Name)
		}
		if i == 0 {
			w.WriteString(" ORDER BY ")
		} else {
			w.WriteString(", ")
		}
		w.ident(a.Name)
		w.WriteString(" " + o.Direction.String())
	}

	limit, offset := spec.LimitValue(), spec.OffsetValue()
	if limit > 0 {
		w.WriteString(" LIMIT ")
		w.args = append(w.args, limit)
		w.WriteString(d.placeholder(len(w.args)))
	} else if offset > 0 && d.noLimit != "" {
		w.WriteString(" LIMIT " + d.noLimit)
	}
	if offset > 0 {
		w.WriteString(" OFFSET ")
		w.args = append(w.args, offset)
		w.WriteString(d.placeholder(len(w.args)))
	}
	return w.statement(Shape{Columns: cols, Partial: spec.IsPartial()}), nil
}

func (d *sqlDialect) RenderCount(spec query.Spec) (Statement, error) {
	m := spec.Model()
	if m == nil {
		return Statement{}, fmt.Errorf("dialect: count without model")
	}
	w := d.newWriter(m)
	w.WriteString("SELECT COUNT(*) FROM ")
	w.ident(m.Table)
	if err := w.where(spec.Condition()); err != nil {
		return Statement{}, err
	}
	return w.statement(Shape{Columns: []string{"count"}, Partial: true}), nil
}

func (w *writer) checkAssignment(s query.Assignment) (*model.Attribute, error) {
	a, err := w.m.Lookup(s.Attribute)
	if err != nil {
		return nil, err
	}
	if err := checkLiteral(a, query.OpNone, s.Value); err != nil {
		return nil, err
	}
	return a, nil
}

func (d *sqlDialect) RenderInsert(m *model.Descriptor, sets []query.Assignment) (Statement, error) {
	w := d.newWriter(m)
	w.WriteString("INSERT INTO ")
	w.ident(m.Table)

	if len(sets) == 0 {
		w.WriteString(" " + d.emptyInsert)
	} else {
		attrs := make([]*model.Attribute, len(sets))
		w.WriteString(" (")
		for i, s := range sets {
			a, err := w.checkAssignment(s)
			if err != nil {
				return Statement{}, err
			}
			attrs[i] = a
			if i > 0 {
				w.WriteString(", ")
			}
			w.ident(a.Name)
		}
		w.WriteString(") VALUES (")
		for i, s := range sets {
			if i > 0 {
				w.WriteString(", ")
			}
			if err := w.bind(attrs[i], s.Value); err != nil {
				return Statement{}, err
			}
		}
		w.WriteString(")")
	}

	if !d.bun.Features().Has(feature.InsertReturning) {
		return w.statement(Shape{}), nil
	}
	w.WriteString(" RETURNING ")
	cols, err := w.columnList(m.Columns())
	if err != nil {
		return Statement{}, err
	}
	return w.statement(Shape{Columns: cols, Returning: true}), nil
}

func (d *sqlDialect) RenderUpdate(m *model.Descriptor, sets []query.Assignment, where query.Condition) (Statement, error) {
	if len(sets) == 0 {
		return Statement{}, fmt.Errorf("dialect: update of %s without assignments", m.Name)
	}
	w := d.newWriter(m)
	w.WriteString("UPDATE ")
	w.ident(m.Table)
	w.WriteString(" SET ")
	for i, s := range sets {
		a, err := w.checkAssignment(s)
		if err != nil {
			return Statement{}, err
		}
		if i > 0 {
			w.WriteString(", ")
		}
		w.ident(a.Name)
		w.WriteString(" = ")
		if err := w.bind(a, s.Value); err != nil {
			return Statement{}, err
		}
	}
	if err := w.where(where); err != nil {
		return Statement{}, err
	}
	return w.statement(Shape{}), nil
}

func (d *sqlDialect) RenderDelete(m *model.Descriptor, where query.Condition) (Statement, error) {
	w := d.newWriter(m)
	w.WriteString("DELETE FROM ")
	w.ident(m.Table)
	if err := w.where(where); err != nil {
		return Statement{}, err
	}
	return w.statement(Shape{}), nil
}
