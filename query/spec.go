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

package query

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tomoncle/tabula/model"
	"github.com/tomoncle/tabula/types"
)

// Order is one ORDER BY term.
type Order struct {
	Attribute string
	Direction types.OrderDirection
}

func Asc(attribute string) Order  { return Order{Attribute: attribute, Direction: types.Asc} }
func Desc(attribute string) Order { return Order{Attribute: attribute, Direction: types.Desc} }

// ParseOrder reads "age", "age desc" or "-age".
func ParseOrder(s string) (Order, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "-") {
		return Desc(strings.TrimSpace(s[1:])), nil
	}
	fields := strings.Fields(s)
	switch len(fields) {
	case 1:
		return Asc(fields[0]), nil
	case 2:
		dir := types.ParseOrderDirection(fields[1])
		if !dir.IsValid() {
			return Order{}, fmt.Errorf("invalid order direction %q", fields[1])
		}
		return Order{Attribute: fields[0], Direction: dir}, nil
	default:
		return Order{}, fmt.Errorf("invalid order %q", s)
	}
}

func (o Order) String() string { return o.Attribute + " " + o.Direction.String() }

// Assignment sets one attribute in an INSERT or UPDATE.
type Assignment struct {
	Attribute string
	Value     any
}

// Changes is a set of attribute updates keyed by attribute name.
type Changes map[string]any

// Assignments returns the changes sorted by attribute name.
func (c Changes) Assignments() []Assignment {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Assignment, len(keys))
	for i, k := range keys {
		out[i] = Assignment{Attribute: k, Value: c[k]}
	}
	return out
}

// Spec is an immutable description of a SELECT: target model, projection,
// condition, ordering and window. Every refinement returns a new Spec and
// never writes to slices shared with the receiver.
type Spec struct {
	model      *model.Descriptor
	projection []string
	where      Condition
	orders     []Order
	limit      int
	offset     int
}

// NewSpec starts a Spec over all attributes of m.
func NewSpec(m *model.Descriptor) Spec {
	return Spec{model: m}
}

func (s Spec) Model() *model.Descriptor { return s.model }

// Select replaces the projection. No attributes means all attributes.
func (s Spec) Select(attributes ...string) Spec {
	if len(attributes) == 0 {
		s.projection = nil
		return s
	}
	s.projection = append([]string(nil), attributes...)
	return s
}

// Where AND-combines c with the existing condition.
func (s Spec) Where(c Condition) Spec {
	s.where = s.where.And(c)
	return s
}

// OrderBy appends ordering terms.
func (s Spec) OrderBy(orders ...Order) Spec {
	next := make([]Order, 0, len(s.orders)+len(orders))
	next = append(next, s.orders...)
	s.orders = append(next, orders...)
	return s
}

// Limit caps the number of rows. n <= 0 removes the cap.
func (s Spec) Limit(n int) Spec {
	if n < 0 {
		n = 0
	}
	s.limit = n
	return s
}

// Offset skips the first n rows.
func (s Spec) Offset(n int) Spec {
	if n < 0 {
		n = 0
	}
	s.offset = n
	return s
}

// Unordered drops ordering and the row window, as needed by COUNT.
func (s Spec) Unordered() Spec {
	s.orders = nil
	s.limit = 0
	s.offset = 0
	return s
}

// Projection returns a copy of the selected attributes, nil for all.
func (s Spec) Projection() []string {
	if s.projection == nil {
		return nil
	}
	return append([]string(nil), s.projection...)
}

func (s Spec) IsPartial() bool      { return s.projection != nil }
func (s Spec) Condition() Condition { return s.where }
func (s Spec) Orders() []Order      { return append([]Order(nil), s.orders...) }
func (s Spec) LimitValue() int      { return s.limit }
func (s Spec) OffsetValue() int     { return s.offset }
