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
	"strings"
)

// Operator is the comparison or boolean operator of a condition node.
type Operator int

const (
	OpNone Operator = iota
	OpEq
	OpNeq
	OpGt
	OpGte
	OpLt
	OpLte
	OpIn
	OpLike
	OpILike
	OpRegexp
	OpIsNull
	OpNotNull
	OpAnd
	OpOr
	OpNot
)

var operatorNames = [...]string{
	OpNone:    "",
	OpEq:      "=",
	OpNeq:     "<>",
	OpGt:      ">",
	OpGte:     ">=",
	OpLt:      "<",
	OpLte:     "<=",
	OpIn:      "IN",
	OpLike:    "LIKE",
	OpILike:   "ILIKE",
	OpRegexp:  "REGEXP",
	OpIsNull:  "IS NULL",
	OpNotNull: "IS NOT NULL",
	OpAnd:     "AND",
	OpOr:      "OR",
	OpNot:     "NOT",
}

func (o Operator) String() string {
	if int(o) < len(operatorNames) {
		return operatorNames[o]
	}
	return fmt.Sprintf("Operator(%d)", int(o))
}

// IsPattern reports whether o matches text patterns.
func (o Operator) IsPattern() bool {
	return o == OpLike || o == OpILike || o == OpRegexp
}

// NodeKind classifies condition nodes.
type NodeKind int

const (
	Empty NodeKind = iota
	Leaf
	Group
	Negation
)

type node struct {
	kind   NodeKind
	attr   string
	op     Operator
	value  any
	values []any
	left   *node
	right  *node
}

// Condition is an immutable predicate tree. The zero value is the empty
// condition, which matches every row. Conditions hold no connection state
// and can be rendered by any dialect any number of times.
type Condition struct {
	n *node
}

// AttributeRef starts a leaf condition on one attribute.
type AttributeRef struct {
	name string
}

// Attribute returns a builder for conditions on the named attribute.
func Attribute(name string) AttributeRef { return AttributeRef{name: name} }

func (a AttributeRef) Name() string { return a.name }

func (a AttributeRef) leaf(op Operator, v any) Condition {
	return Condition{&node{kind: Leaf, attr: a.name, op: op, value: v}}
}

// Eq matches rows where the attribute equals v. Eq(nil) matches NULL.
func (a AttributeRef) Eq(v any) Condition {
	if v == nil {
		return a.leaf(OpIsNull, nil)
	}
	return a.leaf(OpEq, v)
}

// Neq matches rows where the attribute differs from v. Neq(nil) matches
// non-NULL values.
func (a AttributeRef) Neq(v any) Condition {
	if v == nil {
		return a.leaf(OpNotNull, nil)
	}
	return a.leaf(OpNeq, v)
}

func (a AttributeRef) Gt(v any) Condition        { return a.leaf(OpGt, v) }
func (a AttributeRef) Gte(v any) Condition       { return a.leaf(OpGte, v) }
func (a AttributeRef) Lt(v any) Condition        { return a.leaf(OpLt, v) }
func (a AttributeRef) Lte(v any) Condition       { return a.leaf(OpLte, v) }
func (a AttributeRef) Like(p string) Condition   { return a.leaf(OpLike, p) }
func (a AttributeRef) ILike(p string) Condition  { return a.leaf(OpILike, p) }
func (a AttributeRef) Regexp(p string) Condition { return a.leaf(OpRegexp, p) }
func (a AttributeRef) IsNull() Condition         { return a.leaf(OpIsNull, nil) }
func (a AttributeRef) NotNull() Condition        { return a.leaf(OpNotNull, nil) }

// In matches rows whose attribute is one of values. An empty list matches
// nothing.
func (a AttributeRef) In(values ...any) Condition {
	cp := make([]any, len(values))
	copy(cp, values)
	return Condition{&node{kind: Leaf, attr: a.name, op: OpIn, values: cp}}
}

// And returns (c AND o). The empty condition is the identity.
func (c Condition) And(o Condition) Condition { return combine(OpAnd, c, o) }

// Or returns (c OR o). The empty condition is the identity.
func (c Condition) Or(o Condition) Condition { return combine(OpOr, c, o) }

// Not returns NOT (c). Negating the empty condition yields it unchanged.
func (c Condition) Not() Condition { return Not(c) }

func combine(op Operator, l, r Condition) Condition {
	switch {
	case l.IsEmpty():
		return r
	case r.IsEmpty():
		return l
	}
	return Condition{&node{kind: Group, op: op, left: l.n, right: r.n}}
}

// And folds conditions left to right: And(a, b, c) == a.And(b).And(c).
func And(conds ...Condition) Condition {
	var out Condition
	for _, c := range conds {
		out = out.And(c)
	}
	return out
}

// Or folds conditions left to right.
func Or(conds ...Condition) Condition {
	var out Condition
	for _, c := range conds {
		out = out.Or(c)
	}
	return out
}

// Not negates c.
func Not(c Condition) Condition {
	if c.IsEmpty() {
		return c
	}
	return Condition{&node{kind: Negation, op: OpNot, left: c.n}}
}

func (c Condition) IsEmpty() bool { return c.n == nil }

func (c Condition) Kind() NodeKind {
	if c.n == nil {
		return Empty
	}
	return c.n.kind
}

// Attribute is the attribute name of a leaf.
func (c Condition) Attribute() string {
	if c.n == nil {
		return ""
	}
	return c.n.attr
}

func (c Condition) Operator() Operator {
	if c.n == nil {
		return OpNone
	}
	return c.n.op
}

// Value is the literal of a leaf, nil for In and null checks.
func (c Condition) Value() any {
	if c.n == nil {
		return nil
	}
	return c.n.value
}

// Values returns a copy of the In list.
func (c Condition) Values() []any {
	if c.n == nil || c.n.values == nil {
		return nil
	}
	out := make([]any, len(c.n.values))
	copy(out, c.n.values)
	return out
}

// Left is the left operand of a group, or the operand of a negation.
func (c Condition) Left() Condition {
	if c.n == nil {
		return Condition{}
	}
	return Condition{c.n.left}
}

func (c Condition) Right() Condition {
	if c.n == nil {
		return Condition{}
	}
	return Condition{c.n.right}
}

// Walk visits the tree depth-first, left before right. Returning false
// from fn stops descent below the visited node.
func (c Condition) Walk(fn func(Condition) bool) {
	if c.n == nil || !fn(c) {
		return
	}
	switch c.n.kind {
	case Group:
		c.Left().Walk(fn)
		c.Right().Walk(fn)
	case Negation:
		c.Left().Walk(fn)
	}
}

// Attributes lists the attribute names referenced by c in tree order.
func (c Condition) Attributes() []string {
	var out []string
	c.Walk(func(n Condition) bool {
		if n.Kind() == Leaf {
			out = append(out, n.Attribute())
		}
		return true
	})
	return out
}

// String renders a dialect-neutral form for logs and test failures.
func (c Condition) String() string {
	var b strings.Builder
	writeCondition(&b, c)
	return b.String()
}

func writeCondition(b *strings.Builder, c Condition) {
	switch c.Kind() {
	case Empty:
		b.WriteString("TRUE")
	case Leaf:
		switch c.Operator() {
		case OpIsNull, OpNotNull:
			fmt.Fprintf(b, "%s %s", c.Attribute(), c.Operator())
		case OpIn:
			fmt.Fprintf(b, "%s IN %v", c.Attribute(), c.Values())
		default:
			fmt.Fprintf(b, "%s %s %#v", c.Attribute(), c.Operator(), c.Value())
		}
	case Group:
		b.WriteByte('(')
		writeCondition(b, c.Left())
		fmt.Fprintf(b, " %s ", c.Operator())
		writeCondition(b, c.Right())
		b.WriteByte(')')
	case Negation:
		b.WriteString("NOT (")
		writeCondition(b, c.Left())
		b.WriteByte(')')
	}
}
