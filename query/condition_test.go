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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttribute_Comparators(t *testing.T) {
	tests := []struct {
		name  string
		cond  Condition
		op    Operator
		value any
	}{
		{"eq", Attribute("age").Eq(20), OpEq, 20},
		{"neq", Attribute("age").Neq(20), OpNeq, 20},
		{"gt", Attribute("age").Gt(20), OpGt, 20},
		{"gte", Attribute("age").Gte(20), OpGte, 20},
		{"lt", Attribute("age").Lt(20), OpLt, 20},
		{"lte", Attribute("age").Lte(20), OpLte, 20},
		{"like", Attribute("name").Like("jo%"), OpLike, "jo%"},
		{"ilike", Attribute("name").ILike("JO%"), OpILike, "JO%"},
		{"regexp", Attribute("name").Regexp("^j"), OpRegexp, "^j"},
		{"eq nil", Attribute("name").Eq(nil), OpIsNull, nil},
		{"neq nil", Attribute("name").Neq(nil), OpNotNull, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, Leaf, tt.cond.Kind())
			assert.Equal(t, tt.op, tt.cond.Operator())
			assert.Equal(t, tt.value, tt.cond.Value())
		})
	}
}

func TestAttribute_InCopiesValues(t *testing.T) {
	values := []any{1, 2, 3}
	c := Attribute("age").In(values...)
	values[0] = 99

	assert.Equal(t, []any{1, 2, 3}, c.Values())
	got := c.Values()
	got[1] = 42
	assert.Equal(t, []any{1, 2, 3}, c.Values())
}

func TestCondition_CombinatorsDoNotMutate(t *testing.T) {
	age := Attribute("age").Eq(20)
	male := Attribute("sex").Eq("M")

	and := age.And(male)
	or := age.Or(male)

	assert.Equal(t, Leaf, age.Kind())
	assert.Equal(t, Group, and.Kind())
	assert.Equal(t, OpAnd, and.Operator())
	assert.Equal(t, OpOr, or.Operator())
	assert.Equal(t, "age", and.Left().Attribute())
	assert.Equal(t, "sex", and.Right().Attribute())
	assert.Equal(t, "(age = 20 AND sex = \"M\")", and.String())
	assert.Equal(t, "(age = 20 OR sex = \"M\")", or.String())
}

func TestCondition_EmptyIsIdentity(t *testing.T) {
	var empty Condition
	c := Attribute("age").Eq(1)

	assert.True(t, empty.IsEmpty())
	assert.Equal(t, c, empty.And(c))
	assert.Equal(t, c, c.Or(empty))
	assert.True(t, Not(empty).IsEmpty())
	assert.True(t, And().IsEmpty())
}

func TestCondition_Fold(t *testing.T) {
	a, b, c := Attribute("a").Eq(1), Attribute("b").Eq(2), Attribute("c").Eq(3)
	assert.Equal(t, a.And(b).And(c).String(), And(a, b, c).String())
	assert.Equal(t, a.Or(b).Or(c).String(), Or(a, b, c).String())
}

func TestCondition_NotAndWalk(t *testing.T) {
	c := Attribute("age").Eq(20).Or(Attribute("age").Eq(19)).Not()
	require.Equal(t, Negation, c.Kind())
	assert.Equal(t, "NOT ((age = 20 OR age = 19))", c.String())
	assert.Equal(t, []string{"age", "age"}, c.Attributes())

	var visited int
	c.Walk(func(Condition) bool {
		visited++
		return true
	})
	assert.Equal(t, 4, visited)
}
