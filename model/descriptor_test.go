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

package model

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"github.com/tomoncle/tabula/types"
)

type queryUser struct {
	bun.BaseModel `bun:"table:query_users" tabula:"flavour:sqlite"`
	Record        `bun:"-"`

	ID   int64  `bun:"id,pk,autoincrement"`
	Age  int    `bun:"age" validate:"required,min=18" tabula:"index:dsc|asc"`
	Name string `bun:"name" validate:"required,min=5"`
	Sex  string `bun:"sex" validate:"required,oneof=M F" tabula:"readonly"`
}

type auditFields struct {
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

type account struct {
	bun.BaseModel

	UUID     uuid.UUID `bun:",pk"`
	Email    string    `bun:",unique"`
	Nickname *string
	Balance  float64 `bun:"balance,type:numeric(12,2)"`
	auditFields
	secret string
}

func TestDescribe_QueryUser(t *testing.T) {
	d, err := Describe[queryUser]()
	require.NoError(t, err)

	assert.Equal(t, "queryUser", d.Name)
	assert.Equal(t, "query_users", d.Table)
	assert.Equal(t, types.SQLite, d.Flavour)
	assert.Equal(t, []string{"id", "age", "name", "sex"}, d.Columns())
	require.NotNil(t, d.PrimaryKey)
	assert.Equal(t, "id", d.PrimaryKey.Name)
	assert.True(t, d.PrimaryKey.AutoIncrement)

	age, ok := d.Attribute("age")
	require.True(t, ok)
	assert.Equal(t, Integer, age.Kind)
	assert.True(t, age.Required)
	assert.Equal(t, []types.OrderDirection{types.Desc, types.Asc}, age.Index)

	sex, ok := d.Attribute("Sex")
	require.True(t, ok)
	assert.True(t, sex.ReadOnly)
	assert.Equal(t, "required,oneof=M F", sex.Rules)

	again, err := Describe[*queryUser]()
	require.NoError(t, err)
	assert.Same(t, d, again)
}

func TestDescribe_DefaultsAndEmbedding(t *testing.T) {
	d, err := Describe[account]()
	require.NoError(t, err)

	assert.Equal(t, "accounts", d.Table)
	assert.Equal(t, types.FlavourUnknown, d.Flavour)
	assert.Equal(t, []string{"uuid", "email", "nickname", "balance", "created_at"}, d.Columns())
	assert.Equal(t, UUID, d.PrimaryKey.Kind)

	email, _ := d.Attribute("email")
	assert.True(t, email.Unique)
	nick, _ := d.Attribute("nickname")
	assert.True(t, nick.Nullable)
	assert.Equal(t, String, nick.Kind)
	bal, _ := d.Attribute("balance")
	assert.Equal(t, "numeric(12,2)", bal.SQLType)
	created, _ := d.Attribute("created_at")
	assert.Equal(t, Time, created.Kind)
	assert.Equal(t, "current_timestamp", created.Default)

	_, err = d.Lookup("secret")
	assert.True(t, types.IsUnknownAttribute(err))
}

func TestDescribe_Errors(t *testing.T) {
	type noPK struct {
		Name string `bun:"name"`
	}
	type twoPK struct {
		A int `bun:"a,pk"`
		B int `bun:"b,pk"`
	}
	type badIndex struct {
		ID int `bun:"id,pk" tabula:"index:up"`
	}
	_, err := Describe[noPK]()
	assert.ErrorContains(t, err, "missing primary key")
	_, err = Describe[twoPK]()
	assert.ErrorContains(t, err, "composite")
	_, err = Describe[badIndex]()
	assert.ErrorContains(t, err, "invalid index direction")
	_, err = DescribeType(nil)
	assert.Error(t, err)
}

func TestKindOf(t *testing.T) {
	s := "x"
	tests := []struct {
		v    any
		want Kind
	}{
		{nil, KindInvalid},
		{1, Integer},
		{int8(1), Integer},
		{uint64(1), Integer},
		{1.5, Float},
		{"a", String},
		{&s, String},
		{true, Bool},
		{time.Now(), Time},
		{uuid.New(), UUID},
		{[]byte("x"), Bytes},
		{types.JsonObject{}, JSON},
		{map[string]any{}, JSON},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, KindOf(tt.v), "%T", tt.v)
	}
}

func TestAttributeValueAndEqual(t *testing.T) {
	d := MustDescribe[queryUser]()
	a := &queryUser{ID: 1, Age: 20, Name: "alice", Sex: "F"}
	b := &queryUser{ID: 2, Age: 20, Name: "alice", Sex: "F"}

	age, _ := d.Attribute("age")
	assert.Equal(t, 20, age.Value(a))
	assert.False(t, age.IsZero(a))

	assert.False(t, Equal(d, a, b))
	assert.True(t, Equal(d, a, b, "id"))
	b.Name = "bobby"
	assert.False(t, Equal(d, a, b, "id"))
}

func TestSnakeCase(t *testing.T) {
	for in, want := range map[string]string{
		"ID":         "id",
		"UserID":     "user_id",
		"QueryUser":  "query_user",
		"HTTPServer": "http_server",
		"name":       "name",
	} {
		assert.Equal(t, want, snakeCase(in))
	}
}

func TestCheck(t *testing.T) {
	d := MustDescribe[queryUser]()
	assert.NoError(t, d.Check(&queryUser{}))
	assert.Error(t, d.Check(queryUser{}))
	assert.Error(t, d.Check((*queryUser)(nil)))
	assert.Error(t, d.Check(&account{}))
	assert.IsType(t, &queryUser{}, d.New())
}
