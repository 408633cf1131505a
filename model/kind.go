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
	"database/sql"
	"encoding/json"
	"reflect"
	"time"

	"github.com/google/uuid"
)

// Kind is the declared value kind of an attribute. Literals compared with
// or assigned to an attribute must have the same Kind.
type Kind int

const (
	KindInvalid Kind = iota
	Integer
	Float
	String
	Bool
	Time
	JSON
	UUID
	Bytes
)

func (k Kind) String() string {
	switch k {
	case Integer:
		return "integer"
	case Float:
		return "float"
	case String:
		return "string"
	case Bool:
		return "bool"
	case Time:
		return "time"
	case JSON:
		return "json"
	case UUID:
		return "uuid"
	case Bytes:
		return "bytes"
	default:
		return "invalid"
	}
}

var (
	timeType       = reflect.TypeOf(time.Time{})
	uuidType       = reflect.TypeOf(uuid.UUID{})
	bytesType      = reflect.TypeOf([]byte(nil))
	rawJSONType    = reflect.TypeOf(json.RawMessage(nil))
	nullStringType = reflect.TypeOf(sql.NullString{})
	nullInt64Type  = reflect.TypeOf(sql.NullInt64{})
	nullInt32Type  = reflect.TypeOf(sql.NullInt32{})
	nullFloatType  = reflect.TypeOf(sql.NullFloat64{})
	nullBoolType   = reflect.TypeOf(sql.NullBool{})
	nullTimeType   = reflect.TypeOf(sql.NullTime{})
)

// KindOfType maps a Go type to its attribute kind. nullable is true for
// pointers and the sql.Null* wrappers.
func KindOfType(t reflect.Type) (kind Kind, nullable bool) {
	if t.Kind() == reflect.Ptr {
		k, _ := KindOfType(t.Elem())
		return k, true
	}
	switch t {
	case timeType:
		return Time, false
	case uuidType:
		return UUID, false
	case bytesType:
		return Bytes, false
	case rawJSONType:
		return JSON, false
	case nullStringType:
		return String, true
	case nullInt64Type, nullInt32Type:
		return Integer, true
	case nullFloatType:
		return Float, true
	case nullBoolType:
		return Bool, true
	case nullTimeType:
		return Time, true
	}
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return Integer, false
	case reflect.Float32, reflect.Float64:
		return Float, false
	case reflect.String:
		return String, false
	case reflect.Bool:
		return Bool, false
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		return JSON, t.Kind() == reflect.Map || t.Kind() == reflect.Slice
	default:
		return KindInvalid, false
	}
}

// KindOf returns the kind of a literal. nil reports KindInvalid.
func KindOf(v any) Kind {
	if v == nil {
		return KindInvalid
	}
	k, _ := KindOfType(reflect.TypeOf(v))
	return k
}
