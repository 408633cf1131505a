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
	"database/sql"
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/tomoncle/tabula/model"
	"github.com/tomoncle/tabula/types"
)

// HydrationMode selects what happens when a hydrated row violates the
// model's constraints.
type HydrationMode int

const (
	// Lenient attaches violations to the instance and keeps going.
	Lenient HydrationMode = iota
	// Strict fails the whole read with a ValidationError.
	Strict
)

func (m HydrationMode) String() string {
	if m == Strict {
		return "strict"
	}
	return "lenient"
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Hydrate maps every row of res to a new *T. Columns that are not attributes
// of d are ignored, and a repeated column is read once. A row that does not
// carry every attribute is partial: only its projected attributes are set and
// validated.
func Hydrate[T any](res *Result, d *model.Descriptor, mode HydrationMode, v model.Validator) ([]*T, error) {
	if reflect.TypeOf((*T)(nil)).Elem() != d.Type {
		return nil, fmt.Errorf("hydrate: descriptor %s does not describe %T", d.Name, *new(T))
	}
	if v == nil {
		v = model.DefaultValidator()
	}
	attrs := make([]*model.Attribute, len(res.Columns))
	seen := make(map[*model.Attribute]bool, len(res.Columns))
	for i, col := range res.Columns {
		if a, ok := d.Attribute(col); ok && !seen[a] {
			attrs[i] = a
			seen[a] = true
		}
	}
	partial := len(seen) < len(d.Attributes)

	out := make([]*T, 0, len(res.Rows))
	for idx, row := range res.Rows {
		inst := new(T)
		rv := reflect.ValueOf(inst)
		var violations []types.Violation
		for i, a := range attrs {
			if a == nil || i >= len(row) {
				continue
			}
			if err := assign(a.FieldOf(rv), row[i]); err != nil {
				violations = append(violations, types.Violation{
					Attribute:  a.Name,
					Constraint: "type",
					Param:      a.Kind.String(),
					Message:    err.Error(),
				})
			}
		}
		if len(violations) == 0 {
			if partial {
				for _, a := range attrs {
					if a != nil {
						violations = append(violations, v.ValidateAttribute(a, a.Value(inst))...)
					}
				}
			} else {
				violations = v.Validate(inst)
			}
		}
		if len(violations) > 0 {
			if mode == Strict {
				return nil, types.NewValidationError(d.Name, idx, violations)
			}
			if holder, ok := any(inst).(model.ViolationHolder); ok {
				holder.SetViolations(violations)
			} else {
				GetLogger().Warn("hydrated row violates constraints", "model", d.Name, "row", idx, "violations", violations)
			}
		}
		out = append(out, inst)
	}
	return out, nil
}

// RowMaps returns one map per row keyed exactly by the returned columns.
// Byte slices are converted to strings.
func RowMaps(res *Result) []map[string]any {
	out := make([]map[string]any, len(res.Rows))
	for i, row := range res.Rows {
		m := make(map[string]any, len(res.Columns))
		for j, col := range res.Columns {
			if j >= len(row) {
				break
			}
			if b, ok := row[j].([]byte); ok {
				m[col] = string(b)
			} else {
				m[col] = row[j]
			}
		}
		out[i] = m
	}
	return out
}

// ScalarInt reads the first column of the single row of res as an integer,
// as returned by COUNT(*).
func ScalarInt(res *Result) (int64, error) {
	if len(res.Rows) != 1 || len(res.Rows[0]) == 0 {
		return 0, fmt.Errorf("scalar: expected one row, got %d", len(res.Rows))
	}
	return asInt(res.Rows[0][0])
}

// assign stores a driver value into dst, converting between the
// representations drivers use for the same kind.
func assign(dst reflect.Value, v any) error {
	if v == nil {
		dst.Set(reflect.Zero(dst.Type()))
		return nil
	}
	if dst.CanAddr() {
		if sc, ok := dst.Addr().Interface().(sql.Scanner); ok {
			return sc.Scan(v)
		}
	}
	if dst.Kind() == reflect.Ptr {
		elem := reflect.New(dst.Type().Elem())
		if err := assign(elem.Elem(), v); err != nil {
			return err
		}
		dst.Set(elem)
		return nil
	}
	src := reflect.ValueOf(v)
	if src.Type().AssignableTo(dst.Type()) {
		dst.Set(src)
		return nil
	}

	switch dst.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := asInt(v)
		if err != nil {
			return err
		}
		if dst.OverflowInt(n) {
			return fmt.Errorf("value %d overflows %s", n, dst.Type())
		}
		dst.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := asInt(v)
		if err != nil {
			return err
		}
		if n < 0 || dst.OverflowUint(uint64(n)) {
			return fmt.Errorf("value %d overflows %s", n, dst.Type())
		}
		dst.SetUint(uint64(n))
	case reflect.Float32, reflect.Float64:
		f, err := asFloat(v)
		if err != nil {
			return err
		}
		dst.SetFloat(f)
	case reflect.String:
		switch x := v.(type) {
		case string:
			dst.SetString(x)
		case []byte:
			dst.SetString(string(x))
		default:
			return fmt.Errorf("cannot use %T as %s", v, dst.Type())
		}
	case reflect.Bool:
		b, err := asBool(v)
		if err != nil {
			return err
		}
		dst.SetBool(b)
	default:
		return assignComposite(dst, v)
	}
	return nil
}

func assignComposite(dst reflect.Value, v any) error {
	if dst.Type() == reflect.TypeOf(time.Time{}) {
		t, err := asTime(v)
		if err != nil {
			return err
		}
		dst.Set(reflect.ValueOf(t))
		return nil
	}
	var raw []byte
	switch x := v.(type) {
	case []byte:
		raw = x
	case string:
		raw = []byte(x)
	default:
		return fmt.Errorf("cannot use %T as %s", v, dst.Type())
	}
	if dst.Kind() == reflect.Slice && dst.Type().Elem().Kind() == reflect.Uint8 {
		dst.SetBytes(append([]byte(nil), raw...))
		return nil
	}
	switch dst.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		return json.Unmarshal(raw, dst.Addr().Interface())
	}
	return fmt.Errorf("cannot use %T as %s", v, dst.Type())
}

func asInt(v any) (int64, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case uint64:
		return int64(x), nil
	case []byte:
		return strconv.ParseInt(string(x), 10, 64)
	case string:
		return strconv.ParseInt(x, 10, 64)
	}
	return 0, fmt.Errorf("cannot use %T as integer", v)
}

func asFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case []byte:
		return strconv.ParseFloat(string(x), 64)
	case string:
		return strconv.ParseFloat(x, 64)
	}
	return 0, fmt.Errorf("cannot use %T as float", v)
}

func asBool(v any) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case int64:
		return x != 0, nil
	case []byte:
		return strconv.ParseBool(string(x))
	case string:
		return strconv.ParseBool(x)
	}
	return false, fmt.Errorf("cannot use %T as bool", v)
}

func asTime(v any) (time.Time, error) {
	var s string
	switch x := v.(type) {
	case time.Time:
		return x, nil
	case []byte:
		s = string(x)
	case string:
		s = x
	default:
		return time.Time{}, fmt.Errorf("cannot use %T as time", v)
	}
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse %q as time", s)
}
