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
	"reflect"
	"time"

	"github.com/tomoncle/tabula/types"
)

// Record can be embedded in a model to receive the violations found while
// hydrating it in lenient mode.
//
//	type User struct {
//		bun.BaseModel `bun:"table:users"`
//		model.Record  `bun:"-"`
//		ID int64 `bun:"id,pk,autoincrement"`
//	}
type Record struct {
	violations []types.Violation
}

func (r *Record) HasErrors() bool                   { return len(r.violations) > 0 }
func (r *Record) Violations() []types.Violation     { return r.violations }
func (r *Record) SetViolations(v []types.Violation) { r.violations = v }

// ViolationHolder is implemented by models embedding Record.
type ViolationHolder interface {
	HasErrors() bool
	Violations() []types.Violation
	SetViolations([]types.Violation)
}

// Equal compares the attributes of two instances of the same model,
// skipping the named columns.
func Equal(d *Descriptor, a, b any, exclude ...string) bool {
	skip := make(map[string]bool, len(exclude))
	for _, e := range exclude {
		if attr, ok := d.Attribute(e); ok {
			skip[attr.Name] = true
		}
	}
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	for _, attr := range d.Attributes {
		if skip[attr.Name] {
			continue
		}
		fa, fb := attr.FieldOf(va).Interface(), attr.FieldOf(vb).Interface()
		if ta, ok := fa.(time.Time); ok {
			if tb, ok := fb.(time.Time); !ok || !ta.Equal(tb) {
				return false
			}
			continue
		}
		if !reflect.DeepEqual(fa, fb) {
			return false
		}
	}
	return true
}
