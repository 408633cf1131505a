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
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/tomoncle/tabula/types"
)

// Validator checks instances against their declared constraints.
type Validator interface {
	// Validate returns every violated constraint of instance.
	Validate(instance any) []types.Violation
	// ValidateAttribute checks a single value against the rules of a.
	ValidateAttribute(a *Attribute, value any) []types.Violation
	// HasErrors reports whether Validate would return any violation.
	HasErrors(instance any) bool
}

type tagValidator struct {
	v *validator.Validate
}

var _ Validator = (*tagValidator)(nil)

// NewValidator returns a Validator driven by `validate` struct tags.
// Violations name attributes by column.
func NewValidator() Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(columnName)
	return &tagValidator{v: v}
}

func columnName(f reflect.StructField) string {
	name := strings.TrimSpace(strings.Split(f.Tag.Get("bun"), ",")[0])
	if name == "-" {
		return ""
	}
	if name == "" {
		return snakeCase(f.Name)
	}
	return name
}

func (t *tagValidator) Validate(instance any) []types.Violation {
	return violations(t.v.Struct(instance), "")
}

func (t *tagValidator) ValidateAttribute(a *Attribute, value any) []types.Violation {
	if a.Rules == "" {
		return nil
	}
	return violations(t.v.Var(value, a.Rules), a.Name)
}

func (t *tagValidator) HasErrors(instance any) bool {
	return t.v.Struct(instance) != nil
}

func violations(err error, attribute string) []types.Violation {
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return []types.Violation{{Attribute: attribute, Constraint: "invalid", Message: err.Error()}}
	}
	out := make([]types.Violation, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		name := fe.Field()
		if attribute != "" {
			name = attribute
		}
		out = append(out, types.Violation{
			Attribute:  name,
			Constraint: fe.Tag(),
			Param:      fe.Param(),
			Message:    fe.Error(),
		})
	}
	return out
}

var defaultValidator = NewValidator()

// DefaultValidator returns the shared tag-driven validator.
func DefaultValidator() Validator { return defaultValidator }
