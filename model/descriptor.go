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
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/iancoleman/strcase"
	"github.com/jinzhu/inflection"

	"github.com/tomoncle/tabula/types"
)

// Attribute describes one persisted field of a model.
type Attribute struct {
	Name          string // column name
	Field         string // Go field name
	Type          reflect.Type
	Kind          Kind
	Nullable      bool
	Required      bool
	ReadOnly      bool
	PrimaryKey    bool
	AutoIncrement bool
	Unique        bool
	Default       string
	SQLType       string
	Index         []types.OrderDirection
	Rules         string

	index []int
}

// Value returns the attribute value held by instance, a struct pointer.
func (a *Attribute) Value(instance any) any {
	return a.FieldOf(reflect.ValueOf(instance)).Interface()
}

// FieldOf resolves the attribute field on v, a struct or pointer to struct.
func (a *Attribute) FieldOf(v reflect.Value) reflect.Value {
	v = reflect.Indirect(v)
	return v.FieldByIndex(a.index)
}

// IsZero reports whether instance holds the zero value for a.
func (a *Attribute) IsZero(instance any) bool {
	return a.FieldOf(reflect.ValueOf(instance)).IsZero()
}

// Descriptor is the introspected schema of a model type. It is built once per
// type and shared by the validator, the dialects and the repositories.
type Descriptor struct {
	Name       string
	Table      string
	Flavour    types.Flavour
	Type       reflect.Type
	PrimaryKey *Attribute
	Attributes []*Attribute

	byName map[string]*Attribute
}

// Attribute looks up an attribute by column name or Go field name.
func (d *Descriptor) Attribute(name string) (*Attribute, bool) {
	a, ok := d.byName[name]
	return a, ok
}

// Lookup is Attribute returning an UnknownAttributeError.
func (d *Descriptor) Lookup(name string) (*Attribute, error) {
	if a, ok := d.byName[name]; ok {
		return a, nil
	}
	return nil, &types.UnknownAttributeError{Model: d.Name, Attribute: name}
}

// Columns returns all column names in declaration order.
func (d *Descriptor) Columns() []string {
	cols := make([]string, len(d.Attributes))
	for i, a := range d.Attributes {
		cols[i] = a.Name
	}
	return cols
}

// New allocates a zero instance and returns a pointer to it.
func (d *Descriptor) New() any {
	return reflect.New(d.Type).Interface()
}

// Check verifies instance is a pointer to the described type.
func (d *Descriptor) Check(instance any) error {
	t := reflect.TypeOf(instance)
	if t == nil || t.Kind() != reflect.Ptr || t.Elem() != d.Type {
		return fmt.Errorf("model %s: expected *%s, got %T", d.Name, d.Type.Name(), instance)
	}
	if reflect.ValueOf(instance).IsNil() {
		return fmt.Errorf("model %s: nil instance", d.Name)
	}
	return nil
}

var descriptors sync.Map // reflect.Type -> *Descriptor

// Describe returns the cached descriptor of T.
func Describe[T any]() (*Descriptor, error) {
	return DescribeType(reflect.TypeOf((*T)(nil)).Elem())
}

// MustDescribe panics if T cannot be described.
func MustDescribe[T any]() *Descriptor {
	d, err := Describe[T]()
	if err != nil {
		panic(err)
	}
	return d
}

// DescribeType builds or returns the cached descriptor of t.
func DescribeType(t reflect.Type) (*Descriptor, error) {
	if t == nil {
		return nil, fmt.Errorf("model: nil type")
	}
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("model: %s is not a struct", t)
	}
	if d, ok := descriptors.Load(t); ok {
		return d.(*Descriptor), nil
	}
	d, err := buildDescriptor(t)
	if err != nil {
		return nil, err
	}
	actual, _ := descriptors.LoadOrStore(t, d)
	return actual.(*Descriptor), nil
}

func buildDescriptor(t reflect.Type) (*Descriptor, error) {
	d := &Descriptor{
		Name:   t.Name(),
		Type:   t,
		byName: map[string]*Attribute{},
	}
	if err := collectAttributes(d, t, nil); err != nil {
		return nil, err
	}
	if d.Table == "" {
		d.Table = inflection.Plural(snakeCase(t.Name()))
	}
	if len(d.Attributes) == 0 {
		return nil, fmt.Errorf("model %s: no persisted attributes", d.Name)
	}
	for _, a := range d.Attributes {
		if a.PrimaryKey {
			if d.PrimaryKey != nil {
				return nil, fmt.Errorf("model %s: composite primary keys are not supported", d.Name)
			}
			d.PrimaryKey = a
		}
	}
	if d.PrimaryKey == nil {
		return nil, fmt.Errorf("model %s: missing primary key, tag one field with bun:\",pk\"", d.Name)
	}
	return d, nil
}

func isBaseModel(f reflect.StructField) bool {
	return f.Type.Name() == "BaseModel" && strings.Contains(f.Type.PkgPath(), "uptrace/bun")
}

func collectAttributes(d *Descriptor, t reflect.Type, parent []int) error {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		index := append(append([]int(nil), parent...), i)

		if isBaseModel(f) {
			parseModelTags(d, f)
			continue
		}
		tag := f.Tag.Get("bun")
		if tag == "-" || strings.Contains(tag, "rel:") || strings.Contains(tag, "m2m:") {
			continue
		}
		if f.Anonymous && tag == "" {
			ft := f.Type
			if ft.Kind() == reflect.Ptr {
				ft = ft.Elem()
			}
			if ft.Kind() == reflect.Struct {
				if err := collectAttributes(d, ft, index); err != nil {
					return err
				}
			}
			continue
		}
		if !f.IsExported() {
			continue
		}

		a, err := parseAttribute(f, tag)
		if err != nil {
			return fmt.Errorf("model %s: %w", d.Name, err)
		}
		a.index = index
		if _, dup := d.byName[a.Name]; dup {
			return fmt.Errorf("model %s: duplicate column %q", d.Name, a.Name)
		}
		d.Attributes = append(d.Attributes, a)
		d.byName[a.Name] = a
		if a.Field != a.Name {
			d.byName[a.Field] = a
		}
	}
	return nil
}

func parseModelTags(d *Descriptor, f reflect.StructField) {
	for _, part := range strings.Split(f.Tag.Get("bun"), ",") {
		part = strings.TrimSpace(part)
		if strings.HasPrefix(part, "table:") {
			d.Table = strings.TrimPrefix(part, "table:")
		}
	}
	for _, part := range strings.Split(f.Tag.Get("tabula"), ",") {
		part = strings.TrimSpace(part)
		if strings.HasPrefix(part, "flavour:") {
			d.Flavour = types.ParseFlavour(strings.TrimPrefix(part, "flavour:"))
		}
	}
}

func parseAttribute(f reflect.StructField, tag string) (*Attribute, error) {
	parts := splitTag(tag)
	a := &Attribute{
		Name:  strings.TrimSpace(parts[0]),
		Field: f.Name,
		Type:  f.Type,
		Rules: strings.TrimSpace(f.Tag.Get("validate")),
	}
	if a.Name == "" {
		a.Name = snakeCase(f.Name)
	}
	a.Kind, a.Nullable = KindOfType(f.Type)
	if a.Kind == KindInvalid {
		return nil, fmt.Errorf("field %s: unsupported type %s", f.Name, f.Type)
	}

	for _, p := range parts[1:] {
		p = strings.TrimSpace(p)
		switch {
		case strings.HasPrefix(p, "type:"):
			a.SQLType = strings.TrimPrefix(p, "type:")
		case p == "notnull":
			a.Required = true
		case p == "nullzero":
			a.Nullable = true
		case strings.HasPrefix(p, "default:"):
			a.Default = strings.TrimPrefix(p, "default:")
		case p == "pk":
			a.PrimaryKey = true
		case p == "autoincrement" || p == "identity":
			a.AutoIncrement = true
		case p == "unique" || strings.HasPrefix(p, "unique:"):
			a.Unique = true
		}
	}
	for _, rule := range strings.Split(a.Rules, ",") {
		if strings.TrimSpace(rule) == "required" {
			a.Required = true
		}
	}

	for _, p := range strings.Split(f.Tag.Get("tabula"), ",") {
		p = strings.TrimSpace(p)
		switch {
		case p == "readonly":
			a.ReadOnly = true
		case strings.HasPrefix(p, "index:"):
			for _, dir := range strings.Split(strings.TrimPrefix(p, "index:"), "|") {
				od := types.ParseOrderDirection(dir)
				if !od.IsValid() {
					return nil, fmt.Errorf("field %s: invalid index direction %q", f.Name, dir)
				}
				a.Index = append(a.Index, od)
			}
		case p == "index":
			a.Index = append(a.Index, types.Asc)
		}
	}
	if a.PrimaryKey {
		a.Required = true
		a.Nullable = false
	}
	return a, nil
}

// splitTag splits on commas outside parentheses so that
// "type:numeric(12,2)" stays one option.
func splitTag(tag string) []string {
	var parts []string
	depth, start := 0, 0
	for i, r := range tag {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, tag[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, tag[start:])
}

// snakeCase converts a Go identifier to the column name bun would derive.
func snakeCase(s string) string {
	return strcase.ToSnake(s)
}
