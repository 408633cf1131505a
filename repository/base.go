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

package repository

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/tomoncle/tabula/database"
	"github.com/tomoncle/tabula/dialect"
	"github.com/tomoncle/tabula/model"
	"github.com/tomoncle/tabula/observer"
	"github.com/tomoncle/tabula/query"
	"github.com/tomoncle/tabula/types"
)

// Option customizes a repository.
type Option func(*options)

type options struct {
	validator model.Validator
	mode      database.HydrationMode
	logger    database.Logger
	registry  *observer.Registry
}

// WithValidator replaces the default tag-driven validator.
func WithValidator(v model.Validator) Option {
	return func(o *options) {
		if v != nil {
			o.validator = v
		}
	}
}

// WithHydration selects how rows violating the model's constraints are
// handled on read.
func WithHydration(mode database.HydrationMode) Option {
	return func(o *options) { o.mode = mode }
}

// Strict is WithHydration(database.Strict).
func Strict() Option { return WithHydration(database.Strict) }

// WithLogger replaces the adapter's logger.
func WithLogger(l database.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithRegistry shares an observer registry between repositories.
func WithRegistry(r *observer.Registry) Option {
	return func(o *options) {
		if r != nil {
			o.registry = r
		}
	}
}

type baseRepositoryImpl[T any] struct {
	adapter   *database.Adapter
	d         *model.Descriptor
	validator model.Validator
	mode      database.HydrationMode
	logger    database.Logger
	registry  *observer.Registry
}

var _ Repository[struct{}] = (*baseRepositoryImpl[struct{}])(nil)

// New returns the repository of T backed by adapter. The descriptor of T is
// resolved once. A model that declares a flavour must match the adapter's.
func New[T any](adapter *database.Adapter, opts ...Option) (Repository[T], error) {
	return newBaseRepositoryImpl[T](adapter, opts...)
}

// MustNew is New panicking on error.
func MustNew[T any](adapter *database.Adapter, opts ...Option) Repository[T] {
	r, err := New[T](adapter, opts...)
	if err != nil {
		panic(err)
	}
	return r
}

func newBaseRepositoryImpl[T any](adapter *database.Adapter, opts ...Option) (*baseRepositoryImpl[T], error) {
	if adapter == nil {
		return nil, fmt.Errorf("repository: nil adapter")
	}
	d, err := model.Describe[T]()
	if err != nil {
		return nil, err
	}
	if d.Flavour != types.FlavourUnknown && d.Flavour != adapter.Flavour() {
		return nil, &types.UnsupportedOperationError{
			Flavour:   adapter.Flavour(),
			Operation: fmt.Sprintf("model %s declared for %s", d.Name, d.Flavour),
		}
	}
	o := &options{
		validator: model.DefaultValidator(),
		mode:      database.Lenient,
		logger:    adapter.Logger(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.registry == nil {
		o.registry = observer.NewRegistry()
	}
	return &baseRepositoryImpl[T]{
		adapter:   adapter,
		d:         d,
		validator: o.validator,
		mode:      o.mode,
		logger:    o.logger,
		registry:  o.registry,
	}, nil
}

func (r *baseRepositoryImpl[T]) Descriptor() *model.Descriptor { return r.d }
func (r *baseRepositoryImpl[T]) Dialect() dialect.Dialect      { return r.adapter.Dialect() }
func (r *baseRepositoryImpl[T]) Adapter() *database.Adapter    { return r.adapter }
func (r *baseRepositoryImpl[T]) Registry() *observer.Registry  { return r.registry }

func (r *baseRepositoryImpl[T]) Observe(o observer.Observer) error  { return r.registry.Observe(o) }
func (r *baseRepositoryImpl[T]) UnObserve(o observer.Observer) bool { return r.registry.UnObserve(o) }

func (r *baseRepositoryImpl[T]) Select(attributes ...string) Query[T] {
	return Query[T]{repo: r, spec: query.NewSpec(r.d).Select(attributes...)}
}

func (r *baseRepositoryImpl[T]) validate(entity *T, index int) error {
	if entity == nil {
		return fmt.Errorf("repository: nil %s", r.d.Name)
	}
	if v := r.validator.Validate(entity); len(v) > 0 {
		return types.NewValidationError(r.d.Name, index, v)
	}
	return nil
}

func (r *baseRepositoryImpl[T]) pkEq(id any) query.Condition {
	return query.Attribute(r.d.PrimaryKey.Name).Eq(id)
}

func (r *baseRepositoryImpl[T]) idOf(entity *T) any {
	return r.d.PrimaryKey.Value(entity)
}

func (r *baseRepositoryImpl[T]) notify(ctx context.Context, op observer.Operation, ids ...any) {
	if r.registry.Len() == 0 {
		return
	}
	event := observer.NewEvent(r.d.Table, op, ids...)
	if failed := r.registry.Dispatch(ctx, event); failed > 0 {
		r.logger.Warn("observers failed", "event", event.String(), "failed", failed)
	}
}

// insertSets binds every attribute of entity except a zero autoincrement key
// and zero attributes that have a column default. Zero nullable values are
// stored as NULL.
func (r *baseRepositoryImpl[T]) insertSets(entity *T) []query.Assignment {
	sets := make([]query.Assignment, 0, len(r.d.Attributes))
	for _, a := range r.d.Attributes {
		zero := a.IsZero(entity)
		switch {
		case zero && a.PrimaryKey && a.AutoIncrement:
			continue
		case zero && a.Default != "":
			continue
		case zero && a.Nullable:
			sets = append(sets, query.Assignment{Attribute: a.Name})
		default:
			sets = append(sets, query.Assignment{Attribute: a.Name, Value: a.Value(entity)})
		}
	}
	return sets
}

func (r *baseRepositoryImpl[T]) updateSets(entity *T) []query.Assignment {
	sets := make([]query.Assignment, 0, len(r.d.Attributes))
	for _, a := range r.d.Attributes {
		if a.PrimaryKey || a.ReadOnly {
			continue
		}
		if a.Nullable && a.IsZero(entity) {
			sets = append(sets, query.Assignment{Attribute: a.Name})
			continue
		}
		sets = append(sets, query.Assignment{Attribute: a.Name, Value: a.Value(entity)})
	}
	return sets
}

func (r *baseRepositoryImpl[T]) hydrate(res *database.Result) ([]*T, error) {
	return database.Hydrate[T](res, r.d, r.mode, r.validator)
}

func (r *baseRepositoryImpl[T]) read(ctx context.Context, ex database.Executor, id any) (*T, error) {
	if id == nil {
		return nil, types.NewNotFoundError(r.d.Name, nil, nil)
	}
	stmt, err := ex.Dialect().RenderSelect(query.NewSpec(r.d).Where(r.pkEq(id)).Limit(1))
	if err != nil {
		return nil, err
	}
	res, err := ex.Query(ctx, stmt)
	if err != nil {
		return nil, err
	}
	items, err := r.hydrate(res)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, types.NewNotFoundError(r.d.Name, id, nil)
	}
	return items[0], nil
}

// matchingIDs returns the primary keys of the rows matching cond.
func (r *baseRepositoryImpl[T]) matchingIDs(ctx context.Context, ex database.Executor, cond query.Condition) ([]any, error) {
	pk := r.d.PrimaryKey.Name
	stmt, err := ex.Dialect().RenderSelect(query.NewSpec(r.d).Select(pk).Where(cond).OrderBy(query.Asc(pk)))
	if err != nil {
		return nil, err
	}
	res, err := ex.Query(ctx, stmt)
	if err != nil {
		return nil, err
	}
	items, err := database.Hydrate[T](res, r.d, database.Lenient, r.validator)
	if err != nil {
		return nil, err
	}
	ids := make([]any, len(items))
	for i, item := range items {
		ids[i] = r.idOf(item)
	}
	return ids, nil
}

func (r *baseRepositoryImpl[T]) insert(ctx context.Context, ex database.Executor, entity *T) (*T, error) {
	stmt, err := ex.Dialect().RenderInsert(r.d, r.insertSets(entity))
	if err != nil {
		return nil, err
	}
	if stmt.Shape.Returning {
		res, err := ex.Query(ctx, stmt)
		if err != nil {
			return nil, err
		}
		items, err := r.hydrate(res)
		if err != nil {
			return nil, err
		}
		if len(items) != 1 {
			return nil, fmt.Errorf("insert into %s returned %d rows", r.d.Table, len(items))
		}
		return items[0], nil
	}

	res, err := ex.Exec(ctx, stmt)
	if err != nil {
		return nil, err
	}
	pk := r.d.PrimaryKey
	id := pk.Value(entity)
	if pk.AutoIncrement && pk.IsZero(entity) {
		last, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("insert into %s: %w", r.d.Table, err)
		}
		id = last
	}
	return r.read(ctx, ex, id)
}

func (r *baseRepositoryImpl[T]) Create(ctx context.Context, entity *T) (*T, error) {
	if err := r.validate(entity, -1); err != nil {
		return nil, err
	}
	var created *T
	err := r.adapter.Tx(ctx, func(ex database.Executor) error {
		var err error
		created, err = r.insert(ctx, ex, entity)
		return err
	})
	if err != nil {
		return nil, err
	}
	r.logger.Debug("created", "model", r.d.Name, "id", r.idOf(created))
	r.notify(ctx, observer.Create, r.idOf(created))
	return created, nil
}

func (r *baseRepositoryImpl[T]) CreateAll(ctx context.Context, entities ...*T) ([]*T, error) {
	if len(entities) == 0 {
		return []*T{}, nil
	}
	for i, e := range entities {
		if err := r.validate(e, i); err != nil {
			return nil, err
		}
	}
	created := make([]*T, 0, len(entities))
	err := r.adapter.Tx(ctx, func(ex database.Executor) error {
		for i, e := range entities {
			c, err := r.insert(ctx, ex, e)
			if err != nil {
				return fmt.Errorf("%s[%d]: %w", r.d.Name, i, err)
			}
			created = append(created, c)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	ids := make([]any, len(created))
	for i, c := range created {
		ids[i] = r.idOf(c)
	}
	r.logger.Debug("created batch", "model", r.d.Name, "count", len(created))
	r.notify(ctx, observer.Create, ids...)
	return created, nil
}

func (r *baseRepositoryImpl[T]) Read(ctx context.Context, id any) (*T, error) {
	return r.read(ctx, r.adapter, id)
}

// readonlyViolations lists read-only attributes whose value in entity differs
// from the stored row.
func (r *baseRepositoryImpl[T]) readonlyViolations(stored, entity *T) []types.Violation {
	var out []types.Violation
	for _, a := range r.d.Attributes {
		if !a.ReadOnly || a.PrimaryKey {
			continue
		}
		if !sameValue(a.Value(stored), a.Value(entity)) {
			out = append(out, types.Violation{Attribute: a.Name, Constraint: "readonly"})
		}
	}
	return out
}

func sameValue(x, y any) bool {
	if tx, ok := x.(time.Time); ok {
		ty, ok := y.(time.Time)
		return ok && tx.Equal(ty)
	}
	return reflect.DeepEqual(x, y)
}

func (r *baseRepositoryImpl[T]) update(ctx context.Context, ex database.Executor, entity *T, index int) (*T, error) {
	id := r.idOf(entity)
	stored, err := r.read(ctx, ex, id)
	if err != nil {
		return nil, err
	}
	if v := r.readonlyViolations(stored, entity); len(v) > 0 {
		return nil, types.NewValidationError(r.d.Name, index, v)
	}
	sets := r.updateSets(entity)
	if len(sets) == 0 {
		return stored, nil
	}
	stmt, err := ex.Dialect().RenderUpdate(r.d, sets, r.pkEq(id))
	if err != nil {
		return nil, err
	}
	if _, err := ex.Exec(ctx, stmt); err != nil {
		return nil, err
	}
	return r.read(ctx, ex, id)
}

func (r *baseRepositoryImpl[T]) Update(ctx context.Context, entity *T) (*T, error) {
	if err := r.validate(entity, -1); err != nil {
		return nil, err
	}
	var updated *T
	err := r.adapter.Tx(ctx, func(ex database.Executor) error {
		var err error
		updated, err = r.update(ctx, ex, entity, -1)
		return err
	})
	if err != nil {
		return nil, err
	}
	r.notify(ctx, observer.Update, r.idOf(updated))
	return updated, nil
}

func (r *baseRepositoryImpl[T]) UpdateAll(ctx context.Context, entities ...*T) ([]*T, error) {
	if len(entities) == 0 {
		return []*T{}, nil
	}
	for i, e := range entities {
		if err := r.validate(e, i); err != nil {
			return nil, err
		}
	}
	updated := make([]*T, 0, len(entities))
	err := r.adapter.Tx(ctx, func(ex database.Executor) error {
		for i, e := range entities {
			u, err := r.update(ctx, ex, e, i)
			if err != nil {
				return fmt.Errorf("%s[%d]: %w", r.d.Name, i, err)
			}
			updated = append(updated, u)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	ids := make([]any, len(updated))
	for i, u := range updated {
		ids[i] = r.idOf(u)
	}
	r.notify(ctx, observer.Update, ids...)
	return updated, nil
}

// checkChanges validates each assigned value against the rules of its
// attribute. Keys and read-only attributes cannot be assigned.
func (r *baseRepositoryImpl[T]) checkChanges(changes query.Changes) ([]query.Assignment, error) {
	if len(changes) == 0 {
		return nil, fmt.Errorf("repository: update of %s without changes", r.d.Name)
	}
	sets := changes.Assignments()
	var violations []types.Violation
	for i, s := range sets {
		a, err := r.d.Lookup(s.Attribute)
		if err != nil {
			return nil, err
		}
		sets[i].Attribute = a.Name
		if a.PrimaryKey || a.ReadOnly {
			violations = append(violations, types.Violation{Attribute: a.Name, Constraint: "readonly"})
			continue
		}
		if s.Value == nil {
			continue
		}
		if k := model.KindOf(s.Value); k != a.Kind {
			return nil, &types.TypeMismatchError{Attribute: a.Name, Expected: a.Kind.String(), Actual: k.String()}
		}
		violations = append(violations, r.validator.ValidateAttribute(a, s.Value)...)
	}
	if len(violations) > 0 {
		return nil, types.NewValidationError(r.d.Name, -1, violations)
	}
	return sets, nil
}

func (r *baseRepositoryImpl[T]) UpdateWhere(ctx context.Context, cond query.Condition, changes query.Changes) (int64, error) {
	sets, err := r.checkChanges(changes)
	if err != nil {
		return 0, err
	}
	var ids []any
	err = r.adapter.Tx(ctx, func(ex database.Executor) error {
		var err error
		if ids, err = r.matchingIDs(ctx, ex, cond); err != nil || len(ids) == 0 {
			return err
		}
		stmt, err := ex.Dialect().RenderUpdate(r.d, sets, cond)
		if err != nil {
			return err
		}
		_, err = ex.Exec(ctx, stmt)
		return err
	})
	if err != nil {
		return 0, err
	}
	if len(ids) > 0 {
		r.notify(ctx, observer.Update, ids...)
	}
	return int64(len(ids)), nil
}

func (r *baseRepositoryImpl[T]) Delete(ctx context.Context, id any) (*T, error) {
	var deleted *T
	err := r.adapter.Tx(ctx, func(ex database.Executor) error {
		var err error
		if deleted, err = r.read(ctx, ex, id); err != nil {
			return err
		}
		stmt, err := ex.Dialect().RenderDelete(r.d, r.pkEq(id))
		if err != nil {
			return err
		}
		_, err = ex.Exec(ctx, stmt)
		return err
	})
	if err != nil {
		return nil, err
	}
	r.notify(ctx, observer.Delete, r.idOf(deleted))
	return deleted, nil
}

func (r *baseRepositoryImpl[T]) DeleteWhere(ctx context.Context, cond query.Condition) (int64, error) {
	var ids []any
	err := r.adapter.Tx(ctx, func(ex database.Executor) error {
		var err error
		if ids, err = r.matchingIDs(ctx, ex, cond); err != nil || len(ids) == 0 {
			return err
		}
		stmt, err := ex.Dialect().RenderDelete(r.d, cond)
		if err != nil {
			return err
		}
		_, err = ex.Exec(ctx, stmt)
		return err
	})
	if err != nil {
		return 0, err
	}
	if len(ids) > 0 {
		r.notify(ctx, observer.Delete, ids...)
	}
	return int64(len(ids)), nil
}
