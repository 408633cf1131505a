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

	"github.com/tomoncle/tabula/database"
	"github.com/tomoncle/tabula/dialect"
	"github.com/tomoncle/tabula/query"
	"github.com/tomoncle/tabula/types"
)

// Query is an immutable select over one repository. Every refinement returns
// a new Query; a Query may be shared and executed concurrently.
type Query[T any] struct {
	repo *baseRepositoryImpl[T]
	spec query.Spec
}

func (q Query[T]) Where(c query.Condition) Query[T] {
	q.spec = q.spec.Where(c)
	return q
}

func (q Query[T]) OrderBy(orders ...query.Order) Query[T] {
	q.spec = q.spec.OrderBy(orders...)
	return q
}

func (q Query[T]) Limit(n int) Query[T] {
	q.spec = q.spec.Limit(n)
	return q
}

func (q Query[T]) Offset(n int) Query[T] {
	q.spec = q.spec.Offset(n)
	return q
}

// Spec returns the underlying select description.
func (q Query[T]) Spec() query.Spec { return q.spec }

// Statement renders the query without running it.
func (q Query[T]) Statement() (dialect.Statement, error) {
	return q.repo.Dialect().RenderSelect(q.spec)
}

func (q Query[T]) result(ctx context.Context) (*database.Result, error) {
	stmt, err := q.Statement()
	if err != nil {
		return nil, err
	}
	return q.repo.adapter.Query(ctx, stmt)
}

// Execute returns the matching instances in row order. With a projection the
// instances are partial: attributes outside it keep their zero value.
func (q Query[T]) Execute(ctx context.Context) ([]*T, error) {
	res, err := q.result(ctx)
	if err != nil {
		return nil, err
	}
	return q.repo.hydrate(res)
}

// Rows returns the matching rows keyed exactly by the selected columns.
func (q Query[T]) Rows(ctx context.Context) ([]map[string]any, error) {
	res, err := q.result(ctx)
	if err != nil {
		return nil, err
	}
	return database.RowMaps(res), nil
}

// Count returns the number of rows matching the condition, ignoring
// ordering and the row window.
func (q Query[T]) Count(ctx context.Context) (int64, error) {
	stmt, err := q.repo.Dialect().RenderCount(q.spec.Unordered())
	if err != nil {
		return 0, err
	}
	res, err := q.repo.adapter.Query(ctx, stmt)
	if err != nil {
		return 0, err
	}
	return database.ScalarInt(res)
}

// First returns the first matching instance or a NotFoundError.
func (q Query[T]) First(ctx context.Context) (*T, error) {
	items, err := q.Limit(1).Execute(ctx)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, types.NewNotFoundError(q.repo.d.Name, nil, nil)
	}
	return items[0], nil
}

// Page returns one page of the matching instances along with the total
// number of matches.
func (q Query[T]) Page(ctx context.Context, page *types.PageRequest) (*types.Pagination[T], error) {
	if page == nil {
		page = types.NewPageRequest(1, types.DefaultPageSize)
	}
	pagination := types.NewDefaultPagination[T](page.GetPage(), page.GetPageSize())
	total, err := q.Count(ctx)
	if err != nil {
		return nil, err
	}
	if total == 0 {
		return pagination, nil
	}
	items, err := q.Offset(page.GetOffset()).Limit(page.GetPageSize()).Execute(ctx)
	if err != nil {
		return nil, err
	}
	pagination.Total = int(total)
	pagination.Items = items
	return pagination, nil
}
