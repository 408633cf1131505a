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
	"github.com/tomoncle/tabula/model"
	"github.com/tomoncle/tabula/observer"
	"github.com/tomoncle/tabula/query"
)

// CrudRepository defines validated CRUD operations for a generic entity type.
type CrudRepository[T any] interface {
	// Create validates and inserts entity, returning the stored row with
	// server-assigned fields populated.
	Create(ctx context.Context, entity *T) (*T, error)

	// CreateAll inserts every entity in one transaction. Nothing is stored
	// when any element fails validation or execution.
	CreateAll(ctx context.Context, entities ...*T) ([]*T, error)

	// Read returns the entity with the given primary key.
	Read(ctx context.Context, id any) (*T, error)

	// Update writes every non-key attribute of entity. Read-only attributes
	// must match the stored row.
	Update(ctx context.Context, entity *T) (*T, error)

	// UpdateAll updates every entity in one transaction.
	UpdateAll(ctx context.Context, entities ...*T) ([]*T, error)

	// UpdateWhere applies changes to every row matching cond and returns
	// the number of rows updated.
	UpdateWhere(ctx context.Context, cond query.Condition, changes query.Changes) (int64, error)

	// Delete removes the entity with the given primary key and returns it.
	Delete(ctx context.Context, id any) (*T, error)

	// DeleteWhere removes every row matching cond.
	DeleteWhere(ctx context.Context, cond query.Condition) (int64, error)
}

// ObservableRepository notifies observers after each successful mutation.
type ObservableRepository interface {
	Observe(o observer.Observer) error
	UnObserve(o observer.Observer) bool
	Registry() *observer.Registry
}

// Repository combines CRUD, querying and change notification for one model.
type Repository[T any] interface {
	CrudRepository[T]
	ObservableRepository

	// Select starts a query over the given attributes, all when empty.
	Select(attributes ...string) Query[T]

	Descriptor() *model.Descriptor
	Dialect() dialect.Dialect
	Adapter() *database.Adapter
}
