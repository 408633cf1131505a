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

package tabula

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tomoncle/tabula/database"
	"github.com/tomoncle/tabula/observer"
	"github.com/tomoncle/tabula/query"
	"github.com/tomoncle/tabula/repository"
	"github.com/tomoncle/tabula/types"
	"github.com/tomoncle/tabula/utils"
)

// DB bundles an adapter with two observer registries. Registry receives
// the mutations made through this process's services. Changes receives the
// database notifications relayed by the listener when Notify.Enabled is set,
// which include the mutations of every other writer.
type DB struct {
	adapter  *database.Adapter
	registry *observer.Registry
	changes  *observer.Registry

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Open applies the log settings of cfg, connects, creates the tables of
// registered models when Bootstrap.AutoCreate is set and starts the
// notification listener when Notify.Enabled is set.
func Open(ctx context.Context, cfg *database.Config, opts ...database.Option) (*DB, error) {
	if cfg == nil {
		cfg = database.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Log.Format != "" {
		utils.ConfigureConsoleLogFormat(cfg.Log.Format)
	}
	if cfg.Log.Level != "" {
		utils.SetAllLoggersLevel(utils.ParseLogLevel(cfg.Log.Level))
	}

	adapter, err := database.Connect(ctx, &cfg.Connection, opts...)
	if err != nil {
		return nil, err
	}
	db := Wrap(adapter)

	var listener *database.Listener
	if cfg.Notify.Enabled {
		if listener, err = database.NewListener(&cfg.Connection, cfg.Notify.Channel, db.changes, adapter.Logger()); err != nil {
			_ = adapter.Close()
			return nil, err
		}
	}
	if cfg.Bootstrap.AutoCreate {
		if err := adapter.Bootstrap(ctx, cfg.Bootstrap.IgnoreExisting); err != nil {
			_ = adapter.Close()
			return nil, err
		}
		if listener != nil {
			if err := installTriggers(ctx, adapter, cfg.Notify.Channel, cfg.Bootstrap.IgnoreExisting); err != nil {
				_ = adapter.Close()
				return nil, err
			}
		}
	}
	if listener != nil {
		lctx, cancel := context.WithCancel(context.Background())
		db.cancel, db.done = cancel, make(chan struct{})
		go func() {
			defer close(db.done)
			if err := listener.Listen(lctx); err != nil && !errors.Is(err, context.Canceled) {
				adapter.Logger().Error("notification listener stopped", "error", err)
			}
		}()
	}
	return db, nil
}

// installTriggers installs the notify function and one change trigger per
// registered model of the adapter's flavour.
func installTriggers(ctx context.Context, a *database.Adapter, channel string, ignoreExisting bool) error {
	tolerate := func(err error) error {
		if err != nil && ignoreExisting && types.IsConflict(err) {
			return nil
		}
		return err
	}
	if err := tolerate(a.CreateNotifyFunction(ctx, "")); err != nil {
		return err
	}
	for _, m := range database.RegisteredModels() {
		d := m.Descriptor()
		if d.Flavour != types.FlavourUnknown && d.Flavour != a.Flavour() {
			continue
		}
		if err := tolerate(a.CreateNotifyTrigger(ctx, d, channel)); err != nil {
			return fmt.Errorf("notify trigger %s: %w", d.Name, err)
		}
	}
	return nil
}

// Wrap builds a DB around an existing adapter, without listener.
func Wrap(adapter *database.Adapter) *DB {
	return &DB{adapter: adapter, registry: observer.NewRegistry(), changes: observer.NewRegistry()}
}

func (db *DB) Adapter() *database.Adapter   { return db.adapter }
func (db *DB) Registry() *observer.Registry { return db.registry }
func (db *DB) Changes() *observer.Registry  { return db.changes }

// Close stops the listener and closes the adapter.
func (db *DB) Close() error {
	var err error
	db.once.Do(func() {
		if db.cancel != nil {
			db.cancel()
			<-db.done
		}
		err = db.adapter.Close()
	})
	return err
}

type Service[T any] interface {
	// Get returns a single entity by its identifier.
	Get(ctx context.Context, id any) (*T, error)

	// All returns all entities.
	All(ctx context.Context) ([]*T, error)

	// List returns entities that match cond in the given order.
	List(ctx context.Context, cond query.Condition, orders ...query.Order) ([]*T, error)

	// Count returns the number of entities matching cond.
	Count(ctx context.Context, cond query.Condition) (int64, error)

	// Page returns a paginated list of entities matching cond.
	Page(ctx context.Context, cond query.Condition, page *types.PageRequest, orders ...query.Order) (*types.Pagination[T], error)

	// Save inserts one or more new entities atomically.
	Save(ctx context.Context, model ...*T) ([]*T, error)

	// Update modifies an existing entity.
	Update(ctx context.Context, model *T) (*T, error)

	// UpdateWhere applies changes to every entity matching cond.
	UpdateWhere(ctx context.Context, cond query.Condition, changes query.Changes) (int64, error)

	// Delete removes an entity by its identifier.
	Delete(ctx context.Context, id any) (*T, error)

	// DeleteWhere removes every entity matching cond.
	DeleteWhere(ctx context.Context, cond query.Condition) (int64, error)

	// Repository exposes the underlying repository.
	Repository() (repository.Repository[T], error)
}

type baseServiceImpl[T any] struct {
	db   *DB
	opts []repository.Option
	repo repository.Repository[T]
	err  error
	once sync.Once
}

// NewService returns a Service over the repository of T. The repository is
// resolved on first use and shares the registry of db.
func NewService[T any](db *DB, opts ...repository.Option) Service[T] {
	return newBaseServiceImpl[T](db, opts...)
}

func newBaseServiceImpl[T any](db *DB, opts ...repository.Option) *baseServiceImpl[T] {
	return &baseServiceImpl[T]{db: db, opts: opts}
}

func (s *baseServiceImpl[T]) baseRepo() (repository.Repository[T], error) {
	s.once.Do(func() {
		opts := append([]repository.Option{repository.WithRegistry(s.db.registry)}, s.opts...)
		s.repo, s.err = repository.New[T](s.db.adapter, opts...)
	})
	return s.repo, s.err
}

func (s *baseServiceImpl[T]) Repository() (repository.Repository[T], error) {
	return s.baseRepo()
}

func (s *baseServiceImpl[T]) Get(ctx context.Context, id any) (*T, error) {
	repo, err := s.baseRepo()
	if err != nil {
		return nil, err
	}
	return repo.Read(ctx, id)
}

func (s *baseServiceImpl[T]) All(ctx context.Context) ([]*T, error) {
	return s.List(ctx, query.Condition{})
}

func (s *baseServiceImpl[T]) List(ctx context.Context, cond query.Condition, orders ...query.Order) ([]*T, error) {
	repo, err := s.baseRepo()
	if err != nil {
		return nil, err
	}
	return repo.Select().Where(cond).OrderBy(orders...).Execute(ctx)
}

func (s *baseServiceImpl[T]) Count(ctx context.Context, cond query.Condition) (int64, error) {
	repo, err := s.baseRepo()
	if err != nil {
		return 0, err
	}
	return repo.Select().Where(cond).Count(ctx)
}

func (s *baseServiceImpl[T]) Page(ctx context.Context, cond query.Condition, page *types.PageRequest, orders ...query.Order) (*types.Pagination[T], error) {
	repo, err := s.baseRepo()
	if err != nil {
		return nil, err
	}
	return repo.Select().Where(cond).OrderBy(orders...).Page(ctx, page)
}

func (s *baseServiceImpl[T]) Save(ctx context.Context, model ...*T) ([]*T, error) {
	repo, err := s.baseRepo()
	if err != nil {
		return nil, err
	}
	return repo.CreateAll(ctx, model...)
}

func (s *baseServiceImpl[T]) Update(ctx context.Context, model *T) (*T, error) {
	repo, err := s.baseRepo()
	if err != nil {
		return nil, err
	}
	return repo.Update(ctx, model)
}

func (s *baseServiceImpl[T]) UpdateWhere(ctx context.Context, cond query.Condition, changes query.Changes) (int64, error) {
	repo, err := s.baseRepo()
	if err != nil {
		return 0, err
	}
	return repo.UpdateWhere(ctx, cond, changes)
}

func (s *baseServiceImpl[T]) Delete(ctx context.Context, id any) (*T, error) {
	repo, err := s.baseRepo()
	if err != nil {
		return nil, err
	}
	return repo.Delete(ctx, id)
}

func (s *baseServiceImpl[T]) DeleteWhere(ctx context.Context, cond query.Condition) (int64, error) {
	repo, err := s.baseRepo()
	if err != nil {
		return 0, err
	}
	return repo.DeleteWhere(ctx, cond)
}
