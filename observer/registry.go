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

package observer

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/tomoncle/tabula/utils"
)

// Observer is told about every successful mutation it is registered for.
type Observer interface {
	Refresh(ctx context.Context, event Event) error
}

type funcObserver struct {
	fn func(context.Context, Event) error
}

func (f *funcObserver) Refresh(ctx context.Context, event Event) error { return f.fn(ctx, event) }

// Func adapts a function to Observer. Each call returns a distinct observer,
// keep the result to UnObserve it later.
func Func(fn func(context.Context, Event) error) Observer {
	return &funcObserver{fn: fn}
}

// Logger receives dispatch failures.
type Logger interface {
	Error(msg string, fields ...interface{})
}

type logrusLogger struct {
	l *logrus.Logger
}

func (l logrusLogger) Error(msg string, fields ...interface{}) {
	data := make(logrus.Fields, len(fields)/2)
	for i := 0; i+1 < len(fields); i += 2 {
		data[fmt.Sprint(fields[i])] = fields[i+1]
	}
	l.l.WithFields(data).Error(msg)
}

// Option customizes a Registry.
type Option func(*Registry)

// WithLogger routes dispatch failures to l.
func WithLogger(l Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithConcurrency caps the observers refreshed at once, unlimited if n <= 0.
func WithConcurrency(n int) Option {
	return func(r *Registry) { r.limit = n }
}

// Registry is an ordered set of observers keyed by identity.
type Registry struct {
	mu        sync.RWMutex
	observers []Observer
	index     map[Observer]struct{}
	limit     int
	logger    Logger
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		index:  map[Observer]struct{}{},
		logger: logrusLogger{l: utils.NewLogger("OBSERVER")},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var ErrNotComparable = errors.New("observer: observer is not comparable")

// Observe registers o. Registering the same observer again is a no-op.
func (r *Registry) Observe(o Observer) error {
	if o == nil {
		return errors.New("observer: nil observer")
	}
	if !reflect.TypeOf(o).Comparable() {
		return ErrNotComparable
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.index[o]; ok {
		return nil
	}
	r.index[o] = struct{}{}
	r.observers = append(r.observers, o)
	return nil
}

// UnObserve removes o. It reports whether o was registered.
func (r *Registry) UnObserve(o Observer) bool {
	if o == nil || !reflect.TypeOf(o).Comparable() {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.index[o]; !ok {
		return false
	}
	delete(r.index, o)
	for i, ob := range r.observers {
		if ob == o {
			r.observers = append(r.observers[:i:i], r.observers[i+1:]...)
			break
		}
	}
	return true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.observers)
}

// Observers returns the registered observers in registration order.
func (r *Registry) Observers() []Observer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Observer(nil), r.observers...)
}

// Dispatch refreshes every registered observer concurrently and waits for
// the round to finish. A failing or panicking observer is logged and does
// not affect the others. It returns the number of failed observers.
func (r *Registry) Dispatch(ctx context.Context, event Event) int {
	observers := r.Observers()
	if len(observers) == 0 {
		return 0
	}

	var (
		mu     sync.Mutex
		failed int
	)
	var g errgroup.Group
	if r.limit > 0 {
		g.SetLimit(r.limit)
	}
	for _, o := range observers {
		g.Go(func() error {
			if err := refresh(ctx, o, event); err != nil {
				r.logger.Error("observer refresh failed",
					"observer", fmt.Sprintf("%T", o), "event", event.String(), "error", err)
				mu.Lock()
				failed++
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return failed
}

func refresh(ctx context.Context, o Observer, event Event) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return o.Refresh(ctx, event)
}
