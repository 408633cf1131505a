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
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Refresh(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

type collectingLogger struct {
	mu   sync.Mutex
	msgs []string
}

func (l *collectingLogger) Error(msg string, _ ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.msgs = append(l.msgs, msg)
}

type sliceObserver []string

func (sliceObserver) Refresh(context.Context, Event) error { return nil }

func TestRegistry_ObserveIsIdempotent(t *testing.T) {
	reg := NewRegistry()
	rec := &recorder{}

	require.NoError(t, reg.Observe(rec))
	require.NoError(t, reg.Observe(rec))
	assert.Equal(t, 1, reg.Len())

	reg.Dispatch(context.Background(), NewEvent("users", Create, 1))
	assert.Equal(t, 1, rec.count())
}

func TestRegistry_UnObserve(t *testing.T) {
	reg := NewRegistry()
	a, b, c := &recorder{}, &recorder{}, &recorder{}
	for _, o := range []Observer{a, b, c} {
		require.NoError(t, reg.Observe(o))
	}

	assert.True(t, reg.UnObserve(b))
	assert.False(t, reg.UnObserve(b))
	assert.Equal(t, []Observer{a, c}, reg.Observers())

	reg.Dispatch(context.Background(), NewEvent("users", Delete, 1))
	assert.Equal(t, 1, a.count())
	assert.Equal(t, 0, b.count())
	assert.Equal(t, 1, c.count())
}

func TestRegistry_ObserveRejects(t *testing.T) {
	reg := NewRegistry()
	assert.Error(t, reg.Observe(nil))
	assert.ErrorIs(t, reg.Observe(sliceObserver{"x"}), ErrNotComparable)
	assert.False(t, reg.UnObserve(sliceObserver{"x"}))
	assert.Equal(t, 0, reg.Len())
}

func TestRegistry_DispatchIsolatesFailures(t *testing.T) {
	logger := &collectingLogger{}
	reg := NewRegistry(WithLogger(logger))

	var called atomic.Int32
	ok := Func(func(context.Context, Event) error {
		called.Add(1)
		return nil
	})
	failing := Func(func(context.Context, Event) error {
		called.Add(1)
		return errors.New("boom")
	})
	panicking := Func(func(context.Context, Event) error {
		called.Add(1)
		panic("observer exploded")
	})
	for _, o := range []Observer{ok, failing, panicking} {
		require.NoError(t, reg.Observe(o))
	}

	failed := reg.Dispatch(context.Background(), NewEvent("users", Update, 7))
	assert.Equal(t, 2, failed)
	assert.Equal(t, int32(3), called.Load())
	assert.Len(t, logger.msgs, 2)
}

func TestRegistry_DispatchWaitsForRound(t *testing.T) {
	reg := NewRegistry(WithConcurrency(2))
	var done atomic.Int32
	for i := 0; i < 5; i++ {
		require.NoError(t, reg.Observe(Func(func(context.Context, Event) error {
			done.Add(1)
			return nil
		})))
	}
	assert.Equal(t, 5, reg.Len())
	assert.Zero(t, reg.Dispatch(context.Background(), NewEvent("users", Create, 1, 2)))
	assert.Equal(t, int32(5), done.Load())
}

func TestRegistry_EventPayload(t *testing.T) {
	reg := NewRegistry()
	rec := &recorder{}
	require.NoError(t, reg.Observe(rec))

	e := NewEvent("query_users", Create, int64(1), int64(2))
	reg.Dispatch(context.Background(), e)

	require.Equal(t, 1, rec.count())
	got := rec.events[0]
	assert.Equal(t, e.ID, got.ID)
	assert.Equal(t, "query_users", got.Table)
	assert.Equal(t, Create, got.Operation)
	assert.Equal(t, []any{int64(1), int64(2)}, got.IDs)
	assert.Equal(t, SourceRepository, got.Source)
}

func TestParseOperation(t *testing.T) {
	assert.Equal(t, Create, ParseOperation("INSERT"))
	assert.Equal(t, Create, ParseOperation("create"))
	assert.Equal(t, Update, ParseOperation("UPDATE"))
	assert.Equal(t, Delete, ParseOperation(" delete "))
	assert.Equal(t, OperationUnknown, ParseOperation("TRUNCATE"))

	var op Operation
	require.NoError(t, op.UnmarshalText([]byte("DELETE")))
	assert.Equal(t, Delete, op)
	assert.Error(t, op.UnmarshalText([]byte("merge")))

	b, err := Update.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "update", string(b))
}
