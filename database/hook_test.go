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
	"bytes"
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/extra/bundebug"

	"github.com/tomoncle/tabula/dialect"
)

type captureLogger struct {
	warns []string
}

func (l *captureLogger) SetLevel(LogLevel)                 {}
func (l *captureLogger) Debug(string, ...interface{})      {}
func (l *captureLogger) Info(string, ...interface{})       {}
func (l *captureLogger) Warn(msg string, _ ...interface{}) { l.warns = append(l.warns, msg) }
func (l *captureLogger) Error(string, ...interface{})      {}

func TestQueryHook_Output(t *testing.T) {
	t.Setenv("TABULA_SQL_LOG", "2")
	var buf bytes.Buffer
	h := NewQueryHook(&buf, false)

	event := &bun.QueryEvent{Query: `SELECT "id" FROM "users"`, StartTime: time.Now(), QueryArgs: []any{1}}
	h.AfterQuery(context.Background(), event)
	assert.Contains(t, buf.String(), `SELECT "id" FROM "users"`)
	assert.Contains(t, buf.String(), "[1]")

	buf.Reset()
	EnableQuerySilent(true)
	h.AfterQuery(context.Background(), event)
	EnableQuerySilent(false)
	assert.Empty(t, buf.String())
}

func TestQueryHook_OnlyErrorsWhenNotVerbose(t *testing.T) {
	t.Setenv("TABULA_SQL_LOG", "1")
	var buf bytes.Buffer
	h := NewQueryHook(&buf, true)

	h.AfterQuery(context.Background(), &bun.QueryEvent{Query: "SELECT 1", StartTime: time.Now()})
	h.AfterQuery(context.Background(), &bun.QueryEvent{Query: "SELECT 1", StartTime: time.Now(), Err: sql.ErrNoRows})
	assert.Empty(t, buf.String())

	h.AfterQuery(context.Background(), &bun.QueryEvent{Query: "SELECT 2", StartTime: time.Now(), Err: errors.New("boom")})
	assert.Contains(t, buf.String(), "boom")
}

func TestSlowQueryHook(t *testing.T) {
	logger := &captureLogger{}
	h := &slowQueryHook{slowTime: time.Millisecond, logger: logger}

	h.AfterQuery(context.Background(), &bun.QueryEvent{Query: "SELECT 1", StartTime: time.Now()})
	assert.Empty(t, logger.warns)

	h.AfterQuery(context.Background(), &bun.QueryEvent{Query: "SELECT 1", StartTime: time.Now().Add(-time.Second)})
	assert.Equal(t, []string{"slow query detected"}, logger.warns)
}

func TestDefaultHooks(t *testing.T) {
	cfg := DefaultConnectionConfig()
	cfg.EnableQueryLog = true
	hooks := defaultHooks(cfg, &captureLogger{})
	if assert.Len(t, hooks, 2) {
		assert.IsType(t, &bundebug.QueryHook{}, hooks[0])
		assert.IsType(t, &slowQueryHook{}, hooks[1])
	}

	cfg.EnableQueryLog = false
	cfg.SlowQueryTime = 0
	assert.Empty(t, defaultHooks(cfg, nil))
}

func TestRunHooks_Order(t *testing.T) {
	var calls []string
	first := &orderHook{name: "first", calls: &calls}
	second := &orderHook{name: "second", calls: &calls}

	err := runHooks(context.Background(), nil, []bun.QueryHook{first, second}, dialect.Statement{Text: "SELECT 1"},
		func(context.Context) (sql.Result, error) {
			calls = append(calls, "run")
			return nil, nil
		})
	assert.NoError(t, err)
	assert.Equal(t, []string{"before:first", "before:second", "run", "after:second", "after:first"}, calls)
}

type orderHook struct {
	name  string
	calls *[]string
}

func (h *orderHook) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	*h.calls = append(*h.calls, "before:"+h.name)
	return ctx
}

func (h *orderHook) AfterQuery(_ context.Context, _ *bun.QueryEvent) {
	*h.calls = append(*h.calls, "after:"+h.name)
}
