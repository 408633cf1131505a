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
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fatih/color"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/extra/bundebug"

	"github.com/tomoncle/tabula/dialect"
	"github.com/tomoncle/tabula/utils"
)

var querySilentMode atomic.Bool

func init() {
	querySilentMode.Store(utils.EnvDefaultBool("TABULA_SQL_SILENT", false))
}

// EnableQuerySilent mutes the console query hooks process-wide.
func EnableQuerySilent(b bool) {
	querySilentMode.Store(b)
}

var operationColors = map[string]*color.Color{
	"SELECT": color.New(color.FgGreen),
	"INSERT": color.New(color.FgBlue),
	"UPDATE": color.New(color.FgYellow),
	"DELETE": color.New(color.FgMagenta),
}

var operationBackgrounds = map[string]*color.Color{
	"SELECT": color.New(color.BgGreen, color.FgHiWhite),
	"INSERT": color.New(color.BgBlue, color.FgHiWhite),
	"UPDATE": color.New(color.BgYellow, color.FgHiWhite),
	"DELETE": color.New(color.BgMagenta, color.FgHiWhite),
}

func colorize(table map[string]*color.Color, fallback *color.Color, event *bun.QueryEvent) string {
	c, ok := table[event.Operation()]
	if !ok {
		c = fallback
	}
	return c.Sprint(event.Query)
}

// QueryHook prints every statement with its duration, colored by operation.
// The envName variable overrides enabled: "0" or empty disables, "2" also
// prints successful statements.
type QueryHook struct {
	envName string
	enabled bool
	verbose bool
	writer  io.Writer
}

var _ bun.QueryHook = (*QueryHook)(nil)

// NewQueryHook returns a QueryHook writing to w, os.Stdout if nil.
func NewQueryHook(w io.Writer, verbose bool) *QueryHook {
	if w == nil {
		w = os.Stdout
	}
	return &QueryHook{envName: "TABULA_SQL_LOG", enabled: true, verbose: verbose, writer: w}
}

func (h *QueryHook) BeforeQuery(ctx context.Context, event *bun.QueryEvent) context.Context {
	return ctx
}

func (h *QueryHook) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	if querySilentMode.Load() {
		return
	}
	enabled := h.enabled
	verbose := h.verbose
	if env, ok := os.LookupEnv(h.envName); ok {
		enabled = env != "" && env != "0"
		verbose = env == "2"
	}
	if !enabled {
		return
	}
	if !verbose {
		switch {
		case event.Err == nil, errors.Is(event.Err, sql.ErrNoRows), errors.Is(event.Err, sql.ErrTxDone):
			return
		}
	}

	now := time.Now()
	args := []interface{}{
		now.Format("2006-01-02 15:04:05.000"),
		color.New(color.FgCyan).Sprintf("%12s", "[SQL]"),
		fmt.Sprintf("%14s", utils.Since(event.StartTime)),
		" ", colorize(operationColors, color.New(color.FgRed), event),
	}
	if len(event.QueryArgs) > 0 {
		args = append(args, fmt.Sprintf("%v", event.QueryArgs))
	}
	if event.Err != nil {
		typ := reflect.TypeOf(event.Err).String()
		args = append(args, "\t", color.New(color.BgRed).Sprintf(" %s ", typ+": "+event.Err.Error()))
	}
	_, _ = fmt.Fprintln(h.writer, args...)
}

// slowQueryHook reports statements slower than slowTime through the logger.
type slowQueryHook struct {
	slowTime time.Duration
	logger   Logger
}

var _ bun.QueryHook = (*slowQueryHook)(nil)

func (h *slowQueryHook) BeforeQuery(ctx context.Context, event *bun.QueryEvent) context.Context {
	return ctx
}

func (h *slowQueryHook) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	if event.Err != nil || h.logger == nil {
		return
	}
	duration := time.Since(event.StartTime)
	if duration > h.slowTime {
		h.logger.Warn("slow query detected",
			"duration", duration.Round(time.Microsecond),
			"slow_threshold", h.slowTime,
			"query", colorize(operationBackgrounds, color.New(color.BgRed, color.FgHiWhite), event),
		)
	}
}

// defaultHooks returns the hooks enabled by cfg.
func defaultHooks(cfg *ConnectionConfig, logger Logger) []bun.QueryHook {
	var hooks []bun.QueryHook
	if cfg.EnableQueryLog {
		hooks = append(hooks, bundebug.NewQueryHook(
			bundebug.WithVerbose(true),
			bundebug.FromEnv("BUNDEBUG"),
		))
	}
	if cfg.SlowQueryTime > 0 {
		hooks = append(hooks, &slowQueryHook{slowTime: cfg.SlowQueryTime, logger: logger})
	}
	return hooks
}

// runHooks wraps fn with the Before/After callbacks of hooks. Statements are
// executed on the underlying *sql.DB so that arguments stay bound by the
// driver, which bypasses bun's own hook dispatch.
func runHooks(ctx context.Context, db *bun.DB, hooks []bun.QueryHook, stmt dialect.Statement, fn func(ctx context.Context) (sql.Result, error)) error {
	if len(hooks) == 0 {
		_, err := fn(ctx)
		return err
	}
	event := &bun.QueryEvent{
		DB:        db,
		Query:     strings.TrimSpace(stmt.Text),
		QueryArgs: stmt.Args,
		StartTime: time.Now(),
	}
	for _, h := range hooks {
		ctx = h.BeforeQuery(ctx, event)
	}
	event.Result, event.Err = fn(ctx)
	for i := len(hooks) - 1; i >= 0; i-- {
		hooks[i].AfterQuery(ctx, event)
	}
	return event.Err
}
