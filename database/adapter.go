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
	"sync"
	"sync/atomic"
	"time"

	"github.com/uptrace/bun"
	"golang.org/x/sync/semaphore"

	"github.com/tomoncle/tabula/dialect"
	"github.com/tomoncle/tabula/types"
	"github.com/tomoncle/tabula/utils"
)

const defaultConnectTimeout = 30 * time.Second

var healthPingTimeout = utils.EnvDefaultDuration("TABULA_HEALTH_TIMEOUT", 5*time.Second)

// Result is a fully read result set. Rows hold driver values in column order.
type Result struct {
	Columns []string
	Rows    [][]any
}

// Executor runs rendered statements. It is implemented by *Adapter and by
// the transaction handle passed to Tx.
type Executor interface {
	Dialect() dialect.Dialect
	Query(ctx context.Context, stmt dialect.Statement) (*Result, error)
	Exec(ctx context.Context, stmt dialect.Statement) (sql.Result, error)
}

// runner is satisfied by *sql.DB and *sql.Tx.
type runner interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// pool is one opened connection pool with its admission semaphore.
type pool struct {
	db    *bun.DB
	sqlDB *sql.DB
	sem   *semaphore.Weighted
}

func newPool(sqlDB *sql.DB, f types.Flavour, cfg *ConnectionConfig) (*pool, error) {
	db, err := newBunDB(sqlDB, f)
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	size := int64(cfg.MaxOpenConns)
	if size <= 0 {
		size = int64(DefaultConnectionConfig().MaxOpenConns)
	}
	return &pool{db: db, sqlDB: sqlDB, sem: semaphore.NewWeighted(size)}, nil
}

// Option customizes an Adapter.
type Option func(*Adapter)

// WithLogger replaces the package default logger.
func WithLogger(l Logger) Option {
	return func(a *Adapter) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithQueryHook appends a hook invoked around every statement.
func WithQueryHook(h bun.QueryHook) Option {
	return func(a *Adapter) {
		if h != nil {
			a.extraHooks = append(a.extraHooks, h)
		}
	}
}

// Adapter owns a connection pool for one flavour and executes statements
// rendered by that flavour's dialect. It is safe for concurrent use.
type Adapter struct {
	mu      sync.RWMutex
	cfg     ConnectionConfig
	flavour types.Flavour
	dialect dialect.Dialect
	pool    *pool
	closed  bool

	logger     Logger
	hooks      []bun.QueryHook
	extraHooks []bun.QueryHook

	statements atomic.Int64
	timeouts   atomic.Int64

	reconnectTries int
	stopHealth     context.CancelFunc
	healthDone     chan struct{}
}

var _ Executor = (*Adapter)(nil)

func newAdapter(cfg *ConnectionConfig, opts []Option) (*Adapter, error) {
	if cfg == nil {
		cfg = DefaultConnectionConfig()
	}
	f := cfg.Flavour()
	d, err := dialect.For(f)
	if err != nil {
		return nil, err
	}
	a := &Adapter{
		cfg:     *cfg,
		flavour: f,
		dialect: d,
		logger:  GetLogger(),
	}
	if a.cfg.ConnectTimeout <= 0 {
		a.cfg.ConnectTimeout = defaultConnectTimeout
	}
	if f == types.SQLite && a.cfg.DSN == "" && isMemoryName(a.cfg.DBName) {
		a.cfg.DSN = sqliteDSN(&a.cfg)
	}
	for _, opt := range opts {
		opt(a)
	}
	a.hooks = append(defaultHooks(&a.cfg, a.logger), a.extraHooks...)
	return a, nil
}

// Connect opens a pool for cfg and verifies it with a ping bounded by
// ConnectTimeout.
func Connect(ctx context.Context, cfg *ConnectionConfig, opts ...Option) (*Adapter, error) {
	a, err := newAdapter(cfg, opts)
	if err != nil {
		return nil, err
	}
	p, err := a.open(ctx, &a.cfg)
	if err != nil {
		return nil, err
	}
	a.pool = p
	if a.cfg.HealthCheckInterval > 0 {
		a.startHealthCheck(a.cfg.HealthCheckInterval)
	}
	a.logger.Info("database connected", "type", a.flavour, "host", a.cfg.Host, "dbname", a.cfg.DBName)
	return a, nil
}

// NewAdapter wraps an already opened *sql.DB. No ping is issued.
func NewAdapter(sqlDB *sql.DB, f types.Flavour, cfg *ConnectionConfig, opts ...Option) (*Adapter, error) {
	if sqlDB == nil {
		return nil, errors.New("database: nil *sql.DB")
	}
	c := DefaultConnectionConfig()
	if cfg != nil {
		c = cfg
	}
	c2 := *c
	c2.Type = f.Name()
	a, err := newAdapter(&c2, opts)
	if err != nil {
		return nil, err
	}
	if a.pool, err = newPool(sqlDB, f, &a.cfg); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Adapter) open(ctx context.Context, cfg *ConnectionConfig) (*pool, error) {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	sqlDB, err := openDB(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection: %w", err)
	}
	p, err := newPool(sqlDB, cfg.Flavour(), cfg)
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	pctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := sqlDB.PingContext(pctx); err != nil {
		_ = sqlDB.Close()
		if errors.Is(pctx.Err(), context.DeadlineExceeded) {
			return nil, &types.ConnectionTimeoutError{Wait: cfg.ConnectTimeout, Cause: err}
		}
		return nil, fmt.Errorf("database connection test failed: %w", classify(err, cfg.DBName))
	}
	return p, nil
}

func (a *Adapter) Flavour() types.Flavour   { return a.flavour }
func (a *Adapter) Dialect() dialect.Dialect { return a.dialect }

// Config returns a copy of the active connection config.
func (a *Adapter) Config() ConnectionConfig {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfg
}

// DB returns the bun handle of the active pool, nil once closed.
func (a *Adapter) DB() *bun.DB {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed || a.pool == nil {
		return nil
	}
	return a.pool.db
}

// Logger returns the adapter logger.
func (a *Adapter) Logger() Logger { return a.logger }

// Close releases the pool and stops the health check. Every later
// operation, Reconnect included, fails with ConnectionClosedError. Close is
// idempotent.
func (a *Adapter) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	p, stop, done := a.pool, a.stopHealth, a.healthDone
	a.pool = nil
	a.mu.Unlock()

	if stop != nil {
		stop()
		<-done
	}
	if p == nil {
		return nil
	}
	if err := p.db.Close(); err != nil {
		a.logger.Error("failed to close database connection", "error", err)
		return err
	}
	a.logger.Info("database connection closed")
	return nil
}

// IsClosed reports whether Close was called.
func (a *Adapter) IsClosed() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.closed
}

// Reconnect opens a fresh pool for cfg, or for the current config if cfg is
// nil, and swaps it in. The flavour cannot change. The previous pool is
// closed once the new one answers a ping. A closed adapter stays closed.
func (a *Adapter) Reconnect(ctx context.Context, cfg *ConnectionConfig) error {
	a.mu.RLock()
	next, closed := a.cfg, a.closed
	a.mu.RUnlock()
	if closed {
		return &types.ConnectionClosedError{Operation: "reconnect"}
	}
	if cfg != nil {
		next = *cfg
	}
	if f := next.Flavour(); f != a.flavour {
		return &types.UnsupportedOperationError{Flavour: a.flavour, Operation: "reconnect to " + f.String()}
	}

	a.logger.Info("attempting to reconnect to the database", "host", next.Host, "dbname", next.DBName)
	p, err := a.open(ctx, &next)
	if err != nil {
		return err
	}

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		_ = p.db.Close()
		return &types.ConnectionClosedError{Operation: "reconnect"}
	}
	old := a.pool
	a.pool = p
	a.cfg = next
	a.mu.Unlock()

	if old != nil {
		if err := old.db.Close(); err != nil {
			a.logger.Warn("error disconnecting previous connection", "error", err)
		}
	}
	return nil
}

// acquire takes one admission slot, waiting at most ConnectTimeout.
func (a *Adapter) acquire(ctx context.Context, op string) (*pool, func(), error) {
	a.mu.RLock()
	p, closed, wait := a.pool, a.closed, a.cfg.ConnectTimeout
	a.mu.RUnlock()
	if closed || p == nil {
		return nil, nil, &types.ConnectionClosedError{Operation: op}
	}

	actx := ctx
	if wait > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, wait)
		defer cancel()
	}
	if err := p.sem.Acquire(actx, 1); err != nil {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		a.timeouts.Add(1)
		return nil, nil, &types.ConnectionTimeoutError{Wait: wait, Cause: err}
	}
	return p, func() { p.sem.Release(1) }, nil
}

func (a *Adapter) statementTimeout() time.Duration {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfg.StatementTimeout
}

func (a *Adapter) statementContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if limit := a.statementTimeout(); limit > 0 {
		return context.WithTimeout(ctx, limit)
	}
	return context.WithCancel(ctx)
}

func (a *Adapter) fail(sctx context.Context, err error, stmt dialect.Statement) error {
	if t := timeoutError(sctx, err, stmt.Text, a.statementTimeout()); t != nil {
		a.timeouts.Add(1)
		return t
	}
	object := stmt.Table
	if object == "" {
		object = "statement"
	}
	return classify(err, object)
}

func (a *Adapter) query(ctx context.Context, p *pool, r runner, stmt dialect.Statement) (*Result, error) {
	sctx, cancel := a.statementContext(ctx)
	defer cancel()

	var res *Result
	err := runHooks(sctx, p.db, a.hooks, stmt, func(ctx context.Context) (sql.Result, error) {
		rows, err := r.QueryContext(ctx, stmt.Text, stmt.Args...)
		if err != nil {
			return nil, err
		}
		res, err = readRows(rows)
		return nil, err
	})
	a.statements.Add(1)
	if err != nil {
		return nil, a.fail(sctx, err, stmt)
	}
	return res, nil
}

func (a *Adapter) exec(ctx context.Context, p *pool, r runner, stmt dialect.Statement) (sql.Result, error) {
	sctx, cancel := a.statementContext(ctx)
	defer cancel()

	var res sql.Result
	err := runHooks(sctx, p.db, a.hooks, stmt, func(ctx context.Context) (sql.Result, error) {
		var err error
		res, err = r.ExecContext(ctx, stmt.Text, stmt.Args...)
		return res, err
	})
	a.statements.Add(1)
	if err != nil {
		return nil, a.fail(sctx, err, stmt)
	}
	return res, nil
}

func readRows(rows *sql.Rows) (*Result, error) {
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	res := &Result{Columns: cols}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		res.Rows = append(res.Rows, values)
	}
	return res, rows.Err()
}

// Query runs a row-returning statement and reads the whole result.
func (a *Adapter) Query(ctx context.Context, stmt dialect.Statement) (*Result, error) {
	p, release, err := a.acquire(ctx, "query")
	if err != nil {
		return nil, err
	}
	defer release()
	return a.query(ctx, p, p.sqlDB, stmt)
}

// Exec runs a statement that returns no rows.
func (a *Adapter) Exec(ctx context.Context, stmt dialect.Statement) (sql.Result, error) {
	p, release, err := a.acquire(ctx, "exec")
	if err != nil {
		return nil, err
	}
	defer release()
	return a.exec(ctx, p, p.sqlDB, stmt)
}

// Tx runs fn inside a transaction on a single connection. The transaction
// commits when fn returns nil and rolls back otherwise, including on panic.
func (a *Adapter) Tx(ctx context.Context, fn func(Executor) error) (err error) {
	p, release, err := a.acquire(ctx, "transaction")
	if err != nil {
		return err
	}
	defer release()

	tx, err := p.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return classify(err, "transaction")
	}
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(&txExecutor{a: a, p: p, tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			a.logger.Error("transaction rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return classify(err, "transaction")
	}
	return nil
}

// txExecutor runs statements on the connection held by a transaction. It
// already owns an admission slot.
type txExecutor struct {
	a  *Adapter
	p  *pool
	tx *sql.Tx
}

func (t *txExecutor) Dialect() dialect.Dialect { return t.a.dialect }

func (t *txExecutor) Query(ctx context.Context, stmt dialect.Statement) (*Result, error) {
	return t.a.query(ctx, t.p, t.tx, stmt)
}

func (t *txExecutor) Exec(ctx context.Context, stmt dialect.Statement) (sql.Result, error) {
	return t.a.exec(ctx, t.p, t.tx, stmt)
}

// Ping checks the server is reachable.
func (a *Adapter) Ping(ctx context.Context) error {
	p, release, err := a.acquire(ctx, "ping")
	if err != nil {
		return err
	}
	defer release()
	return p.sqlDB.PingContext(ctx)
}

// HealthCheck pings the server and reports pool usage.
func (a *Adapter) HealthCheck(ctx context.Context) *HealthStatus {
	start := time.Now()
	status := &HealthStatus{LastCheckTime: start}

	a.mu.RLock()
	p, closed := a.pool, a.closed
	a.mu.RUnlock()
	if closed || p == nil {
		status.LastError = "database not connected"
		return status
	}

	pctx, cancel := context.WithTimeout(ctx, healthPingTimeout)
	defer cancel()
	err := p.sqlDB.PingContext(pctx)
	status.ResponseTime = time.Since(start)
	if err != nil {
		status.LastError = err.Error()
	} else {
		status.Healthy = true
		status.Connected = true
	}

	stats := p.sqlDB.Stats()
	status.ActiveConns = stats.InUse
	status.IdleConns = stats.Idle
	status.MaxOpenConns = stats.MaxOpenConnections
	return status
}

// Stats returns pool statistics plus statement and timeout counters.
func (a *Adapter) Stats() *DBStats {
	out := &DBStats{
		Statements: a.statements.Load(),
		Timeouts:   a.timeouts.Load(),
	}
	a.mu.RLock()
	p := a.pool
	a.mu.RUnlock()
	if p == nil {
		return out
	}
	stats := p.sqlDB.Stats()
	out.MaxOpenConns = stats.MaxOpenConnections
	out.OpenConns = stats.OpenConnections
	out.InUse = stats.InUse
	out.Idle = stats.Idle
	out.WaitCount = stats.WaitCount
	out.WaitDuration = stats.WaitDuration
	out.MaxIdleClosed = stats.MaxIdleClosed
	out.MaxIdleTimeClosed = stats.MaxIdleTimeClosed
	out.MaxLifetimeClosed = stats.MaxLifetimeClosed
	return out
}

// startHealthCheck pings the pool every interval and reconnects on failure
// when EnableReconnect is set. Close cancels it and waits for it to exit.
func (a *Adapter) startHealthCheck(interval time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	a.mu.Lock()
	a.stopHealth, a.healthDone = cancel, done
	a.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				hctx, hcancel := context.WithTimeout(ctx, 10*time.Second)
				status := a.HealthCheck(hctx)
				hcancel()
				if !status.Healthy && a.Config().EnableReconnect && !a.IsClosed() {
					a.handleReconnect(ctx)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (a *Adapter) handleReconnect(ctx context.Context) {
	cfg := a.Config()
	if a.reconnectTries >= cfg.MaxReconnectTries {
		a.logger.Error("max reconnect attempts reached, stopping", "tries", a.reconnectTries)
		return
	}
	a.reconnectTries++
	a.logger.Info("starting database reconnect", "try", a.reconnectTries)

	timer := time.NewTimer(cfg.ReconnectInterval)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return
	}

	rctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := a.Reconnect(rctx, nil); err != nil {
		if ctx.Err() != nil || types.IsConnectionClosed(err) {
			return
		}
		a.logger.Error("reconnect failed", "error", err, "try", a.reconnectTries)
		return
	}
	a.reconnectTries = 0
	a.logger.Info("reconnect succeeded")
}
