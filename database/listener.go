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
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tomoncle/tabula/observer"
	"github.com/tomoncle/tabula/types"
)

// notification is the payload published by the notify trigger function.
type notification struct {
	Table     string          `json:"table"`
	Operation string          `json:"operation"`
	ID        json.RawMessage `json:"id"`
}

// ParseNotification decodes a notify payload into an observer event.
func ParseNotification(payload string) (observer.Event, error) {
	var n notification
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		return observer.Event{}, fmt.Errorf("decode notification: %w", err)
	}
	op := observer.ParseOperation(n.Operation)
	if n.Table == "" || op == observer.OperationUnknown {
		return observer.Event{}, fmt.Errorf("decode notification: incomplete payload %q", payload)
	}
	e := observer.Event{
		ID:        uuid.New(),
		Table:     n.Table,
		Operation: op,
		At:        time.Now(),
		Source:    observer.SourceNotify,
	}
	if len(n.ID) > 0 && string(n.ID) != "null" {
		var id any
		dec := json.NewDecoder(bytes.NewReader(n.ID))
		dec.UseNumber()
		if err := dec.Decode(&id); err != nil {
			return observer.Event{}, fmt.Errorf("decode notification id: %w", err)
		}
		if num, ok := id.(json.Number); ok {
			if i, err := num.Int64(); err == nil {
				id = i
			} else if f, err := num.Float64(); err == nil {
				id = f
			}
		}
		e.IDs = []any{id}
	}
	return e, nil
}

// Listener forwards database change notifications to an observer registry.
// It holds its own pgx connection outside the adapter pool. Postgres only.
type Listener struct {
	cfg      ConnectionConfig
	channel  string
	registry *observer.Registry
	logger   Logger
}

func NewListener(cfg *ConnectionConfig, channel string, registry *observer.Registry, logger Logger) (*Listener, error) {
	if cfg == nil || cfg.Flavour() != types.Postgres {
		f := types.FlavourUnknown
		if cfg != nil {
			f = cfg.Flavour()
		}
		return nil, &types.UnsupportedOperationError{Flavour: f, Operation: "listen"}
	}
	if registry == nil {
		return nil, errors.New("listener: nil registry")
	}
	if channel == "" {
		channel = DefaultNotifyChannel
	}
	if logger == nil {
		logger = GetLogger()
	}
	l := &Listener{cfg: *cfg, channel: channel, registry: registry, logger: logger}
	if l.cfg.ConnectTimeout <= 0 {
		l.cfg.ConnectTimeout = defaultConnectTimeout
	}
	return l, nil
}

// Listen blocks until ctx is done, reconnecting after connection failures
// up to MaxReconnectTries consecutive times.
func (l *Listener) Listen(ctx context.Context) error {
	tries := 0
	for {
		err := l.listen(ctx, func() { tries = 0 })
		if ctx.Err() != nil {
			return nil
		}
		tries++
		if tries > l.cfg.MaxReconnectTries {
			return fmt.Errorf("listener: giving up after %d tries: %w", tries-1, err)
		}
		l.logger.Warn("listener disconnected, retrying", "channel", l.channel, "error", err, "try", tries)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(l.cfg.ReconnectInterval):
		}
	}
}

func (l *Listener) listen(ctx context.Context, connected func()) error {
	dsn, err := BuildDSN(&l.cfg)
	if err != nil {
		return err
	}
	cctx, cancel := context.WithTimeout(ctx, l.cfg.ConnectTimeout)
	conn, err := pgx.Connect(cctx, dsn)
	cancel()
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close(context.Background()) }()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{l.channel}.Sanitize()); err != nil {
		return err
	}
	connected()
	l.logger.Info("listening for notifications", "channel", l.channel)

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		event, err := ParseNotification(n.Payload)
		if err != nil {
			l.logger.Warn("ignoring notification", "channel", n.Channel, "error", err)
			continue
		}
		l.registry.Dispatch(ctx, event)
	}
}
