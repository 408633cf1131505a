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
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Operation is the kind of mutation an Event reports.
type Operation int

const (
	OperationUnknown Operation = iota
	Create
	Update
	Delete
)

func (o Operation) String() string {
	switch o {
	case Create:
		return "create"
	case Update:
		return "update"
	case Delete:
		return "delete"
	default:
		return "unknown"
	}
}

// ParseOperation accepts operation names as well as trigger TG_OP values.
func ParseOperation(s string) Operation {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "create", "insert":
		return Create
	case "update":
		return Update
	case "delete":
		return Delete
	default:
		return OperationUnknown
	}
}

func (o Operation) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

func (o *Operation) UnmarshalText(b []byte) error {
	op := ParseOperation(string(b))
	if op == OperationUnknown {
		return fmt.Errorf("observer: unknown operation %q", string(b))
	}
	*o = op
	return nil
}

// Source tells where an event originated.
type Source string

const (
	SourceRepository Source = "repository"
	SourceNotify     Source = "notify"
)

// Event describes one successful mutation. IDs holds the primary keys of the
// affected rows, in the order they were written.
type Event struct {
	ID        uuid.UUID `json:"id"`
	Table     string    `json:"table"`
	Operation Operation `json:"operation"`
	IDs       []any     `json:"ids"`
	At        time.Time `json:"at"`
	Source    Source    `json:"source"`
}

// NewEvent stamps a repository event with a fresh id and the current time.
func NewEvent(table string, op Operation, ids ...any) Event {
	return Event{
		ID:        uuid.New(),
		Table:     table,
		Operation: op,
		IDs:       ids,
		At:        time.Now(),
		Source:    SourceRepository,
	}
}

func (e Event) String() string {
	return fmt.Sprintf("%s %s %v", e.Operation, e.Table, e.IDs)
}
