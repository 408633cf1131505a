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

package types

import "strings"

// Common illegal/default values used by enums.
const (
	IllegalValue = -1
	IllegalName  = "unknown"
	IllegalDesc  = "unknown"
)

// BaseEnum represents a basic enum contract used by domain types.
type BaseEnum interface {
	IsValid() bool
	Number() int
	String() string
	Desc() string
	Name() string
}

// Flavour identifies the SQL engine a model targets.
type Flavour int

const (
	FlavourUnknown Flavour = iota
	Postgres
	MySQL
	SQLite
)

var _ BaseEnum = Flavour(0)

var flavourNames = map[Flavour]string{
	Postgres: "postgres",
	MySQL:    "mysql",
	SQLite:   "sqlite",
}

var flavourDescs = map[Flavour]string{
	Postgres: "PostgreSQL",
	MySQL:    "MySQL / MariaDB",
	SQLite:   "SQLite 3",
}

// ParseFlavour accepts the names used in configuration files and tags.
func ParseFlavour(s string) Flavour {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "postgres", "postgresql", "pg":
		return Postgres
	case "mysql", "mariadb":
		return MySQL
	case "sqlite", "sqlite3":
		return SQLite
	default:
		return FlavourUnknown
	}
}

func (f Flavour) IsValid() bool { return f >= Postgres && f <= SQLite }

func (f Flavour) Number() int {
	if !f.IsValid() {
		return IllegalValue
	}
	return int(f)
}

func (f Flavour) Name() string {
	if n, ok := flavourNames[f]; ok {
		return n
	}
	return IllegalName
}

func (f Flavour) String() string { return f.Name() }

func (f Flavour) Desc() string {
	if d, ok := flavourDescs[f]; ok {
		return d
	}
	return IllegalDesc
}

// OrderDirection is the sort direction of one ORDER BY term.
type OrderDirection int

const (
	Asc OrderDirection = iota + 1
	Desc
)

var _ BaseEnum = OrderDirection(0)

// ParseOrderDirection accepts "asc"/"desc" and the short forms used in
// index tags ("dsc").
func ParseOrderDirection(s string) OrderDirection {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "asc", "ascending":
		return Asc
	case "desc", "dsc", "descending":
		return Desc
	default:
		return OrderDirection(IllegalValue)
	}
}

func (d OrderDirection) IsValid() bool { return d == Asc || d == Desc }

func (d OrderDirection) Number() int {
	if !d.IsValid() {
		return IllegalValue
	}
	return int(d)
}

// Name returns the SQL keyword.
func (d OrderDirection) Name() string {
	switch d {
	case Asc:
		return "ASC"
	case Desc:
		return "DESC"
	default:
		return IllegalName
	}
}

func (d OrderDirection) String() string { return d.Name() }

func (d OrderDirection) Desc() string {
	switch d {
	case Asc:
		return "ascending"
	case Desc:
		return "descending"
	default:
		return IllegalDesc
	}
}
