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
	"fmt"

	"github.com/tomoncle/tabula/dialect"
	"github.com/tomoncle/tabula/model"
	"github.com/tomoncle/tabula/types"
)

// NotifyFunction is the trigger function installed by CreateNotifyFunction.
const NotifyFunction = "tabula_notify"

const notifyFunctionBody = `CREATE FUNCTION %s() RETURNS trigger AS $$
DECLARE
    rec RECORD;
BEGIN
    IF TG_OP = 'DELETE' THEN
        rec := OLD;
    ELSE
        rec := NEW;
    END IF;
    PERFORM pg_notify(TG_ARGV[1], json_build_object(
        'table', TG_TABLE_NAME,
        'operation', TG_OP,
        'id', to_jsonb(rec) -> TG_ARGV[0]
    )::text);
    RETURN rec;
END;
$$ LANGUAGE plpgsql`

// literal renders s as a quoted string literal of the adapter flavour.
func (a *Adapter) literal(s string) string {
	return string(a.dialect.Bun().AppendString(nil, s))
}

func (a *Adapter) unsupported(op string) error {
	return &types.UnsupportedOperationError{Flavour: a.flavour, Operation: op}
}

func (a *Adapter) execAll(ctx context.Context, object string, texts ...string) error {
	for _, text := range texts {
		if _, err := a.Exec(ctx, dialect.Statement{Text: text, Table: object}); err != nil {
			return err
		}
	}
	return nil
}

// CreateDatabase creates a database. ConflictError if it exists.
func (a *Adapter) CreateDatabase(ctx context.Context, name string) error {
	switch a.flavour {
	case types.Postgres, types.MySQL:
	default:
		return a.unsupported("create database")
	}
	if err := a.execAll(ctx, "database "+name, "CREATE DATABASE "+a.dialect.Quote(name)); err != nil {
		return err
	}
	a.logger.Info("database created", "dbname", name)
	return nil
}

// DeleteDatabase drops a database. NotFoundError if it does not exist. On
// Postgres the other sessions connected to it are terminated first.
func (a *Adapter) DeleteDatabase(ctx context.Context, name string) error {
	object := "database " + name
	switch a.flavour {
	case types.Postgres:
		_, err := a.Exec(ctx, dialect.Statement{
			Text:  "SELECT pg_terminate_backend(pid) FROM pg_stat_activity WHERE datname = $1 AND pid <> pg_backend_pid()",
			Args:  []any{name},
			Table: object,
		})
		if err != nil {
			return err
		}
	case types.MySQL:
	default:
		return a.unsupported("delete database")
	}
	if err := a.execAll(ctx, object, "DROP DATABASE "+a.dialect.Quote(name)); err != nil {
		return err
	}
	a.logger.Info("database deleted", "dbname", name)
	return nil
}

// CreateUser creates a login role with password and grants it the use of
// dbName. ConflictError if the role exists.
func (a *Adapter) CreateUser(ctx context.Context, dbName, user, password string) error {
	object := "user " + user
	var texts []string
	switch a.flavour {
	case types.Postgres:
		u := a.dialect.Quote(user)
		texts = []string{
			fmt.Sprintf("CREATE USER %s WITH PASSWORD %s", u, a.literal(password)),
			fmt.Sprintf("GRANT CONNECT ON DATABASE %s TO %s", a.dialect.Quote(dbName), u),
			fmt.Sprintf("GRANT USAGE, CREATE ON SCHEMA public TO %s", u),
		}
	case types.MySQL:
		account := a.literal(user) + "@'%'"
		texts = []string{
			fmt.Sprintf("CREATE USER %s IDENTIFIED BY %s", account, a.literal(password)),
			fmt.Sprintf("GRANT ALL PRIVILEGES ON %s.* TO %s", a.dialect.Quote(dbName), account),
		}
	default:
		return a.unsupported("create user")
	}
	if err := a.execAll(ctx, object, texts...); err != nil {
		return err
	}
	a.logger.Info("user created", "user", user, "dbname", dbName)
	return nil
}

// DeleteUser drops a role. On Postgres the objects it owns are handed over
// to admin first. NotFoundError if the role does not exist.
func (a *Adapter) DeleteUser(ctx context.Context, user, admin string) error {
	object := "user " + user
	var texts []string
	switch a.flavour {
	case types.Postgres:
		u := a.dialect.Quote(user)
		if admin != "" {
			texts = append(texts,
				fmt.Sprintf("REASSIGN OWNED BY %s TO %s", u, a.dialect.Quote(admin)),
				fmt.Sprintf("DROP OWNED BY %s", u),
			)
		}
		texts = append(texts, "DROP USER "+u)
	case types.MySQL:
		texts = []string{"DROP USER " + a.literal(user) + "@'%'"}
	default:
		return a.unsupported("delete user")
	}
	if err := a.execAll(ctx, object, texts...); err != nil {
		return err
	}
	a.logger.Info("user deleted", "user", user)
	return nil
}

// CreateNotifyFunction installs the trigger function that publishes row
// changes with pg_notify. The payload is a JSON object carrying the table,
// the operation and the primary key of the row. owner, when set, becomes
// the owner of the function. Postgres only.
func (a *Adapter) CreateNotifyFunction(ctx context.Context, owner string) error {
	if a.flavour != types.Postgres {
		return a.unsupported("notify function")
	}
	object := "function " + NotifyFunction
	texts := []string{fmt.Sprintf(notifyFunctionBody, NotifyFunction)}
	if owner != "" {
		texts = append(texts, fmt.Sprintf("ALTER FUNCTION %s() OWNER TO %s", NotifyFunction, a.dialect.Quote(owner)))
	}
	return a.execAll(ctx, object, texts...)
}

// NotifyTriggerName returns the name of the change trigger of d.
func NotifyTriggerName(d *model.Descriptor) string {
	return d.Table + "_notify"
}

// CreateNotifyTrigger attaches the notify function to the table of d so
// that every insert, update and delete is published on channel.
func (a *Adapter) CreateNotifyTrigger(ctx context.Context, d *model.Descriptor, channel string) error {
	if a.flavour != types.Postgres {
		return a.unsupported("notify trigger")
	}
	if channel == "" {
		channel = DefaultNotifyChannel
	}
	text := fmt.Sprintf(
		"CREATE TRIGGER %s AFTER INSERT OR UPDATE OR DELETE ON %s FOR EACH ROW EXECUTE FUNCTION %s(%s, %s)",
		a.dialect.Quote(NotifyTriggerName(d)), a.dialect.Quote(d.Table), NotifyFunction,
		a.literal(d.PrimaryKey.Name), a.literal(channel),
	)
	return a.execAll(ctx, "trigger "+NotifyTriggerName(d), text)
}
