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

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tomoncle/tabula/database"
	"github.com/tomoncle/tabula/utils"
)

var version = "0.1.0"

type configKey struct{}

func newRootCmd() *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:   "tabula",
		Short: "Provision databases, roles and change notification",
		Long: `tabula provisions what a tabula-backed service needs before it starts:
databases, login roles and, on PostgreSQL, the trigger function that turns
row changes into notifications.

Settings are read from the --config file, DB_* and TABULA_* environment
variables and the flags below, in increasing precedence.`,
		Version: version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" {
				return nil
			}
			cfg, err := database.LoadConfig(cfgFile, cmd.Root().PersistentFlags())
			if err != nil {
				return err
			}
			utils.ConfigureOutput(cmd.ErrOrStderr())
			utils.ConfigureConsoleLogFormat(cfg.Log.Format)
			utils.SetAllLoggersLevel(utils.ParseLogLevel(cfg.Log.Level))
			cmd.SetContext(context.WithValue(cmd.Context(), configKey{}, cfg))
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "YAML config file")
	pf.String("type", "", "database type: postgres, mysql or sqlite")
	pf.String("driver", "", "postgres driver: pq or pgx")
	pf.String("dsn", "", "data source name, overrides the discrete settings")
	pf.String("host", "", "database host")
	pf.Int("port", 0, "database port")
	pf.String("username", "", "login user")
	pf.String("password", "", "login password")
	pf.String("dbname", "", "database to connect to")
	pf.String("sslmode", "", "postgres sslmode")
	pf.Duration("connect-timeout", 0, "bounded wait for a connection")
	pf.Duration("statement-timeout", 0, "bounded wait for a statement")
	pf.Bool("enable-query-log", false, "log every statement")
	pf.String("log-level", "", "trace, debug, info, warn or error")
	pf.String("log-format", "", "text or json")
	pf.String("notify-channel", "", "notification channel")

	_ = root.RegisterFlagCompletionFunc("type", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"postgres", "mysql", "sqlite"}, cobra.ShellCompDirectiveNoFileComp
	})

	root.AddCommand(newConfigCommand())
	root.AddCommand(newPingCommand())
	root.AddCommand(newDatabaseCommand())
	root.AddCommand(newUserCommand())
	root.AddCommand(newNotifyCommand())
	return root
}

func configFrom(ctx context.Context) (*database.Config, error) {
	if c, ok := ctx.Value(configKey{}).(*database.Config); ok {
		return c, nil
	}
	return nil, fmt.Errorf("configuration not loaded")
}

// connect opens an adapter for the duration of one command.
func connect(cmd *cobra.Command) (*database.Adapter, func(), error) {
	cfg, err := configFrom(cmd.Context())
	if err != nil {
		return nil, nil, err
	}
	a, err := database.Connect(cmd.Context(), &cfg.Connection)
	if err != nil {
		return nil, nil, err
	}
	return a, func() { _ = a.Close() }, nil
}
