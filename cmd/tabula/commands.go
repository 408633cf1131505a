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
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tomoncle/tabula/database"
	"github.com/tomoncle/tabula/observer"
)

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the merged configuration with secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := configFrom(cmd.Context())
			if err != nil {
				return err
			}
			out, err := cfg.Redacted()
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), out)
			return err
		},
	})
	return cmd
}

func newPingCommand() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Check the database is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, done, err := connect(cmd)
			if err != nil {
				return err
			}
			defer done()
			status := a.HealthCheck(cmd.Context())
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(status)
			}
			if !status.Healthy {
				return fmt.Errorf("%s unreachable: %s", a.Flavour(), status.LastError)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s ok (%s)\n", a.Flavour(), status.ResponseTime)
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the health status as JSON")
	return cmd
}

func newDatabaseCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "db",
		Aliases: []string{"database"},
		Short:   "Create or drop databases",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "create NAME",
		Short: "Create a database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, done, err := connect(cmd)
			if err != nil {
				return err
			}
			defer done()
			if err := a.CreateDatabase(cmd.Context(), args[0]); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "database %s created\n", args[0])
			return err
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "drop NAME",
		Short: "Terminate the sessions of a database and drop it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, done, err := connect(cmd)
			if err != nil {
				return err
			}
			defer done()
			if err := a.DeleteDatabase(cmd.Context(), args[0]); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "database %s dropped\n", args[0])
			return err
		},
	})
	return cmd
}

func newUserCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Create or drop login roles",
	}

	var password, grantOn string
	create := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a role and grant it access to a database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				return fmt.Errorf("--user-password is required")
			}
			a, done, err := connect(cmd)
			if err != nil {
				return err
			}
			defer done()
			target := grantOn
			if target == "" {
				target = a.Config().DBName
			}
			if err := a.CreateUser(cmd.Context(), target, args[0], password); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "user %s created on %s\n", args[0], target)
			return err
		},
	}
	create.Flags().StringVar(&password, "user-password", "", "password of the new role")
	create.Flags().StringVar(&grantOn, "grant-on", "", "database to grant access to (default: --dbname)")

	var reassignTo string
	drop := &cobra.Command{
		Use:   "drop NAME",
		Short: "Drop a role, reassigning what it owns",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, done, err := connect(cmd)
			if err != nil {
				return err
			}
			defer done()
			if err := a.DeleteUser(cmd.Context(), args[0], reassignTo); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "user %s dropped\n", args[0])
			return err
		},
	}
	drop.Flags().StringVar(&reassignTo, "reassign-to", "", "role receiving the objects owned by NAME (postgres)")

	cmd.AddCommand(create, drop)
	return cmd
}

func newNotifyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Manage row change notifications (postgres)",
	}

	var owner string
	install := &cobra.Command{
		Use:   "install",
		Short: "Install the trigger function that publishes row changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, done, err := connect(cmd)
			if err != nil {
				return err
			}
			defer done()
			if err := a.CreateNotifyFunction(cmd.Context(), owner); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "function %s installed\n", database.NotifyFunction)
			return err
		},
	}
	install.Flags().StringVar(&owner, "owner", "", "role owning the function")

	listen := &cobra.Command{
		Use:   "listen",
		Short: "Print change events as JSON lines until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := configFrom(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			registry := observer.NewRegistry(observer.WithConcurrency(1))
			_ = registry.Observe(observer.Func(func(_ context.Context, e observer.Event) error {
				return enc.Encode(e)
			}))
			l, err := database.NewListener(&cfg.Connection, cfg.Notify.Channel, registry, database.NewDefaultLogger("NOTIFY"))
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return l.Listen(ctx)
		},
	}

	cmd.AddCommand(install, listen)
	return cmd
}
