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
	"sync"
)

var (
	globalMu      sync.RWMutex
	globalAdapter *Adapter
)

// InitDB connects the process-wide adapter and creates the tables of the
// registered models when cfg.Bootstrap.AutoCreate is set. A previous
// process-wide adapter is closed.
func InitDB(ctx context.Context, cfg *Config, opts ...Option) (*Adapter, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database configuration cannot be empty")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a, err := Connect(ctx, &cfg.Connection, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	if cfg.Bootstrap.AutoCreate {
		if err := a.Bootstrap(ctx, cfg.Bootstrap.IgnoreExisting); err != nil {
			_ = a.Close()
			return nil, err
		}
	}
	SetDB(a)
	return a, nil
}

// SetDB replaces the process-wide adapter, closing the previous one.
func SetDB(a *Adapter) {
	globalMu.Lock()
	prev := globalAdapter
	globalAdapter = a
	globalMu.Unlock()
	if prev != nil && prev != a {
		_ = prev.Close()
	}
}

// GetDB returns the process-wide adapter, nil before InitDB or SetDB.
func GetDB() *Adapter {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalAdapter
}

// CloseDB closes the process-wide adapter.
func CloseDB() error {
	globalMu.Lock()
	a := globalAdapter
	globalAdapter = nil
	globalMu.Unlock()
	if a != nil {
		return a.Close()
	}
	return nil
}

// GetHealthStatus checks the process-wide adapter.
func GetHealthStatus(ctx context.Context) *HealthStatus {
	if a := GetDB(); a != nil {
		return a.HealthCheck(ctx)
	}
	return &HealthStatus{
		Healthy:   false,
		Connected: false,
		LastError: "database not initialized",
	}
}

// GetDatabaseStats returns the pool statistics of the process-wide adapter.
func GetDatabaseStats() *DBStats {
	if a := GetDB(); a != nil {
		return a.Stats()
	}
	return &DBStats{}
}
