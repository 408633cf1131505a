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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomoncle/tabula/observer"
	"github.com/tomoncle/tabula/types"
)

func TestParseNotification(t *testing.T) {
	e, err := ParseNotification(`{"table":"query_users","operation":"INSERT","id":42}`)
	require.NoError(t, err)
	assert.Equal(t, "query_users", e.Table)
	assert.Equal(t, observer.Create, e.Operation)
	assert.Equal(t, []any{int64(42)}, e.IDs)
	assert.Equal(t, observer.SourceNotify, e.Source)
	assert.False(t, e.At.IsZero())

	e, err = ParseNotification(`{"table":"accounts","operation":"DELETE","id":"6f1c"}`)
	require.NoError(t, err)
	assert.Equal(t, observer.Delete, e.Operation)
	assert.Equal(t, []any{"6f1c"}, e.IDs)

	e, err = ParseNotification(`{"table":"accounts","operation":"UPDATE","id":null}`)
	require.NoError(t, err)
	assert.Empty(t, e.IDs)

	_, err = ParseNotification(`{"table":"accounts","operation":"TRUNCATE"}`)
	assert.Error(t, err)
	_, err = ParseNotification(`not json`)
	assert.Error(t, err)
}

func TestNewListener(t *testing.T) {
	reg := observer.NewRegistry()

	_, err := NewListener(&ConnectionConfig{Type: "sqlite"}, "", reg, nil)
	assert.True(t, types.IsUnsupportedOperation(err))

	_, err = NewListener(&ConnectionConfig{Type: "postgres"}, "", nil, nil)
	assert.Error(t, err)

	l, err := NewListener(&ConnectionConfig{Type: "postgres"}, "", reg, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultNotifyChannel, l.channel)
	assert.Equal(t, defaultConnectTimeout, l.cfg.ConnectTimeout)
}
