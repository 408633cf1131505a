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

package utils

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerIsRegisteredCaseInsensitive(t *testing.T) {
	a := NewLogger("utils-test")
	b := NewLogger(" UTILS-TEST ")
	assert.Same(t, a, b)
	assert.Contains(t, RegisteredLoggers(), "UTILS-TEST")

	assert.True(t, SetLoggerLevel("utils-test", "debug"))
	assert.Equal(t, logrus.DebugLevel, a.GetLevel())
	assert.False(t, SetLoggerLevel("no-such-logger", "debug"))
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, logrus.TraceLevel, ParseLogLevel("TRACE"))
	assert.Equal(t, logrus.WarnLevel, ParseLogLevel(" warning "))
	assert.Equal(t, logrus.ErrorLevel, ParseLogLevel("error"))
	assert.Equal(t, logrus.InfoLevel, ParseLogLevel("bogus"))
}

func TestOutputAndFormat(t *testing.T) {
	var buf bytes.Buffer
	ConfigureOutput(&buf)
	defer ConfigureOutput(nopWriter{})

	l := NewLogger("utils-format")
	l.SetLevel(logrus.InfoLevel)

	ConfigureConsoleLogFormat("json")
	l.WithField("table", "users").Info("created")
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "created", line["message"])
	assert.Equal(t, "users", line["table"])

	buf.Reset()
	ConfigureConsoleLogFormat("text")
	l.Formatter.(*Log4jColorFormatter).DisableColors = true
	l.WithField("table", "users").Warn("slow")
	assert.Contains(t, buf.String(), " WARNING [UTILS-FORMAT] : slow table=users")
}

func TestEnvDefaults(t *testing.T) {
	t.Setenv("UTILS_TEST_STRING", "x")
	t.Setenv("UTILS_TEST_BOOL", "true")
	t.Setenv("UTILS_TEST_BAD_BOOL", "maybe")
	t.Setenv("UTILS_TEST_DURATION", "250ms")

	assert.Equal(t, "x", EnvDefaultString("UTILS_TEST_STRING", "y"))
	assert.Equal(t, "y", EnvDefaultString("UTILS_TEST_UNSET", "y"))
	assert.True(t, EnvDefaultBool("UTILS_TEST_BOOL", false))
	assert.True(t, EnvDefaultBool("UTILS_TEST_BAD_BOOL", true))
	assert.Equal(t, 250*time.Millisecond, EnvDefaultDuration("UTILS_TEST_DURATION", time.Second))
	assert.Equal(t, time.Second, EnvDefaultDuration("UTILS_TEST_UNSET", time.Second))
}

func TestSince(t *testing.T) {
	d, err := time.ParseDuration(Since(time.Now().Add(-time.Second)))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, d, time.Second)
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }
