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
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
)

type Logger = logrus.Logger

const defaultTimestampFormat = "2006-01-02 15:04:05.000"

var (
	loggerRegistryMu sync.RWMutex
	loggerRegistry   = map[string]*logrus.Logger{}
	baseLevel        = ParseLogLevel(EnvDefaultString("TABULA_LOG_LEVEL", "info"))
	consoleLogFormat = EnvDefaultString("CONSOLE_LOG_FORMAT", "text")
	consoleOutput    io.Writer = os.Stdout
)

// ConfigureConsoleLogFormat switches newly created loggers between "text"
// and "json" output.
func ConfigureConsoleLogFormat(format string) {
	loggerRegistryMu.Lock()
	defer loggerRegistryMu.Unlock()
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		consoleLogFormat = "json"
	} else {
		consoleLogFormat = "text"
	}
	for name, l := range loggerRegistry {
		l.SetFormatter(newFormatter(name))
	}
}

// ConfigureOutput redirects every registered logger.
func ConfigureOutput(w io.Writer) {
	loggerRegistryMu.Lock()
	defer loggerRegistryMu.Unlock()
	consoleOutput = w
	for _, l := range loggerRegistry {
		l.SetOutput(w)
	}
}

// ParseLogLevel maps a level name to a logrus level, defaulting to info.
func ParseLogLevel(s string) logrus.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return logrus.TraceLevel
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	default:
		return logrus.InfoLevel
	}
}

// SetLoggerLevel changes the level of one named logger.
func SetLoggerLevel(name string, lvlStr string) bool {
	loggerRegistryMu.RLock()
	l, ok := loggerRegistry[strings.ToUpper(name)]
	loggerRegistryMu.RUnlock()
	if !ok {
		return false
	}
	l.SetLevel(ParseLogLevel(lvlStr))
	return true
}

// SetAllLoggersLevel changes the level of every registered logger and of
// loggers created afterwards.
func SetAllLoggersLevel(lvl logrus.Level) {
	loggerRegistryMu.Lock()
	defer loggerRegistryMu.Unlock()
	baseLevel = lvl
	for _, l := range loggerRegistry {
		l.SetLevel(lvl)
	}
}

// RegisteredLoggers returns the names of all loggers, sorted.
func RegisteredLoggers() []string {
	loggerRegistryMu.RLock()
	defer loggerRegistryMu.RUnlock()
	names := make([]string, 0, len(loggerRegistry))
	for name := range loggerRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewLogger returns the logger registered under name, creating it on first
// use. Names are case-insensitive.
func NewLogger(name string) *logrus.Logger {
	key := strings.ToUpper(strings.TrimSpace(name))
	loggerRegistryMu.RLock()
	l, ok := loggerRegistry[key]
	loggerRegistryMu.RUnlock()
	if ok {
		return l
	}

	loggerRegistryMu.Lock()
	defer loggerRegistryMu.Unlock()
	if l, ok = loggerRegistry[key]; ok {
		return l
	}
	l = logrus.New()
	l.SetOutput(consoleOutput)
	l.SetLevel(baseLevel)
	l.SetReportCaller(false)
	l.SetFormatter(newFormatter(key))
	loggerRegistry[key] = l
	return l
}

func newFormatter(name string) logrus.Formatter {
	if consoleLogFormat == "json" {
		return &logrus.JSONFormatter{
			TimestampFormat: defaultTimestampFormat,
			FieldMap:        logrus.FieldMap{logrus.FieldKeyMsg: "message"},
			CallerPrettyfier: func(f *runtime.Frame) (string, string) {
				return "", fmt.Sprintf("%s:%d", shortPath(f.File), f.Line)
			},
		}
	}
	return &Log4jColorFormatter{Name: name, TimestampFormat: defaultTimestampFormat}
}

// Log4jColorFormatter renders "<time> <LEVEL> [<name>] <file:line> : <msg> k=v".
type Log4jColorFormatter struct {
	Name            string
	TimestampFormat string
	DisableColors   bool
}

func (f *Log4jColorFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var b bytes.Buffer
	ts := f.TimestampFormat
	if ts == "" {
		ts = defaultTimestampFormat
	}
	level := strings.ToUpper(entry.Level.String())
	if !f.DisableColors {
		level = levelColor(entry.Level).Sprintf("%5s", level)
	} else {
		level = fmt.Sprintf("%5s", level)
	}

	b.WriteString(entry.Time.Format(ts))
	b.WriteByte(' ')
	b.WriteString(level)
	fmt.Fprintf(&b, " [%s]", f.Name)
	if entry.HasCaller() {
		caller := fmt.Sprintf("%s:%d", shortPath(entry.Caller.File), entry.Caller.Line)
		if !f.DisableColors {
			caller = color.New(color.FgCyan).Sprint(caller)
		}
		b.WriteByte(' ')
		b.WriteString(caller)
	}
	b.WriteString(" : ")
	b.WriteString(entry.Message)

	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, entry.Data[k])
	}
	b.WriteByte('\n')
	return b.Bytes(), nil
}

func levelColor(level logrus.Level) *color.Color {
	switch level {
	case logrus.TraceLevel, logrus.DebugLevel:
		return color.New(color.FgHiBlack)
	case logrus.InfoLevel:
		return color.New(color.FgGreen)
	case logrus.WarnLevel:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgRed, color.Bold)
	}
}

// shortPath keeps the last directory and the file name.
func shortPath(p string) string {
	p = filepath.ToSlash(p)
	parts := strings.Split(p, "/")
	if len(parts) >= 2 {
		return parts[len(parts)-2] + "/" + parts[len(parts)-1]
	}
	return p
}

// Since formats the elapsed time the way query logs print it.
func Since(start time.Time) string {
	return time.Since(start).Round(time.Microsecond).String()
}
