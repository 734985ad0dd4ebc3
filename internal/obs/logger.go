/*
Copyright 2024 The atc-router Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package obs provides the logging setup used across the router: a thin
// wrapper over logrus configured the way the teacher's lib/utils.InitLogger
// and NewLoggerForTests configure the standard logger, trimmed of the
// CLI-purpose/kingpin pieces this module has no use for.
package obs

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is a component-scoped logrus entry.
type Logger struct {
	*logrus.Entry
}

// NewLogger returns a Logger tagging every entry with component, drawing
// from the package-level standard logger configured by Init/InitForTests.
func NewLogger(component string) *Logger {
	return &Logger{Entry: logrus.WithField("component", component)}
}

// WithFields returns a derived Logger carrying the additional fields.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	return &Logger{Entry: l.Entry.WithFields(logrus.Fields(fields))}
}

// Init configures the package-global logrus logger for production use: a
// text formatter to stderr at the given level, mirroring the teacher's
// InitLogger(LoggingForDaemon, level).
func Init(level logrus.Level) {
	logrus.StandardLogger().ReplaceHooks(make(logrus.LevelHooks))
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logrus.SetOutput(os.Stderr)
}

// InitForTests configures the package-global logger after the teacher's
// NewLoggerForTests: JSON formatting and debug level, with output discarded.
func InitForTests() {
	logger := logrus.StandardLogger()
	logger.ReplaceHooks(make(logrus.LevelHooks))
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.DebugLevel)
	logger.SetOutput(io.Discard)
}
