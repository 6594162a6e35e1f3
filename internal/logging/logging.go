// Copyright 2026 rtlforge Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logging configures the process-wide logrus logger.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"rtlforge/internal/config"
)

// Setup points logrus at stderr and, if configured, a rotating log file.
// The returned closer flushes the file writer; it is never nil.
func Setup(s *config.Settings) io.Closer {
	level := strings.ToLower(s.LogLevel)
	if level == "off" || level == "none" {
		logrus.SetOutput(io.Discard)
		return nopCloser{}
	}

	logrus.SetLevel(ParseLevel(level))
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
	})

	if s.LogFile == "" {
		logrus.SetOutput(os.Stderr)
		return nopCloser{}
	}

	fileWriter := &lumberjack.Logger{
		Filename:   s.LogFile,
		MaxSize:    s.LogMaxSizeMB,
		MaxBackups: s.LogMaxBackups,
		MaxAge:     s.LogMaxAgeDays,
		Compress:   s.LogCompress,
	}
	logrus.SetOutput(io.MultiWriter(os.Stderr, fileWriter))
	return fileWriter
}

// ParseLevel maps a settings level name onto logrus (case insensitive).
// Unknown names fall back to info.
func ParseLevel(level string) logrus.Level {
	switch strings.ToLower(level) {
	case "trace":
		return logrus.TraceLevel
	case "debug":
		return logrus.DebugLevel
	case "info", "":
		return logrus.InfoLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
