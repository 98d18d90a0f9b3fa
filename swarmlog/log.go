// Copyright (c) 2016-2019 Uber Technologies, Inc.
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

// Package swarmlog provides the global, process-wide logger used by every
// component. It wraps a zap.SugaredLogger behind free functions so callers
// never need to thread a logger instance through constructors that don't
// otherwise need one.
package swarmlog

import (
	"sync"

	"go.uber.org/zap"
)

var (
	mu     sync.RWMutex
	logger *zap.SugaredLogger
)

func init() {
	l, err := zap.NewProduction()
	if err != nil {
		l = zap.NewNop()
	}
	logger = l.Sugar()
}

// Configure replaces the global logger with a development (debug) or
// production zap logger. Until it is called, the production logger built in
// init is used.
func Configure(debug bool) error {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	l, err := cfg.Build()
	if err != nil {
		return err
	}
	mu.Lock()
	logger = l.Sugar()
	mu.Unlock()
	return nil
}

func get() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// With returns a logger with structured context attached.
func With(args ...interface{}) *zap.SugaredLogger {
	return get().With(args...)
}

// Debugf logs a formatted debug message.
func Debugf(format string, args ...interface{}) { get().Debugf(format, args...) }

// Infof logs a formatted info message.
func Infof(format string, args ...interface{}) { get().Infof(format, args...) }

// Warnf logs a formatted warning message.
func Warnf(format string, args ...interface{}) { get().Warnf(format, args...) }

// Errorf logs a formatted error message.
func Errorf(format string, args ...interface{}) { get().Errorf(format, args...) }

// Error logs err directly.
func Error(err error) { get().Error(err) }

// Fatalf logs a formatted message and calls os.Exit(1).
func Fatalf(format string, args ...interface{}) { get().Fatalf(format, args...) }

// Sync flushes any buffered log entries.
func Sync() error { return get().Sync() }
