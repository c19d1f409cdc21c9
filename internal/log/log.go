// Copyright 2020 The gVisor Authors.
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

// Package log centralizes zap.Logger construction so every command and
// package in this module builds loggers the same way, rather than each
// caller reaching for zap.NewProduction directly.
package log

import "go.uber.org/zap"

// base is replaced once, at process start, by New; named loggers are always
// derived from it with With(zap.String("module", name)) so every line
// carries its origin, the way caddy's Logging.Logger(mod) does per-module.
var base = mustNop()

func mustNop() *zap.Logger {
	return zap.NewNop()
}

// New builds the process-wide base logger: a development logger (human
// readable, debug level) when dev is true, otherwise a JSON production
// logger. It must be called once, before any call to Named, typically from
// main.
func New(dev bool) (*zap.Logger, error) {
	var (
		l   *zap.Logger
		err error
	)
	if dev {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	base = l
	return l, nil
}

// Named returns a child of the process-wide base logger tagged with module,
// matching caddy's per-module logger convention. Safe to call before New: it
// then returns a no-op logger, so package-level var initializers can hold a
// Named logger without ordering against main's call to New.
func Named(module string) *zap.Logger {
	return base.With(zap.String("module", module))
}
