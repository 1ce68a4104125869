// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package logging builds the zap-backed logr loggers handed to the solvers.
package logging

import (
	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	uberzap "go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Verbosity levels understood by the solvers.
const (
	DEFAULT = 0 // start and exit summary
	VERBOSE = 1 // one line per termination check
	DEBUG   = 2 // restart events
)

// NewLogger returns a logger that emits messages up to the given verbosity.
// Development mode uses the console encoder with caller information.
func NewLogger(verbosity int, development bool) (logr.Logger, error) {
	var cfg uberzap.Config
	if development {
		cfg = uberzap.NewDevelopmentConfig()
	} else {
		cfg = uberzap.NewProductionConfig()
		cfg.Sampling = nil
	}
	cfg.Level = uberzap.NewAtomicLevelAt(zapcore.Level(-verbosity))
	z, err := cfg.Build(uberzap.AddCaller())
	if err != nil {
		return logr.Discard(), err
	}
	return zapr.NewLogger(z), nil
}

// NewTestLogger creates a development logger that emits every level.
func NewTestLogger() logr.Logger {
	logger, err := NewLogger(DEBUG, true)
	if err != nil {
		return logr.Discard()
	}
	return logger
}
