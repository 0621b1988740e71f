// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package logging

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures a logger built by New.
type Options struct {
	// Verbosity selects the minimum level that is logged. See LevelForVerbosity.
	Verbosity int

	// File, if not empty, is a path that logs are also written to. The file is
	// rotated once it reaches MaxSizeMB megabytes.
	File      string
	MaxSizeMB int

	// Output is where logs are written. If nil, os.Stderr is used.
	Output io.Writer
}

// LevelForVerbosity maps a numeric verbosity to a log level.
//
// Verbosity 1 and below logs errors, up to 3 adds warnings, up to 5 adds
// informational messages, and anything higher logs everything.
func LevelForVerbosity(v int) zapcore.Level {
	switch {
	case v <= 1:
		return zapcore.ErrorLevel
	case v <= 3:
		return zapcore.WarnLevel
	case v <= 5:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}

// New builds a zap logger from opts.
//
// The returned logger's Sync method should be called before exit.
func New(opts Options) *zap.SugaredLogger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	level := zap.NewAtomicLevelAt(LevelForVerbosity(opts.Verbosity))

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(out), level),
	}
	if opts.File != "" {
		maxSize := opts.MaxSizeMB
		if maxSize <= 0 {
			maxSize = 100
		}
		rotator := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    maxSize,
			MaxBackups: 3,
		}
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), zapcore.AddSync(rotator), level))
	}

	return zap.New(zapcore.NewTee(cores...)).Sugar()
}

var _ L = (*zap.SugaredLogger)(nil)
