// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package logging defines the logging interface shared by every component,
// and builds the concrete zap logger that binaries use.
package logging

import (
	"fmt"
	"sync"
)

// L accepts logging data.
//
// The method set is a subset of zap's SugaredLogger, so a *zap.SugaredLogger
// can be used directly.
type L interface {
	Error(args ...interface{})
	Warn(args ...interface{})
	Info(args ...interface{})
	Debug(args ...interface{})

	Errorf(fmt string, args ...interface{})
	Warnf(fmt string, args ...interface{})
	Infof(fmt string, args ...interface{})
	Debugf(fmt string, args ...interface{})
}

// Nop is an L that discards everything.
var Nop L = nopLogger{}

// Must returns l, or Nop if l is nil.
func Must(l L) L {
	if l != nil {
		return l
	}
	return Nop
}

type nopLogger struct{}

func (nopLogger) Error(args ...interface{}) {}
func (nopLogger) Warn(args ...interface{})  {}
func (nopLogger) Info(args ...interface{})  {}
func (nopLogger) Debug(args ...interface{}) {}

func (nopLogger) Errorf(fmt string, args ...interface{}) {}
func (nopLogger) Warnf(fmt string, args ...interface{})  {}
func (nopLogger) Infof(fmt string, args ...interface{})  {}
func (nopLogger) Debugf(fmt string, args ...interface{}) {}

// Entry is a message recorded by a Recorder.
type Entry struct {
	Level   string
	Message string
}

// Recorder is an L that keeps every message in memory.
//
// It is safe for concurrent use. The zero value is ready to use.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
}

var _ L = (*Recorder)(nil)

func (r *Recorder) add(level, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, Entry{Level: level, Message: msg})
}

// Entries returns the recorded messages in order.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Entry(nil), r.entries...)
}

// Messages returns the recorded messages at level.
func (r *Recorder) Messages(level string) []string {
	var msgs []string
	for _, e := range r.Entries() {
		if e.Level == level {
			msgs = append(msgs, e.Message)
		}
	}
	return msgs
}

func (r *Recorder) Error(args ...interface{}) { r.add("error", fmt.Sprint(args...)) }
func (r *Recorder) Warn(args ...interface{})  { r.add("warn", fmt.Sprint(args...)) }
func (r *Recorder) Info(args ...interface{})  { r.add("info", fmt.Sprint(args...)) }
func (r *Recorder) Debug(args ...interface{}) { r.add("debug", fmt.Sprint(args...)) }

func (r *Recorder) Errorf(f string, args ...interface{}) { r.add("error", fmt.Sprintf(f, args...)) }
func (r *Recorder) Warnf(f string, args ...interface{})  { r.add("warn", fmt.Sprintf(f, args...)) }
func (r *Recorder) Infof(f string, args ...interface{})  { r.add("info", fmt.Sprintf(f, args...)) }
func (r *Recorder) Debugf(f string, args ...interface{}) { r.add("debug", fmt.Sprintf(f, args...)) }
