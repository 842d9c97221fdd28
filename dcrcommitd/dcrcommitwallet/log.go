// Copyright (c) 2015-2017 The btcsuite developers
// Copyright (c) 2017-2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package dcrcommitwallet

import (
	"fmt"
	"os"
	"strings"

	"github.com/decred/slog"
	"google.golang.org/grpc/grpclog"
)

// log is a logger that is initialized with no output filters.  This
// means the package will not perform any logging by default until the caller
// requests it.
var log = slog.Disabled

// UseLogger sets the subsystem logger for this package and routes gRPC
// client logging through it.
func UseLogger(l slog.Logger) {
	grpclog.SetLoggerV2(grpcLogger{l})
	log = l
}

// grpcLogger implements grpclog.LoggerV2 on top of a slog.Logger.  The
// "grpc: " prefix is dropped since the subsystem tag already names the
// source.
type grpcLogger struct {
	slog.Logger
}

var _ grpclog.LoggerV2 = grpcLogger{}

func trim(s string) string {
	return strings.TrimPrefix(s, "grpc: ")
}

func sprint(args []interface{}) string {
	return trim(fmt.Sprint(args...))
}

func (l grpcLogger) V(level int) bool {
	return uint32(l.Level()) <= uint32(level)
}

func (l grpcLogger) Info(args ...interface{})    { l.Logger.Info(sprint(args)) }
func (l grpcLogger) Infoln(args ...interface{})  { l.Logger.Info(sprint(args)) }
func (l grpcLogger) Warning(args ...interface{}) { l.Logger.Warn(sprint(args)) }
func (l grpcLogger) Warningln(args ...interface{}) {
	l.Logger.Warn(sprint(args))
}
func (l grpcLogger) Error(args ...interface{})   { l.Logger.Error(sprint(args)) }
func (l grpcLogger) Errorln(args ...interface{}) { l.Logger.Error(sprint(args)) }

func (l grpcLogger) Infof(format string, args ...interface{}) {
	l.Logger.Infof(trim(format), args...)
}

func (l grpcLogger) Warningf(format string, args ...interface{}) {
	l.Logger.Warnf(trim(format), args...)
}

func (l grpcLogger) Errorf(format string, args ...interface{}) {
	l.Logger.Errorf(trim(format), args...)
}

func (l grpcLogger) Fatal(args ...interface{}) {
	l.Logger.Critical(sprint(args))
	os.Exit(1)
}

func (l grpcLogger) Fatalln(args ...interface{}) {
	l.Logger.Critical(sprint(args))
	os.Exit(1)
}

func (l grpcLogger) Fatalf(format string, args ...interface{}) {
	l.Logger.Criticalf(trim(format), args...)
	os.Exit(1)
}
