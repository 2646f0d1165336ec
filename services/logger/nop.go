package logsvc

import "github.com/trezcool/mahudhurio/core"

type nopLogger struct{}

var _ core.Logger = nopLogger{}

// NewNopLogger returns a Logger that drops everything. Used in tests.
func NewNopLogger() core.Logger { return nopLogger{} }

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}
