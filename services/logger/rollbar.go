package logsvc

import (
	"fmt"
	"log"

	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"

	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/user"
)

type level int

const (
	levelDebug level = iota
	levelInfo
	levelWarn
	levelError
	levelFatal
)

var levelNames = map[level]string{
	levelDebug: "DEBUG",
	levelInfo:  "INFO",
	levelWarn:  "WARN",
	levelError: "ERROR",
	levelFatal: "FATAL",
}

// RollbarLogger prints to a std logger and reports to rollbar when enabled.
// Debug messages are dropped unless the config is in debug mode.
type RollbarLogger struct {
	std      *log.Logger
	minLevel level
}

var _ core.Logger = (*RollbarLogger)(nil)

func NewRollbarLogger(std *log.Logger, conf *core.Config) *RollbarLogger {
	rollbar.SetToken(conf.RollbarToken)
	rollbar.SetEnvironment(conf.Env)
	rollbar.SetServerHost(conf.Server.Host)
	rollbar.SetCodeVersion(conf.Build)
	rollbar.SetStackTracer(errors.StackTracer)

	minLevel := levelInfo
	if conf.Debug {
		minLevel = levelDebug
	}
	return &RollbarLogger{std: std, minLevel: minLevel}
}

// Enable turns reporting to rollbar on or off. Messages are always printed to the std logger.
func (l RollbarLogger) Enable(enabled bool) {
	rollbar.SetEnabled(enabled)
}

// person returns the rollbar person carried by arg, if any.
func person(arg interface{}) (id, username, email string, ok bool) {
	switch v := arg.(type) {
	case user.User:
		return v.ID, v.Username, v.Email, true
	case *user.User:
		if v != nil {
			return v.ID, v.Username, v.Email, true
		}
	case user.Profile:
		return v.ID, v.Username, v.Email, true
	}
	return "", "", "", false
}

// log splits args into the reported person (first one wins) and the extras
// (errors, map[string]interface{}), then prints and reports the message.
func (l RollbarLogger) log(lvl level, msg string, args []interface{}) {
	if lvl < l.minLevel {
		return
	}

	var personSet bool
	extras := make([]interface{}, 0, len(args))
	for _, arg := range args {
		if id, uname, email, ok := person(arg); ok {
			if !personSet {
				rollbar.SetPerson(id, uname, email)
				personSet = true
			}
			continue
		}
		extras = append(extras, arg)
	}
	if !personSet {
		rollbar.ClearPerson()
	}

	_ = l.std.Output(3, fmt.Sprintf("[%s] %s", levelNames[lvl], msg))
	for _, extra := range extras {
		l.std.Printf("%+v\n", extra)
	}

	report := append([]interface{}{msg}, extras...)
	switch lvl {
	case levelDebug:
		rollbar.Debug(report...)
	case levelInfo:
		rollbar.Info(report...)
	case levelWarn:
		rollbar.Warning(report...)
	case levelError:
		rollbar.Error(report...)
	case levelFatal:
		rollbar.Critical(report...)
	}
}

func (l RollbarLogger) Debug(msg string, args ...interface{}) { l.log(levelDebug, msg, args) }
func (l RollbarLogger) Info(msg string, args ...interface{})  { l.log(levelInfo, msg, args) }
func (l RollbarLogger) Warn(msg string, args ...interface{})  { l.log(levelWarn, msg, args) }
func (l RollbarLogger) Error(msg string, args ...interface{}) { l.log(levelError, msg, args) }

func (l RollbarLogger) Fatal(msg string, args ...interface{}) {
	l.log(levelFatal, msg, args)
	rollbar.Wait()
	l.std.Fatal(msg)
}
