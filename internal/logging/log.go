// Package logging builds module-scoped log15 loggers that forward
// error and critical records to Sentry.
package logging

import (
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/inconshreveable/log15"
)

// NewLog returns a logger tagged with module. Error and crit records are
// also captured by Sentry when a client has been initialised.
func NewLog(module string) log15.Logger {
	lg := log15.New("module", module)

	h := lg.GetHandler()
	sentryHandle := log15.FuncHandler(func(r *log15.Record) error {
		if r.Lvl <= log15.LvlError {
			msg := string(log15.JsonFormat().Format(r))
			level := sentry.LevelError
			if r.Lvl == log15.LvlCrit {
				level = sentry.LevelFatal
			}
			go func(m string, l sentry.Level) {
				sentry.WithScope(func(scope *sentry.Scope) {
					scope.SetLevel(l)
					sentry.CaptureMessage(m)
				})
			}(msg, level)
		}
		return nil
	})

	lg.SetHandler(log15.MultiHandler(h, sentryHandle))
	return lg
}

// Setup configures the root handler level and format, and initialises
// Sentry when dsn is non-empty. The returned func flushes Sentry.
func Setup(level, format, sentryDSN, environment string) (func(), error) {
	lvl, err := log15.LvlFromString(level)
	if err != nil {
		return nil, err
	}

	fmtr := log15.LogfmtFormat()
	switch format {
	case "json":
		fmtr = log15.JsonFormat()
	case "terminal":
		fmtr = log15.TerminalFormat()
	}
	log15.Root().SetHandler(log15.LvlFilterHandler(lvl, log15.StreamHandler(os.Stderr, fmtr)))

	if sentryDSN == "" {
		return func() {}, nil
	}
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:         sentryDSN,
		Environment: environment,
	}); err != nil {
		return nil, err
	}
	return func() { sentry.Flush(2 * time.Second) }, nil
}
