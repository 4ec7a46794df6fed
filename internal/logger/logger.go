// Package logger installs the process-wide slog logger.
package logger

import (
	"log/slog"
	"os"

	"github.com/getsentry/sentry-go"
	slogmulti "github.com/samber/slog-multi"
	slogsentry "github.com/samber/slog-sentry/v2"
)

// Init makes slog.Default write text at debug level in development and
// JSON at info level elsewhere. With a DSN, error-level records also go
// to Sentry.
func Init(isDev bool, sentryDSN, environment string) {
	handler := stdoutHandler(isDev)

	if sentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:              sentryDSN,
			Environment:      environment,
			TracesSampleRate: 0.2,
		})
		if err != nil {
			slog.New(handler).Warn("sentry disabled", "error", err)
		} else {
			handler = slogmulti.Fanout(handler, slogsentry.Option{
				Level: slog.LevelError,
			}.NewSentryHandler())
		}
	}

	slog.SetDefault(slog.New(handler))
}

func stdoutHandler(isDev bool) slog.Handler {
	if isDev {
		return slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	}
	return slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
}

// Component returns a child of the default logger tagged with a component name.
func Component(name string) *slog.Logger {
	return slog.Default().With("component", name)
}
