// Package logging configures the process-wide zerolog writer and hands out
// component-scoped sub-loggers. No package-level logger is exported;
// callers receive a zerolog.Logger value at construction time (see the
// teacher's dependency-injection convention generalized in SPEC_FULL.md).
package logging

import (
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// New builds the base logger for the process. debug enables verbose
// (debug-level) logging; otherwise info and above are emitted.
func New(debug bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}

	writer := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	return zerolog.New(writer).Level(level).With().Timestamp().Logger()
}

// Component returns a sub-logger tagged with the owning component's name,
// mirroring the "component" field convention used throughout the corpus.
func Component(base zerolog.Logger, name string) zerolog.Logger {
	return base.With().Str("component", name).Logger()
}

// ChiMiddleware returns an access-log middleware equivalent to chi's own
// middleware.Logger, but emitting through the given zerolog.Logger instead
// of stdlib log, via chi's pluggable middleware.RequestLogger formatter
// hook (the teacher's bare middleware.Logger adapted to this module's
// structured-logging stack).
func ChiMiddleware(log zerolog.Logger) func(http.Handler) http.Handler {
	return middleware.RequestLogger(&chiLogFormatter{log: log.With().Str("component", "http").Logger()})
}

type chiLogFormatter struct {
	log zerolog.Logger
}

func (f *chiLogFormatter) NewLogEntry(r *http.Request) middleware.LogEntry {
	return &chiLogEntry{log: f.log, method: r.Method, path: r.URL.Path, reqID: middleware.GetReqID(r.Context())}
}

type chiLogEntry struct {
	log    zerolog.Logger
	method string
	path   string
	reqID  string
}

func (e *chiLogEntry) Write(status, bytes int, _ http.Header, elapsed time.Duration, _ interface{}) {
	e.log.Info().
		Str("request_id", e.reqID).
		Str("method", e.method).
		Str("path", e.path).
		Int("status", status).
		Int("bytes", bytes).
		Dur("elapsed", elapsed).
		Msg("http request")
}

func (e *chiLogEntry) Panic(v interface{}, stack []byte) {
	e.log.Error().
		Str("request_id", e.reqID).
		Str("method", e.method).
		Str("path", e.path).
		Interface("panic", v).
		Bytes("stack", stack).
		Msg("http handler panic")
}
