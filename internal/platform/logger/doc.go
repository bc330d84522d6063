// Package logger provides structured logging for the application using the
// standard library log/slog package.
//
// A request-scoped logger travels in the context. Code that handles a request
// retrieves it with FromContext so that every line carries the trace ID and
// any other attributes attached upstream.
package logger
