// Package purelog provides structured, request-scoped logging for the plugin
// core: a package-level logrus singleton configured once at process start,
// with AddContext used at every call site to attach per-operation fields.
package purelog

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

type ctxKey string

const (
	operationIDKey ctxKey = "purearray.operation_id"

	timestampFormat = "2006-01-02 15:04:05.000000"
)

// Logger is the minimal logging surface every call site uses.
type Logger interface {
	Debugf(format string, args ...interface{})
	Debugln(args ...interface{})
	Infof(format string, args ...interface{})
	Infoln(args ...interface{})
	Warningf(format string, args ...interface{})
	Warningln(args ...interface{})
	Errorf(format string, args ...interface{})
	Errorln(args ...interface{})
}

var (
	mu     sync.RWMutex
	base   = logrus.New()
	inited bool
)

// Options configures the global logger. Module is free-form and is attached
// to every log line so a multi-component process's output can be filtered
// down to one backend/component at a time.
type Options struct {
	Level  string // debug|info|warning|error
	Module string
	Output io.Writer // defaults to os.Stderr when nil
}

// Init configures the process-wide logger. It is safe to call more than
// once; the last call wins. Call it once from main() before any orchestrator
// operation runs.
func Init(opts Options) error {
	level, err := parseLevel(opts.Level)
	if err != nil {
		return err
	}

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	mu.Lock()
	defer mu.Unlock()

	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(level)
	l.SetFormatter(&plainTextFormatter{module: opts.Module, pid: os.Getpid()})

	base = l
	inited = true
	return nil
}

func parseLevel(level string) (logrus.Level, error) {
	switch level {
	case "", "info":
		return logrus.InfoLevel, nil
	case "debug":
		return logrus.DebugLevel, nil
	case "warning", "warn":
		return logrus.WarnLevel, nil
	case "error":
		return logrus.ErrorLevel, nil
	default:
		return logrus.InfoLevel, fmt.Errorf("purelog: invalid level %q", level)
	}
}

type plainTextFormatter struct {
	module string
	pid    int
}

func (f *plainTextFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	b := entry.Buffer
	if b == nil {
		b = &bytes.Buffer{}
	}

	fmt.Fprintf(b, "%s %d %s[%s] ", entry.Time.Format(timestampFormat), f.pid, levelTag(entry.Level), f.module)
	for k, v := range entry.Data {
		fmt.Fprintf(b, "%s=%v ", k, v)
	}
	fmt.Fprintf(b, "%s\n", entry.Message)
	return b.Bytes(), nil
}

func levelTag(level logrus.Level) string {
	switch level {
	case logrus.DebugLevel:
		return "DEBUG"
	case logrus.InfoLevel:
		return "INFO"
	case logrus.WarnLevel:
		return "WARNING"
	case logrus.ErrorLevel:
		return "ERROR"
	case logrus.FatalLevel:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// WithOperation returns a context carrying an operation identifier that
// AddContext will surface on every subsequent log line — e.g. "alloc
// vm-100-disk-0" — so a multi-step orchestrator operation's logs can be
// grepped together without a tracing system.
func WithOperation(ctx context.Context, operation string) context.Context {
	return context.WithValue(ctx, operationIDKey, operation)
}

// AddContext returns a Logger with any operation id from ctx attached as a
// field.
func AddContext(ctx context.Context) Logger {
	mu.RLock()
	l := base
	mu.RUnlock()

	op, ok := ctx.Value(operationIDKey).(string)
	if !ok || op == "" {
		return l
	}
	return l.WithField("op", op)
}

// Flush is a no-op placeholder kept for symmetry with logging backends that
// buffer; logrus writes synchronously so there is nothing to flush, but
// callers that run a shutdown sequence can still call it safely.
func Flush() {}
