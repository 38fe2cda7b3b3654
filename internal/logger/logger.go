package logger

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

const timestampFormat = "2006-01-02T15:04:05.000Z07:00"

const redacted = "[redacted]"

// rotated file writers, closed by Sync.
var (
	closersMu sync.Mutex
	closers   []io.Closer
)

// Logger wraps logrus.Entry to provide structured logging with context support.
type Logger struct {
	*logrus.Entry
}

// New builds a Logger from opts.
func New(opts Options) *Logger {
	base := logrus.New()
	level, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	base.SetLevel(level)
	base.SetReportCaller(true)
	base.SetFormatter(newFormatter(opts.Format))
	base.SetOutput(opts.writer())
	base.AddHook(redactHook{})

	service := opts.Service
	if service == "" {
		service = "examwatch"
	}
	return &Logger{Entry: base.WithField(FieldService, service)}
}

func (o Options) writer() io.Writer {
	if o.Output != nil {
		return o.Output
	}
	if o.Env == "local" || o.File.Path == "" {
		return os.Stdout
	}

	file := &lumberjack.Logger{
		Filename:   o.File.Path,
		MaxSize:    o.File.MaxSizeMB,
		MaxBackups: o.File.MaxBackups,
		MaxAge:     o.File.MaxAgeDays,
		Compress:   o.File.Compress,
	}
	closersMu.Lock()
	closers = append(closers, file)
	closersMu.Unlock()

	if o.File.Only {
		return file
	}
	return io.MultiWriter(os.Stdout, file)
}

func newFormatter(format string) logrus.Formatter {
	if strings.EqualFold(format, "text") {
		return &logrus.TextFormatter{
			FullTimestamp:    true,
			TimestampFormat:  timestampFormat,
			CallerPrettyfier: shortCaller,
		}
	}
	return &logrus.JSONFormatter{
		TimestampFormat: timestampFormat,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
		CallerPrettyfier: shortCaller,
	}
}

// shortCaller trims the package path from the function and the directory
// from the file.
func shortCaller(frame *runtime.Frame) (string, string) {
	fn := frame.Function
	if i := strings.LastIndex(fn, "/"); i >= 0 {
		fn = fn[i+1:]
	}
	return fn, filepath.Base(frame.File) + ":" + strconv.Itoa(frame.Line)
}

// redactHook masks field values whose key names a credential.
type redactHook struct{}

func (redactHook) Levels() []logrus.Level { return logrus.AllLevels }

func (redactHook) Fire(e *logrus.Entry) error {
	for k := range e.Data {
		if isSensitive(k) {
			e.Data[k] = redacted
		}
	}
	return nil
}

func isSensitive(key string) bool {
	key = strings.ToLower(key)
	for _, marker := range []string{"secret", "password", "api_key", "apikey", "token", "authorization"} {
		if strings.Contains(key, marker) {
			return true
		}
	}
	return false
}

// Sync closes rotated log files. Call it before the process exits.
func Sync() error {
	closersMu.Lock()
	defer closersMu.Unlock()

	var first error
	for _, c := range closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	closers = nil
	return first
}

// WithFields returns a derived Logger with fields added.
func (l *Logger) WithFields(fields Fields) *Logger {
	return &Logger{Entry: l.Entry.WithFields(logrus.Fields(fields))}
}

// WithField returns a derived Logger with one field added.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{Entry: l.Entry.WithField(key, value)}
}

// WithError returns a derived Logger carrying err.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{Entry: l.Entry.WithError(err)}
}

func CtxDebug(ctx context.Context, format string, args ...interface{}) {
	FromContext(ctx).Debugf(format, args...)
}

func CtxInfo(ctx context.Context, format string, args ...interface{}) {
	FromContext(ctx).Infof(format, args...)
}

func CtxWarn(ctx context.Context, format string, args ...interface{}) {
	FromContext(ctx).Warnf(format, args...)
}

func CtxError(ctx context.Context, format string, args ...interface{}) {
	FromContext(ctx).Errorf(format, args...)
}
