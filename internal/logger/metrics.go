package logger

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Entry is one log line's metric fields (duration, counts, status), kept
// separate from the tracing fields carried in the context.
//
//	logger.With(logger.Fields{"changed": 2}).WithDuration(ms).Info(ctx, "Detection pass completed")
type Entry struct {
	fields Fields
}

func With(fields Fields) *Entry {
	return &Entry{fields: fields}
}

// With returns a copy of e with fields merged in.
func (e *Entry) With(fields Fields) *Entry {
	merged := make(Fields, len(e.fields)+len(fields))
	for k, v := range e.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &Entry{fields: merged}
}

func (e *Entry) WithDuration(ms int64) *Entry { return e.With(Fields{FieldDurationMs: ms}) }

func (e *Entry) WithCount(n int) *Entry { return e.With(Fields{FieldCount: n}) }

func (e *Entry) WithStatus(status string) *Entry { return e.With(Fields{FieldStatus: status}) }

func (e *Entry) Info(ctx context.Context, format string, args ...interface{}) {
	e.emit(ctx, logrus.InfoLevel, format, args...)
}

func (e *Entry) Warn(ctx context.Context, format string, args ...interface{}) {
	e.emit(ctx, logrus.WarnLevel, format, args...)
}

func (e *Entry) Error(ctx context.Context, format string, args ...interface{}) {
	e.emit(ctx, logrus.ErrorLevel, format, args...)
}

func (e *Entry) emit(ctx context.Context, level logrus.Level, format string, args ...interface{}) {
	FromContext(ctx).WithFields(e.fields).Logf(level, format, args...)
}
