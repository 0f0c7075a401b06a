package logx

import (
	"io"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/rs/zerolog"
)

func init() {
	zerolog.ErrorFieldName = "err"
	zerolog.TimeFieldFormat = timeFormat
}

const timeFormat = "2006-01-02T15:04:05.000Z07:00"

// source yields the zerolog logger an event is written to. A Service is a
// source whose output changes on Apply.
type source interface {
	current() zerolog.Logger
}

type fixed struct{ zl zerolog.Logger }

func (f fixed) current() zerolog.Logger { return f.zl }

// Logger is a structured logger value. The zero value discards everything.
// Loggers derived from a Service follow its sinks across Apply calls.
type Logger struct {
	src    source
	fields []Field
}

func Nop() Logger { return Logger{src: fixed{zerolog.Nop()}} }

// NewWriter logs JSON lines to w. An unknown level means debug.
func NewWriter(w io.Writer, level string) Logger {
	zl := zerolog.New(w).Level(levelOr(level, zerolog.DebugLevel)).With().Timestamp().Logger()
	return Logger{src: fixed{zl}}
}

func (l Logger) IsZero() bool { return l.src == nil && len(l.fields) == 0 }

func (l Logger) zl() zerolog.Logger {
	if l.src == nil {
		return zerolog.Nop()
	}
	return l.src.current()
}

func (l Logger) Enabled(level Level) bool {
	zl := l.zl()
	return zl.GetLevel() != zerolog.Disabled && level >= zl.GetLevel()
}

// With returns a logger that adds fields to every event.
func (l Logger) With(fields ...Field) Logger {
	if len(fields) == 0 {
		return l
	}
	out := l
	out.fields = make([]Field, 0, len(l.fields)+len(fields))
	out.fields = append(append(out.fields, l.fields...), fields...)
	return out
}

func (l Logger) Trace(msg string, fields ...Field) { l.emit(zerolog.TraceLevel, msg, fields) }
func (l Logger) Debug(msg string, fields ...Field) { l.emit(zerolog.DebugLevel, msg, fields) }
func (l Logger) Info(msg string, fields ...Field)  { l.emit(zerolog.InfoLevel, msg, fields) }
func (l Logger) Warn(msg string, fields ...Field)  { l.emit(zerolog.WarnLevel, msg, fields) }
func (l Logger) Error(msg string, fields ...Field) { l.emit(zerolog.ErrorLevel, msg, fields) }

// emit must be called directly from a level method so the caller frame is right.
func (l Logger) emit(level zerolog.Level, msg string, fields []Field) {
	zl := l.zl()
	e := zl.WithLevel(level)
	if e == nil {
		return
	}
	if _, file, line, ok := runtime.Caller(2); ok {
		e.Str(zerolog.CallerFieldName, filepath.Base(file)+":"+strconv.Itoa(line))
	}
	for _, group := range [][]Field{l.fields, fields} {
		for _, f := range group {
			if f != nil {
				f(e)
			}
		}
	}
	e.Msg(msg)
}
