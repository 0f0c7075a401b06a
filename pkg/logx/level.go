package logx

import (
	"strings"

	"github.com/rs/zerolog"
)

type Level = zerolog.Level

const (
	LevelTrace = zerolog.TraceLevel
	LevelDebug = zerolog.DebugLevel
	LevelInfo  = zerolog.InfoLevel
	LevelWarn  = zerolog.WarnLevel
	LevelError = zerolog.ErrorLevel
)

var levelNames = map[string]zerolog.Level{
	"trace":   zerolog.TraceLevel,
	"debug":   zerolog.DebugLevel,
	"info":    zerolog.InfoLevel,
	"warn":    zerolog.WarnLevel,
	"warning": zerolog.WarnLevel,
	"error":   zerolog.ErrorLevel,
}

func lookupLevel(s string) (zerolog.Level, bool) {
	l, ok := levelNames[strings.ToLower(strings.TrimSpace(s))]
	return l, ok
}

func levelOr(s string, def zerolog.Level) zerolog.Level {
	if l, ok := lookupLevel(s); ok {
		return l
	}
	return def
}

// ValidLevel reports whether s names a known level. Empty means the default.
func ValidLevel(s string) bool {
	if strings.TrimSpace(s) == "" {
		return true
	}
	_, ok := lookupLevel(s)
	return ok
}
