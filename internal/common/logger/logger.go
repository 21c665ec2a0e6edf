package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type Logger struct {
	service string
	zl      zerolog.Logger
}

var (
	out   io.Writer = os.Stdout
	level           = zerolog.InfoLevel
)

func init() {
	zerolog.TimestampFieldName = "timestamp"
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.LevelFieldMarshalFunc = func(l zerolog.Level) string { return strings.ToUpper(l.String()) }
}

// SetOutput redirects every logger created afterwards; nil restores stdout.
func SetOutput(w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	out = w
}

// SetLevel accepts debug | info | warn | error; unknown values keep the current level.
func SetLevel(s string) {
	if l, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s))); err == nil && s != "" {
		level = l
	}
}

func New(service string) *Logger {
	zl := zerolog.New(out).Level(level).With().
		Timestamp().
		Str("service", service).
		Str("hostname", hostname()).
		Logger()
	return &Logger{service: service, zl: zl}
}

// Nop discards everything; used by tests and optional collaborators.
func Nop() *Logger { return &Logger{service: "nop", zl: zerolog.Nop()} }

// With returns a child logger that stamps fields on every entry.
func (l *Logger) With(fields map[string]any) *Logger {
	return &Logger{service: l.service, zl: l.zl.With().Fields(fields).Logger()}
}

func (l *Logger) log(ev *zerolog.Event, action string, fields map[string]any) {
	if fields != nil {
		ev = ev.Fields(fields)
	}
	ev.Str("action", action).Msg(action)
}

func (l *Logger) Info(action string, fields map[string]any)  { l.log(l.zl.Info(), action, fields) }
func (l *Logger) Debug(action string, fields map[string]any) { l.log(l.zl.Debug(), action, fields) }
func (l *Logger) Warn(action string, fields map[string]any)  { l.log(l.zl.Warn(), action, fields) }
func (l *Logger) Error(action string, err error, fields map[string]any) {
	l.log(l.zl.Error().Err(err), action, fields)
}

func hostname() string { h, _ := os.Hostname(); return h }
