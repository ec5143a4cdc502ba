package logging

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

func ParseLevel(raw string) Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

type Field struct {
	Key   string
	Value any
}

// F builds a field for the variadic log methods.
func F(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// Logger writes logfmt lines. Implementations are safe for concurrent use.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	With(fields ...Field) Logger
}

type writerLogger struct {
	mu    *sync.Mutex
	out   io.Writer
	min   Level
	bound []Field
}

func New(out io.Writer, min Level) Logger {
	if out == nil {
		out = os.Stderr
	}
	return &writerLogger{mu: &sync.Mutex{}, out: out, min: min}
}

func Nop() Logger {
	return &writerLogger{mu: &sync.Mutex{}, out: io.Discard, min: LevelError + 1}
}

func (l *writerLogger) With(fields ...Field) Logger {
	if l == nil {
		return Nop()
	}
	bound := make([]Field, 0, len(l.bound)+len(fields))
	bound = append(bound, l.bound...)
	bound = append(bound, fields...)
	return &writerLogger{mu: l.mu, out: l.out, min: l.min, bound: bound}
}

func (l *writerLogger) Debug(msg string, fields ...Field) { l.emit(LevelDebug, msg, fields) }
func (l *writerLogger) Info(msg string, fields ...Field)  { l.emit(LevelInfo, msg, fields) }
func (l *writerLogger) Warn(msg string, fields ...Field)  { l.emit(LevelWarn, msg, fields) }
func (l *writerLogger) Error(msg string, fields ...Field) { l.emit(LevelError, msg, fields) }

func (l *writerLogger) emit(level Level, msg string, fields []Field) {
	if l == nil || level < l.min {
		return
	}
	var b strings.Builder
	b.WriteString("ts=")
	b.WriteString(time.Now().UTC().Format(time.RFC3339Nano))
	b.WriteString(" level=")
	b.WriteString(level.String())
	b.WriteString(" msg=")
	b.WriteString(encodeValue(msg))
	for _, f := range l.bound {
		writeField(&b, f)
	}
	for _, f := range fields {
		writeField(&b, f)
	}
	b.WriteByte('\n')

	l.mu.Lock()
	_, _ = io.WriteString(l.out, b.String())
	l.mu.Unlock()
}

func writeField(b *strings.Builder, f Field) {
	if f.Key == "" {
		return
	}
	b.WriteByte(' ')
	b.WriteString(f.Key)
	b.WriteByte('=')
	b.WriteString(encodeValue(f.Value))
}

func encodeValue(value any) string {
	switch v := value.(type) {
	case nil:
		return "null"
	case string:
		return quote(v)
	case error:
		return quote(v.Error())
	case time.Duration:
		return quote(v.String())
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return quote(fmt.Sprintf("%v", v))
	}
}

func quote(s string) string {
	if s == "" {
		return `""`
	}
	if strings.ContainsAny(s, " \t\n\r\"=") {
		return strconv.Quote(s)
	}
	return s
}
