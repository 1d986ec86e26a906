// Package log provides the leveled, key=value logger used across ctf.
package log

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level represents log severity levels
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

// levels maps every Level to its label and terminal color.
var levels = [...]struct {
	label string
	color string
}{
	DebugLevel: {"DEBUG", "\033[36m"},
	InfoLevel:  {"INFO", "\033[32m"},
	WarnLevel:  {"WARN", "\033[33m"},
	ErrorLevel: {"ERROR", "\033[31m"},
}

const resetColor = "\033[0m"

func (l Level) String() string {
	if l < DebugLevel || int(l) >= len(levels) {
		return "UNKNOWN"
	}
	return levels[l].label
}

// ParseLevel converts a config string such as "debug" into a Level. An empty
// string selects InfoLevel.
func ParseLevel(s string) (Level, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	switch name {
	case "":
		return InfoLevel, nil
	case "WARNING":
		return WarnLevel, nil
	}
	for l := range levels {
		if levels[l].label == name {
			return Level(l), nil
		}
	}
	return InfoLevel, fmt.Errorf("unknown log level %q", s)
}

// Logger interface defines structured logging methods
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	// With returns a logger that prefixes every entry with the given key/value pairs.
	With(args ...interface{}) Logger
}

// LoggerConfig holds configuration for the logger
type LoggerConfig struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// sink is the writer state shared by a logger and the children made by With.
type sink struct {
	mu    sync.Mutex
	out   io.Writer
	level Level
	json  bool
	color bool
}

// DefaultLogger writes leveled entries to a single writer.
type DefaultLogger struct {
	sink   *sink
	fields []interface{}
}

// New creates a new logger with the given configuration
func New(cfg LoggerConfig) *DefaultLogger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	return &DefaultLogger{sink: &sink{
		out:   out,
		level: cfg.Level,
		json:  cfg.JSONOutput,
		color: isTerminal(out),
	}}
}

// isTerminal reports whether w is a character device and NO_COLOR is unset.
func isTerminal(w io.Writer) bool {
	if _, off := os.LookupEnv("NO_COLOR"); off {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}

// pairs walks args as key/value pairs. A leading odd value is reported with
// an empty key; pairs whose key is not a string are dropped.
func pairs(args []interface{}, fn func(key string, value interface{})) {
	if len(args)%2 == 1 {
		fn("", args[0])
		args = args[1:]
	}
	for ; len(args) >= 2; args = args[2:] {
		if key, ok := args[0].(string); ok {
			fn(key, args[1])
		}
	}
}

func (l *DefaultLogger) log(level Level, msg string, args []interface{}) {
	s := l.sink
	s.mu.Lock()
	defer s.mu.Unlock()
	if level < s.level {
		return
	}

	all := make([]interface{}, 0, len(l.fields)+len(args))
	all = append(append(all, l.fields...), args...)
	now := time.Now().Format(time.DateTime)

	var buf bytes.Buffer
	if s.json {
		entry := map[string]interface{}{"timestamp": now, "level": level.String(), "message": msg}
		pairs(all, func(key string, value interface{}) {
			if key != "" {
				entry[key] = fmt.Sprint(value)
			}
		})
		if err := json.NewEncoder(&buf).Encode(entry); err != nil {
			return
		}
	} else {
		fmt.Fprintf(&buf, "[%s] %s: ", now, level)
		if s.color {
			buf.WriteString(levels[level].color)
		}
		buf.WriteString(msg)
		pairs(all, func(key string, value interface{}) {
			if key == "" {
				fmt.Fprintf(&buf, " %v", value)
				return
			}
			fmt.Fprintf(&buf, " %s=%v", key, value)
		})
		if s.color {
			buf.WriteString(resetColor)
		}
		buf.WriteByte('\n')
	}
	_, _ = s.out.Write(buf.Bytes())
}

func (l *DefaultLogger) Debug(msg string, args ...interface{}) { l.log(DebugLevel, msg, args) }
func (l *DefaultLogger) Info(msg string, args ...interface{})  { l.log(InfoLevel, msg, args) }
func (l *DefaultLogger) Warn(msg string, args ...interface{})  { l.log(WarnLevel, msg, args) }
func (l *DefaultLogger) Error(msg string, args ...interface{}) { l.log(ErrorLevel, msg, args) }

// With returns a child logger sharing the writer and its settings.
func (l *DefaultLogger) With(args ...interface{}) Logger {
	fields := make([]interface{}, 0, len(l.fields)+len(args))
	return &DefaultLogger{sink: l.sink, fields: append(append(fields, l.fields...), args...)}
}

// SetLevel sets the minimum level of l and every logger derived from it.
func (l *DefaultLogger) SetLevel(level Level) {
	l.sink.mu.Lock()
	l.sink.level = level
	l.sink.mu.Unlock()
}

// SetJSONOutput switches between JSON lines and plain text.
func (l *DefaultLogger) SetJSONOutput(enabled bool) {
	l.sink.mu.Lock()
	l.sink.json = enabled
	l.sink.mu.Unlock()
}

type nopLogger struct{}

// Nop returns a logger that discards everything.
func Nop() Logger { return nopLogger{} }

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

func (n nopLogger) With(...interface{}) Logger { return n }

// OrNop returns l, or a discarding logger when l is nil.
func OrNop(l Logger) Logger {
	if l == nil {
		return Nop()
	}
	return l
}
