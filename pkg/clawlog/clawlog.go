// Package clawlog is clawbox's own leveled logger. It follows the shape of
// minimega's pkg/minilog: a small set of named sinks, a minimum level per
// sink, and a level plus caller-file:line prologue on every line.
package clawlog

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strconv"
	"sync"

	"github.com/fatih/color"
)

// Level is a logging severity, ordered least to most severe.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
	FATAL
)

func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "FATAL"
	}
}

var levelColor = map[Level]*color.Color{
	DEBUG: color.New(color.FgWhite),
	INFO:  color.New(color.FgCyan),
	WARN:  color.New(color.FgYellow),
	ERROR: color.New(color.FgRed),
	FATAL: color.New(color.FgRed, color.Bold),
}

type sink struct {
	name  string
	w     io.Writer
	level Level
	color bool
}

var (
	mu    sync.Mutex
	sinks = map[string]*sink{}
)

// Init registers the default stderr sink at INFO. Safe to call more than
// once; later calls are no-ops if "stderr" is already registered.
func Init() {
	mu.Lock()
	defer mu.Unlock()

	if _, ok := sinks["stderr"]; ok {
		return
	}

	sinks["stderr"] = &sink{
		name:  "stderr",
		w:     os.Stderr,
		level: INFO,
		color: isTerminal(os.Stderr),
	}
}

// AddSink registers (or replaces) a named output sink.
func AddSink(name string, w io.Writer, level Level, useColor bool) {
	mu.Lock()
	defer mu.Unlock()

	sinks[name] = &sink{name: name, w: w, level: level, color: useColor}
}

// RemoveSink unregisters a named sink, if present.
func RemoveSink(name string) {
	mu.Lock()
	defer mu.Unlock()

	delete(sinks, name)
}

// SetLevel adjusts the minimum level for an existing sink. No-op if the sink
// isn't registered.
func SetLevel(name string, level Level) {
	mu.Lock()
	defer mu.Unlock()

	if s, ok := sinks[name]; ok {
		s.level = level
	}
}

func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func prologue(level Level) string {
	msg := level.String() + " "

	_, file, line, ok := runtime.Caller(3)
	if ok {
		short := file
		for i := len(file) - 1; i > 0; i-- {
			if file[i] == '/' {
				short = file[i+1:]
				break
			}
		}
		msg += short + ":" + strconv.Itoa(line) + ": "
	}

	return msg
}

func dispatch(level Level, msg string) {
	mu.Lock()
	targets := make([]*sink, 0, len(sinks))
	for _, s := range sinks {
		if level >= s.level {
			targets = append(targets, s)
		}
	}
	mu.Unlock()

	line := prologue(level) + msg

	for _, s := range targets {
		if s.color {
			levelColor[level].Fprintln(s.w, line)
		} else {
			fmt.Fprintln(s.w, line)
		}
	}
}

func Debugf(format string, args ...interface{}) { dispatch(DEBUG, fmt.Sprintf(format, args...)) }
func Infof(format string, args ...interface{})  { dispatch(INFO, fmt.Sprintf(format, args...)) }
func Warnf(format string, args ...interface{})  { dispatch(WARN, fmt.Sprintf(format, args...)) }
func Errorf(format string, args ...interface{}) { dispatch(ERROR, fmt.Sprintf(format, args...)) }

// Fatalf logs at FATAL and exits 1. Reserved for truly unrecoverable startup
// failures; verb-level failures must use clawerr.UserFacingError instead so
// that main can control the exit path uniformly.
func Fatalf(format string, args ...interface{}) {
	dispatch(FATAL, fmt.Sprintf(format, args...))
	os.Exit(1)
}
