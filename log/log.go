// Package log is a small leveled logger used throughout knotrelay. It keeps
// the call-site shape of the teacher's in-house logger (log.I.F(...),
// log.E.Ln(...), log.T.C(func() string {...})) rather than reaching for a
// general purpose structured logging library, since the teacher repo never
// depends on one either.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"

	"github.com/fatih/color"
)

// Level identifies a logging severity.
type Level int32

const (
	Off Level = iota
	Fatal
	Error
	Warn
	Info
	Debug
	Trace
)

var names = map[string]Level{
	"off": Off, "fatal": Fatal, "error": Error, "warn": Warn,
	"info": Info, "debug": Debug, "trace": Trace,
}

// GetLevel parses a level name, defaulting to Info on an unrecognized value.
func GetLevel(s string) Level {
	if l, ok := names[strings.ToLower(strings.TrimSpace(s))]; ok {
		return l
	}
	return Info
}

var current atomic.Int32

func init() { current.Store(int32(Info)) }

// SetLevel adjusts the global log level.
func SetLevel(l Level) { current.Store(int32(l)) }

// SetLevelFromString adjusts the global log level from a level name.
func SetLevelFromString(s string) { SetLevel(GetLevel(s)) }

// logger writes lines at a fixed level, tagged with a colored prefix.
type logger struct {
	level  Level
	tag    string
	colorF func(format string, a ...interface{}) string
	out    io.Writer
}

func newLogger(l Level, tag string, c *color.Color) *logger {
	return &logger{level: l, tag: tag, colorF: c.SprintfFunc(), out: os.Stderr}
}

var (
	F = newLogger(Fatal, "FTL", color.New(color.FgHiRed, color.Bold))
	E = newLogger(Error, "ERR", color.New(color.FgRed))
	W = newLogger(Warn, "WRN", color.New(color.FgYellow))
	I = newLogger(Info, "INF", color.New(color.FgCyan))
	D = newLogger(Debug, "DBG", color.New(color.FgGreen))
	T = newLogger(Trace, "TRC", color.New(color.FgWhite))
)

func (l *logger) enabled() bool { return Level(current.Load()) >= l.level }

// Ln logs its arguments space-joined, nostr-netcat style.
func (l *logger) Ln(a ...interface{}) {
	if !l.enabled() {
		return
	}
	msg := strings.TrimRight(fmt.Sprintln(a...), "\n")
	fmt.Fprintln(l.out, l.colorF("[%s]", l.tag), msg)
	if l.level == Fatal {
		os.Exit(1)
	}
}

// F logs a formatted message.
func (l *logger) F(format string, a ...interface{}) {
	if !l.enabled() {
		return
	}
	fmt.Fprintln(l.out, l.colorF("[%s]", l.tag), fmt.Sprintf(format, a...))
	if l.level == Fatal {
		os.Exit(1)
	}
}

// C lazily evaluates fn only when the level is enabled — for messages whose
// construction (serialization, formatting) is itself expensive.
func (l *logger) C(fn func() string) {
	if !l.enabled() {
		return
	}
	fmt.Fprintln(l.out, l.colorF("[%s]", l.tag), fn())
}

// S dumps one or more values with %+v, for ad-hoc structure inspection.
func (l *logger) S(a ...interface{}) {
	if !l.enabled() {
		return
	}
	for _, v := range a {
		fmt.Fprintln(l.out, l.colorF("[%s]", l.tag), fmt.Sprintf("%+v", v))
	}
}
