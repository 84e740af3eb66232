// Package logging builds the three diagnostic channels of an environment:
// compile diagnostics, runtime diagnostics and script print output.
package logging

import (
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
)

// Level is the severity scale shared by all channels.
type Level uint8

const (
	Debug Level = iota
	Info
	Warning
	Error
	None
)

var levelNames = [...]string{
	Debug:   "debug",
	Info:    "info",
	Warning: "warning",
	Error:   "error",
	None:    "none",
}

func (l Level) String() string {
	if int(l) < len(levelNames) {
		return levelNames[l]
	}
	return fmt.Sprintf("Level(%d)", uint8(l))
}

// ParseLevel parses a level name. "warn" is accepted for Warning and "off"
// for None.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return Debug, nil
	case "info":
		return Info, nil
	case "warning", "warn":
		return Warning, nil
	case "error":
		return Error, nil
	case "none", "off":
		return None, nil
	}
	return None, fmt.Errorf("unknown log level %q", s)
}

// Zerolog maps l onto the zerolog scale.
func (l Level) Zerolog() zerolog.Level {
	switch l {
	case Debug:
		return zerolog.DebugLevel
	case Info:
		return zerolog.InfoLevel
	case Warning:
		return zerolog.WarnLevel
	case Error:
		return zerolog.ErrorLevel
	}
	return zerolog.Disabled
}

// Levels configures each channel independently.
type Levels struct {
	Compile Level
	Runtime Level
	Print   Level
}

// DefaultLevels reports warnings and errors, and shows script output.
func DefaultLevels() Levels {
	return Levels{Compile: Warning, Runtime: Warning, Print: Info}
}

// Channel names, carried in the "channel" field of every event.
const (
	CompileChannel = "compile"
	RuntimeChannel = "runtime"
	PrintChannel   = "print"
)

// Sinks holds one logger per channel.
type Sinks struct {
	Compile zerolog.Logger
	Runtime zerolog.Logger
	Print   zerolog.Logger
}

// New returns sinks writing JSON diagnostics to w. Print output is rendered
// as bare message lines.
func New(w io.Writer, levels Levels) Sinks {
	if w == nil {
		return Nop()
	}
	return Sinks{
		Compile: channel(w, CompileChannel, levels.Compile),
		Runtime: channel(w, RuntimeChannel, levels.Runtime),
		Print:   channel(PrintWriter(w), PrintChannel, levels.Print),
	}
}

// NewConsole returns sinks that render diagnostics for a terminal.
func NewConsole(w io.Writer, levels Levels, color bool) Sinks {
	console := zerolog.ConsoleWriter{Out: w, NoColor: !color, PartsExclude: []string{zerolog.TimestampFieldName}}
	return Sinks{
		Compile: channel(console, CompileChannel, levels.Compile),
		Runtime: channel(console, RuntimeChannel, levels.Runtime),
		Print:   channel(PrintWriter(w), PrintChannel, levels.Print),
	}
}

// Nop returns sinks that discard everything.
func Nop() Sinks {
	return Sinks{Compile: zerolog.Nop(), Runtime: zerolog.Nop(), Print: zerolog.Nop()}
}

func channel(w io.Writer, name string, level Level) zerolog.Logger {
	return zerolog.New(w).Level(level.Zerolog()).With().Str("channel", name).Logger()
}

// PrintWriter renders only the message of each event.
func PrintWriter(w io.Writer) io.Writer {
	return zerolog.ConsoleWriter{
		Out:     w,
		NoColor: true,
		PartsOrder: []string{
			zerolog.MessageFieldName,
		},
		FieldsExclude: []string{"channel"},
	}
}
