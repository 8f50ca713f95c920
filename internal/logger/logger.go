// Copyright (c) Canonical Ltd.
// Licensed under the GPL-3.0 License.

// Package logger provides the process-wide logrus logger used by all chimg
// packages. Only the executable entry point configures it; library code just
// logs through Log.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
)

// Log is the logger shared by all chimg packages.
var Log = logrus.New()

const (
	LevelsFlag    = "log-level"
	LevelsHelp    = "Minimum log level to print to the console."
	ColorFlag     = "log-color"
	ColorFlagHelp = "Whether or not to colorize the console log output."
	FileFlag      = "log-file"
	FileFlagHelp  = "Also write logs (at debug level) to the given file."

	LevelsPlaceholder = "(trace|debug|info|warn|error|panic)"
	ColorsPlaceholder = "(always|auto|never)"

	defaultLevel = logrus.InfoLevel
)

// LogFlags carries the values of the shared logging command line flags.
type LogFlags struct {
	LogColor *string
	LogFile  *string
	LogLevel *string
}

// Levels returns the accepted values for the log level flag.
func Levels() []string {
	levels := make([]string, 0, len(logrus.AllLevels))
	for _, level := range logrus.AllLevels {
		if level == logrus.FatalLevel {
			// logrus' fatal exits the process; chimg always surfaces errors
			// to the caller instead.
			continue
		}
		levels = append(levels, level.String())
	}
	return levels
}

// Colors returns the accepted values for the color flag.
func Colors() []string {
	return []string{"always", "auto", "never"}
}

// Init configures Log from the given flag values.
func Init(flags *LogFlags) error {
	Log.SetOutput(io.Discard)
	Log.SetLevel(logrus.TraceLevel)

	level := defaultLevel
	if flags.LogLevel != nil && *flags.LogLevel != "" {
		parsed, err := logrus.ParseLevel(*flags.LogLevel)
		if err != nil {
			return fmt.Errorf("invalid log level (%s):\n%w", *flags.LogLevel, err)
		}
		level = parsed
	}

	// The color package disables itself when stderr is not a terminal.
	useColor := !color.NoColor
	if flags.LogColor != nil {
		switch *flags.LogColor {
		case "always":
			useColor = true
		case "never":
			useColor = false
		case "auto", "":
		default:
			return fmt.Errorf("invalid log color value (%s)", *flags.LogColor)
		}
	}

	Log.ReplaceHooks(make(logrus.LevelHooks))
	Log.AddHook(newWriterHook(os.Stderr, level, useColor))

	if flags.LogFile != nil && *flags.LogFile != "" {
		logFile, err := os.OpenFile(*flags.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file:\n%w", err)
		}
		Log.AddHook(newWriterHook(logFile, logrus.DebugLevel, false))
	}

	return nil
}

// InitBestEffort runs Init and panics on failure; flag values were already
// validated by the command line parser, so a failure here is a bug.
func InitBestEffort(flags *LogFlags) {
	if err := Init(flags); err != nil {
		panic(err)
	}
}

// InitStderrLog configures plain stderr logging at the default level. Used by
// tests and by tools that do not expose log flags.
func InitStderrLog() {
	level := defaultLevel.String()
	InitBestEffort(&LogFlags{LogLevel: &level})
}

type writerHook struct {
	writer   io.Writer
	minLevel logrus.Level
	colorize bool
}

func newWriterHook(writer io.Writer, minLevel logrus.Level, colorize bool) *writerHook {
	return &writerHook{
		writer:   writer,
		minLevel: minLevel,
		colorize: colorize,
	}
}

func (h *writerHook) Levels() []logrus.Level {
	return logrus.AllLevels[:h.minLevel+1]
}

func (h *writerHook) Fire(entry *logrus.Entry) error {
	level := strings.ToUpper(entry.Level.String())
	if h.colorize {
		level = levelColor(entry.Level).Sprint(level)
	}
	_, err := fmt.Fprintf(h.writer, "%s [%s] %s\n",
		entry.Time.Format("2006-01-02T15:04:05Z07:00"), level, entry.Message)
	return err
}

func levelColor(level logrus.Level) *color.Color {
	switch level {
	case logrus.TraceLevel, logrus.DebugLevel:
		return color.New(color.FgHiBlack)
	case logrus.WarnLevel:
		return color.New(color.FgYellow)
	case logrus.ErrorLevel, logrus.FatalLevel, logrus.PanicLevel:
		return color.New(color.FgRed)
	default:
		return color.New(color.FgHiWhite)
	}
}
