// Package logging configures the shared logrus logger. Components take a
// child entry from With so every line carries its component name.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger is the entry type passed to components.
type Logger = *logrus.Entry

// Options selects the level and destination of the root logger.
type Options struct {
	Level string
	// File, when set, receives all output. The console must log to a file
	// because stdout belongs to the terminal UI.
	File string
	// Fallback is used when File is empty. Nil means stderr.
	Fallback io.Writer
}

// New builds a root logger. The returned closer releases the log file, if
// one was opened.
func New(opts Options) (*logrus.Logger, io.Closer, error) {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
		DisableColors:   opts.File != "",
	})

	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}
	l.SetLevel(level)

	var closer io.Closer = nopCloser{}
	switch {
	case opts.File != "":
		if err := os.MkdirAll(filepath.Dir(opts.File), 0755); err != nil {
			return nil, nil, fmt.Errorf("create log dir: %w", err)
		}
		f, err := os.OpenFile(opts.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		l.SetOutput(f)
		closer = f
	case opts.Fallback != nil:
		l.SetOutput(opts.Fallback)
	default:
		l.SetOutput(os.Stderr)
	}

	return l, closer, nil
}

// ParseLevel accepts logrus level names in any case. Empty means info.
func ParseLevel(s string) (logrus.Level, error) {
	if strings.TrimSpace(s) == "" {
		return logrus.InfoLevel, nil
	}
	level, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil {
		return 0, fmt.Errorf("log level %q: %w", s, err)
	}
	return level, nil
}

// With returns a child entry tagged with component.
func With(l *logrus.Logger, component string) Logger {
	return l.WithField("component", component)
}

// Discard returns an entry that drops everything. Useful for tests and for
// components constructed without a logger.
func Discard() Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
