// Package logging implements hammer.Logger with github.com/sirupsen/logrus,
// writing the same tab-separated record shape the teacher repo's slog
// handler produces, reimplemented as a logrus.Formatter, to both a fixed
// log sink path and stderr.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/HackerOS-Linux-System/hammer/internal/hammer"
)

// recordFormatter renders each entry as:
//
//	<timestamp>\t<level>\t<opID>\t<message>\t<key=value ...>
type recordFormatter struct {
	opID string
}

func (f *recordFormatter) Format(e *logrus.Entry) ([]byte, error) {
	ts := e.Time.UTC().Format("2006-01-02T15:04:05Z")
	line := fmt.Sprintf("%s\t%s\t%s\t%s", ts, e.Level.String(), f.opID, e.Message)

	keys := make([]string, 0, len(e.Data))
	for k := range e.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		line += fmt.Sprintf("\t%s=%v", k, e.Data[k])
	}
	return append([]byte(line), '\n'), nil
}

// Logger adapts a *logrus.Logger to hammer.Logger.
type Logger struct {
	entry *logrus.Entry
	file  *os.File
}

var _ hammer.Logger = (*Logger)(nil)

// New opens logPath (creating parent directories as needed) and returns a
// Logger that writes to both the file and stderr. opID identifies the
// invocation (e.g. an operation's start timestamp) and is attached to
// every record. The caller must Close when done.
func New(logPath, opID string) (*Logger, error) {
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}

	l := logrus.New()
	l.SetOutput(io.MultiWriter(f, os.Stderr))
	l.SetFormatter(&recordFormatter{opID: opID})
	l.SetLevel(logrus.DebugLevel)

	return &Logger{entry: logrus.NewEntry(l), file: f}, nil
}

// NewDiscard returns a Logger that writes nowhere, for tests and dry runs
// that still want a real *Logger to pass around.
func NewDiscard() *Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return &Logger{entry: logrus.NewEntry(l)}
}

func (l *Logger) Debug(msg string, args ...any) { l.entry.WithFields(fields(args)).Debug(msg) }
func (l *Logger) Info(msg string, args ...any)  { l.entry.WithFields(fields(args)).Info(msg) }
func (l *Logger) Warn(msg string, args ...any)  { l.entry.WithFields(fields(args)).Warn(msg) }
func (l *Logger) Error(msg string, args ...any) { l.entry.WithFields(fields(args)).Error(msg) }

// Close closes the underlying log file, if one was opened.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// fields pairs up alternating key/value args into logrus.Fields, matching
// the slog-style calling convention the hammer.Logger interface documents.
func fields(args []any) logrus.Fields {
	f := make(logrus.Fields, len(args)/2)
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", args[i])
		}
		f[key] = args[i+1]
	}
	return f
}
