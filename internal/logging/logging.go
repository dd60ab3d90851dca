// Package logging builds the logrus logger shared by the CLI commands.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	"golang.org/x/term"
)

// FileName is the log file linked to the current day's log in Options.Dir.
const FileName = "touchx.log"

// Options configures New.
type Options struct {
	Level string
	// Dir, when set, also writes every entry to a daily rotated file there.
	Dir    string
	Output io.Writer
}

// New returns a logger writing to Output (stderr by default).
func New(opts Options) (*logrus.Logger, error) {
	lvl, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(lvl)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
		DisableColors: !isTerminal(out),
	})
	if opts.Dir != "" {
		hook, err := NewFileHook(opts.Dir)
		if err != nil {
			return nil, err
		}
		l.AddHook(hook)
	}
	return l, nil
}

// Discard returns a logger that drops everything.
func Discard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// NewFileHook writes entries of every level to dir/touchx.log.YYYYMMDD.
func NewFileHook(dir string) (logrus.Hook, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	path := filepath.Join(dir, FileName)
	writer, err := rotatelogs.New(
		path+".%Y%m%d",
		rotatelogs.WithLinkName(path),
		rotatelogs.WithRotationTime(24*time.Hour),
		rotatelogs.WithMaxAge(7*24*time.Hour),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	writers := lfshook.WriterMap{}
	for _, lvl := range logrus.AllLevels {
		writers[lvl] = writer
	}
	return lfshook.NewHook(writers, &logrus.JSONFormatter{}), nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
