// Package logging builds the logrus logger shared by the binaries.
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/olablt/gio-worldmap/config"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New returns a text logger at cfg.Level. With cfg.File set, entries also go
// to a rotated file; the returned Closer flushes and closes it.
func New(cfg config.Log) (*logrus.Logger, io.Closer, error) {
	return NewWithOutput(cfg, os.Stderr)
}

func NewWithOutput(cfg config.Log, stderr io.Writer) (*logrus.Logger, io.Closer, error) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}
	l := logrus.New()
	l.SetLevel(level)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})

	var closer io.Closer = nopCloser{}
	out := stderr
	if cfg.File != "" {
		rot := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		out = io.MultiWriter(stderr, rot)
		closer = rot
	}
	l.SetOutput(out)
	return l, closer, nil
}
