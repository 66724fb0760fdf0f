// Package logging builds the logrus loggers used across the daemon.
package logging

import (
	"io"

	"github.com/sirupsen/logrus"
)

// Logrus represents the logrus logger
type Logrus struct {
	level  string
	output io.Writer
	logger *logrus.Logger
}

// NewLogrus creates a new logrus instance. An unknown level falls back to info.
func NewLogrus(level string, output io.Writer) *Logrus {
	log := logrus.New()
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	log.SetOutput(output)

	return &Logrus{level: level, output: output, logger: log}
}

// Get returns a logger tagged with the given component context.
func (l *Logrus) Get(context string) *logrus.Entry {
	return l.logger.WithFields(logrus.Fields{
		"Context": context,
	})
}

// Discard returns an entry that writes nowhere. Useful for tests.
func Discard() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}
