package definition

import (
	"os"

	"github.com/sirupsen/logrus"

	"github.com/marfeitosa/go-paramserver/pkg/ps/types"
)

// DefaultLogger is the logger used when the caller does not supply its
// own implementation of types.Logger. Backed by logrus instead of the
// standard library logger so partition/fabric fields (worker partition
// index, server partition index, param id) can be attached as structured
// fields by callers that want it, rather than string-formatted inline.
type DefaultLogger struct {
	entry *logrus.Entry
	level *logrus.Logger
}

// NewDefaultLogger builds a DefaultLogger writing to stderr at Info level.
func NewDefaultLogger() *DefaultLogger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.InfoLevel)
	return &DefaultLogger{entry: logrus.NewEntry(l), level: l}
}

// WithFields returns a derived logger carrying the given structured
// fields on every subsequent call — the idiomatic logrus equivalent of
// the teacher's prefix-only DefaultLogger.
func (l *DefaultLogger) WithFields(fields map[string]interface{}) *DefaultLogger {
	return &DefaultLogger{entry: l.entry.WithFields(fields), level: l.level}
}

func (l *DefaultLogger) Info(v ...interface{})                    { l.entry.Info(v...) }
func (l *DefaultLogger) Infof(format string, v ...interface{})    { l.entry.Infof(format, v...) }
func (l *DefaultLogger) Warn(v ...interface{})                    { l.entry.Warn(v...) }
func (l *DefaultLogger) Warnf(format string, v ...interface{})    { l.entry.Warnf(format, v...) }
func (l *DefaultLogger) Error(v ...interface{})                   { l.entry.Error(v...) }
func (l *DefaultLogger) Errorf(format string, v ...interface{})   { l.entry.Errorf(format, v...) }
func (l *DefaultLogger) Debug(v ...interface{})                   { l.entry.Debug(v...) }
func (l *DefaultLogger) Debugf(format string, v ...interface{})   { l.entry.Debugf(format, v...) }
func (l *DefaultLogger) Fatal(v ...interface{})                   { l.entry.Fatal(v...) }
func (l *DefaultLogger) Fatalf(format string, v ...interface{})   { l.entry.Fatalf(format, v...) }

func (l *DefaultLogger) ToggleDebug(value bool) bool {
	if value {
		l.level.SetLevel(logrus.DebugLevel)
	} else {
		l.level.SetLevel(logrus.InfoLevel)
	}
	return value
}

var _ types.Logger = (*DefaultLogger)(nil)
