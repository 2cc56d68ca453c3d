package types

// Logger is the logging surface every core component depends on instead
// of the standard library logger directly. Mirrors the teacher's
// definition.DefaultLogger method set so a caller's own logrus, zap, or
// test spy logger can be dropped in unmodified.
type Logger interface {
	Info(v ...interface{})
	Infof(format string, v ...interface{})
	Warn(v ...interface{})
	Warnf(format string, v ...interface{})
	Error(v ...interface{})
	Errorf(format string, v ...interface{})
	Debug(v ...interface{})
	Debugf(format string, v ...interface{})
	Fatal(v ...interface{})
	Fatalf(format string, v ...interface{})
	ToggleDebug(value bool) bool
}
