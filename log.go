package trafficview

import "github.com/sirupsen/logrus"

// logger receives every diagnostic the engine emits. Recoverable problems
// (skipped shapes, unknown vehicle classes, bad phase indexes) are logged at
// Warn; per-frame stats in debug mode at Debug.
var logger logrus.FieldLogger = logrus.StandardLogger()

// SetLogger replaces the package logger. Passing nil restores the logrus
// standard logger.
func SetLogger(l logrus.FieldLogger) {
	if l == nil {
		l = logrus.StandardLogger()
	}
	logger = l
}
