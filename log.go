package resolv

import (
	"io"

	"github.com/sirupsen/logrus"
)

// Log is the logger used throughout the package. It defaults to a discarding
// logger; embedders can replace it (or its level/output) to get visibility
// into cache sweeps, hosts-file loads, and connection lifecycle.
var Log logrus.FieldLogger = newSilentLogger()

func newSilentLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// SetLogger replaces the package-level logger.
func SetLogger(l logrus.FieldLogger) {
	Log = l
}
