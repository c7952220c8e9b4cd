package testutil

import (
	"io"

	"github.com/sirupsen/logrus"
)

// Logger returns a silent logrus entry for services under test.
func Logger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	l.SetLevel(logrus.DebugLevel)
	return logrus.NewEntry(l)
}
