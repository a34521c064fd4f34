// Package log provides loggers for flowgraph runs.
package log

import (
	"io"
	"os"
	"strconv"

	"github.com/sirupsen/logrus"
)

// EnvDebug enables debug level for loggers returned by New.
const EnvDebug = "FLOWGRAPH_DEBUG"

var debug bool

func init() {
	var err error
	debug, err = strconv.ParseBool(os.Getenv(EnvDebug))
	if err != nil {
		debug = false
	}
}

// New returns a new logger instance with the level. Debug switch from the
// environment takes precedence.
func New(level logrus.Level) *logrus.Logger {
	l := logrus.New()
	l.SetLevel(level)
	if debug {
		l.SetLevel(logrus.DebugLevel)
	}
	return l
}

// Discard returns a logger that writes nothing.
func Discard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
