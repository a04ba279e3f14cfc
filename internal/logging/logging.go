// Package logging configures the logrus logger shared by the build.
package logging

import (
	"io"

	"github.com/sirupsen/logrus"
)

// Verbosity is what the user asked for on the command line.
type Verbosity struct {
	Quiet   bool
	Verbose bool
	Debug   bool
}

// Level maps v to a log level. Without flags only warnings and errors are
// shown. When several flags are given debug beats verbose beats quiet.
func (v Verbosity) Level() logrus.Level {
	switch {
	case v.Debug:
		return logrus.DebugLevel
	case v.Verbose:
		return logrus.InfoLevel
	case v.Quiet:
		return logrus.ErrorLevel
	default:
		return logrus.WarnLevel
	}
}

// Configure sets the level of log and sends its output to out.
func Configure(log *logrus.Logger, out io.Writer, v Verbosity) {
	log.SetOutput(out)
	log.SetLevel(v.Level())
	log.SetFormatter(&logrus.TextFormatter{
		DisableTimestamp: !v.Debug,
		FullTimestamp:    true,
	})
}
