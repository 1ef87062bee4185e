package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Setup configures the standard logrus logger. Production defaults to JSON
// output; format overrides it when set to "json" or "text".
func Setup(level, format string, production bool) {
	SetupLogger(logrus.StandardLogger(), os.Stdout, level, format, production)
}

func SetupLogger(logger *logrus.Logger, out io.Writer, level, format string, production bool) {
	logger.SetOutput(out)

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)

	useJSON := production
	switch format {
	case "json":
		useJSON = true
	case "text":
		useJSON = false
	}

	if useJSON {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	if err != nil && level != "" {
		logger.WithField("level", level).Warn("unknown log level, using info")
	}
}

// Component returns an entry tagged with the component name.
func Component(name string) *logrus.Entry {
	return logrus.WithField("component", name)
}
