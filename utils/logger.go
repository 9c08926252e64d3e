package utils

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var (
	InfoLogger  *logrus.Logger
	ErrorLogger *logrus.Logger
)

func InitLogger() {
	InfoLogger = logrus.New()
	ErrorLogger = logrus.New()

	// Info ke stdout, error ke stderr
	InfoLogger.SetOutput(os.Stdout)
	ErrorLogger.SetOutput(os.Stderr)

	setFormatter(&logrus.TextFormatter{FullTimestamp: true})

	InfoLogger.SetLevel(logrus.InfoLevel)
	ErrorLogger.SetLevel(logrus.ErrorLevel)
}

// ConfigureLogger applies LOG_LEVEL and LOG_FORMAT ("json" or "text").
// An unknown level leaves the defaults in place.
func ConfigureLogger(level, format string) {
	if strings.EqualFold(format, "json") {
		setFormatter(&logrus.JSONFormatter{})
	}
	if level == "" {
		return
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		ErrorLogger.Printf("Unknown LOG_LEVEL %q, keeping info", level)
		return
	}
	InfoLogger.SetLevel(lvl)
}

func setFormatter(f logrus.Formatter) {
	InfoLogger.SetFormatter(f)
	ErrorLogger.SetFormatter(f)
}

// SilenceLogger discards all log output. Used by tests that exercise failure paths.
func SilenceLogger() {
	InitLogger()
	InfoLogger.SetOutput(io.Discard)
	ErrorLogger.SetOutput(io.Discard)
}
