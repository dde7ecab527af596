package logger

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

type Fields = logrus.Fields

var Logger *logrus.Logger

func init() {
	Logger = logrus.New()
	Logger.Out = os.Stdout
	Logger.Formatter = &logrus.TextFormatter{
		DisableLevelTruncation: true,
		PadLevelText:           true,
		TimestampFormat:        "2006/01/02 15:04:05",
		FullTimestamp:          true,
	}
}

// Setup applies level and format from configuration. Unknown values keep the defaults.
func Setup(level, format string) {
	if lvl, err := logrus.ParseLevel(strings.ToLower(level)); err == nil {
		Logger.SetLevel(lvl)
	}
	if strings.EqualFold(format, "json") {
		Logger.Formatter = &logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"}
	}
}

func WithFields(fields Fields) *logrus.Entry {
	return Logger.WithFields(fields)
}

func Debugf(fmt string, args ...any) {
	Logger.Debugf(fmt, args...)
}

func Infof(fmt string, args ...any) {
	Logger.Infof(fmt, args...)
}

func Warnf(fmt string, args ...any) {
	Logger.Warnf(fmt, args...)
}

func Errorf(fmt string, args ...any) {
	Logger.Errorf(fmt, args...)
}

func Fatalf(fmt string, args ...any) {
	Logger.Fatalf(fmt, args...)
}
