package config

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var (
	logg *logrus.Logger
)

func GetLogger() *logrus.Logger {
	return logg
}

func init() {
	logg = logrus.New()
	logg.SetFormatter(&logrus.JSONFormatter{})
	logg.SetOutput(os.Stdout)

	switch strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL"))) {
	case "debug":
		logg.SetLevel(logrus.DebugLevel)
	case "info":
		logg.SetLevel(logrus.InfoLevel)
	case "warn", "warning":
		logg.SetLevel(logrus.WarnLevel)
	default:
		logg.SetLevel(logrus.ErrorLevel)
	}
}

func LogError(logger *logrus.Logger, moduleName string, funcName string, context string, data any, err error) {
	fields := logrus.Fields{
		"module":   moduleName,
		"funcName": funcName,
		"context":  context,
	}
	if data != nil {
		fields["data"] = data
	}
	logger.WithFields(fields).Error(err.Error())
}

// LogWarn records expected-but-noteworthy conditions (unreconciled POS math,
// unknown movement codes, unmapped payment methods). These must never be silent.
func LogWarn(logger *logrus.Logger, moduleName string, funcName string, context string, data any, msg string) {
	fields := logrus.Fields{
		"module":   moduleName,
		"funcName": funcName,
		"context":  context,
	}
	if data != nil {
		fields["data"] = data
	}
	logger.WithFields(fields).Warn(msg)
}
