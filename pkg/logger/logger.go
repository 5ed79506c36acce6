package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// New создает логгер с уровнем и форматом из конфигурации.
// Поддерживаемые форматы: json (по умолчанию) и text.
func New(logLevel, format string) *logrus.Logger {
	return newLogger(logLevel, format, os.Stdout)
}

func newLogger(logLevel, format string, out io.Writer) *logrus.Logger {
	log := logrus.New()

	switch strings.ToLower(format) {
	case "text":
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339Nano})
	default:
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	}

	log.SetOutput(out)

	// Уровень логирования
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		level = logrus.InfoLevel // Уровень по умолчанию, если передан некорректный
	}
	log.SetLevel(level)
	return log
}
