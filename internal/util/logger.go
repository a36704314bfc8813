package util

import (
	"log"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	logger     *logrus.Logger
	loggerOnce sync.Once
)

// InitLogger initializes the global logger with the appropriate level
func InitLogger(verbose bool) {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})

	l.SetLevel(logrus.InfoLevel)
	if verbose {
		l.SetLevel(logrus.DebugLevel)
	}

	logger = l
}

// GetLogger returns the configured logger instance
func GetLogger() *logrus.Logger {
	loggerOnce.Do(func() {
		if logger == nil {
			// Fallback initialization with INFO level
			InitLogger(IsVerbose())
		}
	})
	return logger
}

// SetupGlobalLogger replaces the standard log package output so that
// libraries writing through log.Printf end up in the same stream
func SetupGlobalLogger() {
	log.SetFlags(0)
	log.SetOutput(GetLogger().WriterLevel(logrus.InfoLevel))
}

// StdLogger returns a standard library logger writing at the given level,
// for APIs such as http.Server.ErrorLog that only accept *log.Logger
func StdLogger(level logrus.Level) *log.Logger {
	return log.New(GetLogger().WriterLevel(level), "", 0)
}
