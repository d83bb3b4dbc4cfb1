/*
file: goredis/internal/common/logger.go
*/

// Package common holds the ambient server concerns shared by every
// other package: logging and configuration.
package common

import (
	"log"
	"os"
)

// Log levels.
const (
	INFO_  = "INFO"
	WARN_  = "WARN"
	ERROR_ = "ERROR"
	DEBUG_ = "DEBUG"
)

// Logger is a small level-tagged logger wrapping the standard library
// log.Logger, one underlying logger per level so each keeps its own
// prefix and flags.
type Logger struct {
	infoLogger  *log.Logger
	warnLogger  *log.Logger
	errorLogger *log.Logger
	debugLogger *log.Logger
}

// NewLogger initializes and returns a new Logger instance writing to stderr.
func NewLogger() *Logger {
	return &Logger{
		infoLogger:  log.New(os.Stderr, "[INFO]  ", log.Ldate|log.Ltime),
		warnLogger:  log.New(os.Stderr, "[WARN]  ", log.Ldate|log.Ltime),
		errorLogger: log.New(os.Stderr, "[ERROR] ", log.Ldate|log.Ltime),
		debugLogger: log.New(os.Stderr, "[DEBUG] ", log.Ldate|log.Ltime),
	}
}

func (l *Logger) Info(format string, v ...interface{})  { l.Printf(INFO_, format, v...) }
func (l *Logger) Warn(format string, v ...interface{})  { l.Printf(WARN_, format, v...) }
func (l *Logger) Error(format string, v ...interface{}) { l.Printf(ERROR_, format, v...) }
func (l *Logger) Debug(format string, v ...interface{}) { l.Printf(DEBUG_, format, v...) }

func (l *Logger) Printf(level string, format string, v ...interface{}) {
	switch level {
	case INFO_:
		l.infoLogger.Printf(format, v...)
	case WARN_:
		l.warnLogger.Printf(format, v...)
	case ERROR_:
		l.errorLogger.Printf(format, v...)
	case DEBUG_:
		l.debugLogger.Printf(format, v...)
	default:
		l.infoLogger.Printf(format, v...)
	}
}
