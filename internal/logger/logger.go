package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"

	"imgacquisition/internal/config"
)

// Logger provides leveled logging (info/warning/error/critical) to files and stdout/stderr.
type Logger struct {
	infoLog    *logrus.Logger
	warningLog *logrus.Logger
	errorLog   *logrus.Logger
	logDir     string
	mu         sync.Mutex
}

// NewLogger creates a Logger and ensures the log directory exists.
func NewLogger(config *config.Config) *Logger {
	if err := os.MkdirAll(config.LogDirectory, 0755); err != nil {
		log.Fatalf("Failed to create log directory: %v", err)
	}

	logger := &Logger{
		logDir: config.LogDirectory,
	}

	logger.setupLoggers(config.LogTimestamps)
	return logger
}

// Discard returns a Logger that drops everything. Used by tests.
func Discard() *Logger {
	return NewWithWriter(io.Discard)
}

// NewWithWriter returns a Logger sending every level to w and no files.
func NewWithWriter(w io.Writer) *Logger {
	return &Logger{
		infoLog:    newLevelLogger(w, logrus.InfoLevel, true),
		warningLog: newLevelLogger(w, logrus.WarnLevel, true),
		errorLog:   newLevelLogger(w, logrus.ErrorLevel, true),
	}
}

// setupLoggers initializes writers and per-level loggers.
func (l *Logger) setupLoggers(timestamps bool) {
	infoFile := filepath.Join(l.logDir, "info.log")
	warningFile := filepath.Join(l.logDir, "warning.log")
	errorFile := filepath.Join(l.logDir, "error.log")

	infoWriter := io.MultiWriter(os.Stdout, l.openLogFile(infoFile))
	warningWriter := io.MultiWriter(os.Stdout, l.openLogFile(warningFile))
	errorWriter := io.MultiWriter(os.Stderr, l.openLogFile(errorFile))

	l.infoLog = newLevelLogger(infoWriter, logrus.InfoLevel, timestamps)
	l.warningLog = newLevelLogger(warningWriter, logrus.WarnLevel, timestamps)
	l.errorLog = newLevelLogger(errorWriter, logrus.ErrorLevel, timestamps)
}

func newLevelLogger(w io.Writer, level logrus.Level, timestamps bool) *logrus.Logger {
	lg := logrus.New()
	lg.SetOutput(w)
	lg.SetLevel(level)
	lg.SetFormatter(&logrus.TextFormatter{
		DisableColors:    true,
		FullTimestamp:    timestamps,
		DisableTimestamp: !timestamps,
		TimestampFormat:  "2006-01-02 15:04:05.000",
	})
	return lg
}

// openLogFile opens or creates a log file for appending.
func (l *Logger) openLogFile(filename string) *os.File {
	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("Failed to open log file %s: %v", filename, err)
	}
	return file
}

// Info writes a formatted info-level log entry.
func (l *Logger) Info(format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.infoLog.Infof(format, v...)
}

// Warning writes a formatted warning-level log entry.
func (l *Logger) Warning(format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warningLog.Warnf(format, v...)
}

// Error writes a formatted error-level log entry.
func (l *Logger) Error(format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errorLog.Errorf(format, v...)
}

// Critical writes an error-level entry tagged severity=critical. It never exits;
// callers that treat the condition as fatal terminate on their own.
func (l *Logger) Critical(format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errorLog.WithField("severity", "critical").Error(fmt.Sprintf(format, v...))
}

// CleanLogs truncates the specified log file.
func (l *Logger) CleanLogs(fileName string) {
	if l.logDir == "" {
		return
	}
	filePath := filepath.Join(l.logDir, fileName)
	file, err := os.OpenFile(filePath, os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		l.Error("Error opening file: %v", err)
		return
	}
	defer file.Close()

	l.Info("File %s has been cleared.", fileName)
}
