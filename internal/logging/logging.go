package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger writes structured logs to stdout and a rotating file.
type Logger struct {
	*logrus.Logger
	file *lumberjack.Logger
}

// New creates a Logger writing to dir/fleet-service.log and stdout.
func New(dir, level string) (*Logger, error) {
	if dir == "" {
		dir = "logs"
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create logs folder failed: %w", err)
	}

	file := &lumberjack.Logger{
		Filename:   filepath.Join(dir, "fleet-service.log"),
		MaxSize:    50, // megabytes
		MaxBackups: 7,
		MaxAge:     14, // days
		Compress:   true,
	}

	l := logrus.New()
	l.SetOutput(io.MultiWriter(os.Stdout, file))
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)

	return &Logger{Logger: l, file: file}, nil
}

// NewTest returns a Logger that writes only to w.
func NewTest(w io.Writer) *Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(logrus.DebugLevel)
	return &Logger{Logger: l}
}

// Device returns an entry scoped to a device and, optionally, a robot.
func (l *Logger) Device(deviceID, robotID string) *logrus.Entry {
	fields := logrus.Fields{"device_id": deviceID}
	if robotID != "" {
		fields["robot_id"] = robotID
	}
	return l.WithFields(fields)
}

// Close flushes and closes the log file, if any.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	if err := l.file.Close(); err != nil {
		return fmt.Errorf("close log file failed: %w", err)
	}
	return nil
}
