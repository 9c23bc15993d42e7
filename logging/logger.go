package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

var Logger = logrus.New()

// Init configures the global Logger to write to stdout. Production gets JSON
// lines, every other environment a full-timestamp text format. When logDir is
// set, output is also appended to a file per day under it.
func Init(level string, appEnv string, logDir string) error {
	return InitWithConsole(level, appEnv, logDir, os.Stdout)
}

// InitWithConsole is Init with console output sent to w instead of stdout.
func InitWithConsole(level string, appEnv string, logDir string, w io.Writer) error {
	Logger = logrus.New()

	//default environment is development
	if strings.ToLower(appEnv) == "production" {
		Logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		Logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	Logger.SetLevel(parseLevel(level))

	if logDir == "" {
		Logger.SetOutput(w)
		return nil
	}

	currentDate := time.Now().Format("02_01_2006")
	fullPath := filepath.Join(logDir, currentDate+".log")

	if err := os.MkdirAll(logDir, os.ModePerm); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.OpenFile(fullPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	Logger.SetOutput(io.MultiWriter(w, file))
	return nil
}

func parseLevel(level string) logrus.Level {
	switch strings.ToLower(level) {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warning", "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}
