package core

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

var once sync.Once

type logger struct {
	*log.Logger
}

var singleton *logger

func getLogger() *logger {
	once.Do(
		func() {
			l := log.NewWithOptions(os.Stderr, log.Options{
				ReportCaller:    true,
				ReportTimestamp: true,
				TimeFormat:      time.RFC3339,
				Prefix:          "Raytracer 🔦 ",
			})
			l.SetLevel(log.DebugLevel)
			singleton = &logger{l}
		})
	return singleton
}

// LogConfigure applies the configured level and prefix to the engine logger.
// Unknown levels fall back to info.
func LogConfigure(level, prefix string) {
	l := getLogger()
	lvl, err := log.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = log.InfoLevel
	}
	l.SetLevel(lvl)
	if prefix != "" {
		l.SetPrefix(prefix)
	}
}

// LogFileConfig describes the rotating log file.
type LogFileConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

var (
	fileMu     sync.Mutex
	fileWriter *lumberjack.Logger
)

/**
 * @brief Tees the engine logger into a rotating file. An empty path
 * closes the current file and logs to stderr only.
 */
func LogToFile(cfg LogFileConfig) error {
	fileMu.Lock()
	defer fileMu.Unlock()

	l := getLogger()
	if fileWriter != nil {
		l.SetOutput(os.Stderr)
		if err := fileWriter.Close(); err != nil {
			return err
		}
		fileWriter = nil
	}
	if cfg.Path == "" {
		return nil
	}
	fileWriter = &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
		LocalTime:  true,
	}
	l.SetOutput(io.MultiWriter(os.Stderr, fileWriter))
	return nil
}

func LogDebug(msg string, args ...interface{}) {
	getLogger().Debugf(msg, args...)
}

func LogInfo(msg string, args ...interface{}) {
	getLogger().Infof(msg, args...)
}

func LogWarn(msg string, args ...interface{}) {
	getLogger().Warnf(msg, args...)
}

func LogError(msg string, args ...interface{}) {
	getLogger().Errorf(msg, args...)
}

func LogFatal(msg string, args ...interface{}) {
	getLogger().Fatalf(msg, args...)
}
