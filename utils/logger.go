package utils

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	log  *zap.Logger
	once sync.Once
)

// DefaultLogFile is used unless DEXARB_LOG_FILE is set. "-" disables file output.
const DefaultLogFile = "dexarb.log"

// InitLogger initializes the process-wide logger. Later calls return the same instance.
func InitLogger(debug bool) *zap.Logger {
	once.Do(func() {
		config := zap.NewProductionConfig()
		if debug {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}

		config.OutputPaths, config.ErrorOutputPaths = outputPaths(os.Getenv("DEXARB_LOG_FILE"))

		config.EncoderConfig.TimeKey = "timestamp"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		config.EncoderConfig.StacktraceKey = "stacktrace"

		logger, err := config.Build(
			zap.AddCaller(),
			zap.AddStacktrace(zapcore.ErrorLevel),
		)
		if err != nil {
			panic(err)
		}

		log = logger.With(zap.String("service", "dexarb"))
	})

	return log
}

func outputPaths(file string) ([]string, []string) {
	switch file {
	case "":
		file = DefaultLogFile
	case "-":
		return []string{"stdout"}, []string{"stderr"}
	}
	errFile := strings.TrimSuffix(file, ".log") + "-error.log"
	return []string{"stdout", file}, []string{"stderr", errFile}
}

// GetLogger returns the global logger instance
func GetLogger() *zap.Logger {
	if log == nil {
		return InitLogger(false)
	}
	return log
}

// CleanupLogger flushes any buffered log entries
func CleanupLogger() {
	if log != nil {
		_ = log.Sync()
	}
}
