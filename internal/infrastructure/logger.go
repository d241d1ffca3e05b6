package infrastructure

import (
	"io"
	"os"

	"github.com/krobus00/bot-service/internal/config"
	"github.com/krobus00/bot-service/internal/constant"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// SetupLogger configures the global logrus logger. It returns a closer for
// the rotated log file, or nil when only stdout is used.
func SetupLogger(env string, cfg config.LogConfig) (io.Closer, error) {
	logrus.SetReportCaller(cfg.ShowCaller)

	if env == constant.ProductionEnvironment {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	logrus.SetLevel(level)

	if cfg.FilePath == "" {
		logrus.SetOutput(os.Stdout)
		return nil, nil
	}

	rotator := &lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}
	logrus.SetOutput(io.MultiWriter(os.Stdout, rotator))

	return rotator, nil
}
