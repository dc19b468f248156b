// Package logger provides structured logging for kcasbin.
//
// This package wraps Uber's zap logger. It initializes a global logger
// instance used by the command line tool and handed to adapters:
//
//	logger.InitLogger("debug") // Options: debug, info, warn, error
//	a, err := kcasbin.NewAdapter(cfg, kcasbin.WithLogger(logger.Log))
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var Log = zap.NewNop()

func InitLogger(level string) {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		zapLevel = zap.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var err error
	Log, err = cfg.Build()
	if err != nil {
		panic(err)
	}
}
