package config

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogLevel parses cfg.LogLevel into a level that can be changed while
// loggers built from it are in use.
func NewLogLevel(cfg *Config) (zap.AtomicLevel, error) {
	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return level, fmt.Errorf("invalid LOG_LEVEL %q: %w", cfg.LogLevel, err)
	}
	return level, nil
}

// NewLogger builds the service logger at level
func NewLogger(cfg *Config, level zap.AtomicLevel) (*zap.Logger, error) {
	zapCfg := zap.NewDevelopmentConfig()
	if cfg.IsProduction() {
		zapCfg = zap.NewProductionConfig()
		zapCfg.EncoderConfig.TimeKey = "timestamp"
		zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	zapCfg.Level = level

	logger, err := zapCfg.Build(zap.Fields(zap.String("environment", cfg.Environment)))
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}

// LevelUpdater returns a watcher callback that applies LOG_LEVEL changes to level
func LevelUpdater(level zap.AtomicLevel, logger *zap.Logger) func(*Config) {
	return func(cfg *Config) {
		if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
			logger.Warn("Ignoring invalid log level", zap.String("level", cfg.LogLevel), zap.Error(err))
		}
	}
}
