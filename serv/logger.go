package serv

import (
	"strings"

	"github.com/WrongProvider/quemVota-sub000/serv/internal/util"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds the logger described by conf. The returned level can be
// changed while the logger is in use.
func NewLogger(conf *Config) (*zap.Logger, zap.AtomicLevel) {
	level := zap.NewAtomicLevelAt(parseLevel(conf.LogLevel))
	log := util.NewLogger(conf.LogFormat == "json", level)
	if conf.AppName != "" {
		log = log.Named(conf.AppName)
	}
	return log, level
}

func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
