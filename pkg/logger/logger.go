// Package logger builds the process-wide zap logger. Development gets the
// human-readable console encoder; production gets single-line JSON shaped
// for the log pipeline (severity, timestamp, caller).
package logger

import (
	"minepool-gamification/pkg/config"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var Module = fx.Module("logger",
	fx.Provide(New),
)

type Params struct {
	fx.In
	Cfg *config.Config
}

func New(p Params) *zap.Logger {
	var log *zap.Logger
	if p.Cfg != nil && p.Cfg.AppEnv == "production" {
		log = productionLogger()
	} else {
		log = zap.Must(zap.NewDevelopment())
	}

	if p.Cfg != nil {
		log = log.With(
			zap.String("service", p.Cfg.AppName),
			zap.String("version", p.Cfg.AppVersion),
			zap.String("env", p.Cfg.AppEnv),
		)
	}

	zap.ReplaceGlobals(log)
	return log
}

func productionLogger() *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "json"
	cfg.OutputPaths = []string{"stdout"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	enc := &cfg.EncoderConfig
	enc.TimeKey = "timestamp"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	enc.LevelKey = "severity"
	enc.EncodeLevel = zapcore.CapitalLevelEncoder
	enc.CallerKey = "caller"
	enc.EncodeCaller = zapcore.ShortCallerEncoder
	enc.StacktraceKey = "stacktrace"

	log, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return log
}
