package internal

import (
	"os"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logger atomic.Pointer[zap.Logger]
	sugar  atomic.Pointer[zap.SugaredLogger]
)

func init() {
	SetupLogger("dev")
}

// SetupLogger replaces the process logger. "prod" logs JSON at INFO,
// anything else logs colored console lines at DEBUG.
func SetupLogger(env string) {
	l := newLogger(env)
	sugar.Store(l.WithOptions(zap.AddCallerSkip(1)).Sugar())
	if old := logger.Swap(l); old != nil {
		_ = old.Sync()
	}
}

// Logger returns the process logger for call sites that want structured fields.
func Logger() *zap.Logger {
	return logger.Load()
}

func newLogger(env string) *zap.Logger {
	encCfg := zapcore.EncoderConfig{
		TimeKey:      "ts",
		LevelKey:     "level",
		NameKey:      "logger",
		CallerKey:    "caller",
		MessageKey:   "msg",
		LineEnding:   zapcore.DefaultLineEnding,
		EncodeTime:   zapcore.ISO8601TimeEncoder,
		EncodeLevel:  zapcore.CapitalColorLevelEncoder,
		EncodeCaller: zapcore.ShortCallerEncoder,
	}

	encoder := zapcore.NewConsoleEncoder(encCfg)
	level := zapcore.DebugLevel
	if env == "prod" {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewJSONEncoder(encCfg)
		level = zapcore.InfoLevel
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(os.Stderr), level)
	return zap.New(core, zap.AddCaller())
}

func MyLog(entry string, v ...any) {
	sugar.Load().Infof(entry, v...)
}

func MyWarn(entry string, v ...any) {
	sugar.Load().Warnf(entry, v...)
}

func MyErr(entry string, v ...any) {
	sugar.Load().Errorf(entry, v...)
}

func MyDebug(entry string, v ...any) {
	sugar.Load().Debugf(entry, v...)
}
