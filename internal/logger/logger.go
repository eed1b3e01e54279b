package logger

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	mu  sync.RWMutex
	log = zap.NewNop()
)

type Configuration struct {
	LogFile    string
	ErrorFile  string
	Level      string
	Console    bool
	MaxSizeMB  int
	MaxBackups int
}

func Initialize(configuration Configuration) {

	var level zapcore.Level
	if err := level.UnmarshalText([]byte(configuration.Level)); err != nil {
		level = zapcore.DebugLevel
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var cores []zapcore.Core

	if configuration.LogFile != "" {
		fileCore := zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderConfig),
			zapcore.AddSync(rotating(configuration, configuration.LogFile)),
			level,
		)
		cores = append(cores, fileCore)
	}

	if configuration.ErrorFile != "" {
		errorCore := zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderConfig),
			zapcore.AddSync(rotating(configuration, configuration.ErrorFile)),
			zapcore.ErrorLevel,
		)
		cores = append(cores, errorCore)
	}

	if configuration.Console {
		consoleCore := zapcore.NewCore(
			zapcore.NewConsoleEncoder(encoderConfig),
			zapcore.AddSync(os.Stdout),
			level,
		)
		cores = append(cores, consoleCore)
	}

	core := zapcore.NewTee(cores...)

	mu.Lock()
	log = zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
	mu.Unlock()
}

func rotating(configuration Configuration, path string) *lumberjack.Logger {
	maxSize := configuration.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 100
	}
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSize,
		MaxBackups: configuration.MaxBackups,
		Compress:   true,
	}
}

// Logger returns the process logger without the helper caller skip, for
// components that keep their own *zap.Logger.
func Logger() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log.WithOptions(zap.AddCallerSkip(-1))
}

func Named(name string) *zap.Logger {
	return Logger().Named(name)
}

func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = log.Sync()
}

func current() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

func Debug(message string, fields ...zap.Field) {
	current().Debug(message, fields...)
}

func Info(message string, fields ...zap.Field) {
	current().Info(message, fields...)
}

func Warn(message string, fields ...zap.Field) {
	current().Warn(message, fields...)
}

func Error(message string, fields ...zap.Field) {
	current().Error(message, fields...)
}

func Fatal(message string, fields ...zap.Field) {
	current().Fatal(message, fields...)
}
