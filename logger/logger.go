package logger

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ANSI color codes for development logging
const (
	Reset      = "\033[0m"
	DebugColor = "\033[36m" // Cyan
	InfoColor  = "\033[32m" // Green
	WarnColor  = "\033[33m" // Yellow
	ErrorColor = "\033[31m" // Red
	FatalColor = "\033[35m" // Magenta
)

// logger implements the Logger interface using zap
type logger struct {
	zap *zap.Logger
}

type contextKey int

const loggerKey contextKey = iota

// NewLogger creates a new logger with the given configuration
func NewLogger(config LoggingConfig) Logger {
	logLevel := parseLevel(config.Level)

	if config.Environment == "production" || config.Format == "json" {
		zapConfig := zap.NewProductionConfig()
		zapConfig.Level = zap.NewAtomicLevelAt(logLevel)

		if config.Output != "" {
			zapConfig.OutputPaths = []string{config.Output}
		}

		zapLogger, err := zapConfig.Build(zap.AddCallerSkip(1))
		if err != nil {
			return NewNoopLogger()
		}

		return &logger{zap: zapLogger}
	}

	return &logger{zap: createDevelopmentLogger(logLevel, outputSyncer(config.Output))}
}

// NewDevelopmentLogger creates a development logger with colors
func NewDevelopmentLogger() Logger {
	return &logger{zap: createDevelopmentLogger(zapcore.DebugLevel, zapcore.AddSync(os.Stdout))}
}

// NewProductionLogger creates a production logger
func NewProductionLogger() Logger {
	return NewLogger(LoggingConfig{Level: "info", Environment: "production"})
}

// NewNoopLogger returns a logger that discards everything.
func NewNoopLogger() Logger {
	return &logger{zap: zap.NewNop()}
}

// NewTestLogger wraps core, typically a zaptest/observer core.
func NewTestLogger(core zapcore.Core) Logger {
	return &logger{zap: zap.New(core)}
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

func outputSyncer(output string) zapcore.WriteSyncer {
	switch output {
	case "", "stdout":
		return zapcore.AddSync(os.Stdout)
	case "stderr":
		return zapcore.AddSync(os.Stderr)
	}

	f, err := os.OpenFile(output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return zapcore.AddSync(os.Stderr)
	}

	return zapcore.AddSync(f)
}

// createDevelopmentLogger creates a development logger with custom formatting
func createDevelopmentLogger(level zapcore.Level, out zapcore.WriteSyncer) *zap.Logger {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    customColorLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		out,
		zap.NewAtomicLevelAt(level),
	)

	return zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
}

// customColorLevelEncoder adds colors to log levels
func customColorLevelEncoder(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	var color string

	switch level {
	case zapcore.DebugLevel:
		color = DebugColor
	case zapcore.InfoLevel:
		color = InfoColor
	case zapcore.WarnLevel:
		color = WarnColor
	case zapcore.ErrorLevel:
		color = ErrorColor
	case zapcore.DPanicLevel, zapcore.PanicLevel, zapcore.FatalLevel:
		color = FatalColor
	default:
		color = Reset
	}

	enc.AppendString(color + level.CapitalString() + Reset)
}

func (l *logger) Debug(msg string, fields ...Field) {
	l.zap.Debug(msg, FieldsToZap(fields)...)
}

func (l *logger) Info(msg string, fields ...Field) {
	l.zap.Info(msg, FieldsToZap(fields)...)
}

func (l *logger) Warn(msg string, fields ...Field) {
	l.zap.Warn(msg, FieldsToZap(fields)...)
}

func (l *logger) Error(msg string, fields ...Field) {
	l.zap.Error(msg, FieldsToZap(fields)...)
}

func (l *logger) Fatal(msg string, fields ...Field) {
	l.zap.Fatal(msg, FieldsToZap(fields)...)
}

func (l *logger) Debugf(template string, args ...any) {
	l.zap.Debug(fmt.Sprintf(template, args...))
}

func (l *logger) Infof(template string, args ...any) {
	l.zap.Info(fmt.Sprintf(template, args...))
}

func (l *logger) Warnf(template string, args ...any) {
	l.zap.Warn(fmt.Sprintf(template, args...))
}

func (l *logger) Errorf(template string, args ...any) {
	l.zap.Error(fmt.Sprintf(template, args...))
}

func (l *logger) With(fields ...Field) Logger {
	return &logger{zap: l.zap.With(FieldsToZap(fields)...)}
}

// WithContext enriches the logger with the trace and span IDs of the span
// carried by ctx, if any.
func (l *logger) WithContext(ctx context.Context) Logger {
	if ctx == nil {
		return l
	}

	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return l
	}

	return &logger{zap: l.zap.With(
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	)}
}

func (l *logger) Named(name string) Logger {
	return &logger{zap: l.zap.Named(name)}
}

func (l *logger) Sugar() SugarLogger {
	return &sugarLogger{sugar: l.zap.Sugar()}
}

func (l *logger) Sync() error {
	return l.zap.Sync()
}

// sugarLogger implements the SugarLogger interface
type sugarLogger struct {
	sugar *zap.SugaredLogger
}

func (s *sugarLogger) Debugw(msg string, keysAndValues ...any) {
	s.sugar.Debugw(msg, keysAndValues...)
}

func (s *sugarLogger) Infow(msg string, keysAndValues ...any) {
	s.sugar.Infow(msg, keysAndValues...)
}

func (s *sugarLogger) Warnw(msg string, keysAndValues ...any) {
	s.sugar.Warnw(msg, keysAndValues...)
}

func (s *sugarLogger) Errorw(msg string, keysAndValues ...any) {
	s.sugar.Errorw(msg, keysAndValues...)
}

func (s *sugarLogger) With(args ...any) SugarLogger {
	return &sugarLogger{sugar: s.sugar.With(args...)}
}

// WithLogger adds a logger to the context
func WithLogger(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// FromContext extracts a logger from the context, falling back to a noop logger.
func FromContext(ctx context.Context) Logger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey).(Logger); ok {
			return l
		}
	}

	return NewNoopLogger()
}

// TrackWithLogger logs the execution time using a specific logger
func TrackWithLogger(l Logger, name string) func() {
	start := time.Now()

	return func() {
		l.Debug("function execution completed",
			String("function", name),
			Duration("duration", time.Since(start)),
		)
	}
}

// LogPanic logs a recovered panic with stack trace
func LogPanic(l Logger, recovered any, fields ...Field) {
	allFields := append(fields,
		Any("panic", recovered),
		Stack("stacktrace"),
	)
	l.Error("panic recovered", allFields...)
}
