package logger

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel определяет уровень логирования
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

var levelNames = map[LogLevel]string{
	LevelDebug: "DEBUG",
	LevelInfo:  "INFO",
	LevelWarn:  "WARN",
	LevelError: "ERROR",
	LevelFatal: "FATAL",
}

var zapLevels = map[LogLevel]zapcore.Level{
	LevelDebug: zapcore.DebugLevel,
	LevelInfo:  zapcore.InfoLevel,
	LevelWarn:  zapcore.WarnLevel,
	LevelError: zapcore.ErrorLevel,
	LevelFatal: zapcore.FatalLevel,
}

// String возвращает имя уровня
func (l LogLevel) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "UNKNOWN"
}

// ParseLevel разбирает уровень из строки конфигурации, по умолчанию INFO
func ParseLevel(s string) LogLevel {
	for level, name := range levelNames {
		if strings.EqualFold(name, strings.TrimSpace(s)) {
			return level
		}
	}
	return LevelInfo
}

// Logger представляет структурированный логгер поверх zap
type Logger struct {
	level zap.AtomicLevel
	zap   *zap.Logger
}

// New создает новый логгер с JSON выводом
func New(level LogLevel) *Logger {
	return build(level, true)
}

// NewDevelopment создает логгер с консольным выводом
func NewDevelopment(level LogLevel) *Logger {
	return build(level, false)
}

// NewNop создает логгер, который ничего не пишет (для тестов)
func NewNop() *Logger {
	return &Logger{
		level: zap.NewAtomicLevelAt(zapcore.FatalLevel),
		zap:   zap.NewNop(),
	}
}

// NewFromZap оборачивает готовый zap логгер
func NewFromZap(z *zap.Logger) *Logger {
	return &Logger{
		level: zap.NewAtomicLevelAt(zapcore.DebugLevel),
		zap:   z,
	}
}

func build(level LogLevel, production bool) *Logger {
	var cfg zap.Config
	if production {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.Level = zap.NewAtomicLevelAt(zapLevels[level])
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")

	z, err := cfg.Build(zap.AddCallerSkip(2))
	if err != nil {
		// Конфигурация статическая, ошибка здесь означает сломанный stdout
		z = zap.NewNop()
	}

	return &Logger{level: cfg.Level, zap: z}
}

// SetLevel устанавливает уровень логирования
func (l *Logger) SetLevel(level LogLevel) {
	l.level.SetLevel(zapLevels[level])
}

// Debug записывает debug сообщение
func (l *Logger) Debug(msg string, fields ...Field) {
	l.log(LevelDebug, msg, fields...)
}

// Info записывает info сообщение
func (l *Logger) Info(msg string, fields ...Field) {
	l.log(LevelInfo, msg, fields...)
}

// Warn записывает warning сообщение
func (l *Logger) Warn(msg string, fields ...Field) {
	l.log(LevelWarn, msg, fields...)
}

// Error записывает error сообщение
func (l *Logger) Error(msg string, fields ...Field) {
	l.log(LevelError, msg, fields...)
}

// Fatal записывает fatal сообщение и завершает программу
func (l *Logger) Fatal(msg string, fields ...Field) {
	l.log(LevelFatal, msg, fields...)
}

// Sync сбрасывает буферы zap
func (l *Logger) Sync() error {
	return l.zap.Sync()
}

// WithContext возвращает логгер с контекстом
func (l *Logger) WithContext(ctx context.Context) *ContextLogger {
	return &ContextLogger{
		logger: l,
		ctx:    ctx,
	}
}

// WithFields возвращает логгер с предустановленными полями
func (l *Logger) WithFields(fields ...Field) *FieldLogger {
	return &FieldLogger{
		logger: l,
		fields: fields,
	}
}

func (l *Logger) log(level LogLevel, msg string, fields ...Field) {
	zapFields := make([]zap.Field, 0, len(fields))
	for _, f := range fields {
		zapFields = append(zapFields, f.zap())
	}

	switch level {
	case LevelDebug:
		l.zap.Debug(msg, zapFields...)
	case LevelInfo:
		l.zap.Info(msg, zapFields...)
	case LevelWarn:
		l.zap.Warn(msg, zapFields...)
	case LevelError:
		l.zap.Error(msg, zapFields...)
	case LevelFatal:
		l.zap.Fatal(msg, zapFields...)
	}
}

// ContextLogger оборачивает логгер с контекстом
type ContextLogger struct {
	logger *Logger
	ctx    context.Context
}

// Debug записывает debug сообщение с контекстом
func (cl *ContextLogger) Debug(msg string, fields ...Field) {
	cl.logger.Debug(msg, cl.withRequestID(fields)...)
}

// Info записывает info сообщение с контекстом
func (cl *ContextLogger) Info(msg string, fields ...Field) {
	cl.logger.Info(msg, cl.withRequestID(fields)...)
}

// Warn записывает warning сообщение с контекстом
func (cl *ContextLogger) Warn(msg string, fields ...Field) {
	cl.logger.Warn(msg, cl.withRequestID(fields)...)
}

// Error записывает error сообщение с контекстом
func (cl *ContextLogger) Error(msg string, fields ...Field) {
	cl.logger.Error(msg, cl.withRequestID(fields)...)
}

func (cl *ContextLogger) withRequestID(fields []Field) []Field {
	if id := RequestIDFromContext(cl.ctx); id != "" {
		return append([]Field{String("request_id", id)}, fields...)
	}
	return fields
}

type ctxKey int

const requestIDKey ctxKey = iota

// ContextWithRequestID сохраняет идентификатор запроса в контексте
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext извлекает идентификатор запроса
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// FieldLogger оборачивает логгер с предустановленными полями
type FieldLogger struct {
	logger *Logger
	fields []Field
}

// Debug записывает debug сообщение с предустановленными полями
func (fl *FieldLogger) Debug(msg string, fields ...Field) {
	fl.logger.Debug(msg, fl.merge(fields)...)
}

// Info записывает info сообщение с предустановленными полями
func (fl *FieldLogger) Info(msg string, fields ...Field) {
	fl.logger.Info(msg, fl.merge(fields)...)
}

// Warn записывает warning сообщение с предустановленными полями
func (fl *FieldLogger) Warn(msg string, fields ...Field) {
	fl.logger.Warn(msg, fl.merge(fields)...)
}

// Error записывает error сообщение с предустановленными полями
func (fl *FieldLogger) Error(msg string, fields ...Field) {
	fl.logger.Error(msg, fl.merge(fields)...)
}

func (fl *FieldLogger) merge(fields []Field) []Field {
	all := make([]Field, 0, len(fl.fields)+len(fields))
	all = append(all, fl.fields...)
	return append(all, fields...)
}

// Field представляет поле логирования
type Field struct {
	Key   string
	Value interface{}
}

func (f Field) zap() zap.Field {
	if err, ok := f.Value.(error); ok {
		return zap.NamedError(f.Key, err)
	}
	return zap.Any(f.Key, f.Value)
}

// Вспомогательные функции для создания полей
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

func Int64(key string, value int64) Field {
	return Field{Key: key, Value: value}
}

func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

func Error(err error) Field {
	return Field{Key: "error", Value: err}
}

func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value}
}

func Any(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

// Глобальный логгер по умолчанию
var defaultLogger = New(LevelInfo)

// Default возвращает глобальный логгер
func Default() *Logger {
	return defaultLogger
}

// SetDefault заменяет глобальный логгер
func SetDefault(l *Logger) {
	if l != nil {
		defaultLogger = l
	}
}

func Debug(msg string, fields ...Field) {
	defaultLogger.Debug(msg, fields...)
}

func Info(msg string, fields ...Field) {
	defaultLogger.Info(msg, fields...)
}

func Warn(msg string, fields ...Field) {
	defaultLogger.Warn(msg, fields...)
}

func ErrorLog(msg string, fields ...Field) {
	defaultLogger.Error(msg, fields...)
}

func Fatal(msg string, fields ...Field) {
	defaultLogger.Fatal(msg, fields...)
}

func SetLevel(level LogLevel) {
	defaultLogger.SetLevel(level)
}
