package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
)

// LogLevel определяет уровень важности сообщения
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

// String возвращает строковое представление уровня
func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLogLevel преобразует строку из конфигурации в LogLevel
func ParseLogLevel(level string) LogLevel {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return DEBUG
	case "INFO":
		return INFO
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO // неизвестное значение трактуем как INFO
	}
}

// Logger - логгер с фильтрацией по уровню
type Logger struct {
	level  LogLevel
	logger *log.Logger
}

// New создает логгер с указанным уровнем, пишущий в stdout
func New(level LogLevel) *Logger {
	return &Logger{
		level:  level,
		logger: log.New(os.Stdout, "", log.LstdFlags),
	}
}

// NewWithOutput создает логгер с произвольным приемником вывода
func NewWithOutput(level LogLevel, out io.Writer) *Logger {
	return &Logger{
		level:  level,
		logger: log.New(out, "", log.LstdFlags),
	}
}

// SetLevel меняет уровень фильтрации
func (l *Logger) SetLevel(level LogLevel) {
	l.level = level
}

// GetLevel возвращает текущий уровень фильтрации
func (l *Logger) GetLevel() LogLevel {
	return l.level
}

// logf печатает сообщение, если его уровень не ниже установленного
func (l *Logger) logf(level LogLevel, format string, args ...interface{}) {
	if level >= l.level {
		prefix := fmt.Sprintf("[%s] ", level.String())
		l.logger.Printf(prefix+format, args...)
	}
}

// Debug печатает отладочное сообщение
func (l *Logger) Debug(format string, args ...interface{}) {
	l.logf(DEBUG, format, args...)
}

// Info печатает информационное сообщение
func (l *Logger) Info(format string, args ...interface{}) {
	l.logf(INFO, format, args...)
}

// Warn печатает предупреждение
func (l *Logger) Warn(format string, args ...interface{}) {
	l.logf(WARN, format, args...)
}

// Error печатает сообщение об ошибке
func (l *Logger) Error(format string, args ...interface{}) {
	l.logf(ERROR, format, args...)
}

// Глобальный логгер процесса
var globalLogger = New(INFO)

// SetGlobalLevel устанавливает уровень глобального логгера
func SetGlobalLevel(level LogLevel) {
	globalLogger.SetLevel(level)
}

// GetGlobalLevel возвращает уровень глобального логгера
func GetGlobalLevel() LogLevel {
	return globalLogger.GetLevel()
}

// Глобальные функции-обертки
func Debug(format string, args ...interface{}) {
	globalLogger.Debug(format, args...)
}

func Info(format string, args ...interface{}) {
	globalLogger.Info(format, args...)
}

func Warn(format string, args ...interface{}) {
	globalLogger.Warn(format, args...)
}

func Error(format string, args ...interface{}) {
	globalLogger.Error(format, args...)
}
