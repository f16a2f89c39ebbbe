package logger

import "sync"

// LoggerInstance is a logging backend. Every call receives a message and
// alternating key/value pairs.
type LoggerInstance interface {
	Debug(message string, keyvals ...any)
	Info(message string, keyvals ...any)
	Warn(message string, keyvals ...any)
	Error(message string, keyvals ...any)
	Fatal(message string, keyvals ...any)
}

type level int

const (
	levelDebug level = iota
	levelInfo
	levelWarn
	levelError
	levelFatal
)

var (
	mu        sync.RWMutex
	instances []LoggerInstance
)

// Init replaces the global set of backends. Calls made before Init are
// dropped.
func Init(backends ...LoggerInstance) {
	mu.Lock()
	defer mu.Unlock()
	instances = append([]LoggerInstance(nil), backends...)
}

func dispatch(l level, message string, keyvals []any) {
	mu.RLock()
	backends := instances
	mu.RUnlock()

	for _, b := range backends {
		switch l {
		case levelDebug:
			b.Debug(message, keyvals...)
		case levelInfo:
			b.Info(message, keyvals...)
		case levelWarn:
			b.Warn(message, keyvals...)
		case levelError:
			b.Error(message, keyvals...)
		case levelFatal:
			b.Fatal(message, keyvals...)
		}
	}
}

func Debug(message string, keyvals ...any) { dispatch(levelDebug, message, keyvals) }

func Info(message string, keyvals ...any) { dispatch(levelInfo, message, keyvals) }

func Warn(message string, keyvals ...any) { dispatch(levelWarn, message, keyvals) }

func Error(message string, keyvals ...any) { dispatch(levelError, message, keyvals) }

// Fatal logs at FATAL level; console backends exit the process afterwards.
func Fatal(message string, keyvals ...any) { dispatch(levelFatal, message, keyvals) }
