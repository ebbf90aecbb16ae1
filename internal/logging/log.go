package logging

import "sync"

var (
	globalMu     sync.RWMutex
	globalLogger *Logger
)

// Init installs the process-wide logger. Called once at startup from
// cmd's PersistentPreRunE.
func Init(verbosity int) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = NewDefault(verbosity)
}

// Get returns the process-wide logger, initializing a default one (level
// Info) if Init was never called — useful in tests.
func Get() *Logger {
	globalMu.RLock()
	l := globalLogger
	globalMu.RUnlock()
	if l != nil {
		return l
	}
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		globalLogger = NewDefault(2)
	}
	return globalLogger
}

func Error(format string, args ...any) { Get().Error(format, args...) }
func Warn(format string, args ...any)  { Get().Warn(format, args...) }
func Info(format string, args ...any)  { Get().Info(format, args...) }
func Debug(format string, args ...any) { Get().Debug(format, args...) }
