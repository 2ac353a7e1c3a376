// Package logging provides the package-level *log.Logger instances the
// rest of the driver uses, following the teacher's preference for the
// standard library log package over a structured logging dependency.
package logging

import (
	"io"
	"log"
	"os"
	"sync"

	"github.com/iotaledger/scyllago/internal/config"
)

var (
	mu      sync.RWMutex
	level   = config.LogLevelFromEnv()
	output  io.Writer = os.Stderr
	loggers           = map[string]*log.Logger{}
)

// SetOutput redirects every subsystem logger created via New, present and
// future, to w. Intended for tests that want to capture log output.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
	for _, l := range loggers {
		l.SetOutput(w)
	}
}

// SetLevel overrides the level read from LOG_LEVEL at init time.
func SetLevel(l config.LogLevel) {
	mu.Lock()
	defer mu.Unlock()
	level = l
}

// Level is a handle naming one subsystem's *log.Logger (e.g. "cluster",
// "stage", "worker"), whose output is prefixed with that name the way the
// teacher prefixes its control/session loggers.
type Level struct {
	name string
}

// New returns the logger for a named subsystem, creating it on first use.
func New(name string) *Level {
	mu.Lock()
	defer mu.Unlock()
	if _, ok := loggers[name]; !ok {
		loggers[name] = log.New(output, "["+name+"] ", log.LstdFlags|log.Lmicroseconds)
	}
	return &Level{name: name}
}

func (l *Level) logger() *log.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return loggers[l.name]
}

func (l *Level) Tracef(format string, args ...any) {
	if currentLevel() <= config.LevelTrace {
		l.logger().Printf("TRACE "+format, args...)
	}
}

func (l *Level) Debugf(format string, args ...any) {
	if currentLevel() <= config.LevelDebug {
		l.logger().Printf("DEBUG "+format, args...)
	}
}

func (l *Level) Infof(format string, args ...any) {
	if currentLevel() <= config.LevelInfo {
		l.logger().Printf("INFO "+format, args...)
	}
}

func (l *Level) Warnf(format string, args ...any) {
	if currentLevel() <= config.LevelWarn {
		l.logger().Printf("WARN "+format, args...)
	}
}

func (l *Level) Errorf(format string, args ...any) {
	if currentLevel() <= config.LevelError {
		l.logger().Printf("ERROR "+format, args...)
	}
}

func currentLevel() config.LogLevel {
	mu.RLock()
	defer mu.RUnlock()
	return level
}
