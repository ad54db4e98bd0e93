package utils

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
)

type Logger struct {
	mu    sync.Mutex
	info  *log.Logger
	err   *log.Logger
	debug bool
}

func NewLogger() *Logger {
	return NewLoggerWithWriters(os.Stdout, os.Stderr)
}

func NewLoggerWithWriters(out, errOut io.Writer) *Logger {
	flags := log.LstdFlags | log.LUTC | log.Lmicroseconds
	return &Logger{
		info:  log.New(out, "INFO  ", flags),
		err:   log.New(errOut, "ERROR ", flags),
		debug: os.Getenv("SKOTE_DEBUG") == "1",
	}
}

func (l *Logger) SetDebug(enabled bool) {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.debug = enabled
	l.mu.Unlock()
}

func (l *Logger) Printf(format string, args ...any) {
	if l == nil {
		return
	}
	_ = l.info.Output(2, fmt.Sprintf(format, args...))
}

func (l *Logger) Errorf(format string, args ...any) {
	if l == nil {
		return
	}
	_ = l.err.Output(2, fmt.Sprintf(format, args...))
}

func (l *Logger) Debugf(format string, args ...any) {
	if l == nil {
		return
	}
	l.mu.Lock()
	enabled := l.debug
	l.mu.Unlock()
	if !enabled {
		return
	}
	_ = l.info.Output(2, "DEBUG "+fmt.Sprintf(format, args...))
}
