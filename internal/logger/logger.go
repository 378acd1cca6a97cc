// Package logger пишет логи с префиксом сервиса через буферизованный фоновый воркер, чтобы
// хендлеры и websocket-хаб не блокировались на stderr. Также логирует время выполнения функций.
package logger

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
)

const asyncBufferSize = 8192

// slowThreshold: порог, выше которого LogDuration пишет и на уровне info.
const slowThreshold = 100 * time.Millisecond

type level int

const (
	levelDebug level = iota
	levelInfo
	levelWarn
	levelError
)

type entry struct {
	msg   string
	flush chan struct{}
}

var (
	mu       sync.RWMutex
	prefix   string
	logLevel = levelInfo

	ch   chan entry
	once sync.Once
)

func initWorker() {
	ch = make(chan entry, asyncBufferSize)
	go func() {
		for e := range ch {
			if e.flush != nil {
				close(e.flush)
				continue
			}
			log.Print(e.msg)
		}
	}()
}

func enqueue(msg string) {
	once.Do(initWorker)
	select {
	case ch <- entry{msg: msg}:
	default:
		// Буфер полон: лог теряется, вызывающий не ждёт.
	}
}

// SetPrefix задаёт префикс для всех последующих логов (например "chat").
func SetPrefix(p string) {
	mu.Lock()
	prefix = p
	mu.Unlock()
}

// SetLevel принимает debug/trace, info, warn или error; неизвестное значение означает info.
func SetLevel(l string) {
	var lv level
	switch strings.ToLower(strings.TrimSpace(l)) {
	case "debug", "trace":
		lv = levelDebug
	case "warn", "warning":
		lv = levelWarn
	case "error":
		lv = levelError
	default:
		lv = levelInfo
	}
	mu.Lock()
	logLevel = lv
	mu.Unlock()
}

func enabled(l level) bool {
	mu.RLock()
	defer mu.RUnlock()
	return l >= logLevel
}

func tag() string {
	mu.RLock()
	defer mu.RUnlock()
	if prefix == "" {
		return ""
	}
	return "[" + prefix + "] "
}

// Flush ждёт, пока запишутся все логи, поставленные в очередь до вызова (не дольше timeout).
func Flush(timeout time.Duration) {
	once.Do(initWorker)
	done := make(chan struct{})
	select {
	case ch <- entry{flush: done}:
	case <-time.After(timeout):
		return
	}
	select {
	case <-done:
	case <-time.After(timeout):
	}
}

func Debugf(format string, v ...any) {
	if enabled(levelDebug) {
		enqueue(tag() + "DEBUG: " + fmt.Sprintf(format, v...))
	}
}

func Info(v ...any) {
	if enabled(levelInfo) {
		enqueue(tag() + fmt.Sprint(v...))
	}
}

func Infof(format string, v ...any) {
	if enabled(levelInfo) {
		enqueue(tag() + fmt.Sprintf(format, v...))
	}
}

func Warnf(format string, v ...any) {
	if enabled(levelWarn) {
		enqueue(tag() + "WARN: " + fmt.Sprintf(format, v...))
	}
}

// Error и Errorf пишутся при любом уровне.
func Error(v ...any) {
	enqueue(tag() + "ERROR: " + fmt.Sprint(v...))
}

func Errorf(format string, v ...any) {
	enqueue(tag() + "ERROR: " + fmt.Sprintf(format, v...))
}

// LogDuration логирует имя функции и время выполнения в миллисекундах (асинхронно).
// При LOG_LEVEL=debug логирует все вызовы, иначе только дольше 100ms.
func LogDuration(fn string, start time.Time) {
	elapsed := time.Since(start)
	if enabled(levelDebug) || elapsed >= slowThreshold {
		enqueue(fmt.Sprintf("%sfn=%s duration_ms=%d", tag(), fn, elapsed.Milliseconds()))
	}
}

// DeferLogDuration для использования: defer logger.DeferLogDuration("msgRepo.Append", time.Now())().
func DeferLogDuration(fn string, start time.Time) func() {
	return func() { LogDuration(fn, start) }
}
