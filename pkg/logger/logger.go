package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	}
	return "UNKNOWN"
}

// Logger is a leveled structured logger. Fields attached via WithContext are
// emitted with every record.
type Logger struct {
	level   Level
	jsonOut bool
	out     io.Writer
	context map[string]interface{}
	mu      *sync.Mutex
}

var (
	defaultLogger = &Logger{
		level:   INFO,
		out:     os.Stdout,
		context: map[string]interface{}{},
		mu:      &sync.Mutex{},
	}
	initOnce sync.Once
)

// Init configures the process-wide logger. Safe to call once at startup;
// later calls are ignored.
func Init(level Level, jsonOut bool, out io.Writer) {
	initOnce.Do(func() {
		defaultLogger.level = level
		defaultLogger.jsonOut = jsonOut
		if out != nil {
			defaultLogger.out = out
		}
	})
}

func GetLogger() *Logger {
	return defaultLogger
}

// WithContext returns a logger that carries the given key/value pairs on
// every record. The parent's output and level are shared.
func WithContext(kv ...interface{}) *Logger {
	return defaultLogger.WithContext(kv...)
}

func (l *Logger) WithContext(kv ...interface{}) *Logger {
	ctx := make(map[string]interface{}, len(l.context)+len(kv)/2)
	for k, v := range l.context {
		ctx[k] = v
	}
	mergeFields(ctx, kv)
	return &Logger{
		level:   l.level,
		jsonOut: l.jsonOut,
		out:     l.out,
		context: ctx,
		mu:      l.mu,
	}
}

func (l *Logger) Debug(msg string, kv ...interface{}) { l.log(DEBUG, msg, kv) }
func (l *Logger) Info(msg string, kv ...interface{})  { l.log(INFO, msg, kv) }
func (l *Logger) Warn(msg string, kv ...interface{})  { l.log(WARN, msg, kv) }
func (l *Logger) Error(msg string, kv ...interface{}) { l.log(ERROR, msg, kv) }

func Debug(msg string, kv ...interface{}) { defaultLogger.log(DEBUG, msg, kv) }
func Info(msg string, kv ...interface{})  { defaultLogger.log(INFO, msg, kv) }
func Warn(msg string, kv ...interface{})  { defaultLogger.log(WARN, msg, kv) }
func Error(msg string, kv ...interface{}) { defaultLogger.log(ERROR, msg, kv) }

func (l *Logger) log(level Level, msg string, kv []interface{}) {
	if level < l.level {
		return
	}

	fields := make(map[string]interface{}, len(l.context)+len(kv)/2)
	for k, v := range l.context {
		fields[k] = v
	}
	mergeFields(fields, kv)

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.jsonOut {
		record := map[string]interface{}{
			"time":  time.Now().Format(time.RFC3339),
			"level": level.String(),
			"msg":   msg,
		}
		for k, v := range fields {
			record[k] = v
		}
		if data, err := json.Marshal(record); err == nil {
			fmt.Fprintln(l.out, string(data))
		}
		return
	}

	var b strings.Builder
	b.WriteString(time.Now().Format("2006-01-02 15:04:05"))
	b.WriteString(" [")
	b.WriteString(level.String())
	b.WriteString("] ")
	b.WriteString(msg)
	if len(fields) > 0 {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%v", k, fields[k])
		}
	}
	fmt.Fprintln(l.out, b.String())
}

// mergeFields accepts either alternating key/value pairs or a single
// map[string]interface{} as the first element.
func mergeFields(dst map[string]interface{}, kv []interface{}) {
	if len(kv) == 1 {
		if m, ok := kv[0].(map[string]interface{}); ok {
			for k, v := range m {
				dst[k] = v
			}
			return
		}
	}
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kv[i])
		}
		dst[key] = kv[i+1]
	}
}
