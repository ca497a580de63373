package logger

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"
)

// Level represents the severity of a log entry.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

var levelNames = map[Level]string{
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
}

// Logger provides structured JSON logging with optional PII redaction.
type Logger struct {
	level     Level
	mu        sync.Mutex
	redactPII bool
}

var defaultLogger = &Logger{level: INFO, redactPII: true}

// SetLevel sets the minimum log level for the default logger.
func SetLevel(l Level) { defaultLogger.level = l }

// SetRedactPII enables or disables PII redaction for the default logger.
func SetRedactPII(r bool) { defaultLogger.redactPII = r }

// Debug emits a DEBUG-level structured log entry.
func Debug(msg string, fields ...interface{}) { defaultLogger.log(DEBUG, msg, fields...) }

// Info emits an INFO-level structured log entry.
func Info(msg string, fields ...interface{}) { defaultLogger.log(INFO, msg, fields...) }

// Warn emits a WARN-level structured log entry.
func Warn(msg string, fields ...interface{}) { defaultLogger.log(WARN, msg, fields...) }

// Error emits an ERROR-level structured log entry.
func Error(msg string, fields ...interface{}) { defaultLogger.log(ERROR, msg, fields...) }

func (l *Logger) log(level Level, msg string, fields ...interface{}) {
	if level < l.level {
		return
	}

	entry := map[string]interface{}{
		"time":  time.Now().UTC().Format(time.RFC3339),
		"level": levelNames[level],
		"msg":   msg,
	}

	// Parse key-value pairs from fields
	for i := 0; i < len(fields)-1; i += 2 {
		key := fmt.Sprintf("%v", fields[i])
		val := fmt.Sprintf("%v", fields[i+1])
		if l.redactPII {
			val = redactPIIValue(key, val)
		}
		entry[key] = val
	}

	// JSON output. A marshal failure must never hide the underlying
	// log message, so fall back to a plain line on stderr.
	data, err := json.Marshal(entry)
	l.mu.Lock()
	defer l.mu.Unlock()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s [%s] %s (log encode failed: %v) %v\n",
			time.Now().UTC().Format(time.RFC3339), levelNames[level], msg, err, fields)
		return
	}
	fmt.Fprintln(os.Stderr, string(data))
}

// Entry is a logger bound to a fixed component name, so call sites don't
// repeat "component", "<name>" on every call.
type Entry struct {
	component string
}

// WithComponent returns an Entry that tags every subsequent call with the
// given component, matching the {component, event_id, error_message,
// stack, duration_ms} logging contract.
func WithComponent(component string) *Entry {
	return &Entry{component: component}
}

func (e *Entry) fields(fields []interface{}) []interface{} {
	return append([]interface{}{"component", e.component}, fields...)
}

func (e *Entry) Debug(msg string, fields ...interface{}) { Debug(msg, e.fields(fields)...) }
func (e *Entry) Info(msg string, fields ...interface{})  { Info(msg, e.fields(fields)...) }
func (e *Entry) Warn(msg string, fields ...interface{})  { Warn(msg, e.fields(fields)...) }
func (e *Entry) Error(msg string, fields ...interface{}) { Error(msg, e.fields(fields)...) }

var emailRegex = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

func redactPIIValue(key, val string) string {
	key = strings.ToLower(key)
	// Redact email fields
	if strings.Contains(key, "email") || strings.Contains(key, "subscriber") {
		return RedactEmail(val)
	}
	// Redact any embedded emails in generic fields
	return emailRegex.ReplaceAllStringFunc(val, RedactEmail)
}
