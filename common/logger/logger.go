// Package logger is the leveled key/value logger shared by printrelay components.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// LogLevel is the severity of a log entry. Lower values are more severe.
type LogLevel int

const (
	ERROR LogLevel = iota
	WARN
	INFO
	DEBUG
	TRACE
)

var levelNames = map[LogLevel]string{
	ERROR: "ERROR",
	WARN:  "WARN",
	INFO:  "INFO",
	DEBUG: "DEBUG",
	TRACE: "TRACE",
}

// LogEntry is a single buffered log line.
type LogEntry struct {
	Timestamp time.Time
	Level     LogLevel
	Message   string
	Context   map[string]interface{}
}

// RotationPolicy controls size based rotation of the log file.
type RotationPolicy struct {
	Enabled   bool
	MaxSizeMB int
	MaxFiles  int
}

type rateLimiter struct {
	lastLog  time.Time
	interval time.Duration
}

// Logger writes entries to the console, a log file and an in-memory ring buffer.
type Logger struct {
	mu            sync.RWMutex
	level         LogLevel
	logDir        string
	fileName      string
	file          *os.File
	console       io.Writer
	buffer        []LogEntry
	maxBufferSize int
	rotation      RotationPolicy
	rateLimiters  map[string]*rateLimiter
	now           func() time.Time
}

// New creates a Logger. An empty logDir disables file output.
func New(level LogLevel, logDir string, maxBufferSize int) *Logger {
	if maxBufferSize <= 0 {
		maxBufferSize = 1
	}
	return &Logger{
		level:         level,
		logDir:        logDir,
		fileName:      "agent.log",
		console:       os.Stdout,
		buffer:        make([]LogEntry, 0, maxBufferSize),
		maxBufferSize: maxBufferSize,
		rateLimiters:  make(map[string]*rateLimiter),
		now:           time.Now,
		rotation: RotationPolicy{
			Enabled:   true,
			MaxSizeMB: 20,
			MaxFiles:  5,
		},
	}
}

// SetConsole redirects console output; nil disables it.
func (l *Logger) SetConsole(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.console = w
}

// SetLevel changes the minimum severity that gets recorded.
func (l *Logger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

func (l *Logger) GetLevel() LogLevel {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.level
}

func (l *Logger) SetRotationPolicy(policy RotationPolicy) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rotation = policy
}

func (l *Logger) Error(msg string, context ...interface{}) { l.log(ERROR, msg, context...) }
func (l *Logger) Warn(msg string, context ...interface{})  { l.log(WARN, msg, context...) }
func (l *Logger) Info(msg string, context ...interface{})  { l.log(INFO, msg, context...) }
func (l *Logger) Debug(msg string, context ...interface{}) { l.log(DEBUG, msg, context...) }
func (l *Logger) Trace(msg string, context ...interface{}) { l.log(TRACE, msg, context...) }

// WarnRateLimited logs a warning at most once per interval for the given key.
func (l *Logger) WarnRateLimited(key string, interval time.Duration, msg string, context ...interface{}) {
	l.mu.Lock()
	limiter, ok := l.rateLimiters[key]
	if !ok {
		limiter = &rateLimiter{interval: interval}
		l.rateLimiters[key] = limiter
	}
	now := l.now()
	if !limiter.lastLog.IsZero() && now.Sub(limiter.lastLog) < limiter.interval {
		l.mu.Unlock()
		return
	}
	limiter.lastLog = now
	l.mu.Unlock()

	l.log(WARN, msg, context...)
}

func (l *Logger) log(level LogLevel, msg string, context ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level > l.level {
		return
	}

	ctx := make(map[string]interface{}, len(context)/2)
	for i := 0; i+1 < len(context); i += 2 {
		if key, ok := context[i].(string); ok {
			ctx[key] = context[i+1]
		}
	}

	entry := LogEntry{Timestamp: l.now(), Level: level, Message: msg, Context: ctx}

	if len(l.buffer) >= l.maxBufferSize {
		l.buffer = l.buffer[1:]
	}
	l.buffer = append(l.buffer, entry)

	line := formatLogEntry(entry)
	if l.console != nil {
		fmt.Fprintln(l.console, line)
	}
	l.writeToFile(line)
}

func (l *Logger) writeToFile(line string) {
	if l.logDir == "" {
		return
	}
	if l.file == nil {
		if err := os.MkdirAll(l.logDir, 0755); err != nil {
			return
		}
		f, err := os.OpenFile(filepath.Join(l.logDir, l.fileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return
		}
		l.file = f
	}

	l.file.WriteString(line + "\n")

	if l.shouldRotate() {
		l.rotate()
	}
}

// formatLogEntry renders an entry with its context keys in sorted order.
func formatLogEntry(entry LogEntry) string {
	var b strings.Builder
	b.WriteString(entry.Timestamp.Format(time.RFC3339))
	b.WriteString(" [")
	b.WriteString(levelNames[entry.Level])
	b.WriteString("] ")
	b.WriteString(entry.Message)

	keys := make([]string, 0, len(entry.Context))
	for k := range entry.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, entry.Context[k])
	}
	return b.String()
}

func (l *Logger) shouldRotate() bool {
	if !l.rotation.Enabled || l.rotation.MaxSizeMB <= 0 || l.file == nil {
		return false
	}
	stat, err := l.file.Stat()
	if err != nil {
		return false
	}
	return stat.Size() >= int64(l.rotation.MaxSizeMB)*1024*1024
}

// rotate renames the active file with a timestamp suffix and prunes old backups.
func (l *Logger) rotate() {
	if l.file == nil {
		return
	}
	l.file.Close()
	l.file = nil

	base := strings.TrimSuffix(l.fileName, filepath.Ext(l.fileName))
	backup := filepath.Join(l.logDir, fmt.Sprintf("%s_%s.log", base, l.now().Format("20060102_150405")))
	os.Rename(filepath.Join(l.logDir, l.fileName), backup)

	if l.rotation.MaxFiles <= 0 {
		return
	}
	backups, err := filepath.Glob(filepath.Join(l.logDir, base+"_*.log"))
	if err != nil {
		return
	}
	sort.Strings(backups)
	for i := 0; i < len(backups)-l.rotation.MaxFiles; i++ {
		os.Remove(backups[i])
	}
}

// GetBuffer returns a copy of the in-memory ring buffer.
func (l *Logger) GetBuffer() []LogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]LogEntry, len(l.buffer))
	copy(out, l.buffer)
	return out
}

// Close releases the log file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// LevelFromString parses a level name, case-insensitively. Unknown names map to INFO.
func LevelFromString(s string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ERROR":
		return ERROR
	case "WARN", "WARNING":
		return WARN
	case "DEBUG":
		return DEBUG
	case "TRACE":
		return TRACE
	default:
		return INFO
	}
}

func LevelToString(level LogLevel) string {
	return levelNames[level]
}
