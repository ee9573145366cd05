package observability

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EventType defines the category of the log event.
type EventType string

const (
	EventTypePlan       EventType = "plan"
	EventTypeStep       EventType = "step"
	EventTypeState      EventType = "state"
	EventTypeChallenge  EventType = "challenge"
	EventTypeFallback   EventType = "fallback"
	EventTypeExtraction EventType = "extraction"
	EventTypePolicy     EventType = "policy_check"
	EventTypeHeartbeat  EventType = "heartbeat"
	EventTypeLLM        EventType = "llm"
)

// Event represents a structured log entry.
type Event struct {
	Type      EventType `json:"type"`
	ChatID    string    `json:"chat_id,omitempty"`
	TaskID    string    `json:"task_id,omitempty"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Options configures NewLogger.
type Options struct {
	Level      string
	Output     io.Writer
	LLMLogPath string
	MaxSizeMB  int
}

// Logger wraps zap with typed agent events. LLM transcripts are mirrored to
// a JSONL file that is rotated once it grows past the configured size.
type Logger struct {
	*zap.Logger

	mu         sync.Mutex
	llmLogPath string
	maxSize    int64
}

func NewLogger(opts Options) (*Logger, error) {
	level := zapcore.InfoLevel
	if opts.Level != "" {
		lvl, err := zapcore.ParseLevel(opts.Level)
		if err != nil {
			return nil, err
		}
		level = lvl
	}

	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(out),
		zap.NewAtomicLevelAt(level),
	)

	maxSize := int64(opts.MaxSizeMB) * 1024 * 1024
	if maxSize <= 0 {
		maxSize = 10 * 1024 * 1024
	}

	return &Logger{
		Logger:     zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)),
		llmLogPath: opts.LLMLogPath,
		maxSize:    maxSize,
	}, nil
}

// NewNop returns a logger that discards everything, including transcripts.
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// Log emits a structured event.
func (l *Logger) Log(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}

	l.Info(string(evt.Type),
		zap.String("chat_id", evt.ChatID),
		zap.String("task_id", evt.TaskID),
		zap.Any("data", evt.Data),
		zap.Time("event_time", evt.Timestamp),
	)

	if evt.Type == EventTypeLLM && l.llmLogPath != "" {
		data, err := json.Marshal(evt)
		if err != nil {
			l.Warn("failed to marshal llm event", zap.Error(err))
			return
		}
		l.writeToFile(data)
	}
}

func (l *Logger) writeToFile(data []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.llmLogPath), 0755); err != nil {
		l.Warn("failed to create log directory", zap.Error(err))
		return
	}

	info, err := os.Stat(l.llmLogPath)
	if err == nil && info.Size() > l.maxSize {
		l.rotateLogs()
	}

	f, err := os.OpenFile(l.llmLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		l.Warn("failed to open log file", zap.Error(err))
		return
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		l.Warn("failed to write to log file", zap.Error(err))
	}
}

// Keeps a single .old generation.
func (l *Logger) rotateLogs() {
	oldPath := l.llmLogPath + ".old"
	_ = os.Remove(oldPath)
	_ = os.Rename(l.llmLogPath, oldPath)
}

func (l *Logger) LogPlan(taskID string, plan any) {
	l.Log(Event{Type: EventTypePlan, TaskID: taskID, Data: plan})
}

func (l *Logger) LogStep(taskID string, step any) {
	l.Log(Event{Type: EventTypeStep, TaskID: taskID, Data: step})
}

func (l *Logger) LogState(taskID, from, to string) {
	l.Log(Event{
		Type:   EventTypeState,
		TaskID: taskID,
		Data:   map[string]string{"from": from, "to": to},
	})
}

func (l *Logger) LogChallenge(taskID, url, signal, outcome string) {
	l.Log(Event{
		Type:   EventTypeChallenge,
		TaskID: taskID,
		Data: map[string]string{
			"url":     url,
			"signal":  signal,
			"outcome": outcome,
		},
	})
}

func (l *Logger) LogFallback(taskID string, strategies any) {
	l.Log(Event{Type: EventTypeFallback, TaskID: taskID, Data: strategies})
}

func (l *Logger) LogExtraction(taskID, url string, extracted bool, contentLength int) {
	l.Log(Event{
		Type:   EventTypeExtraction,
		TaskID: taskID,
		Data: map[string]any{
			"url":            url,
			"extracted":      extracted,
			"content_length": contentLength,
		},
	})
}

func (l *Logger) LogPolicy(taskID, target, effect, reason string) {
	l.Log(Event{
		Type:   EventTypePolicy,
		TaskID: taskID,
		Data: map[string]string{
			"target": target,
			"effect": effect,
			"reason": reason,
		},
	})
}

func (l *Logger) LogHeartbeat() {
	l.Log(Event{
		Type: EventTypeHeartbeat,
		Data: map[string]string{"status": "alive"},
	})
}

func (l *Logger) LogLLM(component string, prompt any, response any, err error) {
	data := map[string]any{
		"component": component,
		"prompt":    prompt,
		"response":  response,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	l.Log(Event{Type: EventTypeLLM, Data: data})
}
