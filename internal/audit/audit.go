package audit

import (
	"encoding/json"
	"io"
	"sync"
	"time"
)

const (
	OutcomeSuccess = "success"
	OutcomeDenied  = "denied"
	OutcomeError   = "error"
)

var jsonMarshal = json.Marshal

// Event records one command invocation.
type Event struct {
	Timestamp  time.Time `json:"timestamp"`
	RequestID  string    `json:"requestId"`
	UserID     string    `json:"userId"`
	Command    string    `json:"command"`
	Toolset    string    `json:"toolset"`
	Source     string    `json:"source,omitempty"`
	Channel    string    `json:"channel,omitempty"`
	Args       []string  `json:"args,omitempty"`
	Outcome    string    `json:"outcome"`
	Error      string    `json:"error,omitempty"`
	DurationMS int64     `json:"durationMs"`
}

type Logger struct {
	out io.Writer
	mu  sync.Mutex
}

func NewLogger(out io.Writer) *Logger {
	if out == nil {
		out = io.Discard
	}
	return &Logger{out: out}
}

func (l *Logger) Log(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	data, err := jsonMarshal(event)
	if err != nil {
		return
	}
	_, _ = l.out.Write(append(data, '\n'))
}
