package paper

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"leprechaun-go/internal/execution"
)

// LogEntry is one line of the outcome log.
type LogEntry struct {
	RecordedAt time.Time         `json:"recorded_at"`
	Contract   string            `json:"contract"`
	Outcome    execution.Outcome `json:"outcome"`
}

// OutcomeLog appends terminal order outcomes to a JSON-lines file.
// Records arriving after Close are dropped.
type OutcomeLog struct {
	mu      sync.Mutex
	file    *os.File
	written int
	now     func() time.Time
	log     zerolog.Logger
}

// NewOutcomeLog opens path for appending, creating parent directories as needed.
func NewOutcomeLog(path string, log zerolog.Logger) (*OutcomeLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("outcome log dir: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("outcome log: %w", err)
	}
	return &OutcomeLog{
		file: file,
		now:  time.Now,
		log:  log.With().Str("component", "outcome_log").Str("path", path).Logger(),
	}, nil
}

// Record implements execution.Recorder.
func (l *OutcomeLog) Record(o execution.Outcome) {
	line, err := json.Marshal(LogEntry{RecordedAt: l.now().UTC(), Contract: o.Contract.Key(), Outcome: o})
	if err != nil {
		l.log.Error().Err(err).Msg("encode outcome")
		return
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return
	}
	if _, err := l.file.Write(line); err != nil {
		l.log.Error().Err(err).Msg("append outcome")
		return
	}
	l.written++
}

// Written is the number of lines appended since open.
func (l *OutcomeLog) Written() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.written
}

// Close syncs and closes the file. It is safe to call more than once.
func (l *OutcomeLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	syncErr := l.file.Sync()
	closeErr := l.file.Close()
	l.file = nil
	if closeErr != nil {
		return closeErr
	}
	return syncErr
}
