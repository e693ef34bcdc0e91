package paper

import (
	"sync"

	"leprechaun-go/internal/execution"
)

// Ledger stores terminal order outcomes in memory for quick inspection.
type Ledger struct {
	mu       sync.Mutex
	outcomes []execution.Outcome
}

// NewLedger creates an empty ledger optionally pre-sizing storage.
func NewLedger(capacity int) *Ledger {
	if capacity < 0 {
		capacity = 0
	}
	return &Ledger{outcomes: make([]execution.Outcome, 0, capacity)}
}

// Record appends an outcome to the ledger.
func (l *Ledger) Record(o execution.Outcome) {
	l.mu.Lock()
	l.outcomes = append(l.outcomes, o)
	l.mu.Unlock()
}

// Snapshot returns a copy of the recorded outcomes.
func (l *Ledger) Snapshot() []execution.Outcome {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]execution.Outcome, len(l.outcomes))
	copy(out, l.outcomes)
	return out
}

// Filled returns only the outcomes that ended with a fill.
func (l *Ledger) Filled() []execution.Outcome {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []execution.Outcome
	for _, o := range l.outcomes {
		if o.Filled() {
			out = append(out, o)
		}
	}
	return out
}

// Reset clears all stored outcomes.
func (l *Ledger) Reset() {
	l.mu.Lock()
	l.outcomes = l.outcomes[:0]
	l.mu.Unlock()
}
