package escalate

import "sync"

// Ledger is the run-scoped spend account for escalation. It is reset at the
// start of every run; the budget ceiling itself lives in the controller
// config so one ledger can serve differently-budgeted runs.
type Ledger struct {
	mu    sync.Mutex
	spent float64
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{}
}

// Reset zeroes the ledger for a new run.
func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.spent = 0
}

// Spent returns the cumulative spend since the last Reset.
func (l *Ledger) Spent() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.spent
}

// Add records a completed spend.
func (l *Ledger) Add(usd float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.spent += usd
}

// Allows reports whether a call with the given estimated cost fits under
// ceiling. The estimate counts against the ceiling before the call is made,
// so a $1.00 ceiling admits three $0.30 calls, not four.
func (l *Ledger) Allows(estimate, ceiling float64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.spent+estimate <= ceiling
}
