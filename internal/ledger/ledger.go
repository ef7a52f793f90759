// Package ledger provides the durable, append-only record of every trade
// submission's lifecycle. It is the single source of truth for idempotency
// (exactly one terminal decision per submission) and for "is this trade
// settled" queries.
//
// Events are written to SQLite before the in-memory index is updated, so a
// submission's state machine never advances past a failed append. On restart
// the index is rebuilt from the database, which is what allows safe
// reprocessing decisions after a crash.
package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/voltbridge/gridoracle/internal/models"
)

// ErrDuplicateDecision is returned when a second Validated event is appended
// for a submission that already has a terminal decision. Callers should fetch
// the recorded result and replay it instead of re-processing.
var ErrDuplicateDecision = errors.New("submission already has a recorded decision")

// ErrNotFound is returned when no events exist for a submission ID.
var ErrNotFound = errors.New("submission not found")

const schema = `
CREATE TABLE IF NOT EXISTS trade_events (
	seq             INTEGER PRIMARY KEY AUTOINCREMENT,
	submission_id   TEXT    NOT NULL,
	kind            TEXT    NOT NULL,
	seller          TEXT    NOT NULL DEFAULT '',
	amount_kwh      INTEGER NOT NULL DEFAULT 0,
	generation_type TEXT    NOT NULL DEFAULT '',
	decision        TEXT    NOT NULL DEFAULT '',
	reason          TEXT    NOT NULL DEFAULT '',
	advisory        TEXT    NOT NULL DEFAULT '',
	detail          TEXT    NOT NULL DEFAULT '',
	weather         TEXT    NOT NULL DEFAULT '',
	batch_id        TEXT    NOT NULL DEFAULT '',
	at_ns           INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trade_events_submission ON trade_events(submission_id);
`

// Ledger is a thread-safe append-only trade lifecycle log backed by SQLite,
// with an in-memory index for cheap idempotency checks.
type Ledger struct {
	db      *sql.DB
	mu      sync.RWMutex
	trails  map[string][]models.TradeEvent
	results map[string]models.ValidationResult
}

// New opens (or creates) the ledger database at dbPath and rebuilds the
// in-memory index from it. Use ":memory:" for tests.
func New(dbPath string) (*Ledger, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create ledger directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger database: %w", err)
	}
	// A single connection keeps ":memory:" databases coherent and serializes
	// writers, which SQLite requires anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create ledger schema: %w", err)
	}

	l := &Ledger{
		db:      db,
		trails:  make(map[string][]models.TradeEvent),
		results: make(map[string]models.ValidationResult),
	}
	if err := l.load(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to load ledger: %w", err)
	}
	return l, nil
}

// Close releases the underlying database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// load rebuilds the in-memory index from the database.
func (l *Ledger) load() error {
	rows, err := l.db.Query(`SELECT submission_id, kind, seller, amount_kwh,
		generation_type, decision, reason, advisory, detail, weather, batch_id, at_ns
		FROM trade_events ORDER BY seq ASC`)
	if err != nil {
		return fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			e        models.TradeEvent
			kind     string
			genType  string
			decision string
			reason   string
			advisory string
			detail   string
			weather  string
			atNS     int64
		)
		if err := rows.Scan(&e.SubmissionID, &kind, &e.Seller, &e.AmountKWh,
			&genType, &decision, &reason, &advisory, &detail, &weather,
			&e.BatchID, &atNS); err != nil {
			return fmt.Errorf("failed to scan event: %w", err)
		}
		e.Kind = models.EventKind(kind)
		e.GenerationType = models.GenerationType(genType)
		e.At = time.Unix(0, atNS).UTC()
		if e.Kind == models.EventValidated {
			e.Result = &models.ValidationResult{
				Decision: models.Decision(decision),
				Reason:   models.ReasonCode(reason),
				Advisory: models.ReasonCode(advisory),
				Detail:   detail,
				Weather:  weather,
			}
			l.results[e.SubmissionID] = *e.Result
		}
		l.trails[e.SubmissionID] = append(l.trails[e.SubmissionID], e)
	}
	return rows.Err()
}

// Append durably records a lifecycle event. A second Validated event for the
// same submission ID is rejected with ErrDuplicateDecision and leaves the
// ledger unchanged, which is what lets the API safely replay retries without
// double-processing.
func (l *Ledger) Append(event *models.TradeEvent) error {
	if err := event.Validate(); err != nil {
		return fmt.Errorf("invalid event: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Kind == models.EventValidated {
		if _, exists := l.results[event.SubmissionID]; exists {
			return ErrDuplicateDecision
		}
	}

	var decision, reason, advisory, detail, weather string
	if event.Result != nil {
		decision = string(event.Result.Decision)
		reason = string(event.Result.Reason)
		advisory = string(event.Result.Advisory)
		detail = event.Result.Detail
		weather = event.Result.Weather
	}

	// Durability first: the in-memory index only advances once the row is on disk.
	_, err := l.db.Exec(`INSERT INTO trade_events (submission_id, kind, seller,
		amount_kwh, generation_type, decision, reason, advisory, detail, weather,
		batch_id, at_ns) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.SubmissionID, string(event.Kind), event.Seller, event.AmountKWh,
		string(event.GenerationType), decision, reason, advisory, detail, weather,
		event.BatchID, event.At.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to persist event: %w", err)
	}

	l.trails[event.SubmissionID] = append(l.trails[event.SubmissionID], *event)
	if event.Kind == models.EventValidated && event.Result != nil {
		l.results[event.SubmissionID] = *event.Result
	}
	return nil
}

// Result returns the recorded terminal decision for a submission, if any.
func (l *Ledger) Result(submissionID string) (models.ValidationResult, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	r, ok := l.results[submissionID]
	return r, ok
}

// Trail returns the full ordered event history for a submission.
func (l *Ledger) Trail(submissionID string) ([]models.TradeEvent, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	trail, ok := l.trails[submissionID]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]models.TradeEvent, len(trail))
	copy(out, trail)
	return out, nil
}

// Exists reports whether any event has been recorded for the submission.
func (l *Ledger) Exists(submissionID string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	_, ok := l.trails[submissionID]
	return ok
}

// Settled reports whether the submission's batch was confirmed on-chain.
// Unknown-batch trades are excluded until reconciled.
func (l *Ledger) Settled(submissionID string) (bool, error) {
	trail, err := l.Trail(submissionID)
	if err != nil {
		return false, err
	}
	for i := len(trail) - 1; i >= 0; i-- {
		switch trail[i].Kind {
		case models.EventSettled:
			return true, nil
		case models.EventSettlementFailed, models.EventSettlementUnknown:
			return false, nil
		}
	}
	return false, nil
}

// EventCount returns the total number of recorded events, across all submissions.
func (l *Ledger) EventCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	n := 0
	for _, t := range l.trails {
		n += len(t)
	}
	return n
}
