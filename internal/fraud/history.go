package fraud

import (
	"sync"
	"time"
)

// HistoryStore holds each seller's bounded window of recent submissions.
// Updates for one seller are linearized behind a per-seller mutex; sellers
// never contend with each other beyond the brief map lookup. The engine only
// ever sees one seller's records at a time.
type HistoryStore struct {
	mu         sync.RWMutex
	sellers    map[string]*sellerHistory
	maxRecords int
}

type sellerHistory struct {
	mu      sync.Mutex
	records []Record
}

// NewHistoryStore creates a store keeping at most maxRecords per seller.
func NewHistoryStore(maxRecords int) *HistoryStore {
	if maxRecords < 1 {
		maxRecords = 1
	}
	return &HistoryStore{
		sellers:    make(map[string]*sellerHistory),
		maxRecords: maxRecords,
	}
}

// entry returns the seller's history, creating it on first use.
func (h *HistoryStore) entry(seller string) *sellerHistory {
	h.mu.RLock()
	e, ok := h.sellers[seller]
	h.mu.RUnlock()
	if ok {
		return e
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if e, ok = h.sellers[seller]; ok {
		return e
	}
	e = &sellerHistory{}
	h.sellers[seller] = e
	return e
}

// Snapshot returns a copy of the seller's records for evaluation. The copy
// decouples the pure engine from concurrent mutation.
func (h *HistoryStore) Snapshot(seller string) []Record {
	e := h.entry(seller)
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Record, len(e.records))
	copy(out, e.records)
	return out
}

// Record appends a decision record to the seller's window, evicting the
// oldest entries beyond the per-seller bound. Records age out of relevance
// via the rate window at evaluation time; they are never deleted here except
// by the count bound.
func (h *HistoryStore) Record(seller string, rec Record) {
	e := h.entry(seller)
	e.mu.Lock()
	defer e.mu.Unlock()

	e.records = append(e.records, rec)
	if len(e.records) > h.maxRecords {
		e.records = e.records[len(e.records)-h.maxRecords:]
	}
}

// Sellers returns the number of sellers with recorded history.
func (h *HistoryStore) Sellers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sellers)
}

// Prune drops records older than maxAge across all sellers. Intended for the
// scheduler's periodic housekeeping pass.
func (h *HistoryStore) Prune(maxAge time.Duration, now time.Time) {
	cutoff := now.Add(-maxAge)

	h.mu.RLock()
	entries := make([]*sellerHistory, 0, len(h.sellers))
	for _, e := range h.sellers {
		entries = append(entries, e)
	}
	h.mu.RUnlock()

	for _, e := range entries {
		e.mu.Lock()
		kept := e.records[:0]
		for _, rec := range e.records {
			if !rec.At.Before(cutoff) {
				kept = append(kept, rec)
			}
		}
		e.records = kept
		e.mu.Unlock()
	}
}
