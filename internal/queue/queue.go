// Package queue buffers approved trades until they are claimed into a
// settlement batch. Enqueue is non-blocking and safe under concurrent
// producers; Flush atomically drains everything enqueued so far into one
// immutable batch. A trade belongs to at most one batch, batches carry
// strictly increasing sequence numbers, and trades enqueued after the claim
// moment accumulate into the next batch — never split, never duplicated.
package queue

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voltbridge/gridoracle/internal/models"
)

// ErrFlushInFlight is returned when a Flush is attempted while another is
// still claiming the queue.
var ErrFlushInFlight = errors.New("flush already in progress")

// ErrQueueEmpty is returned when Flush finds nothing to claim.
var ErrQueueEmpty = errors.New("queue is empty")

// Queue is a thread-safe buffer of approved trades awaiting settlement.
type Queue struct {
	mu           sync.Mutex
	flushMu      sync.Mutex
	trades       []models.QueuedTrade
	nextSeq      uint64
	nextBatchSeq uint64
}

// New creates an empty queue. Sequence numbers start at 1.
func New() *Queue {
	return &Queue{
		nextSeq:      1,
		nextBatchSeq: 1,
	}
}

// Enqueue appends an approved trade, assigning the next trade sequence
// number. Returns the queued trade and its position in the current queue.
func (q *Queue) Enqueue(sub models.TradeSubmission, res models.ValidationResult) (models.QueuedTrade, int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	qt := models.QueuedTrade{
		Submission: sub,
		Result:     res,
		Sequence:   q.nextSeq,
		EnqueuedAt: time.Now(),
	}
	q.nextSeq++
	q.trades = append(q.trades, qt)
	return qt, len(q.trades)
}

// NextBatchSeq consumes and returns the next batch sequence number. Used by
// the operator retry path so a retried batch orders after every batch the
// queue has claimed.
func (q *Queue) NextBatchSeq() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()

	seq := q.nextBatchSeq
	q.nextBatchSeq++
	return seq
}

// Len returns the number of unclaimed trades.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.trades)
}

// OldestAge returns how long the oldest unclaimed trade has been waiting,
// or zero when the queue is empty.
func (q *Queue) OldestAge(now time.Time) time.Duration {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.trades) == 0 {
		return 0
	}
	return now.Sub(q.trades[0].EnqueuedAt)
}

// ShouldFlush reports whether either flush trigger has fired: the size
// threshold or the age of the oldest unflushed trade.
func (q *Queue) ShouldFlush(sizeThreshold int, maxAge time.Duration, now time.Time) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.trades) == 0 {
		return false
	}
	if len(q.trades) >= sizeThreshold {
		return true
	}
	return now.Sub(q.trades[0].EnqueuedAt) >= maxAge
}

// Flush atomically claims all currently queued trades into one new pending
// batch. Only one flush may be in flight at a time; every trade observed as
// enqueued before the claim appears in this batch, and trades enqueued after
// it start the next one.
func (q *Queue) Flush() (*models.Batch, error) {
	if !q.flushMu.TryLock() {
		return nil, ErrFlushInFlight
	}
	defer q.flushMu.Unlock()

	q.mu.Lock()
	if len(q.trades) == 0 {
		q.mu.Unlock()
		return nil, ErrQueueEmpty
	}
	claimed := q.trades
	q.trades = nil
	batchSeq := q.nextBatchSeq
	q.nextBatchSeq++
	q.mu.Unlock()

	var totalValue int64
	for i := range claimed {
		totalValue += claimed[i].Submission.Value()
	}

	return &models.Batch{
		ID:         uuid.New().String(),
		Seq:        batchSeq,
		Trades:     claimed,
		TotalValue: totalValue,
		Status:     models.BatchPending,
		CreatedAt:  time.Now(),
	}, nil
}
