package settlement

import (
	"fmt"
	"sync"

	"github.com/voltbridge/gridoracle/internal/models"
)

// Registry tracks every claimed batch by ID, in creation order. Failed and
// Unknown batches stay here until an operator retries or reconciles them —
// they are never silently re-enqueued.
type Registry struct {
	mu      sync.RWMutex
	batches map[string]*models.Batch
	order   []string
}

// NewRegistry creates an empty batch registry.
func NewRegistry() *Registry {
	return &Registry{
		batches: make(map[string]*models.Batch),
	}
}

// Add records a new batch.
func (r *Registry) Add(batch *models.Batch) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.batches[batch.ID]; exists {
		return
	}
	r.batches[batch.ID] = batch
	r.order = append(r.order, batch.ID)
}

// Get returns a copy of the batch with the given ID.
func (r *Registry) Get(id string) (models.Batch, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.batches[id]
	if !ok {
		return models.Batch{}, false
	}
	return *b, true
}

// List returns copies of all batches in creation order.
func (r *Registry) List() []models.Batch {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Batch, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.batches[id])
	}
	return out
}

// Update applies fn to the stored batch under the registry lock.
func (r *Registry) Update(id string, fn func(*models.Batch)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.batches[id]
	if !ok {
		return fmt.Errorf("batch not found: %s", id)
	}
	fn(b)
	return nil
}

// Stats returns the number of batches per status.
func (r *Registry) Stats() map[models.BatchStatus]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := make(map[models.BatchStatus]int)
	for _, b := range r.batches {
		stats[b.Status]++
	}
	return stats
}

// SettledTradeCount returns the number of trades across confirmed batches.
func (r *Registry) SettledTradeCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, b := range r.batches {
		if b.Status == models.BatchConfirmed {
			n += len(b.Trades)
		}
	}
	return n
}
