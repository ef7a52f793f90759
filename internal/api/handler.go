package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/voltbridge/gridoracle/internal/ledger"
	"github.com/voltbridge/gridoracle/internal/models"
)

// SubmitTrade handles POST /submit_trade.
func (s *Service) SubmitTrade(c *gin.Context) {
	var req SubmitTradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	resp, status := s.ProcessSubmission(c.Request.Context(), req)
	c.JSON(status, resp)
}

// Status handles GET /status with queue depth and batch accounting.
func (s *Service) Status(c *gin.Context) {
	stats := s.registry.Stats()
	c.JSON(http.StatusOK, gin.H{
		"queue_size":     s.queue.Len(),
		"batches":        stats,
		"settled_trades": s.registry.SettledTradeCount(),
	})
}

// GetTrade handles GET /trades/:id, returning the full lifecycle trail.
func (s *Service) GetTrade(c *gin.Context) {
	id := c.Param("id")

	trail, err := s.ledger.Trail(id)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "submission not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read ledger"})
		return
	}

	settled, _ := s.ledger.Settled(id)
	resp := gin.H{
		"submission_id": id,
		"settled":       settled,
		"events":        trail,
	}
	if result, ok := s.ledger.Result(id); ok {
		resp["result"] = result
	}
	c.JSON(http.StatusOK, resp)
}

// ListBatches handles GET /batches.
func (s *Service) ListBatches(c *gin.Context) {
	batches := s.registry.List()
	summaries := make([]gin.H, 0, len(batches))
	for i := range batches {
		summaries = append(summaries, batchSummary(&batches[i]))
	}
	c.JSON(http.StatusOK, gin.H{"batches": summaries})
}

// GetBatch handles GET /batches/:id.
func (s *Service) GetBatch(c *gin.Context) {
	batch, ok := s.registry.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "batch not found"})
		return
	}
	c.JSON(http.StatusOK, batch)
}

// RetryBatch handles POST /batches/:id/retry: an explicit operator decision
// to resubmit a Failed batch's trades under a fresh batch identity.
func (s *Service) RetryBatch(c *gin.Context) {
	retry, err := s.operator.Retry(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"retry_batch_id": retry.ID,
		"status":         retry.Status,
	})
}

// ReconcileBatch handles POST /batches/:id/reconcile: resolve an Unknown
// batch against the chain's actual state.
func (s *Service) ReconcileBatch(c *gin.Context) {
	batch, err := s.operator.Reconcile(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, batchSummary(&batch))
}

// HealthCheck handles GET /health.
func (s *Service) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func batchSummary(b *models.Batch) gin.H {
	return gin.H{
		"id":          b.ID,
		"seq":         b.Seq,
		"status":      b.Status,
		"trades":      len(b.Trades),
		"total_value": b.TotalValue,
		"tx_hash":     b.TxHash,
		"created_at":  b.CreatedAt,
	}
}
