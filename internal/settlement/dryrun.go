package settlement

import (
	"context"

	"github.com/voltbridge/gridoracle/internal/logger"
	"github.com/voltbridge/gridoracle/internal/models"
)

// DryRun is a stand-in submitter for development without a chain endpoint.
// It logs each batch and reports it confirmed without sending anything.
type DryRun struct{}

// Submit logs the batch and confirms it immediately.
func (DryRun) Submit(_ context.Context, batch *models.Batch) Outcome {
	root := MerkleRoot(batch.Trades)
	logger.Info("Dry-run settlement of batch %s (trades: %d, value: %d, root: %x)",
		batch.ID, len(batch.Trades), batch.TotalValue, root)
	return Outcome{Status: models.BatchConfirmed, Cause: "dry run"}
}

// Reconcile reports Unknown: there is no chain to consult.
func (DryRun) Reconcile(_ context.Context, txHash string) Outcome {
	return Outcome{Status: models.BatchUnknown, TxHash: txHash, Cause: "dry run"}
}
