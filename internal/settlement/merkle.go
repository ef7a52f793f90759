// Package settlement serializes claimed batches into single on-chain
// transactions and tracks their confirmation. A batch that times out without
// a definitive receipt is recorded as Unknown — never guessed as Confirmed
// or Failed — and is held for operator reconciliation.
package settlement

import (
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/voltbridge/gridoracle/internal/models"
)

// MerkleRoot computes the keccak256 merkle root over a batch's trades.
// The leaf encoding is fixed by the settlement contract:
// keccak256("{seller}{amount}{price}{weather}"). Odd levels duplicate the
// last node. The root doubles as the batch's on-chain identity, which is
// what the contract's replay protection keys on.
func MerkleRoot(trades []models.QueuedTrade) [32]byte {
	var root [32]byte
	if len(trades) == 0 {
		return root
	}

	level := make([][]byte, len(trades))
	for i := range trades {
		level[i] = crypto.Keccak256([]byte(leafData(&trades[i])))
	}

	for len(level) > 1 {
		next := make([][]byte, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			left := level[i]
			right := left
			if i+1 < len(level) {
				right = level[i+1]
			}
			next = append(next, crypto.Keccak256(left, right))
		}
		level = next
	}

	copy(root[:], level[0])
	return root
}

func leafData(t *models.QueuedTrade) string {
	return fmt.Sprintf("%s%d%d%s",
		t.Submission.Seller,
		t.Submission.AmountKWh,
		t.Submission.UnitPrice,
		t.Result.Weather)
}
