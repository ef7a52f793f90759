package settlement

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voltbridge/gridoracle/internal/models"
)

// Hardhat's first dev account key; funds nothing outside a local chain.
const testPrivateKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

// fakeBackend scripts the RPC surface the submitter touches.
type fakeBackend struct {
	mu sync.Mutex

	nonce    uint64
	nonceErr error

	sendErr error
	sent    []*gethtypes.Transaction

	receipt    *gethtypes.Receipt
	receiptErr error

	header *gethtypes.Header
}

func (b *fakeBackend) PendingNonceAt(_ context.Context, _ common.Address) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nonce, b.nonceErr
}

func (b *fakeBackend) SendTransaction(_ context.Context, tx *gethtypes.Transaction) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sendErr != nil {
		return b.sendErr
	}
	b.sent = append(b.sent, tx)
	return nil
}

func (b *fakeBackend) TransactionReceipt(_ context.Context, _ common.Hash) (*gethtypes.Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.receiptErr != nil {
		return nil, b.receiptErr
	}
	if b.receipt == nil {
		return nil, ethereum.NotFound
	}
	return b.receipt, nil
}

func (b *fakeBackend) HeaderByNumber(_ context.Context, _ *big.Int) (*gethtypes.Header, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.header == nil {
		return nil, ethereum.NotFound
	}
	return b.header, nil
}

func (b *fakeBackend) setReceipt(r *gethtypes.Receipt) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.receipt = r
}

func (b *fakeBackend) sentCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sent)
}

func newTestSubmitter(t *testing.T, backend Backend, confirmTimeout time.Duration) *Submitter {
	t.Helper()
	s, err := NewSubmitter(backend, SubmitterConfig{
		ContractAddress: "0x5FbDB2315678afecb367f032d93F642f64180aa3",
		PrivateKey:      testPrivateKey,
		ChainID:         31337,
		GasLimit:        3_000_000,
		GasPriceGwei:    1,
		Confirmations:   1,
		ConfirmTimeout:  confirmTimeout,
		PollInterval:    10 * time.Millisecond,
	})
	require.NoError(t, err)
	return s
}

func testBatch() *models.Batch {
	return &models.Batch{
		ID:  "batch-1",
		Seq: 1,
		Trades: []models.QueuedTrade{
			{
				Submission: models.TradeSubmission{
					ID:             "sub-1",
					Seller:         "0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
					AmountKWh:      40,
					GenerationType: models.Solar,
					UnitPrice:      80,
				},
				Result:   models.ValidationResult{Decision: models.Approved, Weather: "Sunny"},
				Sequence: 1,
			},
		},
		TotalValue: 3200,
		Status:     models.BatchPending,
		CreatedAt:  time.Now(),
	}
}

func TestNewSubmitterRejectsBadConfig(t *testing.T) {
	backend := &fakeBackend{}

	_, err := NewSubmitter(nil, SubmitterConfig{})
	assert.Error(t, err)

	_, err = NewSubmitter(backend, SubmitterConfig{
		ContractAddress: "not-an-address",
		PrivateKey:      testPrivateKey,
	})
	assert.Error(t, err)

	_, err = NewSubmitter(backend, SubmitterConfig{
		ContractAddress: "0x5FbDB2315678afecb367f032d93F642f64180aa3",
		PrivateKey:      "zz",
	})
	assert.Error(t, err)
}

func TestSubmitterDerivesSigningAddress(t *testing.T) {
	s := newTestSubmitter(t, &fakeBackend{}, time.Second)
	// The hardhat dev key's well-known address.
	assert.Equal(t, "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", s.From().Hex())
}

func TestSubmitConfirmed(t *testing.T) {
	backend := &fakeBackend{
		receipt: &gethtypes.Receipt{
			Status:      gethtypes.ReceiptStatusSuccessful,
			BlockNumber: big.NewInt(100),
		},
	}
	s := newTestSubmitter(t, backend, time.Second)

	batch := testBatch()
	outcome := s.Submit(context.Background(), batch)

	require.Equal(t, models.BatchConfirmed, outcome.Status, "cause: %s", outcome.Cause)
	assert.NotEmpty(t, outcome.TxHash)
	require.Equal(t, 1, backend.sentCount(), "batch must settle in exactly one transaction")

	tx := backend.sent[0]
	assert.Equal(t, "0x5FbDB2315678afecb367f032d93F642f64180aa3", tx.To().Hex())
	assert.Equal(t, big.NewInt(3200), tx.Value(), "batch value rides along as the transaction value")
	assert.Equal(t, uint64(3_000_000), tx.Gas())
	assert.Equal(t, big.NewInt(1_000_000_000), tx.GasPrice())
	// submitBatch selector plus three 32-byte words.
	assert.Len(t, tx.Data(), 4+3*32)
}

func TestSubmitReverted(t *testing.T) {
	backend := &fakeBackend{
		receipt: &gethtypes.Receipt{
			Status:      gethtypes.ReceiptStatusFailed,
			BlockNumber: big.NewInt(100),
		},
	}
	s := newTestSubmitter(t, backend, time.Second)

	outcome := s.Submit(context.Background(), testBatch())
	assert.Equal(t, models.BatchFailed, outcome.Status)
	assert.Equal(t, "transaction reverted", outcome.Cause)
}

func TestSubmitSendFailure(t *testing.T) {
	backend := &fakeBackend{sendErr: context.DeadlineExceeded}
	s := newTestSubmitter(t, backend, time.Second)

	outcome := s.Submit(context.Background(), testBatch())
	assert.Equal(t, models.BatchFailed, outcome.Status)
	assert.Contains(t, outcome.Cause, "send tx")
}

func TestSubmitNonceFailure(t *testing.T) {
	backend := &fakeBackend{nonceErr: context.DeadlineExceeded}
	s := newTestSubmitter(t, backend, time.Second)

	outcome := s.Submit(context.Background(), testBatch())
	assert.Equal(t, models.BatchFailed, outcome.Status)
	assert.Contains(t, outcome.Cause, "fetch nonce")
	assert.Zero(t, backend.sentCount())
}

func TestSubmitTimeoutYieldsUnknown(t *testing.T) {
	// No receipt ever appears; the submitter must report Unknown, not guess.
	backend := &fakeBackend{}
	s := newTestSubmitter(t, backend, 100*time.Millisecond)

	outcome := s.Submit(context.Background(), testBatch())
	assert.Equal(t, models.BatchUnknown, outcome.Status)
	assert.Equal(t, "confirmation timeout", outcome.Cause)
	assert.NotEmpty(t, outcome.TxHash, "unknown outcomes keep the tx hash for reconciliation")
}

func TestSubmitWaitsForLateReceipt(t *testing.T) {
	backend := &fakeBackend{}
	s := newTestSubmitter(t, backend, 2*time.Second)

	go func() {
		time.Sleep(50 * time.Millisecond)
		backend.setReceipt(&gethtypes.Receipt{
			Status:      gethtypes.ReceiptStatusSuccessful,
			BlockNumber: big.NewInt(100),
		})
	}()

	outcome := s.Submit(context.Background(), testBatch())
	assert.Equal(t, models.BatchConfirmed, outcome.Status, "cause: %s", outcome.Cause)
}

func TestSubmitConfirmationDepth(t *testing.T) {
	backend := &fakeBackend{
		receipt: &gethtypes.Receipt{
			Status:      gethtypes.ReceiptStatusSuccessful,
			BlockNumber: big.NewInt(100),
		},
		header: &gethtypes.Header{Number: big.NewInt(100)},
	}
	s, err := NewSubmitter(backend, SubmitterConfig{
		ContractAddress: "0x5FbDB2315678afecb367f032d93F642f64180aa3",
		PrivateKey:      testPrivateKey,
		ChainID:         31337,
		GasLimit:        3_000_000,
		GasPriceGwei:    1,
		Confirmations:   3,
		ConfirmTimeout:  150 * time.Millisecond,
		PollInterval:    10 * time.Millisecond,
	})
	require.NoError(t, err)

	// Head never advances: only 1 of 3 confirmations, so the wait times out.
	outcome := s.Submit(context.Background(), testBatch())
	assert.Equal(t, models.BatchUnknown, outcome.Status)

	// Advance the head; reconciling the same tx now confirms it.
	backend.mu.Lock()
	backend.header = &gethtypes.Header{Number: big.NewInt(103)}
	backend.mu.Unlock()

	resolved := s.Reconcile(context.Background(), outcome.TxHash)
	assert.Equal(t, models.BatchConfirmed, resolved.Status)
}

func TestReconcileNotFound(t *testing.T) {
	backend := &fakeBackend{}
	s := newTestSubmitter(t, backend, time.Second)

	outcome := s.Reconcile(context.Background(), "0xdeadbeef")
	assert.Equal(t, models.BatchUnknown, outcome.Status)
	assert.Equal(t, "transaction not found", outcome.Cause)
}

func TestReconcileReverted(t *testing.T) {
	backend := &fakeBackend{
		receipt: &gethtypes.Receipt{
			Status:      gethtypes.ReceiptStatusFailed,
			BlockNumber: big.NewInt(100),
		},
	}
	s := newTestSubmitter(t, backend, time.Second)

	outcome := s.Reconcile(context.Background(), "0xdeadbeef")
	assert.Equal(t, models.BatchFailed, outcome.Status)
}
