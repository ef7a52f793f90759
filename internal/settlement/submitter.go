package settlement

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/voltbridge/gridoracle/internal/logger"
	"github.com/voltbridge/gridoracle/internal/models"
)

// submitBatchABI is the single entry point of the energy-trading ledger
// contract: it records a settled batch by merkle root, trade count, and
// total value, with the value also attached as the transaction's payment.
const submitBatchABI = `[{"inputs":[{"internalType":"bytes32","name":"_merkleRoot","type":"bytes32"},{"internalType":"uint256","name":"_tradeCount","type":"uint256"},{"internalType":"uint256","name":"_totalValue","type":"uint256"}],"name":"submitBatch","outputs":[],"stateMutability":"payable","type":"function"}]`

// Backend is the subset of the Ethereum RPC used by the submitter.
// Satisfied by *ethclient.Client.
type Backend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *gethtypes.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*gethtypes.Receipt, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*gethtypes.Header, error)
}

// Dial initialises an EVM RPC client for the provided endpoint.
func Dial(endpoint string) (*ethclient.Client, error) {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		return nil, fmt.Errorf("rpc endpoint required")
	}
	return ethclient.Dial(trimmed)
}

// Outcome is the result of one settlement attempt.
type Outcome struct {
	Status models.BatchStatus // Confirmed, Failed, or Unknown
	TxHash string
	Cause  string
}

// SubmitterConfig holds chain submission parameters.
type SubmitterConfig struct {
	ContractAddress string
	PrivateKey      string
	ChainID         int64
	GasLimit        uint64
	GasPriceGwei    int64
	Confirmations   uint64
	ConfirmTimeout  time.Duration
	PollInterval    time.Duration
}

// Submitter sends batch settlement transactions and awaits confirmation.
// Precondition on the ledger contract: submitBatch must reject a merkle root
// it has already recorded, so retrying a submission can never double-settle.
type Submitter struct {
	backend        Backend
	key            *ecdsa.PrivateKey
	from           common.Address
	contract       common.Address
	chainID        *big.Int
	gasLimit       uint64
	gasPrice       *big.Int
	confirmations  uint64
	confirmTimeout time.Duration
	pollInterval   time.Duration
	abi            abi.ABI
}

// NewSubmitter creates a submitter signing with the oracle's private key.
func NewSubmitter(backend Backend, cfg SubmitterConfig) (*Submitter, error) {
	if backend == nil {
		return nil, fmt.Errorf("backend is required")
	}
	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, fmt.Errorf("invalid contract address %q", cfg.ContractAddress)
	}

	key, err := gethcrypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	parsed, err := abi.JSON(strings.NewReader(submitBatchABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse contract ABI: %w", err)
	}

	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = 2 * time.Minute
	}

	return &Submitter{
		backend:        backend,
		key:            key,
		from:           gethcrypto.PubkeyToAddress(key.PublicKey),
		contract:       common.HexToAddress(cfg.ContractAddress),
		chainID:        big.NewInt(cfg.ChainID),
		gasLimit:       cfg.GasLimit,
		gasPrice:       new(big.Int).Mul(big.NewInt(cfg.GasPriceGwei), big.NewInt(1e9)),
		confirmations:  cfg.Confirmations,
		confirmTimeout: cfg.ConfirmTimeout,
		pollInterval:   cfg.PollInterval,
		abi:            parsed,
	}, nil
}

// From returns the oracle's signing address.
func (s *Submitter) From() common.Address {
	return s.from
}

// Submit serializes the batch into one submitBatch transaction, sends it,
// and awaits confirmation up to the configured timeout. The batch's total
// value is attached as the transaction value, matching the contract's
// payable settlement semantics.
func (s *Submitter) Submit(ctx context.Context, batch *models.Batch) Outcome {
	root := MerkleRoot(batch.Trades)

	data, err := s.abi.Pack("submitBatch", root,
		big.NewInt(int64(len(batch.Trades))), big.NewInt(batch.TotalValue))
	if err != nil {
		return Outcome{Status: models.BatchFailed, Cause: fmt.Sprintf("abi pack: %v", err)}
	}

	nonce, err := s.backend.PendingNonceAt(ctx, s.from)
	if err != nil {
		return Outcome{Status: models.BatchFailed, Cause: fmt.Sprintf("fetch nonce: %v", err)}
	}

	tx := gethtypes.NewTx(&gethtypes.LegacyTx{
		Nonce:    nonce,
		GasPrice: s.gasPrice,
		Gas:      s.gasLimit,
		To:       &s.contract,
		Value:    big.NewInt(batch.TotalValue),
		Data:     data,
	})

	signed, err := gethtypes.SignTx(tx, gethtypes.NewEIP155Signer(s.chainID), s.key)
	if err != nil {
		return Outcome{Status: models.BatchFailed, Cause: fmt.Sprintf("sign tx: %v", err)}
	}

	if err := s.backend.SendTransaction(ctx, signed); err != nil {
		return Outcome{Status: models.BatchFailed, Cause: fmt.Sprintf("send tx: %v", err)}
	}

	txHash := signed.Hash()
	logger.Info("Submitted batch %s as tx %s (trades: %d, value: %d)",
		batch.ID, txHash.Hex(), len(batch.Trades), batch.TotalValue)

	return s.awaitConfirmation(ctx, txHash)
}

// Reconcile re-checks a previously submitted transaction once. Used by the
// operator path to resolve Unknown batches; returns Unknown again when the
// chain still has no definitive answer.
func (s *Submitter) Reconcile(ctx context.Context, txHash string) Outcome {
	hash := common.HexToHash(txHash)
	receipt, err := s.backend.TransactionReceipt(ctx, hash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return Outcome{Status: models.BatchUnknown, TxHash: txHash, Cause: "transaction not found"}
		}
		return Outcome{Status: models.BatchUnknown, TxHash: txHash, Cause: fmt.Sprintf("fetch receipt: %v", err)}
	}
	return s.judge(ctx, hash, receipt)
}

// awaitConfirmation polls for the receipt until the confirmation depth is
// reached or the timeout expires. Timeout yields Unknown, never a guess.
func (s *Submitter) awaitConfirmation(ctx context.Context, txHash common.Hash) Outcome {
	ctx, cancel := context.WithTimeout(ctx, s.confirmTimeout)
	defer cancel()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return Outcome{
				Status: models.BatchUnknown,
				TxHash: txHash.Hex(),
				Cause:  "confirmation timeout",
			}

		case <-ticker.C:
			receipt, err := s.backend.TransactionReceipt(ctx, txHash)
			if err != nil {
				if !errors.Is(err, ethereum.NotFound) {
					logger.Debug("Receipt poll for %s: %v", txHash.Hex(), err)
				}
				continue
			}
			outcome := s.judge(ctx, txHash, receipt)
			if outcome.Status == models.BatchUnknown && outcome.Cause == "insufficient confirmations" {
				continue
			}
			return outcome
		}
	}
}

// judge classifies a fetched receipt: failed status is definitive, and a
// successful receipt counts only once it is buried deep enough.
func (s *Submitter) judge(ctx context.Context, txHash common.Hash, receipt *gethtypes.Receipt) Outcome {
	if receipt == nil {
		return Outcome{Status: models.BatchUnknown, TxHash: txHash.Hex(), Cause: "receipt missing"}
	}
	if receipt.Status != gethtypes.ReceiptStatusSuccessful {
		return Outcome{Status: models.BatchFailed, TxHash: txHash.Hex(), Cause: "transaction reverted"}
	}

	if s.confirmations > 1 {
		header, err := s.backend.HeaderByNumber(ctx, nil)
		if err != nil || header == nil || header.Number == nil || receipt.BlockNumber == nil {
			return Outcome{Status: models.BatchUnknown, TxHash: txHash.Hex(), Cause: "insufficient confirmations"}
		}
		confirmed := new(big.Int).Sub(header.Number, receipt.BlockNumber)
		confirmed.Add(confirmed, big.NewInt(1))
		if confirmed.Cmp(new(big.Int).SetUint64(s.confirmations)) < 0 {
			return Outcome{Status: models.BatchUnknown, TxHash: txHash.Hex(), Cause: "insufficient confirmations"}
		}
	}

	return Outcome{Status: models.BatchConfirmed, TxHash: txHash.Hex()}
}
