package clients

import (
	"context"
	"errors"
	"fmt"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
)

const (
	// gasBufferNum/gasBufferDen pad the node's gas estimate by 20% so a
	// state change between estimate and inclusion does not strand the tx.
	gasBufferNum = 120
	gasBufferDen = 100

	receiptPollInterval = 2 * time.Second
)

// ErrTxReverted reports a transaction that was mined with a failed status.
var ErrTxReverted = errors.New("transaction reverted")

// Submitter sends contract calls through a signer and waits for them to
// land. Estimation runs against the read backend before the send so the
// signer never has to guess a limit.
type Submitter struct {
	sender    TxSender
	estimator GasEstimator
	receipts  Backend
}

func NewSubmitter(sender TxSender, estimator GasEstimator, receipts Backend) *Submitter {
	return &Submitter{sender: sender, estimator: estimator, receipts: receipts}
}

// Submit estimates gas for msg, pads the estimate, sends, and blocks until
// the transaction is mined or ctx ends. A mined-but-failed transaction
// returns ErrTxReverted.
func (s *Submitter) Submit(ctx context.Context, msg ethereum.CallMsg) (*ethtypes.Receipt, error) {
	if msg.Gas == 0 && s.estimator != nil {
		estimate, err := s.estimator.EstimateGas(ctx, msg)
		if err != nil {
			return nil, fmt.Errorf("estimate gas: %w", err)
		}
		msg.Gas = estimate * gasBufferNum / gasBufferDen
	}
	hash, err := s.sender.SendTransaction(ctx, msg)
	if err != nil {
		return nil, err
	}
	return s.wait(ctx, hash)
}

func (s *Submitter) wait(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error) {
	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()
	for {
		receipt, err := s.receipts.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			if receipt.Status != ethtypes.ReceiptStatusSuccessful {
				return receipt, fmt.Errorf("%w: %s", ErrTxReverted, hash.Hex())
			}
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("fetch receipt %s: %w", hash.Hex(), err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
