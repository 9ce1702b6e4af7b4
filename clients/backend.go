// Package clients holds the chain-facing plumbing: the read/write backend
// interfaces, hand-rolled ABI bindings for the title registry and the
// payment token, and the gas-buffered transaction submitter.
package clients

import (
	"context"
	"fmt"
	"math/big"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Backend is the read surface contract bindings run against. It is the
// subset of ethclient the orchestration layer needs, kept narrow so tests
// can fake it.
type Backend interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error)
}

// GasEstimator estimates the gas a call will consume.
type GasEstimator interface {
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
}

// TxSender turns a prepared call into a signed, broadcast transaction. The
// wallet provider is the production implementation; the signature is the
// wallet boundary's eth_sendTransaction.
type TxSender interface {
	SendTransaction(ctx context.Context, call ethereum.CallMsg) (common.Hash, error)
}

// NodeBackend is the full surface of a directly dialed RPC node, used by
// the headless key provider and the signerless catalog path.
type NodeBackend interface {
	Backend
	GasEstimator
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error
}

var _ NodeBackend = (*ethclient.Client)(nil)

// Dial connects to an RPC endpoint.
func Dial(rpcURL string) (*ethclient.Client, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("rpc dial %s: %w", rpcURL, err)
	}
	return client, nil
}

// HasCode probes whether deployed code exists at addr. An empty code blob
// means a wrong network or a pre-deployment state.
func HasCode(ctx context.Context, backend Backend, addr common.Address) (bool, error) {
	code, err := backend.CodeAt(ctx, addr, nil)
	if err != nil {
		return false, fmt.Errorf("code probe at %s: %w", addr.Hex(), err)
	}
	return len(code) > 0, nil
}
