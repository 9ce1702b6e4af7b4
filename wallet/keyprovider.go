package wallet

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/timeboundbeats/titlerent/clients"
	"github.com/timeboundbeats/titlerent/types"
)

// KeyProvider is a headless Provider backed by a raw private key and a
// node connection. It signs locally and broadcasts through the node, so
// scripts and services can drive the rental flow without a wallet UI.
type KeyProvider struct {
	key     *ecdsa.PrivateKey
	address common.Address
	backend clients.NodeBackend
	chainID *big.Int
}

// NewKeyProvider builds a provider from a hex-encoded private key. The
// provider is pinned to the chain the backend reports.
func NewKeyProvider(ctx context.Context, privateKeyHex string, backend clients.NodeBackend) (*KeyProvider, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	chainID, err := backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("read chain id: %w", err)
	}
	return &KeyProvider{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		backend: backend,
		chainID: chainID,
	}, nil
}

// Address returns the signer's account.
func (p *KeyProvider) Address() common.Address { return p.address }

func (p *KeyProvider) RequestAccounts(context.Context) ([]common.Address, error) {
	return []common.Address{p.address}, nil
}

func (p *KeyProvider) Accounts(context.Context) ([]common.Address, error) {
	return []common.Address{p.address}, nil
}

func (p *KeyProvider) ChainID(context.Context) (uint64, error) {
	return p.chainID.Uint64(), nil
}

// SwitchChain succeeds only for the chain the backend is connected to; a
// headless signer cannot move between networks.
func (p *KeyProvider) SwitchChain(_ context.Context, chainID uint64) error {
	if chainID == p.chainID.Uint64() {
		return nil
	}
	return fmt.Errorf("signer is pinned to chain %s, cannot switch to %d", p.chainID, chainID)
}

func (p *KeyProvider) AddChain(context.Context, types.NetworkDescriptor) error {
	return nil
}

func (p *KeyProvider) SendTransaction(ctx context.Context, msg ethereum.CallMsg) (common.Hash, error) {
	if msg.From != p.address {
		return common.Hash{}, fmt.Errorf("cannot sign for %s, signer is %s", msg.From.Hex(), p.address.Hex())
	}
	if msg.To == nil {
		return common.Hash{}, fmt.Errorf("contract creation is not supported")
	}

	nonce, err := p.backend.PendingNonceAt(ctx, p.address)
	if err != nil {
		return common.Hash{}, fmt.Errorf("fetch nonce: %w", err)
	}
	gasPrice, err := p.backend.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("fetch gas price: %w", err)
	}
	gas := msg.Gas
	if gas == 0 {
		gas, err = p.backend.EstimateGas(ctx, msg)
		if err != nil {
			return common.Hash{}, fmt.Errorf("estimate gas: %w", err)
		}
	}
	value := msg.Value
	if value == nil {
		value = new(big.Int)
	}

	tx := ethtypes.NewTransaction(nonce, *msg.To, value, gas, gasPrice, msg.Data)
	signed, err := ethtypes.SignTx(tx, ethtypes.NewEIP155Signer(p.chainID), p.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign transaction: %w", err)
	}
	if err := p.backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("broadcast transaction: %w", err)
	}
	return signed.Hash(), nil
}

// Subscribe is a no-op; a key signer has no external account or chain
// changes to report.
func (p *KeyProvider) Subscribe(chan<- Event) (cancel func()) {
	return func() {}
}

var _ Provider = (*KeyProvider)(nil)
