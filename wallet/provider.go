package wallet

import (
	"context"
	"errors"
	"fmt"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/timeboundbeats/titlerent/types"
)

// Provider error codes as wallets report them.
const (
	CodeUserRejected      = 4001
	CodeUnrecognizedChain = 4902
)

// ProviderError carries the wallet's numeric error code alongside its
// message so callers can branch on rejection versus unknown chain.
type ProviderError struct {
	Code    int
	Message string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error %d: %s", e.Code, e.Message)
}

// IsUserRejection reports whether err is the wallet user declining a
// prompt.
func IsUserRejection(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Code == CodeUserRejected
}

// IsUnrecognizedChain reports whether err is the wallet not knowing the
// requested chain, the cue to register it and retry.
func IsUnrecognizedChain(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Code == CodeUnrecognizedChain
}

// EventKind tags asynchronous provider notifications.
type EventKind int

const (
	EventAccountsChanged EventKind = iota
	EventChainChanged
)

// Event is one asynchronous provider notification. Accounts is set for
// account changes, ChainID for chain changes.
type Event struct {
	Kind     EventKind
	Accounts []common.Address
	ChainID  uint64
}

// Provider is the wallet boundary. Browser-extension style wallets and the
// headless key signer both satisfy it.
type Provider interface {
	// RequestAccounts prompts the user for access and returns the
	// authorized accounts. Declining yields a CodeUserRejected error.
	RequestAccounts(ctx context.Context) ([]common.Address, error)

	// Accounts returns already-authorized accounts without prompting.
	Accounts(ctx context.Context) ([]common.Address, error)

	// ChainID returns the chain the provider is currently pointed at.
	ChainID(ctx context.Context) (uint64, error)

	// SwitchChain asks the provider to move to chainID. An unknown chain
	// yields a CodeUnrecognizedChain error.
	SwitchChain(ctx context.Context, chainID uint64) error

	// AddChain registers a network with the provider.
	AddChain(ctx context.Context, network types.NetworkDescriptor) error

	// SendTransaction signs and broadcasts msg from msg.From, returning
	// the transaction hash.
	SendTransaction(ctx context.Context, msg ethereum.CallMsg) (common.Hash, error)

	// Subscribe delivers provider events to ch until the returned cancel
	// is called.
	Subscribe(ch chan<- Event) (cancel func())
}
