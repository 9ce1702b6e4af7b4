package types

import "github.com/ethereum/go-ethereum/common"

// NetworkKey identifies a network in the closed registry set.
type NetworkKey string

const (
	// NetworkLocal is the local Anvil development fork.
	NetworkLocal NetworkKey = "local"
	// NetworkArbitrum is Arbitrum One mainnet.
	NetworkArbitrum NetworkKey = "arbitrum"
	// NetworkSepolia is the Sepolia public test network.
	NetworkSepolia NetworkKey = "sepolia"
)

// NativeCurrency describes the coin used for gas on a network.
type NativeCurrency struct {
	Name     string
	Symbol   string
	Decimals uint8
}

// NetworkDescriptor is the immutable description of a supported network.
// The set of descriptors is enumerated at process start, never discovered.
type NetworkDescriptor struct {
	Key           NetworkKey
	Name          string
	ShortName     string
	ChainID       uint64
	RPCURL        string
	Currency      NativeCurrency
	BlockExplorer string // empty when the network has none
	Logo          string
	// Contracts holds the statically known addresses. It is unresolved for
	// networks whose addresses come from a deployment manifest.
	Contracts ContractAddressSet
}

// ContractAddressSet is the pair of contract addresses the orchestration
// layer needs on one network. The zero value is the unresolved set; callers
// obtain addresses only through the accessor pair, so an unresolved set can
// never be mistaken for a real destination.
type ContractAddressSet struct {
	registry     common.Address
	paymentToken common.Address
}

// ResolvedAddressSet builds an address set from the two contract addresses.
// If either address is the zero address the whole set is unresolved.
func ResolvedAddressSet(registry, paymentToken common.Address) ContractAddressSet {
	if registry == (common.Address{}) || paymentToken == (common.Address{}) {
		return ContractAddressSet{}
	}
	return ContractAddressSet{registry: registry, paymentToken: paymentToken}
}

// UnresolvedAddressSet returns the sentinel set used before resolution and
// after a failed manifest fetch.
func UnresolvedAddressSet() ContractAddressSet {
	return ContractAddressSet{}
}

// Resolved reports whether both addresses are known.
func (s ContractAddressSet) Resolved() bool {
	return s.registry != (common.Address{}) && s.paymentToken != (common.Address{})
}

// Registry returns the license registry contract address.
func (s ContractAddressSet) Registry() (common.Address, bool) {
	return s.registry, s.Resolved()
}

// PaymentToken returns the payment token contract address.
func (s ContractAddressSet) PaymentToken() (common.Address, bool) {
	return s.paymentToken, s.Resolved()
}

// Session records which wallet account and network are active for this
// process. The zero value is the disconnected session. Account is non-zero
// only while a network is set.
type Session struct {
	Account   common.Address
	Network   NetworkDescriptor
	HasSigner bool
}

// Connected reports whether a wallet account is attached to the session.
func (s Session) Connected() bool {
	return s.Account != (common.Address{})
}
