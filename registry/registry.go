// Package registry holds the closed table of supported networks and the
// pure lookup functions over it. Addresses recorded here were verified
// against the deployed contracts; the local network has none because its
// addresses come from the deployment manifest on every run.
package registry

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/timeboundbeats/titlerent/types"
)

var (
	// Local is the Anvil fork used for development. Contract addresses are
	// resolved from the deployment manifest, never recorded here.
	Local = types.NetworkDescriptor{
		Key:       types.NetworkLocal,
		Name:      "Local Anvil (Arbitrum Fork)",
		ShortName: "Local",
		ChainID:   31337,
		RPCURL:    "http://localhost:8545",
		Currency:  types.NativeCurrency{Name: "Ethereum", Symbol: "ETH", Decimals: 18},
		Logo:      "local",
		Contracts: types.UnresolvedAddressSet(),
	}

	// Arbitrum is Arbitrum One mainnet.
	Arbitrum = types.NetworkDescriptor{
		Key:           types.NetworkArbitrum,
		Name:          "Arbitrum One",
		ShortName:     "Arbitrum",
		ChainID:       42161,
		RPCURL:        "https://arbitrum-one.publicnode.com",
		Currency:      types.NativeCurrency{Name: "Ethereum", Symbol: "ETH", Decimals: 18},
		BlockExplorer: "https://arbiscan.io",
		Logo:          "ethereum",
		Contracts: types.ResolvedAddressSet(
			common.HexToAddress("0x6E9C1F88a960fE63387eb4b71BC525a9313d8461"),
			common.HexToAddress("0xaf88d065e77c8cC2239327C5EDb3A432268e5831"),
		),
	}

	// Sepolia is the public test network shown to unauthenticated visitors,
	// so anonymous browsing works without a wallet.
	Sepolia = types.NetworkDescriptor{
		Key:           types.NetworkSepolia,
		Name:          "Sepolia",
		ShortName:     "Sepolia",
		ChainID:       11155111,
		RPCURL:        "https://ethereum-sepolia-rpc.publicnode.com",
		Currency:      types.NativeCurrency{Name: "Sepolia Ethereum", Symbol: "ETH", Decimals: 18},
		BlockExplorer: "https://sepolia.etherscan.io",
		Logo:          "ethereum",
		Contracts: types.ResolvedAddressSet(
			common.HexToAddress("0x41B38c759E304e048a1e1C81B1f2BE98AdD2CE01"),
			common.HexToAddress("0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238"),
		),
	}
)

// networks is the closed set. Nothing is discovered at runtime.
var networks = map[types.NetworkKey]types.NetworkDescriptor{
	types.NetworkLocal:    Local,
	types.NetworkArbitrum: Arbitrum,
	types.NetworkSepolia:  Sepolia,
}

// Describe returns the descriptor for key.
func Describe(key types.NetworkKey) (types.NetworkDescriptor, error) {
	n, ok := networks[key]
	if !ok {
		return types.NetworkDescriptor{}, types.E(types.ErrUnknownNetwork,
			fmt.Sprintf("unknown network %q", key))
	}
	return n, nil
}

// ResolveByChainID finds the descriptor for a detected chain id. An
// unrecognized chain is an expected runtime condition, not an error, so the
// miss is reported through the second return value.
func ResolveByChainID(chainID uint64) (types.NetworkDescriptor, bool) {
	for _, n := range networks {
		if n.ChainID == chainID {
			return n, true
		}
	}
	return types.NetworkDescriptor{}, false
}

// Default is the network assumed before any chain detection has happened.
func Default() types.NetworkDescriptor {
	return Sepolia
}

// Keys lists the registry in a stable order for display.
func Keys() []types.NetworkKey {
	return []types.NetworkKey{types.NetworkLocal, types.NetworkArbitrum, types.NetworkSepolia}
}
