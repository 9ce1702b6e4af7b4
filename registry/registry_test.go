package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timeboundbeats/titlerent/types"
)

func TestDescribeKnownNetworks(t *testing.T) {
	tests := []struct {
		key      types.NetworkKey
		chainID  uint64
		resolved bool
	}{
		{types.NetworkLocal, 31337, false},
		{types.NetworkArbitrum, 42161, true},
		{types.NetworkSepolia, 11155111, true},
	}
	for _, tc := range tests {
		t.Run(string(tc.key), func(t *testing.T) {
			desc, err := Describe(tc.key)
			require.NoError(t, err)
			assert.Equal(t, tc.key, desc.Key)
			assert.Equal(t, tc.chainID, desc.ChainID)
			assert.Equal(t, tc.resolved, desc.Contracts.Resolved(),
				"static address resolution for %s", tc.key)
			assert.NotEmpty(t, desc.RPCURL)
			assert.NotEmpty(t, desc.Currency.Symbol)
		})
	}
}

func TestDescribeUnknownNetwork(t *testing.T) {
	_, err := Describe(types.NetworkKey("base"))
	require.Error(t, err)
	assert.Equal(t, types.ErrUnknownNetwork, types.KindOf(err))
}

func TestResolveByChainIDRoundTrip(t *testing.T) {
	for _, key := range Keys() {
		desc, err := Describe(key)
		require.NoError(t, err)
		byID, ok := ResolveByChainID(desc.ChainID)
		require.True(t, ok)
		assert.Equal(t, desc.Key, byID.Key)
	}
}

func TestResolveByChainIDUnknown(t *testing.T) {
	_, ok := ResolveByChainID(1)
	assert.False(t, ok)
}

func TestDefaultIsSepolia(t *testing.T) {
	assert.Equal(t, types.NetworkSepolia, Default().Key)
}
