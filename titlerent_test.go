package titlerent

import (
	"context"
	"errors"
	"math/big"
	"testing"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timeboundbeats/titlerent/clients"
	"github.com/timeboundbeats/titlerent/registry"
	"github.com/timeboundbeats/titlerent/types"
	"github.com/timeboundbeats/titlerent/wallet"
)

// stubBackend satisfies NodeBackend without answering anything; facade
// tests only exercise wiring, not chain reads.
type stubBackend struct{}

func (stubBackend) CallContract(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
	return nil, errors.New("no chain behind this backend")
}
func (stubBackend) CodeAt(context.Context, common.Address, *big.Int) ([]byte, error) {
	return nil, errors.New("no chain behind this backend")
}
func (stubBackend) TransactionReceipt(context.Context, common.Hash) (*ethtypes.Receipt, error) {
	return nil, ethereum.NotFound
}
func (stubBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 0, errors.New("no chain behind this backend")
}
func (stubBackend) ChainID(context.Context) (*big.Int, error) { return big.NewInt(31337), nil }
func (stubBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return 0, nil
}
func (stubBackend) SuggestGasPrice(context.Context) (*big.Int, error) { return big.NewInt(1), nil }
func (stubBackend) SendTransaction(context.Context, *ethtypes.Transaction) error {
	return errors.New("no chain behind this backend")
}

func stubDialer(string) (clients.NodeBackend, error) { return stubBackend{}, nil }

func TestBrowseBeforeNetworkSelection(t *testing.T) {
	app := New(WithDialer(stubDialer))
	defer app.Close()

	_, err := app.Browse(context.Background())
	require.Error(t, err)
	assert.Equal(t, types.ErrNotReady, types.KindOf(err))
}

func TestUseNetworkUnknownKey(t *testing.T) {
	app := New(WithDialer(stubDialer))
	defer app.Close()

	err := app.UseNetwork(context.Background(), types.NetworkKey("base"))
	require.Error(t, err)
	assert.Equal(t, types.ErrUnknownNetwork, types.KindOf(err))
}

func TestUseNetworkDialFailure(t *testing.T) {
	app := New(WithDialer(func(string) (clients.NodeBackend, error) {
		return nil, errors.New("connection refused")
	}))
	defer app.Close()

	err := app.UseNetwork(context.Background(), types.NetworkSepolia)
	require.Error(t, err)
	assert.Equal(t, types.ErrRemoteCallFailed, types.KindOf(err))
}

func TestUseNetworkLocalWithoutManifestWarns(t *testing.T) {
	var notes []types.Notification
	app := New(
		WithDialer(stubDialer),
		WithNotifier(func(n types.Notification) { notes = append(notes, n) }),
	)
	defer app.Close()

	// No manifest host configured, so the local fork resolves to nothing.
	require.NoError(t, app.UseNetwork(context.Background(), types.NetworkLocal))
	assert.False(t, app.Contracts().Resolved())
	require.Len(t, notes, 1)
	assert.Equal(t, types.SeverityWarning, notes[0].Severity)

	_, err := app.Browse(context.Background())
	require.Error(t, err)
	assert.Equal(t, types.ErrContractUnresolved, types.KindOf(err))
}

func TestUseNetworkClearsCart(t *testing.T) {
	app := New(WithDialer(stubDialer))
	defer app.Close()

	require.NoError(t, app.UseNetwork(context.Background(), types.NetworkSepolia))
	app.AddToCart(types.TitleListing{TokenID: 1, Name: "Midnight Drive"})
	require.Len(t, app.CartItems(), 1)

	require.NoError(t, app.UseNetwork(context.Background(), types.NetworkArbitrum))
	assert.Empty(t, app.CartItems())
}

// quoteBackend answers any contract read with a uint256 of 2, enough for
// the rental-rate read behind pricing.
type quoteBackend struct{ stubBackend }

func (quoteBackend) CallContract(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
	return common.LeftPadBytes(big.NewInt(2).Bytes(), 32), nil
}

func quoteDialer(string) (clients.NodeBackend, error) { return quoteBackend{}, nil }

func TestQuoteWithoutWallet(t *testing.T) {
	app := New(WithDialer(quoteDialer))
	defer app.Close()

	// Pricing is a read; anonymous browsers get quotes too.
	require.NoError(t, app.UseNetwork(context.Background(), types.NetworkSepolia))
	app.AddToCart(types.TitleListing{TokenID: 1, Name: "Midnight Drive"})
	app.AddToCart(types.TitleListing{TokenID: 2, Name: "Glass Harbor"})

	quote, err := app.Quote(context.Background(), 3)
	require.NoError(t, err)
	assert.Len(t, quote.Items, 2)
	// rate * day * items * days
	assert.Equal(t, big.NewInt(2*types.SecondsPerDay*2*3), quote.Total)
}

func TestCheckoutWithoutWallet(t *testing.T) {
	app := New(WithDialer(quoteDialer))
	defer app.Close()

	require.NoError(t, app.UseNetwork(context.Background(), types.NetworkSepolia))
	app.AddToCart(types.TitleListing{TokenID: 1, Name: "Midnight Drive"})

	_, err := app.Checkout(context.Background(), 1)
	require.Error(t, err)
	assert.Equal(t, types.ErrNotReady, types.KindOf(err))
}

// mintBackend extends the quoting stub with a working gas estimate so a
// submission reaches the wallet provider.
type mintBackend struct{ quoteBackend }

func (mintBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 100_000, nil
}

// decliningProvider authorizes an account on Sepolia but declines every
// transaction prompt.
type decliningProvider struct{}

func (decliningProvider) RequestAccounts(context.Context) ([]common.Address, error) {
	return []common.Address{minter}, nil
}
func (decliningProvider) Accounts(context.Context) ([]common.Address, error) {
	return []common.Address{minter}, nil
}
func (decliningProvider) ChainID(context.Context) (uint64, error) {
	return registry.Sepolia.ChainID, nil
}
func (decliningProvider) SwitchChain(context.Context, uint64) error { return nil }
func (decliningProvider) AddChain(context.Context, types.NetworkDescriptor) error {
	return nil
}
func (decliningProvider) SendTransaction(context.Context, ethereum.CallMsg) (common.Hash, error) {
	return common.Hash{}, &wallet.ProviderError{Code: wallet.CodeUserRejected, Message: "denied"}
}
func (decliningProvider) Subscribe(chan<- wallet.Event) (cancel func()) { return func() {} }

var minter = common.HexToAddress("0xdddddddddddddddddddddddddddddddddddddddd")

func TestMintFailureClassifiesAndNotifies(t *testing.T) {
	var notes []types.Notification
	app := New(
		WithDialer(func(string) (clients.NodeBackend, error) { return mintBackend{}, nil }),
		WithNotifier(func(n types.Notification) { notes = append(notes, n) }),
	)
	defer app.Close()

	require.NoError(t, app.UseNetwork(context.Background(), types.NetworkSepolia))
	_, err := app.ConnectWallet(context.Background(), decliningProvider{})
	require.NoError(t, err)

	_, err = app.Mint(context.Background(), "Midnight Drive", "A. Vox", 180)
	require.Error(t, err)
	assert.Equal(t, types.ErrUserRejected, types.KindOf(err))

	require.NotEmpty(t, notes)
	last := notes[len(notes)-1]
	assert.Equal(t, types.SeverityError, last.Severity)
	assert.Equal(t, "Minting was declined in the wallet", last.Message)
}
