package rental

import (
	"context"
	"encoding/binary"
	"errors"
	"math/big"
	"strings"
	"sync"
	"testing"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timeboundbeats/titlerent/catalog"
	"github.com/timeboundbeats/titlerent/clients"
	"github.com/timeboundbeats/titlerent/registry"
	"github.com/timeboundbeats/titlerent/types"
	"github.com/timeboundbeats/titlerent/wallet"
)

const checkoutABI = `[
  {"name":"rentalFee","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"name":"paymentToken","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
  {"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"name":"allowance","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"name":"approve","type":"function","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
  {"name":"rentTitle","type":"function","stateMutability":"nonpayable","inputs":[{"name":"tokenId","type":"uint256"},{"name":"duration","type":"uint256"}],"outputs":[]},
  {"name":"rentTitles","type":"function","stateMutability":"nonpayable","inputs":[{"name":"tokenIds","type":"uint256[]"},{"name":"duration","type":"uint256"}],"outputs":[]}
]`

var (
	registryAddr = common.HexToAddress("0x41B38c759E304e048a1e1C81B1f2BE98AdD2CE01")
	tokenAddr    = common.HexToAddress("0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238")
	renter       = common.HexToAddress("0xcccccccccccccccccccccccccccccccccccccccc")
)

// checkoutChain fakes the read backend and the transaction sender so the
// exact call sequence of a checkout can be asserted.
type checkoutChain struct {
	abi       abi.ABI
	rate      *big.Int
	balance   *big.Int
	allowance *big.Int

	mu          sync.Mutex
	sent        []ethereum.CallMsg
	sendErrs    []error // consumed in order; nil means success
	sendGate    chan struct{}
	sendStarted chan struct{}
}

func newCheckoutChain(t *testing.T) *checkoutChain {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(checkoutABI))
	require.NoError(t, err)
	return &checkoutChain{
		abi:       parsed,
		rate:      big.NewInt(1), // 1 unit/second, 86400/day
		balance:   big.NewInt(10_000_000_000),
		allowance: big.NewInt(0),
	}
}

func (c *checkoutChain) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	method, err := c.abi.MethodById(msg.Data[:4])
	if err != nil {
		return nil, err
	}
	switch method.Name {
	case "rentalFee":
		return method.Outputs.Pack(c.rate)
	case "paymentToken":
		return method.Outputs.Pack(tokenAddr)
	case "balanceOf":
		return method.Outputs.Pack(c.balance)
	case "allowance":
		return method.Outputs.Pack(c.allowance)
	default:
		return nil, errors.New("unexpected call: " + method.Name)
	}
}

func (c *checkoutChain) CodeAt(context.Context, common.Address, *big.Int) ([]byte, error) {
	return []byte{0x60}, nil
}

func (c *checkoutChain) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 100_000, nil
}

func (c *checkoutChain) SendTransaction(_ context.Context, msg ethereum.CallMsg) (common.Hash, error) {
	if c.sendStarted != nil {
		c.sendStarted <- struct{}{}
	}
	if c.sendGate != nil {
		<-c.sendGate
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.sent)
	c.sent = append(c.sent, msg)
	if n < len(c.sendErrs) && c.sendErrs[n] != nil {
		return common.Hash{}, c.sendErrs[n]
	}
	var h common.Hash
	binary.BigEndian.PutUint64(h[:8], uint64(n+1))
	return h, nil
}

func (c *checkoutChain) TransactionReceipt(_ context.Context, hash common.Hash) (*ethtypes.Receipt, error) {
	return &ethtypes.Receipt{
		Status:      ethtypes.ReceiptStatusSuccessful,
		TxHash:      hash,
		BlockNumber: big.NewInt(7),
	}, nil
}

func (c *checkoutChain) sentCalls() []ethereum.CallMsg {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ethereum.CallMsg(nil), c.sent...)
}

func (c *checkoutChain) selectorOf(name string) [4]byte {
	var sel [4]byte
	copy(sel[:], c.abi.Methods[name].ID)
	return sel
}

func connectedSession() types.Session {
	return types.Session{Account: renter, Network: registry.Sepolia, HasSigner: true}
}

func newTestOrchestrator(t *testing.T, chain *checkoutChain, session SessionFunc) *Orchestrator {
	t.Helper()
	cat, err := catalog.NewService(chain, registry.Sepolia,
		types.ResolvedAddressSet(registryAddr, tokenAddr), nil, nil)
	require.NoError(t, err)
	submitter := clients.NewSubmitter(chain, chain, chain)
	return NewOrchestrator(NewCart(), cat, submitter, chain, session, nil, nil)
}

func fillCart(o *Orchestrator, ids ...uint64) {
	for _, id := range ids {
		o.Cart().Add(types.CartItem{TokenID: id, Name: "Title", Author: "Author", DurationSeconds: 180})
	}
}

func TestQuoteRejectsZeroDays(t *testing.T) {
	chain := newCheckoutChain(t)
	o := newTestOrchestrator(t, chain, connectedSession)
	fillCart(o, 1)

	_, err := o.Quote(context.Background(), 0)
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidDays, types.KindOf(err))
}

func TestQuotePricesCartAtLiveRate(t *testing.T) {
	chain := newCheckoutChain(t)
	chain.rate = big.NewInt(3)
	o := newTestOrchestrator(t, chain, connectedSession)
	fillCart(o, 1, 2)

	quote, err := o.Quote(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), quote.Days)
	assert.Len(t, quote.Items, 2)
	// rate * day * items * days
	want := big.NewInt(3 * types.SecondsPerDay * 2 * 5)
	assert.Equal(t, want, quote.Total)
}

func TestCheckoutRequiresConnectedSigner(t *testing.T) {
	chain := newCheckoutChain(t)
	o := newTestOrchestrator(t, chain, func() types.Session { return types.Session{} })
	fillCart(o, 1)

	var note types.Notification
	o.Notify = func(n types.Notification) { note = n }

	_, err := o.Checkout(context.Background(), 1)
	require.Error(t, err)
	assert.Equal(t, types.ErrNotReady, types.KindOf(err))
	assert.Empty(t, chain.sentCalls())
	// The user fixes this by connecting, so it is a warning, not an error.
	assert.Equal(t, types.SeverityWarning, note.Severity)
}

func TestCheckoutRejectsEmptyCart(t *testing.T) {
	chain := newCheckoutChain(t)
	o := newTestOrchestrator(t, chain, connectedSession)

	_, err := o.Checkout(context.Background(), 1)
	require.Error(t, err)
	assert.Equal(t, types.ErrNotReady, types.KindOf(err))
	assert.Empty(t, chain.sentCalls())
}

func TestCheckoutInsufficientFundsStopsBeforeAnyTransaction(t *testing.T) {
	chain := newCheckoutChain(t)
	chain.balance = big.NewInt(100) // far below one day of rent
	o := newTestOrchestrator(t, chain, connectedSession)
	fillCart(o, 1)

	var note types.Notification
	o.Notify = func(n types.Notification) { note = n }

	_, err := o.Checkout(context.Background(), 1)
	require.Error(t, err)
	assert.Equal(t, types.ErrInsufficientFunds, types.KindOf(err))

	var structured *types.Error
	require.ErrorAs(t, err, &structured)
	assert.Equal(t, big.NewInt(types.SecondsPerDay), structured.Required)
	assert.Equal(t, big.NewInt(100), structured.Available)

	// 86400 and 100 smallest units, rendered at the token's 6 decimals.
	assert.Equal(t, "Insufficient token balance: need 0.0864, have 0.0001", note.Message)
	assert.Equal(t, types.SeverityError, note.Severity)

	assert.Empty(t, chain.sentCalls(), "no transaction may go out on a failed pre-check")
	assert.Equal(t, 1, o.Cart().Len(), "cart survives the failure")
}

func TestCheckoutApprovesExactAmountBeforeRenting(t *testing.T) {
	chain := newCheckoutChain(t)
	o := newTestOrchestrator(t, chain, connectedSession)
	fillCart(o, 42)

	receipt, err := o.Checkout(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 1, receipt.ItemCount)
	assert.Equal(t, uint64(2), receipt.Days)
	assert.Equal(t, uint64(7), receipt.BlockNumber)

	sent := chain.sentCalls()
	require.Len(t, sent, 2)

	approve, rent := sent[0], sent[1]
	assert.Equal(t, tokenAddr, *approve.To, "approval goes to the token")
	assert.Equal(t, chain.selectorOf("approve"), [4]byte(approve.Data[:4]))
	args, err := chain.abi.Methods["approve"].Inputs.Unpack(approve.Data[4:])
	require.NoError(t, err)
	assert.Equal(t, registryAddr, args[0].(common.Address), "registry is the approved spender")
	assert.Equal(t, big.NewInt(2*types.SecondsPerDay), args[1].(*big.Int), "approval is for exactly the total")

	assert.Equal(t, registryAddr, *rent.To)
	assert.Equal(t, chain.selectorOf("rentTitle"), [4]byte(rent.Data[:4]))
	rentArgs, err := chain.abi.Methods["rentTitle"].Inputs.Unpack(rent.Data[4:])
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(42), rentArgs[0].(*big.Int))
	assert.Equal(t, big.NewInt(2*types.SecondsPerDay), rentArgs[1].(*big.Int), "duration is days in seconds")

	// Estimated 100k, padded 20%.
	assert.Equal(t, uint64(120_000), approve.Gas)
	assert.Equal(t, uint64(120_000), rent.Gas)

	assert.Zero(t, o.Cart().Len(), "cart clears on success")
}

func TestCheckoutSkipsApproveWhenAllowanceCovers(t *testing.T) {
	chain := newCheckoutChain(t)
	chain.allowance = big.NewInt(10 * types.SecondsPerDay)
	o := newTestOrchestrator(t, chain, connectedSession)
	fillCart(o, 7)

	_, err := o.Checkout(context.Background(), 1)
	require.NoError(t, err)

	sent := chain.sentCalls()
	require.Len(t, sent, 1)
	assert.Equal(t, chain.selectorOf("rentTitle"), [4]byte(sent[0].Data[:4]))
}

func TestCheckoutBatchesMultipleTitles(t *testing.T) {
	chain := newCheckoutChain(t)
	chain.allowance = big.NewInt(100 * types.SecondsPerDay)
	o := newTestOrchestrator(t, chain, connectedSession)
	fillCart(o, 5, 9, 11)

	receipt, err := o.Checkout(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 3, receipt.ItemCount)

	sent := chain.sentCalls()
	require.Len(t, sent, 1)
	assert.Equal(t, chain.selectorOf("rentTitles"), [4]byte(sent[0].Data[:4]))

	args, err := chain.abi.Methods["rentTitles"].Inputs.Unpack(sent[0].Data[4:])
	require.NoError(t, err)
	ids := args[0].([]*big.Int)
	require.Len(t, ids, 3)
	assert.Equal(t, int64(5), ids[0].Int64())
	assert.Equal(t, int64(9), ids[1].Int64())
	assert.Equal(t, int64(11), ids[2].Int64())
}

func TestCheckoutUserRejectionLeavesCartIntact(t *testing.T) {
	chain := newCheckoutChain(t)
	chain.allowance = big.NewInt(10 * types.SecondsPerDay)
	chain.sendErrs = []error{&wallet.ProviderError{Code: wallet.CodeUserRejected, Message: "denied"}}
	o := newTestOrchestrator(t, chain, connectedSession)
	fillCart(o, 1)

	var note types.Notification
	o.Notify = func(n types.Notification) { note = n }

	_, err := o.Checkout(context.Background(), 1)
	require.Error(t, err)
	assert.Equal(t, types.ErrUserRejected, types.KindOf(err))
	assert.Equal(t, 1, o.Cart().Len())
	assert.Equal(t, types.SeverityError, note.Severity)
}

func TestCheckoutApprovalFailureAbortsSequence(t *testing.T) {
	chain := newCheckoutChain(t)
	chain.sendErrs = []error{errors.New("execution reverted")}
	o := newTestOrchestrator(t, chain, connectedSession)
	fillCart(o, 1)

	_, err := o.Checkout(context.Background(), 1)
	require.Error(t, err)

	sent := chain.sentCalls()
	require.Len(t, sent, 1, "the rental call must not follow a failed approval")
	assert.Equal(t, chain.selectorOf("approve"), [4]byte(sent[0].Data[:4]))
	assert.Equal(t, 1, o.Cart().Len())
}

func TestCheckoutGasShortfallClassification(t *testing.T) {
	chain := newCheckoutChain(t)
	chain.allowance = big.NewInt(10 * types.SecondsPerDay)
	chain.sendErrs = []error{errors.New("insufficient funds for gas * price + value")}
	o := newTestOrchestrator(t, chain, connectedSession)
	fillCart(o, 1)

	_, err := o.Checkout(context.Background(), 1)
	require.Error(t, err)
	assert.Equal(t, types.ErrInsufficientGas, types.KindOf(err))
}

func TestCheckoutRejectsConcurrentAttempt(t *testing.T) {
	chain := newCheckoutChain(t)
	chain.allowance = big.NewInt(10 * types.SecondsPerDay)
	chain.sendGate = make(chan struct{})
	chain.sendStarted = make(chan struct{}, 1)
	o := newTestOrchestrator(t, chain, connectedSession)
	fillCart(o, 1)

	var note types.Notification
	o.Notify = func(n types.Notification) { note = n }

	firstDone := make(chan error, 1)
	go func() {
		_, err := o.Checkout(context.Background(), 1)
		firstDone <- err
	}()

	// The first checkout holds the lock once its send is in flight.
	<-chain.sendStarted

	_, err := o.Checkout(context.Background(), 1)
	require.Error(t, err)
	assert.Equal(t, types.ErrCheckoutInFlight, types.KindOf(err))
	assert.Equal(t, types.SeverityWarning, note.Severity)

	close(chain.sendGate)
	require.NoError(t, <-firstDone)
}

func TestCheckoutSuccessNotifiesAndRunsRefresh(t *testing.T) {
	chain := newCheckoutChain(t)
	chain.allowance = big.NewInt(10 * types.SecondsPerDay)
	o := newTestOrchestrator(t, chain, connectedSession)
	fillCart(o, 1)

	var note types.Notification
	refreshed := false
	o.Notify = func(n types.Notification) { note = n }
	o.OnSuccess = func() { refreshed = true }

	_, err := o.Checkout(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, types.SeveritySuccess, note.Severity)
	assert.True(t, refreshed)
}
