package rental

import (
	"context"
	"math/big"
	"strconv"
	"sync"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/timeboundbeats/titlerent/catalog"
	"github.com/timeboundbeats/titlerent/clients"
	"github.com/timeboundbeats/titlerent/logger"
	"github.com/timeboundbeats/titlerent/metrics"
	"github.com/timeboundbeats/titlerent/types"
	"github.com/timeboundbeats/titlerent/utils"
)

// SessionFunc returns the current wallet session at call time.
type SessionFunc func() types.Session

// Orchestrator runs the checkout sequence: quote, balance pre-check,
// allowance read, exact-amount approval, then the rental call itself. At
// most one checkout runs at a time; a second attempt while one is in
// flight is rejected, not queued.
type Orchestrator struct {
	cart      *Cart
	catalog   *catalog.Service
	submitter *clients.Submitter
	backend   clients.Backend
	session   SessionFunc
	log       logger.Logger
	rec       metrics.Recorder

	// Notify, when set, receives one notification per checkout outcome.
	Notify func(types.Notification)
	// OnSuccess, when set, runs after a confirmed checkout, once the cart
	// has been cleared. The facade hangs the catalog refresh here.
	OnSuccess func()

	checkout sync.Mutex
}

func NewOrchestrator(cart *Cart, cat *catalog.Service, submitter *clients.Submitter, backend clients.Backend, session SessionFunc, log logger.Logger, rec metrics.Recorder) *Orchestrator {
	if log == nil {
		log = logger.NoopLogger{}
	}
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	return &Orchestrator{
		cart:      cart,
		catalog:   cat,
		submitter: submitter,
		backend:   backend,
		session:   session,
		log:       log,
		rec:       rec,
	}
}

// Cart returns the cart this orchestrator checks out.
func (o *Orchestrator) Cart() *Cart { return o.cart }

// QuoteCart prices cart for days whole days against the live rental
// rate. Pricing is a plain read, so no wallet session is involved. Days
// below one are rejected before any network call.
func QuoteCart(ctx context.Context, cart *Cart, cat *catalog.Service, days uint64) (types.RentalQuote, error) {
	if days < 1 {
		return types.RentalQuote{}, types.E(types.ErrInvalidDays, "rental period must be at least one day")
	}
	items := cart.Items()
	pricePerDay, err := cat.PricePerDay(ctx)
	if err != nil {
		return types.RentalQuote{}, err
	}
	total := new(big.Int).Mul(pricePerDay, big.NewInt(int64(len(items))))
	total.Mul(total, new(big.Int).SetUint64(days))
	return types.RentalQuote{Items: items, Days: days, Total: total}, nil
}

// Quote prices the orchestrator's cart at the live rate.
func (o *Orchestrator) Quote(ctx context.Context, days uint64) (types.RentalQuote, error) {
	return QuoteCart(ctx, o.cart, o.catalog, days)
}

// Checkout executes the full rental sequence for the cart and returns the
// receipt of the confirmed rental transaction. The cart is cleared only on
// success; every failure leaves it intact so the user can retry.
func (o *Orchestrator) Checkout(ctx context.Context, days uint64) (types.RentalReceipt, error) {
	sess := o.session()
	if !sess.Connected() || !sess.HasSigner {
		return types.RentalReceipt{}, o.fail(sess, types.E(types.ErrNotReady, "connect a wallet before checking out"))
	}
	if !o.checkout.TryLock() {
		return types.RentalReceipt{}, o.fail(sess, types.E(types.ErrCheckoutInFlight, "a checkout is already in progress"))
	}
	defer o.checkout.Unlock()

	receipt, err := o.run(ctx, sess, days)
	if err != nil {
		return types.RentalReceipt{}, o.fail(sess, err)
	}

	o.cart.Clear()
	o.rec.IncCounter(metrics.EventCheckoutSuccess, map[string]string{"network": string(sess.Network.Key)})
	o.notify(types.Notification{
		Message:  "Rented " + strconv.Itoa(receipt.ItemCount) + " title(s) for " + strconv.FormatUint(receipt.Days, 10) + " day(s)",
		Severity: types.SeveritySuccess,
	})
	o.log.Info("checkout confirmed", map[string]any{
		"tx":      receipt.TxHash.Hex(),
		"items":   receipt.ItemCount,
		"days":    receipt.Days,
		"network": string(sess.Network.Key),
	})
	if o.OnSuccess != nil {
		o.OnSuccess()
	}
	return receipt, nil
}

func (o *Orchestrator) run(ctx context.Context, sess types.Session, days uint64) (types.RentalReceipt, error) {
	start := time.Now()
	defer func() {
		o.rec.ObserveLatency(metrics.OperationCheckout, time.Since(start), map[string]string{"network": string(sess.Network.Key)})
	}()

	quote, err := o.Quote(ctx, days)
	if err != nil {
		return types.RentalReceipt{}, err
	}
	if len(quote.Items) == 0 {
		return types.RentalReceipt{}, types.E(types.ErrNotReady, "the cart is empty")
	}

	reg := o.catalog.Registry()
	if reg == nil {
		return types.RentalReceipt{}, types.E(types.ErrContractUnresolved, "contract addresses are not resolved")
	}

	// The contract, not local config, decides which token it is paid in.
	tokenAddr, err := reg.PaymentTokenAddress(ctx)
	if err != nil {
		return types.RentalReceipt{}, Classify(err)
	}
	token, err := clients.NewERC20(tokenAddr, o.backend)
	if err != nil {
		return types.RentalReceipt{}, Classify(err)
	}

	balance, err := token.BalanceOf(ctx, sess.Account)
	if err != nil {
		return types.RentalReceipt{}, Classify(err)
	}
	if balance.Cmp(quote.Total) < 0 {
		return types.RentalReceipt{}, types.InsufficientFundsError(quote.Total, balance)
	}

	if err := o.ensureAllowance(ctx, sess, token, reg.Address(), quote.Total); err != nil {
		return types.RentalReceipt{}, err
	}

	duration := new(big.Int).Mul(new(big.Int).SetUint64(days), big.NewInt(types.SecondsPerDay))
	var calldata []byte
	if len(quote.Items) == 1 {
		calldata, err = reg.RentCalldata(quote.Items[0].TokenID, duration)
	} else {
		ids := make([]uint64, 0, len(quote.Items))
		for _, item := range quote.Items {
			ids = append(ids, item.TokenID)
		}
		calldata, err = reg.RentBatchCalldata(ids, duration)
	}
	if err != nil {
		return types.RentalReceipt{}, Classify(err)
	}

	to := reg.Address()
	txReceipt, err := o.submitter.Submit(ctx, ethereum.CallMsg{
		From: sess.Account,
		To:   &to,
		Data: calldata,
	})
	if err != nil {
		return types.RentalReceipt{}, Classify(err)
	}

	return types.RentalReceipt{
		TxHash:      txReceipt.TxHash,
		BlockNumber: txReceipt.BlockNumber.Uint64(),
		ItemCount:   len(quote.Items),
		Days:        days,
	}, nil
}

// ensureAllowance reads the current allowance and, when it falls short,
// submits an approval for exactly total and waits for it to confirm. The
// rental call never goes out before the approval is mined.
func (o *Orchestrator) ensureAllowance(ctx context.Context, sess types.Session, token *clients.ERC20, spender common.Address, total *big.Int) error {
	allowance, err := token.Allowance(ctx, sess.Account, spender)
	if err != nil {
		return Classify(err)
	}
	if allowance.Cmp(total) >= 0 {
		return nil
	}

	start := time.Now()
	calldata, err := token.ApproveCalldata(spender, total)
	if err != nil {
		return Classify(err)
	}
	to := token.Address()
	if _, err := o.submitter.Submit(ctx, ethereum.CallMsg{
		From: sess.Account,
		To:   &to,
		Data: calldata,
	}); err != nil {
		return Classify(err)
	}
	o.rec.ObserveLatency(metrics.OperationApprove, time.Since(start), map[string]string{"network": string(sess.Network.Key)})
	o.log.Debug("token spend approved", map[string]any{
		"spender": spender.Hex(),
		"amount":  total.String(),
	})
	return nil
}

func (o *Orchestrator) fail(sess types.Session, err error) error {
	structured := Classify(err)
	o.rec.IncCounter(metrics.EventCheckoutFailure, map[string]string{"network": string(sess.Network.Key)})
	o.notify(types.Notification{Message: userMessage(structured), Severity: failSeverity(structured.Kind)})
	o.log.Warn("checkout failed", map[string]any{
		"kind":  string(structured.Kind),
		"error": structured.Error(),
	})
	return structured
}

// failSeverity picks the notification level for a failed checkout.
// Conditions the user corrects themselves, connecting a wallet or
// letting the running checkout finish, are warnings, not errors.
func failSeverity(kind types.ErrorKind) types.Severity {
	switch kind {
	case types.ErrNotReady, types.ErrCheckoutInFlight:
		return types.SeverityWarning
	default:
		return types.SeverityError
	}
}

func (o *Orchestrator) notify(n types.Notification) {
	if o.Notify != nil {
		o.Notify(n)
	}
}

// userMessage turns a classified error into the sentence shown to the
// user. Raw remote messages never leak through.
func userMessage(e *types.Error) string {
	switch e.Kind {
	case types.ErrInsufficientFunds:
		// Amounts are stored in the token's smallest unit; show them the
		// way a balance is displayed.
		return "Insufficient token balance: need " + utils.FormatAmount(e.Required, utils.PaymentTokenDecimals) +
			", have " + utils.FormatAmount(e.Available, utils.PaymentTokenDecimals)
	case types.ErrInsufficientGas:
		return "Not enough funds to cover network gas fees"
	case types.ErrUserRejected:
		return "Transaction was declined in the wallet"
	case types.ErrCheckoutInFlight:
		return "A checkout is already in progress"
	case types.ErrInvalidDays:
		return "Rental period must be at least one day"
	case types.ErrNotReady:
		return e.Message
	case types.ErrContractUnresolved, types.ErrNoContractAtAddress:
		return "Rental contracts are not available on this network"
	default:
		return "The rental could not be completed, please try again"
	}
}
