// Package titlerent is the client-side orchestration layer for the title
// rental registry: wallet session management, contract address resolution,
// catalog reads and the approve-then-rent checkout sequence, over any
// EIP-1193 style wallet provider or a headless key signer.
package titlerent

import (
	"context"
	"math/big"
	"sync"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/timeboundbeats/titlerent/catalog"
	"github.com/timeboundbeats/titlerent/clients"
	"github.com/timeboundbeats/titlerent/logger"
	"github.com/timeboundbeats/titlerent/metrics"
	"github.com/timeboundbeats/titlerent/registry"
	"github.com/timeboundbeats/titlerent/rental"
	"github.com/timeboundbeats/titlerent/resolver"
	"github.com/timeboundbeats/titlerent/types"
	"github.com/timeboundbeats/titlerent/wallet"
)

const defaultTimeout = 30 * time.Second

// notifyBuffer bounds the notification channel; when the consumer lags,
// older notifications are dropped rather than blocking checkout.
const notifyBuffer = 16

// App wires the rental packages together behind one handle. Construct it
// with New, point it at a network with UseNetwork, then browse anonymously
// or attach a wallet provider for checkout.
type App struct {
	log      logger.Logger
	rec      metrics.Recorder
	store    wallet.Store
	resolver *resolver.Resolver
	dial     func(rpcURL string) (clients.NodeBackend, error)
	timeout  time.Duration

	cart     *rental.Cart
	notifCh  chan types.Notification
	notifier func(types.Notification)

	mu           sync.Mutex
	network      types.NetworkDescriptor
	contracts    types.ContractAddressSet
	backend      clients.NodeBackend
	catalogSvc   *catalog.Service
	orchestrator *rental.Orchestrator
	manager      *wallet.Manager
	provider     wallet.Provider
}

// New builds an App pointed at the default network. The app is usable for
// nothing until UseNetwork succeeds.
func New(opts ...Option) *App {
	a := &App{
		log:     logger.NoopLogger{},
		rec:     metrics.NoopRecorder{},
		store:   wallet.NewMemoryStore(),
		timeout: defaultTimeout,
		cart:    rental.NewCart(),
		notifCh: make(chan types.Notification, notifyBuffer),
		dial: func(rpcURL string) (clients.NodeBackend, error) {
			return clients.Dial(rpcURL)
		},
		network: registry.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.resolver == nil {
		a.resolver = resolver.New("", resolver.WithLogger(a.log), resolver.WithMetrics(a.rec))
	}
	return a
}

// Notifications delivers one entry per user-visible outcome. The channel
// is never closed; drain it from the presentation layer.
func (a *App) Notifications() <-chan types.Notification { return a.notifCh }

func (a *App) publish(n types.Notification) {
	if a.notifier != nil {
		a.notifier(n)
		return
	}
	select {
	case a.notifCh <- n:
	default:
		a.log.Warn("notification dropped, consumer is not draining", map[string]any{"message": n.Message})
	}
}

// Network returns the currently selected network descriptor.
func (a *App) Network() types.NetworkDescriptor {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.network
}

// Contracts returns the address set resolved for the current network.
func (a *App) Contracts() types.ContractAddressSet {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.contracts
}

// Session returns the current wallet session; the zero session means
// anonymous browsing.
func (a *App) Session() types.Session {
	a.mu.Lock()
	m := a.manager
	a.mu.Unlock()
	if m == nil {
		return types.Session{}
	}
	return m.Session()
}

// UseNetwork selects a network, resolves its contract addresses and opens
// the RPC connection. A connected wallet keeps its session only if the
// wallet follows to the same chain; callers go through ConnectWallet again
// otherwise. The cart is cleared, prices and token ids do not carry across
// networks.
func (a *App) UseNetwork(ctx context.Context, key types.NetworkKey) error {
	network, err := registry.Describe(key)
	if err != nil {
		return err
	}
	ctx, cancel := a.opCtx(ctx)
	defer cancel()

	contracts := a.resolver.Resolve(ctx, network)
	backend, err := a.dial(network.RPCURL)
	if err != nil {
		return types.WrapErr(types.ErrRemoteCallFailed, "could not reach "+network.Name+" RPC", err)
	}
	catalogSvc, err := catalog.NewService(backend, network, contracts, a.log, a.rec)
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.network = network
	a.contracts = contracts
	a.backend = backend
	a.catalogSvc = catalogSvc
	a.orchestrator = nil // rebuilt on demand against the new network
	a.mu.Unlock()
	a.cart.Clear()

	a.log.Info("network selected", map[string]any{
		"network":  string(key),
		"resolved": contracts.Resolved(),
	})
	if !contracts.Resolved() {
		a.publish(types.Notification{
			Message:  "Rental contracts are not available on " + network.Name,
			Severity: types.SeverityWarning,
		})
	}
	return nil
}

// ConnectWallet attaches a wallet provider and connects it to the current
// network. The session persists so AutoReconnect can restore it later.
func (a *App) ConnectWallet(ctx context.Context, provider wallet.Provider) (types.Session, error) {
	a.mu.Lock()
	network := a.network
	if a.manager == nil || a.provider != provider {
		if a.manager != nil {
			a.manager.Close()
		}
		a.provider = provider
		a.manager = a.newManager(provider)
	}
	m := a.manager
	a.mu.Unlock()

	ctx, cancel := a.opCtx(ctx)
	defer cancel()
	sess, err := m.Connect(ctx, network)
	if err != nil {
		a.publish(types.Notification{Message: connectFailureMessage(err), Severity: types.SeverityError})
		return types.Session{}, err
	}
	a.publish(types.Notification{
		Message:  "Connected " + shortAddress(sess.Account) + " on " + sess.Network.Name,
		Severity: types.SeveritySuccess,
	})
	return sess, nil
}

// AutoReconnect silently restores a previously persisted session. It never
// prompts; when the hint no longer matches wallet state it is dropped.
func (a *App) AutoReconnect(ctx context.Context, provider wallet.Provider) (types.Session, bool) {
	a.mu.Lock()
	if a.manager == nil || a.provider != provider {
		if a.manager != nil {
			a.manager.Close()
		}
		a.provider = provider
		a.manager = a.newManager(provider)
	}
	m := a.manager
	a.mu.Unlock()

	ctx, cancel := a.opCtx(ctx)
	defer cancel()
	sess, ok := m.AutoReconnect(ctx)
	if !ok {
		return types.Session{}, false
	}
	if err := a.UseNetwork(ctx, sess.Network.Key); err != nil {
		m.Disconnect()
		return types.Session{}, false
	}
	return sess, true
}

// newManager builds a session manager whose events keep the app's network
// wiring in sync with the wallet. Callers hold no lock.
func (a *App) newManager(provider wallet.Provider) *wallet.Manager {
	m := wallet.NewManager(provider, a.store, a.log, a.rec)
	m.OnChainChanged = func(network types.NetworkDescriptor) {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()
		if err := a.UseNetwork(ctx, network.Key); err != nil {
			a.log.Error("failed to follow wallet network change", map[string]any{"error": err.Error()})
			return
		}
		a.publish(types.Notification{
			Message:  "Switched to " + network.Name,
			Severity: types.SeverityInfo,
		})
	}
	m.OnAccountChanged = func(account common.Address) {
		a.cart.Clear()
		a.publish(types.Notification{
			Message:  "Active account is now " + shortAddress(account),
			Severity: types.SeverityInfo,
		})
	}
	m.OnDisconnect = func() {
		a.cart.Clear()
		a.publish(types.Notification{Message: "Wallet disconnected", Severity: types.SeverityInfo})
	}
	return m
}

// Disconnect drops the wallet session. Browsing continues anonymously.
func (a *App) Disconnect() {
	a.mu.Lock()
	m := a.manager
	a.mu.Unlock()
	if m != nil {
		m.Disconnect()
	}
}

// Browse lists the titles the current viewer can rent. Anonymous viewers
// see everything; a connected viewer's own titles are excluded.
func (a *App) Browse(ctx context.Context) ([]types.TitleListing, error) {
	svc, err := a.catalogService()
	if err != nil {
		return nil, err
	}
	ctx, cancel := a.opCtx(ctx)
	defer cancel()
	var viewer *common.Address
	if sess := a.Session(); sess.Connected() {
		account := sess.Account
		viewer = &account
	}
	return svc.ListAvailable(ctx, viewer)
}

// PricePerDay returns the current one-day rental price in the payment
// token's smallest unit.
func (a *App) PricePerDay(ctx context.Context) (*big.Int, error) {
	svc, err := a.catalogService()
	if err != nil {
		return nil, err
	}
	ctx, cancel := a.opCtx(ctx)
	defer cancel()
	return svc.PricePerDay(ctx)
}

// MyTitles lists the titles owned by the connected account.
func (a *App) MyTitles(ctx context.Context) ([]types.TitleListing, error) {
	sess := a.Session()
	if !sess.Connected() {
		return nil, types.E(types.ErrNotReady, "connect a wallet to view owned titles")
	}
	svc, err := a.catalogService()
	if err != nil {
		return nil, err
	}
	ctx, cancel := a.opCtx(ctx)
	defer cancel()
	return svc.OwnedTitles(ctx, sess.Account)
}

// MyRentals lists the connected account's rentals, active first.
func (a *App) MyRentals(ctx context.Context) ([]types.Rental, error) {
	sess := a.Session()
	if !sess.Connected() {
		return nil, types.E(types.ErrNotReady, "connect a wallet to view rentals")
	}
	svc, err := a.catalogService()
	if err != nil {
		return nil, err
	}
	ctx, cancel := a.opCtx(ctx)
	defer cancel()
	return svc.RentalsOf(ctx, sess.Account)
}

// AddToCart puts a listing in the cart; adding a title twice is a no-op.
func (a *App) AddToCart(listing types.TitleListing) bool {
	added := a.cart.Add(types.CartItem{
		TokenID:         listing.TokenID,
		Name:            listing.Name,
		Author:          listing.Author,
		DurationSeconds: listing.DurationSeconds,
	})
	if !added {
		a.publish(types.Notification{
			Message:  listing.Name + " is already in the cart",
			Severity: types.SeverityInfo,
		})
	}
	return added
}

// RemoveFromCart takes a title out of the cart.
func (a *App) RemoveFromCart(tokenID uint64) bool { return a.cart.Remove(tokenID) }

// CartItems returns the cart contents in insertion order.
func (a *App) CartItems() []types.CartItem { return a.cart.Items() }

// Quote prices the cart for days whole days against the live rate.
// Pricing is a read, so it works for anonymous browsers too; only
// Checkout needs a connected wallet.
func (a *App) Quote(ctx context.Context, days uint64) (types.RentalQuote, error) {
	svc, err := a.catalogService()
	if err != nil {
		return types.RentalQuote{}, err
	}
	ctx, cancel := a.opCtx(ctx)
	defer cancel()
	return rental.QuoteCart(ctx, a.cart, svc, days)
}

// Checkout runs the approve-then-rent sequence for the cart. On success
// the cart is cleared and the catalog refresh notification goes out; on
// failure the cart is untouched and the error is classified.
func (a *App) Checkout(ctx context.Context, days uint64) (types.RentalReceipt, error) {
	orch, err := a.orchestratorFor()
	if err != nil {
		return types.RentalReceipt{}, err
	}
	ctx, cancel := a.opCtx(ctx)
	defer cancel()
	return orch.Checkout(ctx, days)
}

// Mint registers a new title owned by the connected account.
func (a *App) Mint(ctx context.Context, name, author string, durationSeconds uint64) (common.Hash, error) {
	sess := a.Session()
	if !sess.Connected() || !sess.HasSigner {
		return common.Hash{}, types.E(types.ErrNotReady, "connect a wallet before minting")
	}
	svc, err := a.catalogService()
	if err != nil {
		return common.Hash{}, err
	}
	reg := svc.Registry()
	if reg == nil {
		return common.Hash{}, types.E(types.ErrContractUnresolved, "contract addresses are not resolved")
	}
	calldata, err := reg.MintCalldata(name, author, durationSeconds)
	if err != nil {
		return common.Hash{}, types.WrapErr(types.ErrRemoteCallFailed, "could not encode mint call", err)
	}

	a.mu.Lock()
	backend := a.backend
	provider := a.provider
	a.mu.Unlock()

	ctx, cancel := a.opCtx(ctx)
	defer cancel()
	to := reg.Address()
	receipt, err := clients.NewSubmitter(provider, backend, backend).Submit(ctx, ethereum.CallMsg{
		From: sess.Account,
		To:   &to,
		Data: calldata,
	})
	if err != nil {
		structured := rental.Classify(err)
		a.publish(types.Notification{Message: mintFailureMessage(structured), Severity: types.SeverityError})
		return common.Hash{}, structured
	}
	a.publish(types.Notification{Message: "Minted " + name, Severity: types.SeveritySuccess})
	a.refreshCatalog()
	return receipt.TxHash, nil
}

// Close releases the wallet event loop. The app is unusable afterwards.
func (a *App) Close() {
	a.mu.Lock()
	m := a.manager
	a.mu.Unlock()
	if m != nil {
		m.Close()
	}
}

func (a *App) catalogService() (*catalog.Service, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.catalogSvc == nil {
		return nil, types.E(types.ErrNotReady, "no network selected")
	}
	return a.catalogSvc, nil
}

// orchestratorFor returns the checkout orchestrator for the current
// network, building it on first use after each network switch.
func (a *App) orchestratorFor() (*rental.Orchestrator, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.catalogSvc == nil {
		return nil, types.E(types.ErrNotReady, "no network selected")
	}
	if a.orchestrator == nil {
		if a.provider == nil {
			return nil, types.E(types.ErrNotReady, "connect a wallet before checking out")
		}
		submitter := clients.NewSubmitter(a.provider, a.backend, a.backend)
		orch := rental.NewOrchestrator(a.cart, a.catalogSvc, submitter, a.backend, a.sessionSnapshot, a.log, a.rec)
		orch.Notify = a.publish
		orch.OnSuccess = a.refreshCatalog
		a.orchestrator = orch
	}
	return a.orchestrator, nil
}

func (a *App) sessionSnapshot() types.Session { return a.Session() }

// refreshCatalog re-reads the catalog so stale listings never
// linger after a confirmed rental. Best effort, failures only log.
func (a *App) refreshCatalog() {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()
	if _, err := a.Browse(ctx); err != nil {
		a.log.Warn("background catalog refresh failed", map[string]any{"error": err.Error()})
	}
}

func (a *App) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, a.timeout)
}

func connectFailureMessage(err error) string {
	switch types.KindOf(err) {
	case types.ErrUserRejected:
		return "Wallet connection was declined"
	case types.ErrNoAccounts:
		return "The wallet exposes no accounts"
	case types.ErrWrongNetwork:
		return "The wallet stayed on a different network"
	default:
		return "Could not connect the wallet"
	}
}

func mintFailureMessage(e *types.Error) string {
	switch e.Kind {
	case types.ErrUserRejected:
		return "Minting was declined in the wallet"
	case types.ErrInsufficientGas:
		return "Not enough funds to cover network gas fees"
	default:
		return "The title could not be minted, please try again"
	}
}

func shortAddress(a common.Address) string {
	h := a.Hex()
	return h[:6] + "..." + h[len(h)-4:]
}
