package wallet

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/timeboundbeats/titlerent/logger"
	"github.com/timeboundbeats/titlerent/metrics"
	"github.com/timeboundbeats/titlerent/registry"
	"github.com/timeboundbeats/titlerent/types"
)

// Manager owns the wallet session: connect and disconnect, persistence of
// the reconnect hint, and reaction to provider events. All methods are safe
// for concurrent use.
type Manager struct {
	provider Provider
	store    Store
	log      logger.Logger
	rec      metrics.Recorder

	// Callbacks fire from the event loop goroutine. Set them before the
	// first Connect or AutoReconnect.
	OnChainChanged   func(network types.NetworkDescriptor)
	OnAccountChanged func(account common.Address)
	OnDisconnect     func()

	mu      sync.Mutex
	session types.Session

	loopOnce sync.Once
	done     chan struct{}
}

func NewManager(provider Provider, store Store, log logger.Logger, rec metrics.Recorder) *Manager {
	if store == nil {
		store = NewMemoryStore()
	}
	if log == nil {
		log = logger.NoopLogger{}
	}
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	return &Manager{
		provider: provider,
		store:    store,
		log:      log,
		rec:      rec,
		done:     make(chan struct{}),
	}
}

// Session returns a snapshot of the current session. A zero session means
// disconnected.
func (m *Manager) Session() types.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// Connect prompts the wallet for account access and steers it onto
// network. On success the session is persisted so a later AutoReconnect can
// restore it without prompting; on any failure the persisted hint is
// dropped so the next AutoReconnect cannot restore a session the user
// just refused.
func (m *Manager) Connect(ctx context.Context, network types.NetworkDescriptor) (types.Session, error) {
	accounts, err := m.provider.RequestAccounts(ctx)
	if err != nil {
		m.clearHint()
		if IsUserRejection(err) {
			return types.Session{}, types.WrapErr(types.ErrUserRejected, "wallet connection was declined", err)
		}
		return types.Session{}, types.WrapErr(types.ErrRemoteCallFailed, "wallet did not return accounts", err)
	}
	if len(accounts) == 0 {
		m.clearHint()
		return types.Session{}, types.E(types.ErrNoAccounts, "wallet is unlocked but exposes no accounts")
	}

	if err := m.ensureChain(ctx, network); err != nil {
		m.clearHint()
		return types.Session{}, err
	}

	sess := types.Session{Account: accounts[0], Network: network, HasSigner: true}
	m.mu.Lock()
	m.session = sess
	m.mu.Unlock()

	if err := m.store.Save(PersistedSession{Account: accounts[0].Hex(), Network: network.Key}); err != nil {
		m.log.Warn("failed to persist session", map[string]any{"error": err.Error()})
	}
	m.rec.IncCounter(metrics.EventConnect, map[string]string{"network": string(network.Key)})
	m.log.Info("wallet connected", map[string]any{
		"account": accounts[0].Hex(),
		"network": string(network.Key),
	})
	m.startEventLoop()
	return sess, nil
}

func (m *Manager) clearHint() {
	if err := m.store.Clear(); err != nil {
		m.log.Warn("failed to clear persisted session", map[string]any{"error": err.Error()})
	}
}

// ensureChain moves the provider onto network, registering the chain with
// the wallet when it is unknown, and verifies the move actually happened.
func (m *Manager) ensureChain(ctx context.Context, network types.NetworkDescriptor) error {
	current, err := m.provider.ChainID(ctx)
	if err != nil {
		return types.WrapErr(types.ErrRemoteCallFailed, "could not read wallet chain", err)
	}
	if current == network.ChainID {
		return nil
	}

	switchErr := m.provider.SwitchChain(ctx, network.ChainID)
	if IsUnrecognizedChain(switchErr) {
		if err := m.provider.AddChain(ctx, network); err != nil {
			if IsUserRejection(err) {
				return types.WrapErr(types.ErrUserRejected, "adding the network was declined", err)
			}
			return types.WrapErr(types.ErrRemoteCallFailed, "wallet refused to add network", err)
		}
		switchErr = m.provider.SwitchChain(ctx, network.ChainID)
	}
	if switchErr != nil {
		if IsUserRejection(switchErr) {
			return types.WrapErr(types.ErrUserRejected, "network switch was declined", switchErr)
		}
		return types.WrapErr(types.ErrRemoteCallFailed, "wallet failed to switch network", switchErr)
	}

	// Trust the re-read chain id over the switch call's silence.
	current, err = m.provider.ChainID(ctx)
	if err != nil {
		return types.WrapErr(types.ErrRemoteCallFailed, "could not confirm wallet chain", err)
	}
	if current != network.ChainID {
		return types.E(types.ErrWrongNetwork, "wallet stayed on chain "+chainLabel(current))
	}
	return nil
}

// AutoReconnect silently restores a persisted session when the wallet
// still authorizes the stored account on the stored network. Any mismatch
// drops the hint and leaves the session disconnected; no prompt is shown.
func (m *Manager) AutoReconnect(ctx context.Context) (types.Session, bool) {
	hint, ok, err := m.store.Load()
	if err != nil || !ok {
		return types.Session{}, false
	}
	network, err := registry.Describe(hint.Network)
	if err != nil {
		_ = m.store.Clear()
		return types.Session{}, false
	}

	accounts, err := m.provider.Accounts(ctx)
	if err != nil || len(accounts) == 0 {
		_ = m.store.Clear()
		return types.Session{}, false
	}
	var account common.Address
	found := false
	for _, a := range accounts {
		if strings.EqualFold(a.Hex(), hint.Account) {
			account, found = a, true
			break
		}
	}
	if !found {
		_ = m.store.Clear()
		return types.Session{}, false
	}

	current, err := m.provider.ChainID(ctx)
	if err != nil || current != network.ChainID {
		_ = m.store.Clear()
		return types.Session{}, false
	}

	sess := types.Session{Account: account, Network: network, HasSigner: true}
	m.mu.Lock()
	m.session = sess
	m.mu.Unlock()
	m.rec.IncCounter(metrics.EventConnect, map[string]string{"network": string(network.Key)})
	m.log.Info("session restored", map[string]any{
		"account": account.Hex(),
		"network": string(network.Key),
	})
	m.startEventLoop()
	return sess, true
}

// Disconnect clears the session and the persisted hint. Calling it while
// already disconnected is a no-op.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	was := m.session
	m.session = types.Session{}
	m.mu.Unlock()
	if !was.Connected() {
		return
	}
	if err := m.store.Clear(); err != nil {
		m.log.Warn("failed to clear persisted session", map[string]any{"error": err.Error()})
	}
	m.rec.IncCounter(metrics.EventDisconnect, map[string]string{"network": string(was.Network.Key)})
	m.log.Info("wallet disconnected", map[string]any{"account": was.Account.Hex()})
	if m.OnDisconnect != nil {
		m.OnDisconnect()
	}
}

// Close stops the event loop. The manager is unusable afterwards.
func (m *Manager) Close() {
	select {
	case <-m.done:
	default:
		close(m.done)
	}
}

func (m *Manager) startEventLoop() {
	m.loopOnce.Do(func() {
		ch := make(chan Event, 8)
		cancel := m.provider.Subscribe(ch)
		go func() {
			defer cancel()
			for {
				select {
				case <-m.done:
					return
				case ev := <-ch:
					m.handleEvent(ev)
				}
			}
		}()
	})
}

func (m *Manager) handleEvent(ev Event) {
	m.mu.Lock()
	sess := m.session
	m.mu.Unlock()
	if !sess.Connected() {
		return
	}

	switch ev.Kind {
	case EventAccountsChanged:
		if len(ev.Accounts) == 0 {
			m.log.Info("wallet revoked account access", nil)
			m.Disconnect()
			return
		}
		next := ev.Accounts[0]
		if next == sess.Account {
			return
		}
		m.mu.Lock()
		m.session.Account = next
		m.mu.Unlock()
		if err := m.store.Save(PersistedSession{Account: next.Hex(), Network: sess.Network.Key}); err != nil {
			m.log.Warn("failed to persist session", map[string]any{"error": err.Error()})
		}
		m.log.Info("active account changed", map[string]any{"account": next.Hex()})
		if m.OnAccountChanged != nil {
			m.OnAccountChanged(next)
		}

	case EventChainChanged:
		network, known := registry.ResolveByChainID(ev.ChainID)
		if !known {
			// The user moved the wallet somewhere we have no contracts
			// for. Drop the session rather than operate against the
			// wrong chain.
			m.log.Warn("wallet switched to unsupported chain", map[string]any{"chainId": ev.ChainID})
			m.Disconnect()
			return
		}
		if network.ChainID == sess.Network.ChainID {
			return
		}
		m.mu.Lock()
		m.session.Network = network
		m.mu.Unlock()
		if err := m.store.Save(PersistedSession{Account: sess.Account.Hex(), Network: network.Key}); err != nil {
			m.log.Warn("failed to persist session", map[string]any{"error": err.Error()})
		}
		m.log.Info("wallet network changed", map[string]any{"network": string(network.Key)})
		if m.OnChainChanged != nil {
			m.OnChainChanged(network)
		}
	}
}

func chainLabel(chainID uint64) string {
	if network, ok := registry.ResolveByChainID(chainID); ok {
		return network.Name
	}
	return "id " + strconv.FormatUint(chainID, 10)
}
