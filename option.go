package titlerent

import (
	"time"

	"github.com/timeboundbeats/titlerent/clients"
	"github.com/timeboundbeats/titlerent/logger"
	"github.com/timeboundbeats/titlerent/metrics"
	"github.com/timeboundbeats/titlerent/resolver"
	"github.com/timeboundbeats/titlerent/types"
	"github.com/timeboundbeats/titlerent/wallet"
)

type Option func(*App)

func WithLogger(l logger.Logger) Option {
	return func(a *App) {
		a.log = l
	}
}

func WithMetrics(r metrics.Recorder) Option {
	return func(a *App) {
		a.rec = r
	}
}

func WithTimeout(t time.Duration) Option {
	return func(a *App) {
		a.timeout = t
	}
}

// WithNotifier routes notifications to fn instead of the Notifications
// channel.
func WithNotifier(fn func(types.Notification)) Option {
	return func(a *App) {
		a.notifier = fn
	}
}

// WithStore sets where the wallet reconnect hint is persisted.
func WithStore(s wallet.Store) Option {
	return func(a *App) {
		a.store = s
	}
}

// WithResolver overrides the contract address resolver, mainly so local
// deployments can point at their own manifest host.
func WithResolver(r *resolver.Resolver) Option {
	return func(a *App) {
		a.resolver = r
	}
}

// WithDialer overrides how RPC connections are opened. Tests substitute a
// fake backend here.
func WithDialer(dial func(rpcURL string) (clients.NodeBackend, error)) Option {
	return func(a *App) {
		a.dial = dial
	}
}
