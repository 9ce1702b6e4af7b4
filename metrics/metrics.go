// Package metrics counts wallet and rental events and times the remote
// operations behind them.
package metrics

import "time"

type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
}

// Counter and operation names recorded by the orchestration layer.
const (
	EventConnect          = "wallet_connect"
	EventDisconnect       = "wallet_disconnect"
	EventCheckoutSuccess  = "checkout_success"
	EventCheckoutFailure  = "checkout_failure"
	EventCatalogRefresh   = "catalog_refresh"
	OperationCheckout     = "checkout"
	OperationApprove      = "approve"
	OperationCatalogList  = "catalog_list"
	OperationManifestLoad = "manifest_load"
)
