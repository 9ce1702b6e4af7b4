// Package resolver maps a detected network to the contract address set the
// rest of the system uses. Every network except the local development fork
// carries its addresses statically in the registry; the local fork publishes
// them in a deployment manifest that is fetched fresh on every resolution.
package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"

	"github.com/timeboundbeats/titlerent/logger"
	"github.com/timeboundbeats/titlerent/metrics"
	"github.com/timeboundbeats/titlerent/types"
)

// ManifestPath is the well-known relative path of the deployment manifest.
const ManifestPath = "/contracts/deployment.json"

var validate = validator.New()

// deploymentManifest is the JSON document the local deployment writes.
// Field names follow the deployment tooling's contract names.
type deploymentManifest struct {
	Registry     string `json:"titleRegistry" validate:"required,eth_addr"`
	PaymentToken string `json:"paymentToken" validate:"required,eth_addr"`
	Network      string `json:"network"`
	ChainID      uint64 `json:"chainId"`
}

// Resolver produces one ContractAddressSet per active network. It caches
// nothing: a stale address pointing at the wrong chain is worse than a
// recomputation, so every network change re-resolves from scratch.
type Resolver struct {
	// ManifestBaseURL is the origin the local manifest is fetched from,
	// typically the dev server root.
	manifestBaseURL string
	httpClient      *http.Client
	log             logger.Logger
	rec             metrics.Recorder
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithHTTPClient overrides the client used for manifest fetches.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Resolver) { r.httpClient = c }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Resolver) { r.log = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(rec metrics.Recorder) Option {
	return func(r *Resolver) { r.rec = rec }
}

// New creates a resolver. manifestBaseURL is used only for the local
// development network.
func New(manifestBaseURL string, opts ...Option) *Resolver {
	r := &Resolver{
		manifestBaseURL: manifestBaseURL,
		httpClient:      &http.Client{Timeout: 10 * time.Second},
		log:             logger.NoopLogger{},
		rec:             metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the address set for network. Resolution failure on the
// local network is not an error: the unresolved set comes back and callers
// detect it uniformly through ContractAddressSet.Resolved.
func (r *Resolver) Resolve(ctx context.Context, network types.NetworkDescriptor) types.ContractAddressSet {
	if network.Key != types.NetworkLocal {
		return network.Contracts
	}
	return r.fetchManifest(ctx)
}

func (r *Resolver) fetchManifest(ctx context.Context) types.ContractAddressSet {
	start := time.Now()
	defer func() {
		r.rec.ObserveLatency(metrics.OperationManifestLoad, time.Since(start), map[string]string{"network": string(types.NetworkLocal)})
	}()

	url := r.manifestBaseURL + ManifestPath

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		r.log.Warn("deployment manifest request build failed", map[string]any{"url": url, "error": err.Error()})
		return types.UnresolvedAddressSet()
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		r.log.Warn("deployment manifest fetch failed", map[string]any{"url": url, "error": err.Error()})
		return types.UnresolvedAddressSet()
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		r.log.Warn("deployment manifest fetch failed", map[string]any{"url": url, "status": resp.StatusCode})
		return types.UnresolvedAddressSet()
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		r.log.Warn("deployment manifest read failed", map[string]any{"error": err.Error()})
		return types.UnresolvedAddressSet()
	}

	m, err := parseManifest(body)
	if err != nil {
		r.log.Warn("deployment manifest invalid", map[string]any{"error": err.Error()})
		return types.UnresolvedAddressSet()
	}

	return types.ResolvedAddressSet(
		common.HexToAddress(m.Registry),
		common.HexToAddress(m.PaymentToken),
	)
}

func parseManifest(data []byte) (*deploymentManifest, error) {
	var m deploymentManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if err := validate.Struct(&m); err != nil {
		return nil, fmt.Errorf("validate manifest: %w", err)
	}
	return &m, nil
}
