// Package catalog reads the title registry into presentation-ready
// listings. Every read is a full rebuild against current chain state; the
// package keeps no cache of its own.
package catalog

import (
	"context"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/timeboundbeats/titlerent/clients"
	"github.com/timeboundbeats/titlerent/logger"
	"github.com/timeboundbeats/titlerent/metrics"
	"github.com/timeboundbeats/titlerent/types"
)

// Service lists titles and rentals from one network's registry contract.
type Service struct {
	backend  clients.Backend
	contract *clients.TitleRegistry
	network  types.NetworkDescriptor
	log      logger.Logger
	rec      metrics.Recorder
}

// NewService binds a catalog reader to network's registry. Contracts holds
// the resolved addresses for the network; an unresolved set produces a
// service whose reads fail with a CONTRACT_UNRESOLVED classification.
func NewService(backend clients.Backend, network types.NetworkDescriptor, contracts types.ContractAddressSet, log logger.Logger, rec metrics.Recorder) (*Service, error) {
	if log == nil {
		log = logger.NoopLogger{}
	}
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	s := &Service{backend: backend, network: network, log: log, rec: rec}
	if addr, ok := contracts.Registry(); ok {
		contract, err := clients.NewTitleRegistry(addr, backend)
		if err != nil {
			return nil, err
		}
		s.contract = contract
	}
	return s, nil
}

// Registry exposes the underlying contract binding, or nil while the
// addresses are unresolved.
func (s *Service) Registry() *clients.TitleRegistry { return s.contract }

func (s *Service) ready(ctx context.Context) error {
	if s.contract == nil {
		return types.E(types.ErrContractUnresolved, "contract addresses for "+s.network.Name+" are not resolved")
	}
	ok, err := clients.HasCode(ctx, s.backend, s.contract.Address())
	if err != nil {
		return types.WrapErr(types.ErrRemoteCallFailed, "could not inspect contract code", err)
	}
	if !ok {
		return types.E(types.ErrNoContractAtAddress, "no contract deployed at "+s.contract.Address().Hex()+" on "+s.network.Name)
	}
	return nil
}

// ListAvailable enumerates every title currently rentable by viewer. A nil
// viewer is the anonymous browse: nothing is filtered out. A connected
// viewer's own titles are excluded, since renting from yourself is
// pointless.
func (s *Service) ListAvailable(ctx context.Context, viewer *common.Address) ([]types.TitleListing, error) {
	start := time.Now()
	defer func() {
		s.rec.ObserveLatency(metrics.OperationCatalogList, time.Since(start), map[string]string{"network": string(s.network.Key)})
	}()

	if err := s.ready(ctx); err != nil {
		return nil, err
	}

	pricePerDay, err := s.PricePerDay(ctx)
	if err != nil {
		return nil, err
	}
	supply, err := s.contract.TotalSupply(ctx)
	if err != nil {
		return nil, types.WrapErr(types.ErrRemoteCallFailed, "could not read title count", err)
	}

	total := supply.Uint64()
	listings := make([]types.TitleListing, 0, total)
	for i := uint64(0); i < total; i++ {
		tokenID, err := s.contract.TokenByIndex(ctx, i)
		if err != nil {
			return nil, types.WrapErr(types.ErrRemoteCallFailed, "could not enumerate titles", err)
		}
		owner, err := s.contract.OwnerOf(ctx, tokenID)
		if err != nil {
			return nil, types.WrapErr(types.ErrRemoteCallFailed, "could not read title owner", err)
		}
		if viewer != nil && owner == *viewer {
			continue
		}
		meta, err := s.contract.Metadata(ctx, tokenID)
		if err != nil {
			return nil, types.WrapErr(types.ErrRemoteCallFailed, "could not read title metadata", err)
		}
		listings = append(listings, types.TitleListing{
			TokenID:         tokenID,
			Owner:           owner,
			Name:            meta.Name,
			Author:          meta.Author,
			DurationSeconds: meta.DurationSeconds,
			PricePerDay:     new(big.Int).Set(pricePerDay),
		})
	}

	s.rec.IncCounter(metrics.EventCatalogRefresh, map[string]string{"network": string(s.network.Key)})
	s.log.Debug("catalog refreshed", map[string]any{
		"network":  string(s.network.Key),
		"titles":   len(listings),
		"excluded": int(total) - len(listings),
	})
	return listings, nil
}

// PricePerDay returns the current rental price for one whole day, derived
// from the contract's per-second rate at call time.
func (s *Service) PricePerDay(ctx context.Context) (*big.Int, error) {
	if s.contract == nil {
		return nil, types.E(types.ErrContractUnresolved, "contract addresses for "+s.network.Name+" are not resolved")
	}
	rate, err := s.contract.RentalFee(ctx)
	if err != nil {
		return nil, types.WrapErr(types.ErrRemoteCallFailed, "could not read rental rate", err)
	}
	return new(big.Int).Mul(rate, big.NewInt(types.SecondsPerDay)), nil
}

// OwnedTitles lists the titles owner has minted or otherwise holds.
func (s *Service) OwnedTitles(ctx context.Context, owner common.Address) ([]types.TitleListing, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	pricePerDay, err := s.PricePerDay(ctx)
	if err != nil {
		return nil, err
	}
	ids, err := s.contract.OwnedTitleIDs(ctx, owner)
	if err != nil {
		return nil, types.WrapErr(types.ErrRemoteCallFailed, "could not read owned titles", err)
	}
	listings := make([]types.TitleListing, 0, len(ids))
	for _, id := range ids {
		meta, err := s.contract.Metadata(ctx, id)
		if err != nil {
			return nil, types.WrapErr(types.ErrRemoteCallFailed, "could not read title metadata", err)
		}
		listings = append(listings, types.TitleListing{
			TokenID:         id,
			Owner:           owner,
			Name:            meta.Name,
			Author:          meta.Author,
			DurationSeconds: meta.DurationSeconds,
			PricePerDay:     new(big.Int).Set(pricePerDay),
		})
	}
	return listings, nil
}

// RentalsOf walks the contract's rental log and returns renter's entries,
// active rentals first, each ordered by expiry. The log has no length
// accessor; iteration stops at the first out-of-range revert.
func (s *Service) RentalsOf(ctx context.Context, renter common.Address) ([]types.Rental, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}

	now := time.Now()
	var rentals []types.Rental
	for i := uint64(0); ; i++ {
		entry, err := s.contract.RentalAt(ctx, i)
		if err != nil {
			if ctx.Err() != nil {
				return nil, types.WrapErr(types.ErrRemoteCallFailed, "rental log read interrupted", ctx.Err())
			}
			if !isOutOfRange(err) {
				// A transport failure mid-walk must not pass as the end of
				// the log, the caller would see a silently truncated list.
				return nil, types.WrapErr(types.ErrRemoteCallFailed, "rental log read failed", err)
			}
			s.log.Debug("rental log walked", map[string]any{"entries": i})
			break
		}
		if entry.Renter != renter {
			continue
		}
		meta, err := s.contract.Metadata(ctx, entry.TokenID)
		if err != nil {
			return nil, types.WrapErr(types.ErrRemoteCallFailed, "could not read title metadata", err)
		}
		until := time.Unix(entry.RentedUntil.Int64(), 0)
		rentals = append(rentals, types.Rental{
			TokenID:         entry.TokenID,
			Renter:          entry.Renter,
			RentedUntil:     until,
			Name:            meta.Name,
			Author:          meta.Author,
			DurationSeconds: meta.DurationSeconds,
			Expired:         until.Before(now),
		})
	}

	sort.SliceStable(rentals, func(i, j int) bool {
		if rentals[i].Expired != rentals[j].Expired {
			return !rentals[i].Expired
		}
		return rentals[i].RentedUntil.Before(rentals[j].RentedUntil)
	})
	return rentals, nil
}

// isOutOfRange reports whether err is the contract reverting an index
// past the end of the rentals array, the expected end-of-log marker.
func isOutOfRange(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "revert")
}
