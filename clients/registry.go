package clients

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// registryABI is the call surface of the title registry contract: catalog
// enumeration, the per-second rental rate, the payment token pointer, the
// rental log, and the three write operations.
const registryABI = `[
  {"name":"totalSupply","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"name":"tokenByIndex","type":"function","stateMutability":"view","inputs":[{"name":"index","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
  {"name":"getTitleMetadata","type":"function","stateMutability":"view","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"name","type":"string"},{"name":"author","type":"string"},{"name":"duration","type":"uint256"}]},
  {"name":"ownerOf","type":"function","stateMutability":"view","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"","type":"address"}]},
  {"name":"rentalFee","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"name":"paymentToken","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
  {"name":"rentals","type":"function","stateMutability":"view","inputs":[{"name":"index","type":"uint256"}],"outputs":[{"name":"tokenId","type":"uint256"},{"name":"renter","type":"address"},{"name":"rentedUntil","type":"uint256"}]},
  {"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"name":"getMyTitles","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256[]"}]},
  {"name":"rentTitle","type":"function","stateMutability":"nonpayable","inputs":[{"name":"tokenId","type":"uint256"},{"name":"duration","type":"uint256"}],"outputs":[]},
  {"name":"rentTitles","type":"function","stateMutability":"nonpayable","inputs":[{"name":"tokenIds","type":"uint256[]"},{"name":"duration","type":"uint256"}],"outputs":[]},
  {"name":"mintTitle","type":"function","stateMutability":"nonpayable","inputs":[{"name":"name","type":"string"},{"name":"author","type":"string"},{"name":"duration","type":"uint256"}],"outputs":[]}
]`

// TitleMetadata is the on-chain metadata tuple of one title.
type TitleMetadata struct {
	Name            string
	Author          string
	DurationSeconds uint64
}

// RentalEntry is one slot of the contract's public rentals array.
type RentalEntry struct {
	TokenID     uint64
	Renter      common.Address
	RentedUntil *big.Int
}

// TitleRegistry is a thin binding over the registry contract, built on
// packed calls instead of generated code so the surface stays exactly the
// one the orchestration layer uses.
type TitleRegistry struct {
	addr    common.Address
	abi     abi.ABI
	backend Backend
}

func NewTitleRegistry(addr common.Address, backend Backend) (*TitleRegistry, error) {
	parsed, err := abi.JSON(strings.NewReader(registryABI))
	if err != nil {
		return nil, fmt.Errorf("parse registry abi: %w", err)
	}
	return &TitleRegistry{addr: addr, abi: parsed, backend: backend}, nil
}

// Address returns the bound contract address.
func (r *TitleRegistry) Address() common.Address { return r.addr }

func (r *TitleRegistry) call(ctx context.Context, from *common.Address, method string, args ...interface{}) ([]interface{}, error) {
	data, err := r.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &r.addr, Data: data}
	if from != nil {
		msg.From = *from
	}
	out, err := r.backend.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	res, err := r.abi.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return res, nil
}

func (r *TitleRegistry) TotalSupply(ctx context.Context) (*big.Int, error) {
	out, err := r.call(ctx, nil, "totalSupply")
	if err != nil {
		return nil, err
	}
	return abi.ConvertType(out[0], new(big.Int)).(*big.Int), nil
}

func (r *TitleRegistry) TokenByIndex(ctx context.Context, index uint64) (uint64, error) {
	out, err := r.call(ctx, nil, "tokenByIndex", new(big.Int).SetUint64(index))
	if err != nil {
		return 0, err
	}
	return abi.ConvertType(out[0], new(big.Int)).(*big.Int).Uint64(), nil
}

func (r *TitleRegistry) Metadata(ctx context.Context, tokenID uint64) (TitleMetadata, error) {
	out, err := r.call(ctx, nil, "getTitleMetadata", new(big.Int).SetUint64(tokenID))
	if err != nil {
		return TitleMetadata{}, err
	}
	return TitleMetadata{
		Name:            *abi.ConvertType(out[0], new(string)).(*string),
		Author:          *abi.ConvertType(out[1], new(string)).(*string),
		DurationSeconds: abi.ConvertType(out[2], new(big.Int)).(*big.Int).Uint64(),
	}, nil
}

func (r *TitleRegistry) OwnerOf(ctx context.Context, tokenID uint64) (common.Address, error) {
	out, err := r.call(ctx, nil, "ownerOf", new(big.Int).SetUint64(tokenID))
	if err != nil {
		return common.Address{}, err
	}
	return *abi.ConvertType(out[0], new(common.Address)).(*common.Address), nil
}

// RentalFee returns the contract's per-second rental rate in the payment
// token's smallest unit.
func (r *TitleRegistry) RentalFee(ctx context.Context) (*big.Int, error) {
	out, err := r.call(ctx, nil, "rentalFee")
	if err != nil {
		return nil, err
	}
	return abi.ConvertType(out[0], new(big.Int)).(*big.Int), nil
}

func (r *TitleRegistry) PaymentTokenAddress(ctx context.Context) (common.Address, error) {
	out, err := r.call(ctx, nil, "paymentToken")
	if err != nil {
		return common.Address{}, err
	}
	return *abi.ConvertType(out[0], new(common.Address)).(*common.Address), nil
}

// RentalAt reads one slot of the public rentals array. Indexing past the
// end reverts, which callers use as the end-of-log marker.
func (r *TitleRegistry) RentalAt(ctx context.Context, index uint64) (RentalEntry, error) {
	out, err := r.call(ctx, nil, "rentals", new(big.Int).SetUint64(index))
	if err != nil {
		return RentalEntry{}, err
	}
	return RentalEntry{
		TokenID:     abi.ConvertType(out[0], new(big.Int)).(*big.Int).Uint64(),
		Renter:      *abi.ConvertType(out[1], new(common.Address)).(*common.Address),
		RentedUntil: abi.ConvertType(out[2], new(big.Int)).(*big.Int),
	}, nil
}

func (r *TitleRegistry) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	out, err := r.call(ctx, nil, "balanceOf", owner)
	if err != nil {
		return nil, err
	}
	return abi.ConvertType(out[0], new(big.Int)).(*big.Int), nil
}

// OwnedTitleIDs lists the token ids owned by owner. The contract resolves
// ownership against the call's sender, so the read carries From.
func (r *TitleRegistry) OwnedTitleIDs(ctx context.Context, owner common.Address) ([]uint64, error) {
	out, err := r.call(ctx, &owner, "getMyTitles")
	if err != nil {
		return nil, err
	}
	raw := *abi.ConvertType(out[0], new([]*big.Int)).(*[]*big.Int)
	ids := make([]uint64, 0, len(raw))
	for _, id := range raw {
		ids = append(ids, id.Uint64())
	}
	return ids, nil
}

// RentCalldata packs the single-item rental call.
func (r *TitleRegistry) RentCalldata(tokenID uint64, durationSeconds *big.Int) ([]byte, error) {
	return r.abi.Pack("rentTitle", new(big.Int).SetUint64(tokenID), durationSeconds)
}

// RentBatchCalldata packs the batch rental call; the same duration applies
// to every id.
func (r *TitleRegistry) RentBatchCalldata(tokenIDs []uint64, durationSeconds *big.Int) ([]byte, error) {
	ids := make([]*big.Int, 0, len(tokenIDs))
	for _, id := range tokenIDs {
		ids = append(ids, new(big.Int).SetUint64(id))
	}
	return r.abi.Pack("rentTitles", ids, durationSeconds)
}

// MintCalldata packs the mint call.
func (r *TitleRegistry) MintCalldata(name, author string, durationSeconds uint64) ([]byte, error) {
	return r.abi.Pack("mintTitle", name, author, new(big.Int).SetUint64(durationSeconds))
}
