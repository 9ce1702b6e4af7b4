package rental

import (
	"errors"
	"strings"

	"github.com/timeboundbeats/titlerent/clients"
	"github.com/timeboundbeats/titlerent/types"
	"github.com/timeboundbeats/titlerent/wallet"
)

// gasShortfallMarkers are the substrings nodes and wallets use to report
// that the account cannot cover gas. Matched case-insensitively against
// the raw provider error.
var gasShortfallMarkers = []string{
	"insufficient funds for gas",
	"insufficient funds for transfer",
	"gas required exceeds allowance",
}

// Classify maps a raw failure from the checkout sequence onto a structured
// error. Already-classified errors pass through untouched.
func Classify(err error) *types.Error {
	var structured *types.Error
	if errors.As(err, &structured) {
		return structured
	}
	if wallet.IsUserRejection(err) {
		return types.WrapErr(types.ErrUserRejected, "the transaction was declined in the wallet", err)
	}
	lower := strings.ToLower(err.Error())
	for _, marker := range gasShortfallMarkers {
		if strings.Contains(lower, marker) {
			return types.WrapErr(types.ErrInsufficientGas, "the account cannot cover network gas fees", err)
		}
	}
	if errors.Is(err, clients.ErrTxReverted) {
		return types.WrapErr(types.ErrRemoteCallFailed, "the transaction was mined but reverted", err)
	}
	return types.WrapErr(types.ErrRemoteCallFailed, "the network request failed", err)
}
