// Package utils holds small conversion and validation helpers shared by
// the rental packages.
package utils

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// PaymentTokenDecimals is the precision of the USDC-style payment token
// every registry deployment is paired with.
const PaymentTokenDecimals = 6

// ParseAmount parses a human decimal amount string into the token's
// smallest unit.
func ParseAmount(amount string, decimals int) (*big.Int, error) {
	dec, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	if dec.IsNegative() {
		return nil, fmt.Errorf("amount %q must not be negative", amount)
	}
	multiplier := decimal.NewFromBigInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil), 0)
	return dec.Mul(multiplier).BigInt(), nil
}

// FormatAmount renders a smallest-unit amount as a human decimal string.
func FormatAmount(amount *big.Int, decimals int) string {
	return decimal.NewFromBigInt(amount, -int32(decimals)).String()
}

// ConvertDecimals rescales an amount between token precisions. Scaling
// down truncates.
func ConvertDecimals(amount *big.Int, fromDecimals, toDecimals int) *big.Int {
	result := new(big.Int).Set(amount)
	switch {
	case fromDecimals > toDecimals:
		divisor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(fromDecimals-toDecimals)), nil)
		result.Div(result, divisor)
	case fromDecimals < toDecimals:
		multiplier := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(toDecimals-fromDecimals)), nil)
		result.Mul(result, multiplier)
	}
	return result
}

// ParseAddress validates and normalizes a hex address string.
func ParseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}
