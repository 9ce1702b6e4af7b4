// Package types defines the shared data model of the rental orchestration
// layer: network descriptors, sessions, catalog projections, cart and quote
// values, and the structured error type every component classifies into.
package types

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// SecondsPerDay converts the contract's per-second rate into the per-day
// price shown to users. Rentals are purchased in whole-day increments.
const SecondsPerDay = 86400

// TitleListing is a read-only projection of one title as the contract
// currently reports it. The catalog is rebuilt in full on every refresh.
type TitleListing struct {
	TokenID         uint64         `json:"tokenId"`
	Owner           common.Address `json:"owner"`
	Name            string         `json:"name"`
	Author          string         `json:"author"`
	DurationSeconds uint64         `json:"durationSeconds"`
	// PricePerDay is the current rental price in the payment token's
	// smallest unit for one whole day.
	PricePerDay *big.Int `json:"pricePerDay"`
}

// CartItem is the subset of a listing needed for checkout. Cart membership
// is keyed by TokenID.
type CartItem struct {
	TokenID         uint64 `json:"tokenId"`
	Name            string `json:"name"`
	Author          string `json:"author"`
	DurationSeconds uint64 `json:"durationSeconds"`
}

// RentalQuote prices a cart for a whole-day rental period. It is derived
// from the live per-second rate at quote time and never persisted.
type RentalQuote struct {
	Items []CartItem `json:"items"`
	Days  uint64     `json:"days"`
	// Total is in the payment token's smallest unit.
	Total *big.Int `json:"total"`
}

// RentalReceipt is the transient result of a confirmed rental transaction.
// It drives the success notification and the follow-up catalog refresh.
type RentalReceipt struct {
	TxHash      common.Hash `json:"txHash"`
	BlockNumber uint64      `json:"blockNumber"`
	ItemCount   int         `json:"itemCount"`
	Days        uint64      `json:"days"`
}

// Rental is one entry of the contract's rental log, filtered per viewer.
type Rental struct {
	TokenID         uint64         `json:"tokenId"`
	Renter          common.Address `json:"renter"`
	RentedUntil     time.Time      `json:"rentedUntil"`
	Name            string         `json:"name"`
	Author          string         `json:"author"`
	DurationSeconds uint64         `json:"durationSeconds"`
	Expired         bool           `json:"expired"`
}

// Severity grades a notification for the presentation layer.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Notification is the only thing the orchestrator tells the presentation
// layer besides state; it carries no retained data.
type Notification struct {
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// NotifyAutoDismiss is the fixed delay after which the presentation layer
// dismisses a notification.
const NotifyAutoDismiss = 5 * time.Second
