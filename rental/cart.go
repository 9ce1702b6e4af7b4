// Package rental holds the cart and the checkout orchestrator: quoting a
// whole-day rental, the approve-then-rent transaction sequence, and the
// classification of everything that can go wrong on the way.
package rental

import (
	"sync"

	"github.com/timeboundbeats/titlerent/types"
)

// Cart collects titles for a single checkout. Membership is a set keyed by
// token id; adding a title twice is a no-op. Safe for concurrent use.
type Cart struct {
	mu    sync.Mutex
	items map[uint64]types.CartItem
	order []uint64
}

func NewCart() *Cart {
	return &Cart{items: make(map[uint64]types.CartItem)}
}

// Add puts item in the cart and reports whether it was newly added.
func (c *Cart) Add(item types.CartItem) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.items[item.TokenID]; ok {
		return false
	}
	c.items[item.TokenID] = item
	c.order = append(c.order, item.TokenID)
	return true
}

// Remove takes the title out of the cart and reports whether it was there.
func (c *Cart) Remove(tokenID uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.items[tokenID]; !ok {
		return false
	}
	delete(c.items, tokenID)
	for i, id := range c.order {
		if id == tokenID {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return true
}

// Contains reports whether the title is in the cart.
func (c *Cart) Contains(tokenID uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.items[tokenID]
	return ok
}

// Items returns the cart contents in insertion order.
func (c *Cart) Items() []types.CartItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]types.CartItem, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.items[id])
	}
	return out
}

func (c *Cart) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *Cart) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[uint64]types.CartItem)
	c.order = nil
}
