package domain

import (
	"fmt"
	"time"
)

// Cart is the single shopping cart owned by a login.
type Cart struct {
	Login     string     `json:"login"`
	Items     []CartItem `json:"items"`
	Version   int        `json:"version"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// CartItem references a souvenir by ID. The reference is weak: the souvenir
// may have been deleted since the item was added.
type CartItem struct {
	SouvenirID string `json:"souvenir_id"`
	Amount     int    `json:"amount"`
}

// Validate checks that the cart has an owner, every item references a
// souvenir with a positive amount, and no souvenir appears twice.
func (c *Cart) Validate() error {
	if c.Login == "" {
		return fmt.Errorf("cart login is required")
	}
	seen := make(map[string]struct{}, len(c.Items))
	for i, item := range c.Items {
		if item.SouvenirID == "" {
			return fmt.Errorf("item %d: souvenir id is required", i)
		}
		if item.Amount < 1 {
			return fmt.Errorf("item %d: amount must be at least 1, got %d", i, item.Amount)
		}
		if _, dup := seen[item.SouvenirID]; dup {
			return fmt.Errorf("item %d: souvenir %s appears more than once", i, item.SouvenirID)
		}
		seen[item.SouvenirID] = struct{}{}
	}
	return nil
}

// Normalize merges items that reference the same souvenir by summing their
// amounts. The first occurrence keeps its position.
func (c *Cart) Normalize() {
	if len(c.Items) < 2 {
		return
	}
	index := make(map[string]int, len(c.Items))
	merged := c.Items[:0]
	for _, item := range c.Items {
		if i, ok := index[item.SouvenirID]; ok {
			merged[i].Amount += item.Amount
			continue
		}
		index[item.SouvenirID] = len(merged)
		merged = append(merged, item)
	}
	c.Items = merged
}

// SouvenirIDs returns the distinct souvenir IDs in item order.
func (c *Cart) SouvenirIDs() []string {
	ids := make([]string, 0, len(c.Items))
	seen := make(map[string]struct{}, len(c.Items))
	for _, item := range c.Items {
		if _, ok := seen[item.SouvenirID]; ok {
			continue
		}
		seen[item.SouvenirID] = struct{}{}
		ids = append(ids, item.SouvenirID)
	}
	return ids
}

// RemoveSouvenirs drops every item referencing one of ids and reports how
// many items were removed.
func (c *Cart) RemoveSouvenirs(ids []string) int {
	if len(ids) == 0 || len(c.Items) == 0 {
		return 0
	}
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	kept := c.Items[:0]
	for _, item := range c.Items {
		if _, ok := drop[item.SouvenirID]; ok {
			continue
		}
		kept = append(kept, item)
	}
	removed := len(c.Items) - len(kept)
	c.Items = kept
	return removed
}

// ItemCount returns the total number of units in the cart.
func (c *Cart) ItemCount() int {
	var count int
	for _, item := range c.Items {
		count += item.Amount
	}
	return count
}
