// Package cart implements the session-local order state. A Cart belongs to
// exactly one call session and is only ever mutated on that session's event
// loop, so it carries no locking of its own.
package cart

import (
	"log/slog"

	"github.com/spicebay/voicegate/internal/menu"
)

// Item is one line of the cart. UnitPrice is authoritative: it comes from
// the menu price map whenever the item name is known there, and only falls
// back to the model-supplied price on a miss.
type Item struct {
	Name      string
	Quantity  int
	UnitPrice float64
	Notes     string
}

// Cart accumulates items for a single call.
type Cart struct {
	prices *menu.PriceMap
	items  []Item
	logger *slog.Logger
}

// New creates an empty cart backed by the given price authority.
func New(prices *menu.PriceMap, logger *slog.Logger) *Cart {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cart{prices: prices, logger: logger}
}

// Add puts an item in the cart. If an item with the same name already exists
// its quantity and price are replaced — customers restate totals ("make that
// three") rather than asking for deltas — and notes are replaced only when
// the new notes are non-empty. The unit price comes from the price map; on a
// miss the model-supplied price is used and a warning is logged.
func (c *Cart) Add(name string, quantity int, modelPrice float64, notes string) string {
	price := modelPrice
	if p, ok := c.prices.Price(name); ok {
		price = p
	} else {
		c.logger.Warn("price_map_miss: using model-supplied price",
			"item", name,
			"model_price", modelPrice,
		)
	}

	for i := range c.items {
		if c.items[i].Name == name {
			c.items[i].Quantity = quantity
			c.items[i].UnitPrice = price
			if notes != "" {
				c.items[i].Notes = notes
			}
			return "updated"
		}
	}

	c.items = append(c.items, Item{
		Name:      name,
		Quantity:  quantity,
		UnitPrice: price,
		Notes:     notes,
	})
	return "added"
}

// Remove drops every entry whose name equals name exactly.
func (c *Cart) Remove(name string) string {
	kept := c.items[:0]
	for _, it := range c.items {
		if it.Name != name {
			kept = append(kept, it)
		}
	}
	c.items = kept
	return "removed"
}

// Subtotal returns Σ quantity·unitPrice over all items, before tax.
func (c *Cart) Subtotal() float64 {
	var sum float64
	for _, it := range c.items {
		sum += float64(it.Quantity) * it.UnitPrice
	}
	return sum
}

// ItemCount returns the number of distinct cart lines.
func (c *Cart) ItemCount() int { return len(c.items) }

// Items returns a copy of the cart lines in insertion order.
func (c *Cart) Items() []Item {
	out := make([]Item, len(c.items))
	copy(out, c.items)
	return out
}

// Clear empties the cart after a successful order.
func (c *Cart) Clear() { c.items = nil }
