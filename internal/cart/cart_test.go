package cart_test

import (
	"math"
	"testing"

	"github.com/spicebay/voicegate/internal/cart"
	"github.com/spicebay/voicegate/internal/menu"
)

func newCart() *cart.Cart {
	return cart.New(menu.SpiceBay(), nil)
}

func TestAdd_PriceMapOverridesModelPrice(t *testing.T) {
	c := newCart()
	c.Add("Masala Dosa", 2, 9.99, "")

	items := c.Items()
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	if items[0].UnitPrice != 11.49 {
		t.Errorf("unit price = %.2f, want the menu price 11.49", items[0].UnitPrice)
	}
	if items[0].Quantity != 2 {
		t.Errorf("quantity = %d, want 2", items[0].Quantity)
	}
}

func TestAdd_UnknownItemFallsBackToModelPrice(t *testing.T) {
	c := newCart()
	token := c.Add("Secret Special", 1, 4.25, "")
	if token != "added" {
		t.Errorf("token = %q, want added", token)
	}
	items := c.Items()
	if len(items) != 1 || items[0].UnitPrice != 4.25 {
		t.Fatalf("expected model-price fallback 4.25, got %+v", items)
	}
}

func TestAdd_DuplicateReplacesQuantityAndNotes(t *testing.T) {
	c := newCart()
	c.Add("Plain Dosa", 1, 9.99, "")
	c.Add("Plain Dosa", 3, 9.99, "extra crispy")

	items := c.Items()
	if len(items) != 1 {
		t.Fatalf("expected a single entry after duplicate add, got %d", len(items))
	}
	if items[0].Quantity != 3 {
		t.Errorf("quantity = %d, want 3", items[0].Quantity)
	}
	if items[0].Notes != "extra crispy" {
		t.Errorf("notes = %q, want %q", items[0].Notes, "extra crispy")
	}
}

func TestAdd_EmptyNotesKeepExisting(t *testing.T) {
	c := newCart()
	c.Add("Idli", 1, 0, "no sambar")
	c.Add("Idli", 2, 0, "")

	items := c.Items()
	if items[0].Notes != "no sambar" {
		t.Errorf("notes = %q; empty replacement notes must not clobber existing", items[0].Notes)
	}
}

func TestRemove_DropsAllMatchingEntries(t *testing.T) {
	c := newCart()
	c.Add("Masala Dosa", 1, 0, "")
	c.Add("Mango Lassi", 2, 0, "")
	c.Remove("Masala Dosa")

	items := c.Items()
	if len(items) != 1 || items[0].Name != "Mango Lassi" {
		t.Fatalf("unexpected cart after remove: %+v", items)
	}
}

func TestSubtotalAndItemCount(t *testing.T) {
	c := newCart()
	c.Add("Masala Dosa", 1, 0, "")
	c.Add("Mango Lassi", 1, 0, "")

	if got, want := c.Subtotal(), 11.49+6.49; math.Abs(got-want) > 1e-9 {
		t.Errorf("subtotal = %.4f, want %.4f", got, want)
	}
	if c.ItemCount() != 2 {
		t.Errorf("item count = %d, want 2", c.ItemCount())
	}
}

func TestClear(t *testing.T) {
	c := newCart()
	c.Add("Masala Dosa", 1, 0, "")
	c.Clear()
	if c.ItemCount() != 0 {
		t.Errorf("cart not empty after Clear")
	}
}

func TestItems_ReturnsCopy(t *testing.T) {
	c := newCart()
	c.Add("Masala Dosa", 1, 0, "")
	items := c.Items()
	items[0].Quantity = 99
	if c.Items()[0].Quantity != 1 {
		t.Error("mutating the Items copy leaked into the cart")
	}
}
