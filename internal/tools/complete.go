package tools

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/spicebay/voicegate/internal/cart"
	"github.com/spicebay/voicegate/internal/store"
)

// OrderJob runs the completeOrder persistence pipeline off the session loop.
// It works on a cart snapshot only; the live cart stays untouched until the
// session commits the outcome back on-loop.
type OrderJob func(ctx context.Context) OrderOutcome

// OrderOutcome is the result of one completeOrder attempt. Result is always a
// shape-compliant tool response; Committed reports whether the order reached
// the database and the cart should be cleared.
type OrderOutcome struct {
	Result    Result
	Committed bool
	OrderID   string
	Total     float64
}

// StartOrder validates a completeOrder call against the current cart and
// customer details. When validation fails it returns an immediate result and
// a nil job. Otherwise it snapshots the cart and returns a job for the caller
// to run on a separate goroutine; the session must pass the job's outcome to
// [Router.CommitOrder] from its own loop.
func (r *Router) StartOrder(ctx context.Context, call Call) (*Result, OrderJob) {
	parsed, err := parseCompleteOrder(call.Args, r.logger)
	if err != nil {
		r.logger.Warn("completeOrder rejected", "err", err)
		res := Result{ID: call.ID, Name: call.Name, Response: errorPayload()}
		return &res, nil
	}

	if r.cart.ItemCount() == 0 {
		res := Result{ID: call.ID, Name: call.Name, Response: map[string]any{
			"result":  "Error: cart is empty",
			"orderId": nil,
		}}
		return &res, nil
	}

	// The completeOrder arguments carry any correction the caller made at
	// confirmation time, so they win over the stash.
	name := parsed.CustomerName
	if name == "" {
		name = r.customerName
	}
	phone := sanitizePhone(parsed.PhoneNumber)
	if phone == "" {
		phone = r.customerPhone
	}
	if name == "" || phone == "" {
		r.logger.Warn("completeOrder rejected", "reason", "no customer details collected")
		res := Result{ID: call.ID, Name: call.Name, Response: errorPayload()}
		return &res, nil
	}

	items := r.cart.Items()
	return nil, func(ctx context.Context) OrderOutcome {
		return r.persistOrder(ctx, call, name, phone, items)
	}
}

// CommitOrder applies a job outcome back on the session loop, clearing the
// cart only when the order actually landed.
func (r *Router) CommitOrder(ctx context.Context, out OrderOutcome) {
	if !out.Committed {
		return
	}
	r.cart.Clear()
	r.metrics.OrdersCompleted.Add(ctx, 1)
	r.logger.Info("order committed",
		"call_id", r.callID,
		"order_id", out.OrderID,
		"total", out.Total,
	)
}

// persistOrder runs the pipeline customer → order → items under the retry
// policy. Every attempt reruns the whole pipeline; the upsert and the
// insert-then-number steps are safe to repeat because a failed attempt never
// reports the order to the caller.
func (r *Router) persistOrder(ctx context.Context, call Call, name, phone string, items []cart.Item) OrderOutcome {
	var (
		orderID string
		total   float64
	)

	err := r.retry.Do(ctx, func(ctx context.Context) error {
		customerID, err := r.gateway.UpsertCustomer(ctx, phone, name)
		if err != nil {
			return fmt.Errorf("upsert customer: %w", err)
		}

		var subtotal float64
		for _, it := range items {
			subtotal += float64(it.Quantity) * it.UnitPrice
		}
		total = round2(subtotal * (1 + TaxRate))

		orderID, err = r.gateway.InsertOrder(ctx, store.Order{
			RestaurantID: r.restaurantID,
			CustomerID:   customerID,
			CallID:       r.callID,
			Status:       "confirmed",
			TotalAmount:  total,
		})
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		rows := make([]store.OrderItem, len(items))
		for i, it := range items {
			rows[i] = store.OrderItem{
				ItemName:  it.Name,
				Quantity:  it.Quantity,
				UnitPrice: it.UnitPrice,
			}
			if it.Notes != "" {
				rows[i].Customizations = map[string]any{"notes": it.Notes}
			}
		}
		if err := r.gateway.InsertOrderItems(ctx, orderID, rows); err != nil {
			return fmt.Errorf("insert order items: %w", err)
		}
		return nil
	})
	if err != nil {
		r.logger.Error("order persistence failed",
			"call_id", r.callID,
			"err", err,
		)
		r.metrics.PersistenceErrors.Add(ctx, 1, metric.WithAttributes(
			attribute.String("op", "complete_order"),
		))
		return OrderOutcome{Result: Result{ID: call.ID, Name: call.Name, Response: map[string]any{
			"result":  "I'm sorry, I couldn't save your order just now. Please try again in a moment.",
			"orderId": nil,
		}}}
	}

	number := OrderNumber(orderID)
	return OrderOutcome{
		Result: Result{ID: call.ID, Name: call.Name, Response: map[string]any{
			"result":      fmt.Sprintf("Order confirmed. Your order number is %s and the total is $%.2f.", number, total),
			"orderId":     orderID,
			"orderNumber": number,
			"total":       total,
		}},
		Committed: true,
		OrderID:   orderID,
		Total:     total,
	}
}

// OrderNumber derives the human-readable order number from an order row id:
// the prefix plus the first six hex digits of the UUID, uppercased.
func OrderNumber(orderID string) string {
	hex := strings.ReplaceAll(orderID, "-", "")
	if len(hex) > 6 {
		hex = hex[:6]
	}
	return OrderNumberPrefix + strings.ToUpper(hex)
}
