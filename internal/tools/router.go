package tools

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/spicebay/voicegate/internal/cart"
	"github.com/spicebay/voicegate/internal/menu"
	"github.com/spicebay/voicegate/internal/observe"
	"github.com/spicebay/voicegate/internal/resilience"
	"github.com/spicebay/voicegate/internal/store"
)

// TaxRate is the sales tax applied to every order total.
const TaxRate = 0.0825

// OrderNumberPrefix heads every human-readable order number.
const OrderNumberPrefix = "SB-IRV-"

// Router dispatches tool calls for exactly one call session. It owns the
// session's cart and customer stash and is driven solely from that session's
// event loop; only the persistence job returned by [Router.StartOrder] runs
// off-loop, and it never touches the cart.
type Router struct {
	logger  *slog.Logger
	metrics *observe.Metrics
	prices  *menu.PriceMap
	cart    *cart.Cart
	gateway store.Gateway
	retry   resilience.Policy

	restaurantID string
	callID       string

	// stash from collectCustomerDetails, merged into completeOrder args.
	customerName  string
	customerPhone string
}

// Config holds the router dependencies.
type Config struct {
	Logger       *slog.Logger
	Metrics      *observe.Metrics
	Prices       *menu.PriceMap
	Gateway      store.Gateway
	RestaurantID string
	CallID       string

	// Retry overrides the default 3×1s persistence retry policy. Used in
	// tests to avoid real sleeps.
	Retry *resilience.Policy
}

// NewRouter creates a Router with a fresh cart.
func NewRouter(cfg Config) *Router {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m := cfg.Metrics
	if m == nil {
		m = observe.Default()
	}
	retry := resilience.Policy{
		Name:        "complete-order",
		MaxAttempts: 3,
		Backoff:     time.Second,
	}
	if cfg.Retry != nil {
		retry = *cfg.Retry
	}
	return &Router{
		logger:       logger,
		metrics:      m,
		prices:       cfg.Prices,
		cart:         cart.New(cfg.Prices, logger),
		gateway:      cfg.Gateway,
		retry:        retry,
		restaurantID: cfg.RestaurantID,
		callID:       cfg.CallID,
	}
}

// Cart exposes the session cart for logging and teardown.
func (r *Router) Cart() *cart.Cart { return r.cart }

// Dispatch executes one synchronous tool call and always produces a
// shape-compliant result; handler failures surface as the user-safe apology
// payload, never as an error. completeOrder must go through
// [Router.StartOrder] instead.
func (r *Router) Dispatch(ctx context.Context, call Call) Result {
	started := time.Now()
	res := Result{ID: call.ID, Name: call.Name}

	switch call.Name {
	case NameSearchMenu:
		res.Response = r.searchMenu(call.Args)
	case NameManageOrder:
		res.Response = r.manageOrder(call.Args)
	case NameCollectCustomerDetails:
		res.Response = r.collectCustomerDetails(call.Args)
	default:
		r.logger.Warn("unknown tool call", "tool", call.Name)
		res.Response = errorPayload()
	}

	status := "ok"
	if _, failed := res.Response["result"].(string); failed && res.Response["result"] == errorPayload()["result"] {
		status = "error"
	}
	r.metrics.ToolCalls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tool", call.Name),
		attribute.String("status", status),
	))
	r.metrics.ToolDuration.Record(ctx, time.Since(started).Seconds())
	return res
}

func (r *Router) searchMenu(args map[string]any) map[string]any {
	parsed, err := parseSearchMenu(args, r.logger)
	if err != nil {
		r.logger.Warn("searchMenu rejected", "err", err)
		return errorPayload()
	}

	match, ok := r.prices.Search(parsed.Query)
	if !ok {
		return map[string]any{"result": "Item not found on the menu."}
	}
	return map[string]any{
		"itemName": match.ItemName,
		"price":    match.Price,
	}
}

func (r *Router) manageOrder(args map[string]any) map[string]any {
	parsed, err := parseManageOrder(args, r.logger)
	if err != nil {
		r.logger.Warn("manageOrder rejected", "err", err)
		return errorPayload()
	}

	switch parsed.Action {
	case "add":
		r.cart.Add(parsed.ItemName, parsed.Quantity, parsed.Price, parsed.Notes)
	case "remove":
		r.cart.Remove(parsed.ItemName)
	}
	r.logger.Info("cart updated",
		"call_id", r.callID,
		"action", parsed.Action,
		"item", parsed.ItemName,
		"items", r.cart.ItemCount(),
		"subtotal", r.cart.Subtotal(),
	)
	return map[string]any{"result": "Cart updated successfully."}
}

func (r *Router) collectCustomerDetails(args map[string]any) map[string]any {
	parsed, err := parseCustomer(NameCollectCustomerDetails, args, r.logger)
	if err != nil {
		r.logger.Warn("collectCustomerDetails rejected", "err", err)
		return errorPayload()
	}
	r.customerName = parsed.CustomerName
	r.customerPhone = sanitizePhone(parsed.PhoneNumber)
	return map[string]any{"result": "Customer details saved."}
}

// sanitizePhone strips everything but digits and a leading plus.
func sanitizePhone(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= '0' && r <= '9' || (r == '+' && i == 0) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// round2 rounds to the cent, half away from zero.
func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
