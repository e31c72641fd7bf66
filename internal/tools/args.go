package tools

import (
	"fmt"
	"log/slog"
	"math"
	"strings"
)

// Typed argument records produced by boundary validation. Handlers only see
// these, never the raw map.

type searchMenuArgs struct {
	Query string
}

type manageOrderArgs struct {
	Action   string // "add" or "remove"
	ItemName string
	Quantity int
	Price    float64
	Notes    string
}

type customerArgs struct {
	CustomerName string
	PhoneNumber  string
}

// argReader pulls declared fields out of a raw args map, accumulating the
// first violation. Unknown fields are tolerated but logged.
type argReader struct {
	tool string
	args map[string]any
	seen map[string]bool
	err  error
}

func newArgReader(tool string, args map[string]any) *argReader {
	return &argReader{tool: tool, args: args, seen: make(map[string]bool)}
}

func (r *argReader) fail(field, want string) {
	if r.err == nil {
		r.err = fmt.Errorf("%s: field %q: want %s, got %T", r.tool, field, want, r.args[field])
	}
}

func (r *argReader) requiredString(field string) string {
	r.seen[field] = true
	v, ok := r.args[field]
	if !ok {
		r.fail(field, "required string")
		return ""
	}
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		r.fail(field, "non-empty string")
		return ""
	}
	return s
}

func (r *argReader) optionalString(field string) string {
	r.seen[field] = true
	v, ok := r.args[field]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		r.fail(field, "string")
		return ""
	}
	return s
}

// requiredInt accepts JSON numbers with an integral value; decoded JSON
// carries every number as float64.
func (r *argReader) requiredInt(field string, min int) int {
	r.seen[field] = true
	v, ok := r.args[field]
	if !ok {
		r.fail(field, "required integer")
		return 0
	}
	f, ok := v.(float64)
	if !ok || f != math.Trunc(f) {
		r.fail(field, "integer")
		return 0
	}
	n := int(f)
	if n < min {
		r.fail(field, fmt.Sprintf("integer ≥ %d", min))
		return 0
	}
	return n
}

func (r *argReader) requiredNumber(field string, min float64) float64 {
	r.seen[field] = true
	v, ok := r.args[field]
	if !ok {
		r.fail(field, "required number")
		return 0
	}
	f, ok := v.(float64)
	if !ok {
		r.fail(field, "number")
		return 0
	}
	if f < min {
		r.fail(field, fmt.Sprintf("number ≥ %g", min))
		return 0
	}
	return f
}

// finish reports the accumulated violation, logging any fields the model
// sent beyond the declared schema.
func (r *argReader) finish(logger *slog.Logger) error {
	for field := range r.args {
		if !r.seen[field] {
			logger.Debug("tool call carried unknown field",
				"tool", r.tool,
				"field", field,
			)
		}
	}
	return r.err
}

func parseSearchMenu(args map[string]any, logger *slog.Logger) (searchMenuArgs, error) {
	r := newArgReader(NameSearchMenu, args)
	out := searchMenuArgs{Query: r.requiredString("query")}
	return out, r.finish(logger)
}

func parseManageOrder(args map[string]any, logger *slog.Logger) (manageOrderArgs, error) {
	r := newArgReader(NameManageOrder, args)
	out := manageOrderArgs{
		Action:   r.requiredString("action"),
		ItemName: r.requiredString("itemName"),
	}
	switch out.Action {
	case "add":
		out.Quantity = r.requiredInt("quantity", 1)
		out.Price = r.requiredNumber("price", 0)
		out.Notes = r.optionalString("notes")
	case "remove":
		// quantity/price are declared required by the schema but removal
		// only needs the name; tolerate their absence.
	default:
		if r.err == nil && out.Action != "" {
			r.err = fmt.Errorf("%s: field %q: want add or remove, got %q", NameManageOrder, "action", out.Action)
		}
	}
	return out, r.finish(logger)
}

func parseCustomer(tool string, args map[string]any, logger *slog.Logger) (customerArgs, error) {
	r := newArgReader(tool, args)
	out := customerArgs{
		CustomerName: r.requiredString("customerName"),
		PhoneNumber:  r.requiredString("phoneNumber"),
	}
	return out, r.finish(logger)
}

// parseCompleteOrder tolerates absent customer fields; the router falls back
// to the collectCustomerDetails stash for whichever is missing.
func parseCompleteOrder(args map[string]any, logger *slog.Logger) (customerArgs, error) {
	r := newArgReader(NameCompleteOrder, args)
	out := customerArgs{
		CustomerName: r.optionalString("customerName"),
		PhoneNumber:  r.optionalString("phoneNumber"),
	}
	return out, r.finish(logger)
}
