// Package tools dispatches model-issued tool calls against the session's
// cart and the persistence gateway. The tool surface is a fixed closed set;
// argument validation happens once at this boundary so the handlers only see
// well-typed values, and no handler failure ever escapes into the session
// loop — invalid input degrades to a short user-safe apology payload.
package tools

// Tool names recognised by the router.
const (
	NameSearchMenu             = "searchMenu"
	NameManageOrder            = "manageOrder"
	NameCollectCustomerDetails = "collectCustomerDetails"
	NameCompleteOrder          = "completeOrder"
)

// Call is one model-issued tool invocation.
type Call struct {
	ID   string
	Name string
	Args map[string]any
}

// Result is the structured response returned to the model for one call.
type Result struct {
	ID       string
	Name     string
	Response map[string]any
}

// Declaration describes one tool to the model service at session setup.
type Declaration struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// errorPayload is the user-safe response for any validation or handler
// failure; the agent reads it out verbatim.
func errorPayload() map[string]any {
	return map[string]any{"result": "Sorry, there was a brief error. Please try again."}
}

// Declarations returns the full tool surface offered to the model.
func Declarations() []Declaration {
	return []Declaration{
		{
			Name:        NameSearchMenu,
			Description: "Look up a menu item by name and return its exact name and price.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{
						"type":        "string",
						"description": "Menu item name or part of it.",
					},
				},
				"required": []string{"query"},
			},
		},
		{
			Name:        NameManageOrder,
			Description: "Add an item to the order or remove it. Adding an item that is already in the order replaces its quantity.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"action": map[string]any{
						"type": "string",
						"enum": []string{"add", "remove"},
					},
					"itemName": map[string]any{
						"type":        "string",
						"description": "Exact menu item name.",
					},
					"quantity": map[string]any{
						"type":    "integer",
						"minimum": 1,
					},
					"price": map[string]any{
						"type":    "number",
						"minimum": 0,
					},
					"notes": map[string]any{
						"type":        "string",
						"description": "Customizations, e.g. 'extra crispy'.",
					},
				},
				"required": []string{"action", "itemName", "quantity", "price"},
			},
		},
		{
			Name:        NameCollectCustomerDetails,
			Description: "Save the customer's name and callback phone number before completing the order.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"customerName": map[string]any{"type": "string"},
					"phoneNumber":  map[string]any{"type": "string"},
				},
				"required": []string{"customerName", "phoneNumber"},
			},
		},
		{
			Name:        NameCompleteOrder,
			Description: "Finalize and save the order. Call only after confirming the full order, name and phone number with the customer.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"customerName": map[string]any{"type": "string"},
					"phoneNumber":  map[string]any{"type": "string"},
				},
				"required": []string{"customerName", "phoneNumber"},
			},
		},
	}
}
