package order

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ToolName is the function the language model calls once the caller has
// confirmed their order.
const ToolName = "submit_order"

// ToolDescription tells the model when to call the tool.
const ToolDescription = "Submit the caller's confirmed food order. Call this only after the caller has given their name, a 10 digit phone number and at least one menu item, and has confirmed the order."

// ToolParameters is the JSON schema of the submit_order arguments.
func ToolParameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"customer_name": map[string]any{
				"type":        "string",
				"description": "Caller's name as they said it",
			},
			"customer_phone": map[string]any{
				"type":        "string",
				"description": "Caller's 10 digit phone number, digits only",
			},
			"items": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"name":     map[string]any{"type": "string"},
						"quantity": map[string]any{"type": "integer", "minimum": 1},
					},
					"required": []string{"name", "quantity"},
				},
			},
		},
		"required": []string{"customer_name", "customer_phone", "items"},
	}
}

type toolArgs struct {
	CustomerName  string `json:"customer_name"`
	CustomerPhone string `json:"customer_phone"`
	Items         []Item `json:"items"`
}

// ParseToolArguments decodes the JSON arguments of a submit_order call.
func ParseToolArguments(raw string) (Details, error) {
	var a toolArgs
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		return Details{}, fmt.Errorf("order: decode %s arguments: %w", ToolName, err)
	}
	d := Details{
		CustomerName:  strings.TrimSpace(a.CustomerName),
		CustomerPhone: NormalizePhone(a.CustomerPhone),
	}
	for _, it := range a.Items {
		it.Name = strings.ToLower(strings.TrimSpace(it.Name))
		if it.Name == "" {
			continue
		}
		if it.Quantity <= 0 {
			it.Quantity = 1
		}
		d.Items = append(d.Items, it)
	}
	return d, nil
}
