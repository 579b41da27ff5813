// Package order turns a phone conversation into a structured restaurant
// order and delivers it to the order-intake backends.
package order

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Extraction sources recorded on submitted orders.
const (
	SourceTool  = "tool"
	SourceRegex = "regex"
)

// Item is one menu line of an order.
type Item struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

func (i Item) String() string {
	q := i.Quantity
	if q <= 0 {
		q = 1
	}
	return fmt.Sprintf("%d %s", q, i.Name)
}

// Details are the fields gathered from the caller so far.
type Details struct {
	CustomerName  string
	CustomerPhone string
	Items         []Item
}

// Complete reports whether name, phone and at least one item are present.
func (d Details) Complete() bool {
	return d.CustomerName != "" && d.CustomerPhone != "" && len(d.Items) > 0
}

// Merge fills fields missing from d with values from other.
func (d Details) Merge(other Details) Details {
	if d.CustomerName == "" {
		d.CustomerName = other.CustomerName
	}
	if d.CustomerPhone == "" {
		d.CustomerPhone = other.CustomerPhone
	}
	if len(d.Items) == 0 {
		d.Items = other.Items
	}
	return d
}

// Summary renders the items as a short spoken-style list.
func (d Details) Summary() string {
	parts := make([]string, 0, len(d.Items))
	for _, it := range d.Items {
		parts = append(parts, it.String())
	}
	return strings.Join(parts, ", ")
}

// Message is one conversation turn carried on the order payload.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Order is the JSON payload delivered to order intake.
type Order struct {
	OrderID             string    `json:"order_id"`
	CustomerName        string    `json:"customer_name"`
	CustomerPhone       string    `json:"customer_phone"`
	Items               []Item    `json:"items"`
	OrderSummary        string    `json:"order_summary"`
	Timestamp           time.Time `json:"timestamp"`
	Source              string    `json:"source"`
	SessionID           string    `json:"session_id"`
	CallSID             string    `json:"call_sid,omitempty"`
	Extraction          string    `json:"extraction"`
	ConversationHistory []Message `json:"conversation_history"`
}

// New builds the intake payload for a completed set of details.
func New(d Details, sessionID, callSID, extraction string, history []Message, now time.Time) Order {
	return Order{
		OrderID:             uuid.NewString(),
		CustomerName:        d.CustomerName,
		CustomerPhone:       d.CustomerPhone,
		Items:               d.Items,
		OrderSummary:        "Items: " + d.Summary(),
		Timestamp:           now.UTC(),
		Source:              "voice_call",
		SessionID:           sessionID,
		CallSID:             callSID,
		Extraction:          extraction,
		ConversationHistory: history,
	}
}

// Submitter delivers an order to a backend.
type Submitter interface {
	Submit(ctx context.Context, o Order) error
}
