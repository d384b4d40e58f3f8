package portfolio

import "time"

// Action classifies what a trade instruction does to a holding.
type Action string

const (
	ActionClose  Action = "close"
	ActionAdjust Action = "adjust"
	ActionOpen   Action = "open"
)

// Side is the order direction.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// TradeInstruction is one reconciled trade. Ephemeral: produced by a
// reconcile pass and consumed by the dispatcher within the same cycle.
// Close instructions carry no side/quantity/type; the account determines
// the full liquidation itself.
type TradeInstruction struct {
	Symbol      string  `json:"symbol"`
	Action      Action  `json:"action"`
	Side        Side    `json:"side,omitempty"`
	Quantity    float64 `json:"quantity,omitempty"`
	OrderType   string  `json:"order_type,omitempty"`
	TimeInForce string  `json:"time_in_force,omitempty"`
}

// OrderResult is the provider's acknowledgment of one submitted order.
type OrderResult struct {
	OrderID     string    `json:"order_id"`
	Symbol      string    `json:"symbol"`
	Action      Action    `json:"action"`
	Side        Side      `json:"side,omitempty"`
	Quantity    float64   `json:"quantity,omitempty"`
	OrderType   string    `json:"order_type,omitempty"`
	Status      string    `json:"status"`
	SubmittedAt time.Time `json:"submitted_at"`
}
