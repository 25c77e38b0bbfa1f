package httpx

import "time"

type TokenRequest struct {
	Token string `json:"token"`
}

type CompleteResponse struct {
	OrderID   string    `json:"order_id"`
	Status    string    `json:"status"`
	Actor     string    `json:"actor"`
	Note      string    `json:"note"`
	Timestamp time.Time `json:"timestamp"`
}

type ActivityEntryResponse struct {
	ID         string    `json:"id"`
	OrderID    string    `json:"order_id"`
	ItemID     string    `json:"item_id,omitempty"`
	Quantity   int       `json:"quantity,omitempty"`
	Event      string    `json:"event"`
	Actor      string    `json:"actor"`
	TraceID    string    `json:"trace_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
