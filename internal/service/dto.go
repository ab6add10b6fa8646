package service

import (
	"github.com/google/uuid"

	"github.com/jafarshop/tablepos/internal/domain"
)

// CreateOrderRequest is a diner's cart submission. It is also the opaque payload
// stored in the offline queue, so it must stay JSON round-trippable.
type CreateOrderRequest struct {
	TableRef            string            `json:"table_ref" binding:"required"`
	Items               []domain.CartLine `json:"items" binding:"required,min=1,dive"`
	PromotionCode       *string           `json:"promotion_code,omitempty"`
	SpecialInstructions *string           `json:"special_instructions,omitempty"`
	CustomerRef         *string           `json:"customer_ref,omitempty"`
}

// CreateOrderResult is returned after the header and all lines are persisted
type CreateOrderResult struct {
	OrderID        uuid.UUID  `json:"order_id"`
	Subtotal       float64    `json:"subtotal"`
	DiscountAmount float64    `json:"discount_amount"`
	TotalAmount    float64    `json:"total_amount"`
	PromotionID    *uuid.UUID `json:"promotion_id,omitempty"`
}

// OrderDetails is an order header with its lines
type OrderDetails struct {
	Order *domain.Order
	Lines []*domain.OrderLine
}

// OrderPlacedEvent is what notification sinks receive for a new order
type OrderPlacedEvent struct {
	OrderID             uuid.UUID         `json:"order_id"`
	TableRef            string            `json:"table_ref"`
	TotalAmount         float64           `json:"total_amount"`
	DiscountAmount      float64           `json:"discount_amount"`
	SpecialInstructions *string           `json:"special_instructions,omitempty"`
	Lines               []OrderPlacedLine `json:"lines"`
	PlacedAt            string            `json:"placed_at"`
}

type OrderPlacedLine struct {
	ItemID    string                   `json:"item_id"`
	Name      string                   `json:"name"`
	Quantity  int                      `json:"quantity"`
	UnitPrice float64                  `json:"unit_price"`
	Options   []domain.OptionSelection `json:"options,omitempty"`
}
