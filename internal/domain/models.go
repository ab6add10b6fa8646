package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// OptionSelection is one chosen modifier on a cart line (e.g. size=large)
type OptionSelection struct {
	Group  string `json:"group"`
	Choice string `json:"choice"`
}

// CartLine is an item in the diner's cart before submission
type CartLine struct {
	ItemID     string            `json:"item_id" binding:"required"`
	CategoryID string            `json:"category_id"`
	Name       string            `json:"name" binding:"required"`
	UnitPrice  float64           `json:"unit_price" binding:"min=0"`
	Quantity   int               `json:"quantity" binding:"required,min=1"`
	Options    []OptionSelection `json:"options,omitempty"`
}

// PromotionRule is one declarative condition of a promotion.
// Value is the cart_total operand; Values is the id set for product_id / category_id.
type PromotionRule struct {
	Attribute RuleAttribute `json:"attribute"`
	Operator  RuleOperator  `json:"operator"`
	Value     float64       `json:"value,omitempty"`
	Values    []string      `json:"values,omitempty"`
}

// Promotion represents a discount code and the rules that gate it
type Promotion struct {
	ID         uuid.UUID
	Code       string
	Kind       DiscountKind
	Value      float64
	IsActive   bool
	UsageLimit *int
	UsageCount int
	Rules      []PromotionRule // JSONB
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Order represents a table order header
type Order struct {
	ID                  uuid.UUID
	TableRef            string
	Status              OrderStatus
	TotalAmount         float64
	DiscountAmount      float64
	AppliedPromotionID  *uuid.UUID
	SpecialInstructions *string
	CustomerRef         *string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// OrderLine represents an item in an order. Price and options are a snapshot
// taken at submission time and are never re-read from the menu.
type OrderLine struct {
	ID        uuid.UUID
	OrderID   uuid.UUID
	ItemID    string
	Name      string
	Quantity  int
	UnitPrice float64
	Options   []OptionSelection // JSONB
	CreatedAt time.Time
}

// VerificationResult is the common shape every slip verifier is translated into
type VerificationResult struct {
	IsValid       bool      `json:"is_valid"`
	Amount        float64   `json:"amount"`
	TransferredAt time.Time `json:"transferred_at"`
	SenderName    string    `json:"sender_name"`
	ProviderName  string    `json:"provider_name"`
	Reference     string    `json:"reference,omitempty"`
}

// QueuedSubmission is an order request buffered while the database was unreachable
type QueuedSubmission struct {
	ID        uuid.UUID       `json:"id"`
	CreatedAt time.Time       `json:"created_at"`
	Payload   json.RawMessage `json:"payload"`
}

// IdempotencyKey stores idempotency information
type IdempotencyKey struct {
	Key         string
	OrderID     uuid.UUID
	RequestHash string
	CreatedAt   time.Time
}

// OrderEvent represents an audit event for an order
type OrderEvent struct {
	ID        uuid.UUID
	OrderID   uuid.UUID
	EventType string
	EventData map[string]interface{} // JSONB
	CreatedAt time.Time
}
