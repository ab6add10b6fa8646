package domain

// OrderStatus represents the lifecycle status of a table order
type OrderStatus string

const (
	// PENDING - Order captured, awaiting payment
	OrderStatusPending OrderStatus = "pending"
	// PAID - Transfer slip verified
	OrderStatusPaid OrderStatus = "paid"
	// SERVED - Order delivered to the table
	OrderStatusServed OrderStatus = "served"
	// CANCELLED - Order cancelled before payment
	OrderStatusCancelled OrderStatus = "cancelled"
	// REFUNDED - Payment returned
	OrderStatusRefunded OrderStatus = "refunded"
)

// IsValid checks if the order status is valid
func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusPending,
		OrderStatusPaid,
		OrderStatusServed,
		OrderStatusCancelled,
		OrderStatusRefunded:
		return true
	default:
		return false
	}
}

// CanTransitionTo checks if a status transition is valid
func (s OrderStatus) CanTransitionTo(newStatus OrderStatus) bool {
	switch s {
	case OrderStatusPending:
		return newStatus == OrderStatusPaid ||
			newStatus == OrderStatusCancelled
	case OrderStatusPaid:
		return newStatus == OrderStatusServed ||
			newStatus == OrderStatusRefunded
	case OrderStatusServed:
		return newStatus == OrderStatusRefunded
	case OrderStatusCancelled, OrderStatusRefunded:
		return false // Terminal states
	default:
		return false
	}
}

// DiscountKind is how a promotion's value is applied
type DiscountKind string

const (
	DiscountKindPercentage  DiscountKind = "percentage"
	DiscountKindFixedAmount DiscountKind = "fixed_amount"
)

// IsValid checks if the discount kind is known
func (k DiscountKind) IsValid() bool {
	return k == DiscountKindPercentage || k == DiscountKindFixedAmount
}

// RuleAttribute is the cart property a promotion rule inspects
type RuleAttribute string

const (
	RuleAttributeCartTotal  RuleAttribute = "cart_total"
	RuleAttributeProductID  RuleAttribute = "product_id"
	RuleAttributeCategoryID RuleAttribute = "category_id"
)

// RuleOperator compares a rule attribute against its operand(s)
type RuleOperator string

const (
	RuleOperatorEq  RuleOperator = "eq"
	RuleOperatorGt  RuleOperator = "gt"
	RuleOperatorGte RuleOperator = "gte"
	RuleOperatorLt  RuleOperator = "lt"
	RuleOperatorLte RuleOperator = "lte"
	RuleOperatorIn  RuleOperator = "in"
)

// Order event types written to the audit log
const (
	EventOrderCreated    = "order_created"
	EventPaymentVerified = "payment_verified"
	EventStatusChange    = "status_change"
)
