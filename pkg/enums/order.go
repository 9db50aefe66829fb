package enums

// OrderStatus is the order lifecycle state. Paid and Cancelled are terminal.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusCancelled OrderStatus = "cancelled"
)

func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusPending, OrderStatusPaid, OrderStatusCancelled:
		return true
	}
	return false
}

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusPaid || s == OrderStatusCancelled
}

// OrderItemStatus tracks the per-line resolution within an order.
type OrderItemStatus string

const (
	OrderItemStatusPending   OrderItemStatus = "pending"
	OrderItemStatusConfirmed OrderItemStatus = "confirmed"
	OrderItemStatusCancelled OrderItemStatus = "cancelled"
)

// StockChangeType distinguishes manual inventory adjustments in the audit log.
type StockChangeType string

const (
	StockChangeIncrease StockChangeType = "increase"
	StockChangeDecrease StockChangeType = "decrease"
)

func (t StockChangeType) IsValid() bool {
	return t == StockChangeIncrease || t == StockChangeDecrease
}
