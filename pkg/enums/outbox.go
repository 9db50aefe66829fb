package enums

// OutboxEventType enumerates the domain events this core emits or consumes.
type OutboxEventType string

const (
	EventOrderCreated           OutboxEventType = "order.created"
	EventOrderExpired           OutboxEventType = "order.expired"
	EventOrderPaid              OutboxEventType = "order.paid"
	EventOrderCompensated       OutboxEventType = "order.compensated"
	EventOrderIntegrationFailed OutboxEventType = "order.integration_failed"
)

func (t OutboxEventType) IsValid() bool {
	switch t {
	case EventOrderCreated, EventOrderExpired, EventOrderPaid,
		EventOrderCompensated, EventOrderIntegrationFailed:
		return true
	}
	return false
}

// OutboxAggregateType identifies the aggregate an event belongs to.
type OutboxAggregateType string

const (
	AggregateOrder       OutboxAggregateType = "order"
	AggregateReservation OutboxAggregateType = "reservation"
)

// OutboxDLQReason classifies why an event was dead-lettered.
type OutboxDLQReason string

const (
	OutboxDLQReasonNonRetryable OutboxDLQReason = "non_retryable"
	OutboxDLQReasonMaxAttempts  OutboxDLQReason = "max_attempts"
	OutboxDLQReasonCompensation OutboxDLQReason = "compensation_failed"
)
