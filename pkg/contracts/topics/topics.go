package topics

const (
	// Tickets
	TicketPlaced   = "ticket_placed"
	TicketResolved = "ticket_resolved"

	// DLQs
	TicketPlacedDLQ   = "ticket_placed_dlq"
	TicketResolvedDLQ = "ticket_resolved_dlq"
)
