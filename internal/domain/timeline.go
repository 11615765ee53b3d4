package domain

import "time"

// Типы событий жизненного цикла накладной.
const (
	EventInvoiceCreated   = "InvoiceCreated"
	EventInvoiceCancelled = "InvoiceCancelled"
	EventInvoicePaid      = "InvoicePaid"
	EventInvoiceRefunded  = "InvoiceRefunded"
	EventInvoiceExpired   = "InvoiceExpired"
)

// TimelineEvent описывает событие в жизненном цикле накладной.
type TimelineEvent struct {
	InvoiceID int64
	Type      string
	Reason    string
	Occurred  time.Time
}
