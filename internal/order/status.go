package order

import (
	"strings"

	"github.com/noah-isme/toko-commerce/internal/db"
)

var transitions = map[db.OrderStatus][]db.OrderStatus{
	db.OrderStatusPending:    {db.OrderStatusConfirmed, db.OrderStatusCancelled},
	db.OrderStatusConfirmed:  {db.OrderStatusProcessing, db.OrderStatusCancelled},
	db.OrderStatusProcessing: {db.OrderStatusShipped, db.OrderStatusCancelled},
	db.OrderStatusShipped:    {db.OrderStatusDelivered, db.OrderStatusCancelled},
	db.OrderStatusDelivered:  {db.OrderStatusRefunded},
}

// CanTransition reports whether the status table allows from -> to.
// cancelled and refunded are terminal.
func CanTransition(from, to db.OrderStatus) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// ParseStatus maps a client supplied status onto a known OrderStatus.
func ParseStatus(raw string) (db.OrderStatus, bool) {
	status := db.OrderStatus(strings.ToLower(strings.TrimSpace(raw)))
	switch status {
	case db.OrderStatusPending, db.OrderStatusConfirmed, db.OrderStatusProcessing,
		db.OrderStatusShipped, db.OrderStatusDelivered, db.OrderStatusCancelled, db.OrderStatusRefunded:
		return status, true
	}
	return "", false
}

// restocks reports whether entering status returns the ordered goods to stock.
func restocks(status db.OrderStatus) bool {
	return status == db.OrderStatusCancelled || status == db.OrderStatusRefunded
}
