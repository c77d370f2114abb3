package domain

import "strings"

// CanonicalStatus is the single ordered progress state every raw provider code
// is normalized to. The integer value of a non-terminal status is its step
// index as shown to the UI.
type CanonicalStatus int

const (
	StatusCreated CanonicalStatus = iota
	StatusConfirmed
	StatusPreparing
	StatusReadyForPickup
	StatusOutForDelivery
	StatusDelivered
	StatusCancelled // absorbing, reachable from any non-terminal state
)

func (s CanonicalStatus) String() string {
	switch s {
	case StatusCreated:
		return "CREATED"
	case StatusConfirmed:
		return "CONFIRMED"
	case StatusPreparing:
		return "PREPARING"
	case StatusReadyForPickup:
		return "READY_FOR_PICKUP"
	case StatusOutForDelivery:
		return "OUT_FOR_DELIVERY"
	case StatusDelivered:
		return "DELIVERED"
	case StatusCancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

// Step returns the 0-based progress index. CANCELLED sits outside the ordered
// progression and reports -1.
func (s CanonicalStatus) Step() int {
	if s == StatusCancelled {
		return -1
	}
	return int(s)
}

// Terminal reports whether no further progress events can apply.
func (s CanonicalStatus) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// statusTable is the single source of truth for the provider vocabulary.
// Adding a new raw code means adding a row here, never touching merge logic.
var statusTable = map[string]CanonicalStatus{
	"CREATED":            StatusCreated,
	"PENDING_PAYMENT":    StatusCreated,
	"PAID":               StatusCreated,
	"CONFIRMED":          StatusConfirmed,
	"PREPARING":          StatusPreparing,
	"COOKING":            StatusPreparing,
	"READY":              StatusReadyForPickup,
	"READY_FOR_PICKUP":   StatusReadyForPickup,
	"READY_FOR_DELIVERY": StatusReadyForPickup,
	"ASSIGNED":           StatusReadyForPickup,
	"OUT_FOR_DELIVERY":   StatusOutForDelivery,
	"DELIVERING":         StatusOutForDelivery,
	"IN_TRANSIT":         StatusOutForDelivery,
	"DELIVERED":          StatusDelivered,
	"COMPLETED":          StatusDelivered,
	"CANCELLED":          StatusCancelled,
	"CANCELED":           StatusCancelled,
	"REJECTED":           StatusCancelled,
	"FAILED":             StatusCancelled,
}

// Normalize maps a raw provider status code to its canonical status. Matching
// is case-insensitive; unknown codes resolve to the earliest non-terminal
// state because the provider vocabulary keeps growing synonyms. Safe for
// concurrent use: the table is never written after init.
func Normalize(raw string) CanonicalStatus {
	if s, ok := statusTable[strings.ToUpper(strings.TrimSpace(raw))]; ok {
		return s
	}
	return StatusCreated
}
