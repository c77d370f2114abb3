package domain

import "time"

// UserContext carries the observer's identity; an empty token means an
// unauthenticated session that cannot reach the backend.
type UserContext struct {
	UserID string
	Token  string
}

func (u UserContext) Authenticated() bool { return u.Token != "" }

// EventSource identifies which of the three inputs produced a status event.
type EventSource string

const (
	SourceSnapshot EventSource = "snapshot"
	SourcePush     EventSource = "push"
	SourceCache    EventSource = "cache"
)

// StatusEvent is one raw status observation. Ephemeral: consumed by the
// session merge and never persisted.
type StatusEvent struct {
	OrderID    string
	RawCode    string
	Source     EventSource
	ObservedAt time.Time
}

type OrderItem struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
	Image     string  `json:"image,omitempty"`
}

// OrderSnapshot is the authoritative one-shot state of an order as fetched
// from the backend (or replayed from the local cache slot).
type OrderSnapshot struct {
	OrderID         string      `json:"order_id"`
	RawStatus       string      `json:"status"`
	Items           []OrderItem `json:"items"`
	TotalAmount     float64     `json:"total_amount"`
	DeliveryAddress string      `json:"delivery_address"`
	PaymentMethod   string      `json:"payment_method"`
	PaymentStatus   string      `json:"payment_status"`
	FetchedAt       time.Time   `json:"fetched_at"`
}

// OrderView is the merged, non-regressing view of one order. Owned by exactly
// one tracking session; callers get copies.
type OrderView struct {
	OrderID         string          `json:"order_id"`
	Status          CanonicalStatus `json:"-"`
	StatusCode      string          `json:"status"`
	Step            int             `json:"step"`
	Items           []OrderItem     `json:"items"`
	TotalAmount     float64         `json:"total_amount"`
	DeliveryAddress string          `json:"delivery_address"`
	PaymentMethod   string          `json:"payment_method"`
	PaymentStatus   string          `json:"payment_status"`
	LastUpdated     time.Time       `json:"last_updated"`
	ArrivingSoon    bool            `json:"arriving_soon"`
}

type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Waypoint is one recorded drone position. Immutable once captured.
type Waypoint struct {
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	CapturedAt time.Time `json:"captured_at"`
}

// DeliveryStatus is the drone-delivery leg state machine.
type DeliveryStatus string

const (
	DeliveryAssigned  DeliveryStatus = "ASSIGNED"
	DeliveryInTransit DeliveryStatus = "IN_TRANSIT"
	DeliveryDelivered DeliveryStatus = "DELIVERED"
)

// ParseDeliveryStatus maps raw telemetry status codes; unknown codes resolve
// to ASSIGNED, mirroring how order codes resolve to the earliest state.
func ParseDeliveryStatus(raw string) DeliveryStatus {
	switch DeliveryStatus(raw) {
	case DeliveryInTransit:
		return DeliveryInTransit
	case DeliveryDelivered:
		return DeliveryDelivered
	default:
		return DeliveryAssigned
	}
}

// DeliveryView is the merged telemetry view for one active delivery. Owned by
// exactly one telemetry tracker; callers get copies.
type DeliveryView struct {
	DeliveryID      string         `json:"delivery_id"`
	DroneID         string         `json:"drone_id"`
	Status          DeliveryStatus `json:"status"`
	CurrentPosition Coordinate     `json:"current_position"`
	BatteryPct      float64        `json:"battery_pct"`
	EtaSeconds      int            `json:"eta_seconds"`
	ProgressPct     float64        `json:"progress_pct"`
	RecentWaypoints []Waypoint     `json:"recent_waypoints"`
	LastUpdated     time.Time      `json:"last_updated"`
}

// RouteGeometry is a drawable path between two rounded endpoints, shared
// across sessions observing the same pair.
type RouteGeometry struct {
	OriginKey      string       `json:"origin_key"`
	DestinationKey string       `json:"destination_key"`
	Points         []Coordinate `json:"points"`
}
