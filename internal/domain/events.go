package domain

import (
	"encoding/json"
	"time"
)

// Push message types carried on the broker, matching the backend's WebSocket
// vocabulary.
const (
	TypeOrderStatusChanged = "ORDER_STATUS_CHANGED"
	TypeDeliveryArriving   = "DELIVERY_ARRIVING"
	TypeDeliveryProgress   = "DELIVERY_PROGRESS_UPDATE"
	TypeDroneGPS           = "DRONE_GPS_UPDATE"
)

// Envelope is the wire frame for every push message.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// StatusChangedPayload carries the raw status code for ORDER_STATUS_CHANGED.
// The payload is either a bare JSON string or this object form.
type StatusChangedPayload struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

// ArrivingPayload signals the final-leg flag. Cleared=true retracts an
// earlier arriving notification without changing the order status.
type ArrivingPayload struct {
	OrderID string `json:"order_id"`
	Cleared bool   `json:"cleared,omitempty"`
}

// TelemetryUpdate is one drone telemetry observation, from poll or push. A nil
// ProgressPct means the source did not report progress; the tracker then
// derives it from the route.
type TelemetryUpdate struct {
	DeliveryID      string     `json:"delivery_id"`
	OrderID         string     `json:"order_id,omitempty"`
	DroneID         string     `json:"drone_id"`
	RawStatus       string     `json:"status"`
	Position        Coordinate `json:"position"`
	BatteryPct      float64    `json:"battery_pct"`
	EtaSeconds      int        `json:"eta_seconds"`
	ProgressPct     *float64   `json:"progress_pct,omitempty"`
	RouteKey        string     `json:"route_key,omitempty"`
	Destination     Coordinate `json:"destination"`
	ObservedAt      time.Time  `json:"observed_at"`
	WaypointHistory []Waypoint `json:"waypoints,omitempty"`
}
