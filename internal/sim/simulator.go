// Package sim drives synthetic drone flights over the broker so the tracking
// plane can be exercised without real hardware. Each flight advances along a
// resolved route and publishes the same frames a production drone gateway
// would.
package sim

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"delivery-tracking/internal/common/logger"
	"delivery-tracking/internal/common/mq"
	"delivery-tracking/internal/domain"
	"delivery-tracking/internal/routing"
)

// arrivingThresholdPct is where the final-leg notification fires.
const arrivingThresholdPct = 85.0

// Publisher is the broker surface the simulator needs.
type Publisher interface {
	Publish(ctx context.Context, exchange, key string, body []byte) error
}

type flight struct {
	deliveryID string
	orderID    string
	droneID    string
	route      domain.RouteGeometry
	routeKey   string
	stepPct    float64
	progress   float64
	arriving   bool
	done       bool
}

// Simulator ticks every running flight on a cron schedule, publishing GPS and
// progress frames, the arriving notification, and the terminal status change.
type Simulator struct {
	pub    Publisher
	routes *routing.Resolver
	lg     *logger.Logger

	mu      sync.Mutex
	flights []*flight
}

func New(pub Publisher, routes *routing.Resolver, lg *logger.Logger) *Simulator {
	return &Simulator{pub: pub, routes: routes, lg: lg}
}

// Launch registers a flight from origin to destination for the given order.
// stepPct is how much of the route one tick covers.
func (s *Simulator) Launch(ctx context.Context, orderID string, origin, destination domain.Coordinate, stepPct float64) string {
	if stepPct <= 0 {
		stepPct = 5
	}
	f := &flight{
		deliveryID: "dlv-" + uuid.NewString()[:8],
		orderID:    orderID,
		droneID:    "drone-" + uuid.NewString()[:8],
		route:      s.routes.Resolve(ctx, origin, destination),
		routeKey:   fmt.Sprintf("%s->%s", routing.CoordKey(origin), routing.CoordKey(destination)),
		stepPct:    stepPct,
	}
	s.mu.Lock()
	s.flights = append(s.flights, f)
	s.mu.Unlock()
	s.lg.Info("flight_launched", map[string]any{
		"delivery_id": f.deliveryID, "order_id": orderID, "drone_id": f.droneID,
	})
	return f.deliveryID
}

// Run ticks the fleet on the given cron spec (e.g. "@every 2s") until the
// context is cancelled.
func (s *Simulator) Run(ctx context.Context, spec string) error {
	c := cron.New(cron.WithSeconds())
	if _, err := c.AddFunc(spec, func() { s.tick(ctx) }); err != nil {
		return err
	}
	c.Start()
	<-ctx.Done()
	stopped := c.Stop()
	<-stopped.Done()
	return nil
}

func (s *Simulator) tick(ctx context.Context) {
	s.mu.Lock()
	fleet := make([]*flight, len(s.flights))
	copy(fleet, s.flights)
	s.mu.Unlock()

	for _, f := range fleet {
		s.advance(ctx, f)
	}
}

func (s *Simulator) advance(ctx context.Context, f *flight) {
	s.mu.Lock()
	if f.done {
		s.mu.Unlock()
		return
	}
	f.progress += f.stepPct
	if f.progress >= 100 {
		f.progress = 100
		f.done = true
	}
	fireArriving := !f.arriving && f.progress >= arrivingThresholdPct && !f.done
	if fireArriving {
		f.arriving = true
	}
	progress := f.progress
	done := f.done
	s.mu.Unlock()

	pos := positionAt(f.route, progress/100)
	dest := f.route.Points[len(f.route.Points)-1]
	status := string(domain.DeliveryInTransit)
	if done {
		status = string(domain.DeliveryDelivered)
	}

	upd := domain.TelemetryUpdate{
		DeliveryID:  f.deliveryID,
		OrderID:     f.orderID,
		DroneID:     f.droneID,
		RawStatus:   status,
		Position:    pos,
		BatteryPct:  100 - progress*0.4,
		EtaSeconds:  routing.EtaSeconds(pos, dest, 0),
		ProgressPct: &progress,
		RouteKey:    f.routeKey,
		Destination: dest,
		ObservedAt:  time.Now().UTC(),
	}
	s.publishTelemetry(ctx, domain.TypeDroneGPS, upd)
	s.publishTelemetry(ctx, domain.TypeDeliveryProgress, upd)

	if fireArriving {
		s.publishStatus(ctx, f.orderID, domain.TypeDeliveryArriving, domain.ArrivingPayload{OrderID: f.orderID})
	}
	if done {
		s.publishStatus(ctx, f.orderID, domain.TypeOrderStatusChanged, domain.StatusChangedPayload{
			OrderID: f.orderID, Status: "DELIVERED",
		})
		s.lg.Info("flight_completed", map[string]any{"delivery_id": f.deliveryID, "order_id": f.orderID})
	}
}

func (s *Simulator) publishTelemetry(ctx context.Context, typ string, upd domain.TelemetryUpdate) {
	payload, _ := json.Marshal(upd)
	body, _ := json.Marshal(domain.Envelope{Type: typ, Payload: payload})
	if err := s.pub.Publish(ctx, mq.TelemetryExchange, "", body); err != nil {
		s.lg.Warn("telemetry_publish_failed", map[string]any{"delivery_id": upd.DeliveryID, "reason": err.Error()})
	}
}

func (s *Simulator) publishStatus(ctx context.Context, orderID, typ string, payload any) {
	raw, _ := json.Marshal(payload)
	body, _ := json.Marshal(domain.Envelope{Type: typ, Payload: raw})
	if err := s.pub.Publish(ctx, mq.OrderStatusExchange, orderID, body); err != nil {
		s.lg.Warn("status_publish_failed", map[string]any{"order_id": orderID, "reason": err.Error()})
	}
}

// positionAt walks the route to the point at fraction t of total length.
func positionAt(route domain.RouteGeometry, t float64) domain.Coordinate {
	pts := route.Points
	if len(pts) == 0 {
		return domain.Coordinate{}
	}
	if len(pts) == 1 || t <= 0 {
		return pts[0]
	}
	if t >= 1 {
		return pts[len(pts)-1]
	}
	total := 0.0
	for i := 1; i < len(pts); i++ {
		total += routing.DistanceKm(pts[i-1], pts[i])
	}
	if total == 0 {
		return pts[0]
	}
	target := total * t
	walked := 0.0
	for i := 1; i < len(pts); i++ {
		seg := routing.DistanceKm(pts[i-1], pts[i])
		if walked+seg >= target {
			frac := (target - walked) / seg
			return routing.Interpolate(pts[i-1], pts[i], frac)
		}
		walked += seg
	}
	return pts[len(pts)-1]
}
