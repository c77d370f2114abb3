// Package telemetry maintains the live DeliveryView for an active drone
// delivery using a hybrid strategy: a recurring poll as the correctness
// backstop, with push updates applied the moment they arrive.
package telemetry

import (
	"context"
	"errors"
	"sync"
	"time"

	"delivery-tracking/internal/common/logger"
	"delivery-tracking/internal/domain"
	"delivery-tracking/internal/routing"
)

var (
	ErrStopped          = errors.New("tracker stopped")
	ErrDeliveryMismatch = errors.New("delivery id mismatch")
)

// DefaultPollInterval is the baseline refresh cadence.
const DefaultPollInterval = 5 * time.Second

// Fetcher polls the backend for one delivery's telemetry.
type Fetcher interface {
	FetchDelivery(ctx context.Context, deliveryID string) (domain.TelemetryUpdate, error)
}

type Options struct {
	Fetch        Fetcher
	Routes       *routing.Resolver
	Log          *logger.Logger
	PollInterval time.Duration
	OnComplete   func() // fired exactly once when the delivery completes
}

// Tracker owns one delivery's merged telemetry view. Push updates do not
// reset the poll schedule: a missed push is repaired by the next poll.
type Tracker struct {
	deliveryID string
	opts       Options

	mu        sync.Mutex
	view      domain.DeliveryView
	ring      waypointRing
	origin    domain.Coordinate
	hasOrigin bool
	route     domain.RouteGeometry
	routeKey  string
	paused    bool
	stopped   bool
	completed bool
	cancel    context.CancelFunc
}

func New(deliveryID string, opts Options) *Tracker {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Log == nil {
		opts.Log = logger.Nop()
	}
	return &Tracker{
		deliveryID: deliveryID,
		opts:       opts,
		view: domain.DeliveryView{
			DeliveryID: deliveryID,
			Status:     domain.DeliveryAssigned,
		},
	}
}

// Start performs one immediate fetch, then polls at the configured interval
// until Stop, context cancellation, or the delivery completes.
func (t *Tracker) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)

	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		cancel()
		return
	}
	t.cancel = cancel
	t.mu.Unlock()

	t.pollOnce(ctx)
	go t.pollLoop(ctx)
}

func (t *Tracker) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(t.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if t.autoRefreshPaused() {
				continue
			}
			t.pollOnce(ctx)
		}
	}
}

func (t *Tracker) pollOnce(ctx context.Context) {
	upd, err := t.opts.Fetch.FetchDelivery(ctx, t.deliveryID)
	if err != nil {
		// Degraded: keep the last view, the next tick retries.
		t.opts.Log.Warn("telemetry_poll_failed", map[string]any{
			"delivery_id": t.deliveryID, "reason": err.Error(),
		})
		return
	}
	_ = t.ApplyUpdate(ctx, upd)
}

// ApplyUpdate merges one telemetry observation from poll or push. Progress
// never decreases unless the update carries a new route baseline (reroute or
// return leg), in which case it is recomputed from that baseline.
func (t *Tracker) ApplyUpdate(ctx context.Context, upd domain.TelemetryUpdate) error {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return ErrStopped
	}
	if upd.DeliveryID != t.deliveryID {
		t.mu.Unlock()
		t.opts.Log.Warn("telemetry_delivery_mismatch", map[string]any{
			"tracker": t.deliveryID, "update": upd.DeliveryID,
		})
		return ErrDeliveryMismatch
	}

	if !t.hasOrigin {
		t.origin = upd.Position
		t.hasOrigin = true
	}
	if t.opts.Routes != nil && (upd.Destination != domain.Coordinate{}) {
		t.route = t.opts.Routes.Resolve(ctx, t.origin, upd.Destination)
	}

	// Delivery status is monotonic too: a GPS-only frame with no status must
	// not drag an in-transit delivery back to ASSIGNED.
	status := domain.ParseDeliveryStatus(upd.RawStatus)
	if statusRank(status) < statusRank(t.view.Status) {
		status = t.view.Status
	}

	progress := t.view.ProgressPct
	switch {
	case upd.ProgressPct != nil:
		progress = *upd.ProgressPct
	case len(t.route.Points) >= 2:
		progress = routing.ProgressAlong(t.route, upd.Position)
	}
	if upd.RouteKey != "" && upd.RouteKey != t.routeKey {
		// New route baseline: accept the recomputed progress as-is.
		t.routeKey = upd.RouteKey
	} else if progress < t.view.ProgressPct {
		progress = t.view.ProgressPct
	}

	eta := upd.EtaSeconds
	if eta <= 0 && (upd.Destination != domain.Coordinate{}) {
		eta = routing.EtaSeconds(upd.Position, upd.Destination, 0)
	}

	observed := upd.ObservedAt
	if observed.IsZero() {
		observed = time.Now().UTC()
	}

	t.view.DroneID = upd.DroneID
	t.view.Status = status
	t.view.CurrentPosition = upd.Position
	t.view.BatteryPct = upd.BatteryPct
	t.view.EtaSeconds = eta
	t.view.ProgressPct = progress
	t.view.LastUpdated = observed
	t.ring.Push(domain.Waypoint{Lat: upd.Position.Lat, Lng: upd.Position.Lng, CapturedAt: observed})
	t.view.RecentWaypoints = t.ring.NewestFirst()

	var fireComplete bool
	if status == domain.DeliveryDelivered && !t.completed {
		t.completed = true
		fireComplete = true
		// Terminal: no further polling, the view stays readable.
		if t.cancel != nil {
			t.cancel()
		}
	}
	t.mu.Unlock()

	if fireComplete && t.opts.OnComplete != nil {
		t.opts.OnComplete()
	}
	return nil
}

// ToggleAutoRefresh pauses or resumes the poll timer without discarding
// state. Push updates still apply while paused.
func (t *Tracker) ToggleAutoRefresh(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.paused = !enabled
}

// Stop cancels the poll timer and freezes the view. Idempotent; required on
// view teardown so no timer keeps mutating a discarded view.
func (t *Tracker) Stop() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	cancel := t.cancel
	t.cancel = nil
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// View returns a copy of the merged view; the waypoint slice is freshly
// allocated on every update, so callers may keep it.
func (t *Tracker) View() domain.DeliveryView {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.view
}

// Route returns the geometry the progress computation is based on.
func (t *Tracker) Route() domain.RouteGeometry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.route
}

func (t *Tracker) DeliveryID() string { return t.deliveryID }

// Completed reports whether the delivery reached its terminal state.
func (t *Tracker) Completed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.completed
}

func statusRank(s domain.DeliveryStatus) int {
	switch s {
	case domain.DeliveryInTransit:
		return 1
	case domain.DeliveryDelivered:
		return 2
	default:
		return 0
	}
}

func (t *Tracker) autoRefreshPaused() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.paused || t.completed
}
