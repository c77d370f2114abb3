package api

import (
	"context"
	"sync"
	"time"

	"delivery-tracking/internal/common/logger"
	"delivery-tracking/internal/domain"
	"delivery-tracking/internal/routing"
	"delivery-tracking/internal/telemetry"
	"delivery-tracking/internal/tracking"
)

// TelemetrySource resolves the active delivery for an order and polls it.
type TelemetrySource interface {
	telemetry.Fetcher
	FetchByOrder(ctx context.Context, orderID string) (domain.TelemetryUpdate, error)
}

// TelemetryPush is the optional live feed of drone updates. Nil is fine; the
// trackers then run on polling alone.
type TelemetryPush interface {
	SubscribeTelemetry(ctx context.Context, handler func(domain.TelemetryUpdate)) (func(), error)
}

// Manager keeps one tracking session per observed order and one telemetry
// tracker per active delivery, creating them on demand and tearing them down
// together.
type Manager struct {
	deps         tracking.Deps
	tele         TelemetrySource
	telePush     TelemetryPush
	routes       *routing.Resolver
	lg           *logger.Logger
	pollInterval time.Duration

	ctx       context.Context
	mu        sync.Mutex
	sessions  map[string]*tracking.Session
	trackers  map[string]*telemetry.Tracker // keyed by order id
	unsubTele func()
}

type ManagerConfig struct {
	Deps         tracking.Deps
	Telemetry    TelemetrySource
	TelePush     TelemetryPush
	Routes       *routing.Resolver
	Log          *logger.Logger
	PollInterval time.Duration
}

func NewManager(ctx context.Context, cfg ManagerConfig) *Manager {
	m := &Manager{
		deps:         cfg.Deps,
		tele:         cfg.Telemetry,
		telePush:     cfg.TelePush,
		routes:       cfg.Routes,
		lg:           cfg.Log,
		pollInterval: cfg.PollInterval,
		ctx:          ctx,
		sessions:     make(map[string]*tracking.Session),
		trackers:     make(map[string]*telemetry.Tracker),
	}
	if m.telePush != nil {
		unsub, err := m.telePush.SubscribeTelemetry(ctx, m.dispatchTelemetry)
		if err != nil {
			m.lg.Warn("telemetry_push_unavailable", map[string]any{"reason": err.Error()})
		} else {
			m.unsubTele = unsub
		}
	}
	return m
}

// OrderView returns the merged view for an order, opening a session on first
// use. A delivery tracker is started as soon as the order goes out for
// delivery.
func (m *Manager) OrderView(ctx context.Context, orderID string, user domain.UserContext) (domain.OrderView, error) {
	s, err := m.session(ctx, orderID, user)
	if err != nil {
		return domain.OrderView{}, err
	}
	view := s.View()
	if view.Status == domain.StatusOutForDelivery {
		m.ensureTracker(ctx, orderID)
	}
	return view, nil
}

// DeliveryView returns the telemetry view for an order's active delivery.
func (m *Manager) DeliveryView(ctx context.Context, orderID string) (domain.DeliveryView, domain.RouteGeometry, error) {
	t, err := m.tracker(ctx, orderID)
	if err != nil {
		return domain.DeliveryView{}, domain.RouteGeometry{}, err
	}
	return t.View(), t.Route(), nil
}

// Open eagerly starts a tracking session for the order.
func (m *Manager) Open(ctx context.Context, orderID string, user domain.UserContext) error {
	_, err := m.session(ctx, orderID, user)
	return err
}

// Close tears down the order's session and any delivery tracker. Idempotent.
func (m *Manager) Close(orderID string) {
	m.mu.Lock()
	s := m.sessions[orderID]
	t := m.trackers[orderID]
	delete(m.sessions, orderID)
	delete(m.trackers, orderID)
	m.mu.Unlock()

	if s != nil {
		s.Close()
	}
	if t != nil {
		t.Stop()
	}
}

// Shutdown closes every open session and tracker.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	sessions := m.sessions
	trackers := m.trackers
	m.sessions = make(map[string]*tracking.Session)
	m.trackers = make(map[string]*telemetry.Tracker)
	unsub := m.unsubTele
	m.unsubTele = nil
	m.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	for _, s := range sessions {
		s.Close()
	}
	for _, t := range trackers {
		t.Stop()
	}
}

func (m *Manager) session(ctx context.Context, orderID string, user domain.UserContext) (*tracking.Session, error) {
	m.mu.Lock()
	if s, ok := m.sessions[orderID]; ok {
		m.mu.Unlock()
		return s, nil
	}
	m.mu.Unlock()

	// Opened outside the lock: Open blocks on the snapshot fetch.
	s, err := tracking.Open(m.ctx, orderID, user, m.deps)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.sessions[orderID]; ok {
		// Lost the race to another request; keep the first session.
		go s.Close()
		return existing, nil
	}
	m.sessions[orderID] = s
	return s, nil
}

func (m *Manager) tracker(ctx context.Context, orderID string) (*telemetry.Tracker, error) {
	m.mu.Lock()
	if t, ok := m.trackers[orderID]; ok {
		m.mu.Unlock()
		return t, nil
	}
	m.mu.Unlock()

	upd, err := m.tele.FetchByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if t, ok := m.trackers[orderID]; ok {
		m.mu.Unlock()
		return t, nil
	}
	t := telemetry.New(upd.DeliveryID, telemetry.Options{
		Fetch:        m.tele,
		Routes:       m.routes,
		Log:          m.lg,
		PollInterval: m.pollInterval,
		OnComplete: func() {
			m.lg.Info("delivery_completed", map[string]any{"order_id": orderID})
		},
	})
	m.trackers[orderID] = t
	m.mu.Unlock()

	// Started outside the lock: the first poll is synchronous and must not
	// stall unrelated sessions behind a slow telemetry backend.
	t.Start(m.ctx)
	return t, nil
}

func (m *Manager) ensureTracker(ctx context.Context, orderID string) {
	if _, err := m.tracker(ctx, orderID); err != nil {
		m.lg.Debug("tracker_not_ready", map[string]any{"order_id": orderID, "reason": err.Error()})
	}
}

func (m *Manager) dispatchTelemetry(upd domain.TelemetryUpdate) {
	m.mu.Lock()
	var target *telemetry.Tracker
	for _, t := range m.trackers {
		if t.DeliveryID() == upd.DeliveryID {
			target = t
			break
		}
	}
	m.mu.Unlock()
	if target != nil {
		_ = target.ApplyUpdate(m.ctx, upd)
	}
}
