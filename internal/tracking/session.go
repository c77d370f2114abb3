// Package tracking owns the per-order synchronization session: one
// authoritative snapshot fetch, one push subscription, and the last cached
// snapshot, merged into a single non-regressing OrderView.
package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"delivery-tracking/internal/common/logger"
	"delivery-tracking/internal/domain"
	"delivery-tracking/internal/store"
)

var (
	// ErrNotFound means neither the backend nor the cache could produce a
	// snapshot for the requested order id.
	ErrNotFound = errors.New("order not found")
)

// SnapshotFetcher is the authoritative one-shot source. Implementations
// retry transient failures at most once before reporting an error.
type SnapshotFetcher interface {
	FetchOrder(ctx context.Context, orderID string, user domain.UserContext) (domain.OrderSnapshot, error)
}

// PushSubscriber opens a live channel keyed by order id. The returned
// function unsubscribes; after it returns no further handler calls are made.
type PushSubscriber interface {
	Subscribe(ctx context.Context, orderID string, handler func(domain.Envelope)) (func(), error)
}

type Deps struct {
	Fetcher SnapshotFetcher
	Cache   store.SnapshotCache
	Push    PushSubscriber
	Log     *logger.Logger
}

// Session owns one order's merged view for as long as it is observed.
// Snapshot, push and cache feed the same monotonic merge: there is no source
// priority, only step-index comparison, so a slow snapshot can never undo a
// push that already advanced the view.
type Session struct {
	ID      string
	orderID string
	deps    Deps

	mu      sync.Mutex
	view    domain.OrderView
	lastRaw string
	closed  bool
	unsub   func()
}

// Open starts a session: one snapshot fetch, and concurrently a push
// subscription on the order's channel. If the fetch fails the last cached
// snapshot is used when it matches the order id; otherwise ErrNotFound.
func Open(ctx context.Context, orderID string, user domain.UserContext, deps Deps) (*Session, error) {
	s := &Session{
		ID:      uuid.NewString(),
		orderID: orderID,
		deps:    deps,
		view: domain.OrderView{
			OrderID:    orderID,
			Status:     domain.StatusCreated,
			StatusCode: domain.StatusCreated.String(),
		},
	}

	// Push subscribe runs concurrently with the snapshot fetch so neither
	// delays the other. Push being unavailable is a degraded state, not an
	// error: the session continues on snapshot/cache alone.
	if deps.Push != nil {
		go s.subscribe(ctx)
	}

	snap, err := deps.Fetcher.FetchOrder(ctx, orderID, user)
	if err != nil {
		deps.Log.Warn("snapshot_unavailable", map[string]any{"order_id": orderID, "reason": err.Error()})
		cached, ok, cerr := deps.Cache.Load(ctx, store.CurrentOrderSlot)
		if cerr != nil || !ok || cached.OrderID != orderID {
			s.Close()
			return nil, ErrNotFound
		}
		s.applySnapshot(cached, domain.SourceCache)
		return s, nil
	}

	if cerr := deps.Cache.Store(ctx, store.CurrentOrderSlot, snap); cerr != nil {
		deps.Log.Warn("cache_write_failed", map[string]any{"order_id": orderID, "reason": cerr.Error()})
	}
	s.applySnapshot(snap, domain.SourceSnapshot)
	return s, nil
}

func (s *Session) subscribe(ctx context.Context) {
	unsub, err := s.deps.Push.Subscribe(ctx, s.orderID, s.handleEnvelope)
	if err != nil {
		s.deps.Log.Warn("push_unavailable", map[string]any{"order_id": s.orderID, "reason": err.Error()})
		return
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		unsub()
		return
	}
	s.unsub = unsub
	s.mu.Unlock()
}

func (s *Session) OrderID() string { return s.orderID }

// View returns a copy of the merged view. Consumers must treat it as
// read-only; only the session mutates order state.
func (s *Session) View() domain.OrderView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

// OnEvent applies one status observation under the monotonic-merge rule: the
// step index never decreases, except that CANCELLED is absorbing and always
// wins. Duplicates and events for other orders are dropped.
func (s *Session) OnEvent(ev domain.StatusEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if ev.OrderID != s.orderID {
		s.deps.Log.Warn("event_order_mismatch", map[string]any{
			"session_order": s.orderID, "event_order": ev.OrderID, "source": string(ev.Source),
		})
		return
	}
	if strings.EqualFold(ev.RawCode, s.lastRaw) {
		return
	}

	next := domain.Normalize(ev.RawCode)
	prev := s.view.Status

	if next == domain.StatusCancelled {
		s.lastRaw = ev.RawCode
		s.setStatus(domain.StatusCancelled, ev.ObservedAt)
		s.view.ArrivingSoon = false
		return
	}
	if prev == domain.StatusCancelled {
		return
	}
	if next < prev {
		s.deps.Log.Debug("stale_event_dropped", map[string]any{
			"order_id": s.orderID, "raw": ev.RawCode, "source": string(ev.Source),
		})
		return
	}

	s.lastRaw = ev.RawCode
	s.setStatus(next, ev.ObservedAt)
	if next == domain.StatusOutForDelivery && prev < domain.StatusOutForDelivery {
		s.view.ArrivingSoon = true
	}
	if next == domain.StatusDelivered {
		s.view.ArrivingSoon = false
	}
}

// Close unsubscribes the push channel and freezes the view. Idempotent; any
// event delivered afterwards has no observable effect.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	unsub := s.unsub
	s.unsub = nil
	s.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

func (s *Session) setStatus(next domain.CanonicalStatus, at time.Time) {
	s.view.Status = next
	s.view.StatusCode = next.String()
	s.view.Step = next.Step()
	if at.IsZero() {
		at = time.Now().UTC()
	}
	s.view.LastUpdated = at
}

func (s *Session) applySnapshot(snap domain.OrderSnapshot, src domain.EventSource) {
	s.mu.Lock()
	if !s.closed {
		s.view.Items = snap.Items
		s.view.TotalAmount = snap.TotalAmount
		s.view.DeliveryAddress = snap.DeliveryAddress
		s.view.PaymentMethod = snap.PaymentMethod
		s.view.PaymentStatus = snap.PaymentStatus
	}
	s.mu.Unlock()

	s.OnEvent(domain.StatusEvent{
		OrderID:    snap.OrderID,
		RawCode:    snap.RawStatus,
		Source:     src,
		ObservedAt: snap.FetchedAt,
	})
}

// handleEnvelope decodes one push frame. Unparseable payloads are protocol
// anomalies: dropped and logged, never applied.
func (s *Session) handleEnvelope(env domain.Envelope) {
	switch env.Type {
	case domain.TypeOrderStatusChanged:
		orderID, raw, ok := decodeStatusPayload(env.Payload)
		if !ok {
			s.logMalformed(env)
			return
		}
		if orderID == "" {
			orderID = s.orderID
		}
		s.OnEvent(domain.StatusEvent{
			OrderID:    orderID,
			RawCode:    raw,
			Source:     domain.SourcePush,
			ObservedAt: time.Now().UTC(),
		})
	case domain.TypeDeliveryArriving:
		var p domain.ArrivingPayload
		if len(env.Payload) > 0 && json.Unmarshal(env.Payload, &p) != nil {
			s.logMalformed(env)
			return
		}
		if p.OrderID != "" && p.OrderID != s.orderID {
			s.logMalformed(env)
			return
		}
		s.setArriving(!p.Cleared)
	default:
		// Telemetry frames ride the same broker; they are not ours.
	}
}

func (s *Session) setArriving(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.view.Status.Terminal() {
		return
	}
	s.view.ArrivingSoon = v
	s.view.LastUpdated = time.Now().UTC()
}

func decodeStatusPayload(raw json.RawMessage) (orderID, status string, ok bool) {
	if len(raw) == 0 {
		return "", "", false
	}
	var bare string
	if err := json.Unmarshal(raw, &bare); err == nil && bare != "" {
		return "", bare, true
	}
	var p domain.StatusChangedPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.Status == "" {
		return "", "", false
	}
	return p.OrderID, p.Status, true
}

func (s *Session) logMalformed(env domain.Envelope) {
	s.deps.Log.Warn("malformed_push_event", map[string]any{
		"order_id": s.orderID, "type": env.Type,
	})
}
