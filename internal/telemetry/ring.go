package telemetry

import "delivery-tracking/internal/domain"

// ringCapacity bounds the recent-waypoint trail shown to the UI.
const ringCapacity = 5

// waypointRing is a fixed-capacity buffer with index-based FIFO eviction.
// Not safe for concurrent use; the owning tracker serializes access.
type waypointRing struct {
	buf  [ringCapacity]domain.Waypoint
	next int
	size int
}

func (r *waypointRing) Push(w domain.Waypoint) {
	r.buf[r.next] = w
	r.next = (r.next + 1) % ringCapacity
	if r.size < ringCapacity {
		r.size++
	}
}

// NewestFirst returns the recorded waypoints, most recent at index 0.
func (r *waypointRing) NewestFirst() []domain.Waypoint {
	out := make([]domain.Waypoint, r.size)
	for i := 0; i < r.size; i++ {
		idx := (r.next - 1 - i + ringCapacity*2) % ringCapacity
		out[i] = r.buf[idx]
	}
	return out
}

func (r *waypointRing) Len() int { return r.size }
