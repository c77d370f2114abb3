package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"delivery-tracking/internal/domain"
)

// ErrNoActiveDelivery marks orders that have no drone assigned yet.
var ErrNoActiveDelivery = errors.New("no active delivery")

type TelemetryClient struct {
	base   string
	client *http.Client
}

func NewTelemetryClient(base string, timeout time.Duration) *TelemetryClient {
	return &TelemetryClient{
		base:   strings.TrimRight(base, "/"),
		client: &http.Client{Timeout: timeout},
	}
}

// FetchDelivery polls telemetry for one delivery id.
func (c *TelemetryClient) FetchDelivery(ctx context.Context, deliveryID string) (domain.TelemetryUpdate, error) {
	return c.get(ctx, c.base+"/deliveries/"+deliveryID)
}

// FetchByOrder resolves the active delivery for an order, used once to learn
// the delivery id when the order goes out for delivery.
func (c *TelemetryClient) FetchByOrder(ctx context.Context, orderID string) (domain.TelemetryUpdate, error) {
	return c.get(ctx, c.base+"/orders/"+orderID+"/delivery-tracking")
}

func (c *TelemetryClient) get(ctx context.Context, url string) (domain.TelemetryUpdate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return domain.TelemetryUpdate{}, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return domain.TelemetryUpdate{}, fmt.Errorf("fetch telemetry: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return domain.TelemetryUpdate{}, ErrNoActiveDelivery
	case resp.StatusCode != http.StatusOK:
		return domain.TelemetryUpdate{}, fmt.Errorf("fetch telemetry: status %d", resp.StatusCode)
	}

	var upd domain.TelemetryUpdate
	if err := json.NewDecoder(resp.Body).Decode(&upd); err != nil {
		return domain.TelemetryUpdate{}, fmt.Errorf("decode telemetry: %w", err)
	}
	if upd.ObservedAt.IsZero() {
		upd.ObservedAt = time.Now().UTC()
	}
	return upd, nil
}
