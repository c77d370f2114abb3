// Package client talks to the order backend over HTTP: one-shot order
// snapshots and delivery telemetry fetches.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"delivery-tracking/internal/domain"
)

// ErrOrderNotFound marks a 404 from the backend; retrying is pointless.
var ErrOrderNotFound = errors.New("order not found")

const snapshotRetryDelay = 300 * time.Millisecond

type OrderClient struct {
	base   string
	client *http.Client
}

func NewOrderClient(base string, timeout time.Duration) *OrderClient {
	return &OrderClient{
		base:   strings.TrimRight(base, "/"),
		client: &http.Client{Timeout: timeout},
	}
}

// FetchOrder issues GET /orders/{id} and retries transient failures at most
// once before giving up. A 404 fails immediately.
func (c *OrderClient) FetchOrder(ctx context.Context, orderID string, user domain.UserContext) (domain.OrderSnapshot, error) {
	var snap domain.OrderSnapshot
	op := func() error {
		s, err := c.fetchOnce(ctx, orderID, user)
		if errors.Is(err, ErrOrderNotFound) {
			return backoff.Permanent(err)
		}
		if err != nil {
			return err
		}
		snap = s
		return nil
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(snapshotRetryDelay), 1), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return domain.OrderSnapshot{}, err
	}
	return snap, nil
}

func (c *OrderClient) fetchOnce(ctx context.Context, orderID string, user domain.UserContext) (domain.OrderSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/orders/"+orderID, nil)
	if err != nil {
		return domain.OrderSnapshot{}, err
	}
	if user.Authenticated() {
		req.Header.Set("Authorization", "Bearer "+user.Token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return domain.OrderSnapshot{}, fmt.Errorf("fetch order %s: %w", orderID, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return domain.OrderSnapshot{}, ErrOrderNotFound
	case resp.StatusCode != http.StatusOK:
		return domain.OrderSnapshot{}, fmt.Errorf("fetch order %s: status %d", orderID, resp.StatusCode)
	}

	var dto orderDTO
	if err := json.NewDecoder(resp.Body).Decode(&dto); err != nil {
		return domain.OrderSnapshot{}, fmt.Errorf("decode order %s: %w", orderID, err)
	}
	return dto.toSnapshot(), nil
}

// orderDTO mirrors the backend response. Address arrives either as a flat
// string or as a structured object; items carry the menu item inline.
type orderDTO struct {
	ID            json.Number     `json:"id"`
	Status        string          `json:"status"`
	TotalAmount   float64         `json:"total_amount"`
	Address       json.RawMessage `json:"address"`
	PaymentMethod string          `json:"payment_method"`
	PaymentStatus string          `json:"payment_status"`
	Items         []orderItemDTO  `json:"items"`
}

type orderItemDTO struct {
	ID        json.Number `json:"id"`
	Name      string      `json:"name"`
	Quantity  int         `json:"quantity"`
	UnitPrice float64     `json:"unit_price"`
	Image     string      `json:"image"`
}

type structuredAddress struct {
	Line1    string `json:"line1"`
	Ward     string `json:"ward"`
	District string `json:"district"`
	City     string `json:"city"`
}

func (d orderDTO) toSnapshot() domain.OrderSnapshot {
	items := make([]domain.OrderItem, 0, len(d.Items))
	for _, it := range d.Items {
		items = append(items, domain.OrderItem{
			ID:        it.ID.String(),
			Name:      it.Name,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
			Image:     it.Image,
		})
	}
	return domain.OrderSnapshot{
		OrderID:         d.ID.String(),
		RawStatus:       d.Status,
		Items:           items,
		TotalAmount:     d.TotalAmount,
		DeliveryAddress: flattenAddress(d.Address),
		PaymentMethod:   d.PaymentMethod,
		PaymentStatus:   d.PaymentStatus,
		FetchedAt:       time.Now().UTC(),
	}
}

func flattenAddress(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var flat string
	if err := json.Unmarshal(raw, &flat); err == nil {
		return flat
	}
	var addr structuredAddress
	if err := json.Unmarshal(raw, &addr); err != nil {
		return ""
	}
	parts := make([]string, 0, 4)
	for _, p := range []string{addr.Line1, addr.Ward, addr.District, addr.City} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}
