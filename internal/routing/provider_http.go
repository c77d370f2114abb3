package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"delivery-tracking/internal/domain"
)

// HTTPProvider calls a coordinate-pair routing endpoint:
// GET {base}/route?from=lat,lng&to=lat,lng → {"points":[{"lat":..,"lng":..},...]}
type HTTPProvider struct {
	base   string
	client *http.Client
}

func NewHTTPProvider(base string, timeout time.Duration) *HTTPProvider {
	return &HTTPProvider{
		base:   base,
		client: &http.Client{Timeout: timeout},
	}
}

func (p *HTTPProvider) Route(ctx context.Context, origin, destination domain.Coordinate) ([]domain.Coordinate, error) {
	q := url.Values{}
	q.Set("from", fmt.Sprintf("%f,%f", origin.Lat, origin.Lng))
	q.Set("to", fmt.Sprintf("%f,%f", destination.Lat, destination.Lng))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.base+"/route?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("route provider: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("route provider: status %d", resp.StatusCode)
	}

	var body struct {
		Points []domain.Coordinate `json:"points"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("route provider: %w", err)
	}
	return body.Points, nil
}
