package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		raw  string
		want CanonicalStatus
	}{
		{"CREATED", StatusCreated},
		{"PENDING_PAYMENT", StatusCreated},
		{"PAID", StatusCreated},
		{"CONFIRMED", StatusConfirmed},
		{"PREPARING", StatusPreparing},
		{"COOKING", StatusPreparing},
		{"READY", StatusReadyForPickup},
		{"READY_FOR_PICKUP", StatusReadyForPickup},
		{"READY_FOR_DELIVERY", StatusReadyForPickup},
		{"ASSIGNED", StatusReadyForPickup},
		{"OUT_FOR_DELIVERY", StatusOutForDelivery},
		{"DELIVERING", StatusOutForDelivery},
		{"IN_TRANSIT", StatusOutForDelivery},
		{"DELIVERED", StatusDelivered},
		{"COMPLETED", StatusDelivered},
		{"CANCELLED", StatusCancelled},
		{"CANCELED", StatusCancelled},
		{"REJECTED", StatusCancelled},
		{"FAILED", StatusCancelled},
		// matching is case-insensitive and trims whitespace
		{"confirmed", StatusConfirmed},
		{"  Delivered ", StatusDelivered},
		// unknown vocabulary resolves to the earliest state
		{"SHIPPED_BY_CARRIER_PIGEON", StatusCreated},
		{"", StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.raw))
		})
	}
}

func TestStep(t *testing.T) {
	assert.Equal(t, 0, StatusCreated.Step())
	assert.Equal(t, 1, StatusConfirmed.Step())
	assert.Equal(t, 2, StatusPreparing.Step())
	assert.Equal(t, 3, StatusReadyForPickup.Step())
	assert.Equal(t, 4, StatusOutForDelivery.Step())
	assert.Equal(t, 5, StatusDelivered.Step())
	assert.Equal(t, -1, StatusCancelled.Step())
}

func TestTerminal(t *testing.T) {
	assert.False(t, StatusCreated.Terminal())
	assert.False(t, StatusOutForDelivery.Terminal())
	assert.True(t, StatusDelivered.Terminal())
	assert.True(t, StatusCancelled.Terminal())
}

func TestParseDeliveryStatus(t *testing.T) {
	assert.Equal(t, DeliveryInTransit, ParseDeliveryStatus("IN_TRANSIT"))
	assert.Equal(t, DeliveryDelivered, ParseDeliveryStatus("DELIVERED"))
	assert.Equal(t, DeliveryAssigned, ParseDeliveryStatus("ASSIGNED"))
	assert.Equal(t, DeliveryAssigned, ParseDeliveryStatus(""))
	assert.Equal(t, DeliveryAssigned, ParseDeliveryStatus("HOVERING"))
}
