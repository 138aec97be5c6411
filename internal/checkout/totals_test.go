package checkout_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"agromarket/internal/cart"
	"agromarket/internal/checkout"
)

func TestTotals(t *testing.T) {
	tests := []struct {
		name         string
		items        []cart.Item
		wantSubtotal float64
		wantShipping float64
		wantTotal    float64
	}{
		{
			name:         "below_threshold_pays_flat_fee",
			items:        []cart.Item{{ProductID: "p1", Quantity: 2, ProductPrice: 500}},
			wantSubtotal: 1000,
			wantShipping: 200,
			wantTotal:    1200,
		},
		{
			name:         "above_threshold_ships_free",
			items:        []cart.Item{{ProductID: "p1", Quantity: 3, ProductPrice: 2000}},
			wantSubtotal: 6000,
			wantShipping: 0,
			wantTotal:    6000,
		},
		{
			name:         "exactly_at_threshold_still_pays",
			items:        []cart.Item{{ProductID: "p1", Quantity: 1, ProductPrice: 5000}},
			wantSubtotal: 5000,
			wantShipping: 200,
			wantTotal:    5200,
		},
		{
			name:         "one_unit_above_threshold_ships_free",
			items:        []cart.Item{{ProductID: "p1", Quantity: 1, ProductPrice: 5001}},
			wantSubtotal: 5001,
			wantShipping: 0,
			wantTotal:    5001,
		},
		{
			name: "multiple_lines",
			items: []cart.Item{
				{ProductID: "p1", Quantity: 2, ProductPrice: 150},
				{ProductID: "p2", Quantity: 1, ProductPrice: 700},
			},
			wantSubtotal: 1000,
			wantShipping: 200,
			wantTotal:    1200,
		},
		{
			name:         "empty_cart",
			items:        []cart.Item{},
			wantSubtotal: 0,
			wantShipping: 200,
			wantTotal:    200,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			subtotal := checkout.Subtotal(tt.items)
			assert.Equal(t, tt.wantSubtotal, subtotal)
			assert.Equal(t, tt.wantShipping, checkout.ShippingFee(subtotal))
			assert.Equal(t, tt.wantTotal, checkout.Total(tt.items))
		})
	}
}

func TestCanTransition(t *testing.T) {
	assert.True(t, checkout.CanTransition(checkout.StateLoadingCart, checkout.StateDetails))
	assert.True(t, checkout.CanTransition(checkout.StateDetails, checkout.StatePayment))
	assert.True(t, checkout.CanTransition(checkout.StateDetails, checkout.StateSuccess))
	assert.True(t, checkout.CanTransition(checkout.StatePayment, checkout.StateSuccess))
	assert.True(t, checkout.CanTransition(checkout.StatePayment, checkout.StateDetails))

	assert.False(t, checkout.CanTransition(checkout.StateLoadingCart, checkout.StatePayment))
	assert.False(t, checkout.CanTransition(checkout.StateSuccess, checkout.StateDetails))
	assert.False(t, checkout.CanTransition(checkout.StateSuccess, checkout.StatePayment))
	assert.True(t, checkout.StateSuccess.IsTerminal())
	assert.False(t, checkout.StateDetails.IsTerminal())
}
