package checkout

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/joao-fontenele/storefront/internal/domain"
)

func testPolicy() ShippingPolicy {
	return ShippingPolicy{
		FlatFee:       decimal.RequireFromString("15.00"),
		FreeThreshold: decimal.RequireFromString("200.00"),
	}
}

func TestShippingPolicy_Fee(t *testing.T) {
	tests := []struct {
		subtotal string
		want     string
	}{
		{"0", "15.00"},
		{"100.00", "15.00"},
		{"199.99", "15.00"},
		{"200.00", "0"},
		{"200.01", "0"},
		{"1000", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.subtotal, func(t *testing.T) {
			fee := testPolicy().Fee(decimal.RequireFromString(tt.subtotal))
			assert.True(t, fee.Equal(decimal.RequireFromString(tt.want)), "got %s", fee)
		})
	}
}

func TestShippingPolicy_Quote(t *testing.T) {
	t.Run("below threshold adds flat fee", func(t *testing.T) {
		quote := testPolicy().Quote([]domain.OrderLine{
			{ProductID: "p1", ProductPrice: decimal.RequireFromString("50.00"), Quantity: 2},
		})

		assert.Equal(t, "100.00", quote.Subtotal.StringFixed(2))
		assert.Equal(t, "15.00", quote.ShippingFee.StringFixed(2))
		assert.Equal(t, "115.00", quote.Total.StringFixed(2))
	})

	t.Run("decimal prices do not drift", func(t *testing.T) {
		quote := testPolicy().Quote([]domain.OrderLine{
			{ProductID: "p1", ProductPrice: decimal.RequireFromString("0.10"), Quantity: 3},
			{ProductID: "p2", ProductPrice: decimal.RequireFromString("149.90"), Quantity: 1},
		})

		assert.Equal(t, "150.20", quote.Subtotal.StringFixed(2))
		assert.Equal(t, "165.20", quote.Total.StringFixed(2))
	})

	t.Run("threshold reached ships free", func(t *testing.T) {
		quote := testPolicy().Quote([]domain.OrderLine{
			{ProductID: "p1", ProductPrice: decimal.RequireFromString("100.00"), Quantity: 2},
		})

		assert.True(t, quote.ShippingFee.IsZero())
		assert.Equal(t, "200.00", quote.Total.StringFixed(2))
	})
}
