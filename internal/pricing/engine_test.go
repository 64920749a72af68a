package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-commerce/internal/db"
)

func TestCompute(t *testing.T) {
	s := Compute([]Item{{Qty: 2, UnitPrice: 150000}, {Qty: 1, UnitPrice: 150000}, {Qty: 0, UnitPrice: 999}}, 20000, 10000)
	require.Equal(t, Summary{Subtotal: 450000, Discount: 20000, Shipping: 10000, Total: 440000}, s)
}

func TestComputeCapsDiscount(t *testing.T) {
	s := Compute([]Item{{Qty: 1, UnitPrice: 5000}}, 50000, 10000)
	require.Equal(t, Money(15000), s.Discount)
	require.Equal(t, Money(0), s.Total)

	s = Compute(nil, 0, 0)
	require.Equal(t, Summary{}, s)
}

func TestApplyDiscount(t *testing.T) {
	cases := []struct {
		name      string
		original  Money
		kind      db.DiscountKind
		value     string
		final     Money
		discount  Money
		anomalous bool
	}{
		{"percentage", 100000, db.DiscountKindPercentage, "20", 80000, 20000, false},
		{"fractional percentage rounds half up", 999, db.DiscountKindPercentage, "12.5", 874, 125, false},
		{"fixed", 100000, db.DiscountKindFixed, "10000", 90000, 10000, false},
		{"fixed floors at zero", 5000, db.DiscountKindFixed, "7000", 0, 5000, false},
		{"percentage above hundred", 5000, db.DiscountKindPercentage, "150", 0, 5000, true},
		{"negative value", 5000, db.DiscountKindFixed, "-10", 5000, 0, true},
		{"free shipping is not an item discount", 5000, db.DiscountKindFreeShipping, "0", 5000, 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			final, discount, anomalous := ApplyDiscount(tc.original, tc.kind, decimal.RequireFromString(tc.value))
			require.Equal(t, tc.final, final)
			require.Equal(t, tc.discount, discount)
			require.Equal(t, tc.anomalous, anomalous)
		})
	}
}

func TestSelectTierStableOnDuplicateThresholds(t *testing.T) {
	tiers := []db.QuantityBreakTier{
		{MinQuantity: 5, DiscountType: db.DiscountKindFixed, Value: decimal.NewFromInt(1)},
		{MinQuantity: 5, DiscountType: db.DiscountKindFixed, Value: decimal.NewFromInt(2)},
		{MinQuantity: 1, DiscountType: db.DiscountKindFixed, Value: decimal.NewFromInt(3)},
	}
	tier, ok := SelectTier(tiers, 6)
	require.True(t, ok)
	require.True(t, tier.Value.Equal(decimal.NewFromInt(1)))

	_, ok = SelectTier(tiers[:2], 4)
	require.False(t, ok)
}
