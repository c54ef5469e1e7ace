package lifecycle

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestOverdueDays(t *testing.T) {
	due := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		returned time.Time
		want     int64
	}{
		{"early", due.Add(-time.Hour), 0},
		{"exactly on time", due, 0},
		{"one minute late is a full day", due.Add(time.Minute), 1},
		{"exactly one day late", due.Add(24 * time.Hour), 1},
		{"a day and a bit", due.Add(25 * time.Hour), 2},
		{"a week late", due.Add(7 * 24 * time.Hour), 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, OverdueDays(due, tt.returned))
		})
	}
}

func TestFinePolicyCompute(t *testing.T) {
	due := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	rate := decimal.NewNullDecimal(decimal.RequireFromString("3.333"))
	policy := FinePolicy{DefaultDailyRate: decimal.RequireFromString("1.50")}

	t.Run("on time leaves the fine null", func(t *testing.T) {
		assert.False(t, policy.Compute(due, due, rate).Valid)
	})

	t.Run("item rate rounded to cents", func(t *testing.T) {
		got := policy.Compute(due, due.Add(49*time.Hour), rate)
		assert.True(t, got.Valid)
		assert.Equal(t, "10.00", got.Decimal.StringFixed(2))
	})

	t.Run("default rate when the item has none", func(t *testing.T) {
		got := policy.Compute(due, due.Add(time.Hour), decimal.NullDecimal{})
		assert.True(t, got.Valid)
		assert.Equal(t, "1.50", got.Decimal.StringFixed(2))
	})

	t.Run("zero policy still records a zero fine for late returns", func(t *testing.T) {
		got := FinePolicy{}.Compute(due, due.Add(time.Hour), decimal.NullDecimal{})
		assert.True(t, got.Valid)
		assert.True(t, got.Decimal.IsZero())
	})

	t.Run("negative rate is clamped", func(t *testing.T) {
		neg := decimal.NewNullDecimal(decimal.NewFromInt(-4))
		got := policy.Compute(due, due.Add(time.Hour), neg)
		assert.True(t, got.Decimal.IsZero())
	})
}
