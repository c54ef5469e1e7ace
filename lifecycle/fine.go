package lifecycle

import (
	"time"

	"github.com/shopspring/decimal"
)

const day = 24 * time.Hour

// FinePolicy charges rate × started days late, with a one day minimum, on
// returns after the due date. Items without a daily rate (hardware samples,
// unrated tools) are charged DefaultDailyRate.
type FinePolicy struct {
	DefaultDailyRate decimal.Decimal
}

// OverdueDays counts started 24h periods between due and returned; 0 when the
// item came back on time.
func OverdueDays(due, returned time.Time) int64 {
	late := returned.Sub(due)
	if late <= 0 {
		return 0
	}
	days := int64(late / day)
	if late%day != 0 {
		days++
	}
	return days
}

// Compute returns the fine for a return at returned. It is NULL for on-time
// returns and a (possibly zero) amount rounded to cents otherwise.
func (p FinePolicy) Compute(due, returned time.Time, dailyRate decimal.NullDecimal) decimal.NullDecimal {
	days := OverdueDays(due, returned)
	if days == 0 {
		return decimal.NullDecimal{}
	}
	rate := p.DefaultDailyRate
	if dailyRate.Valid {
		rate = dailyRate.Decimal
	}
	if rate.IsNegative() {
		rate = decimal.Zero
	}
	return decimal.NewNullDecimal(rate.Mul(decimal.NewFromInt(days)).Round(2))
}
