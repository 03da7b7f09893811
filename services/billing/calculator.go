// Package billing holds the single place where a consultation charge is
// computed. No other code path may derive a consultation amount.
package billing

import (
	"math"
	"time"
)

// Result is the outcome of a billing computation.
type Result struct {
	// DurationMinutes is the displayed duration, rounded to 2 decimals. It is
	// never an input to Amount; deriving the charge from the rounded duration
	// is exactly the rounding-order bug this package exists to prevent.
	DurationMinutes float64
	// Amount is the charge in currency units, per-second prorated and rounded
	// to 2 decimals.
	Amount float64
}

// Round2 rounds to two decimal places (currency subunits).
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Compute maps a billing window and per-minute rate to the charge.
//
// Billing is per-second prorated: a 61 second call at 3/min costs
// round2(61*3/60) = 3.05, not the 6 a ceil-to-minute policy would charge.
// A zero billingStart means billing never started (the other party never
// accepted) and yields a zero result. Negative windows clamp to zero.
func Compute(billingStart, end time.Time, ratePerMinute float64) Result {
	if billingStart.IsZero() {
		return Result{}
	}

	elapsedSeconds := math.Floor(end.Sub(billingStart).Seconds())
	if elapsedSeconds < 0 {
		elapsedSeconds = 0
	}

	return Result{
		DurationMinutes: Round2(elapsedSeconds / 60),
		Amount:          Round2(elapsedSeconds * ratePerMinute / 60),
	}
}

// ProviderShare returns the provider's cut of a settled amount after the
// platform commission: round2(amount * (1 - commissionRate)).
func ProviderShare(amount, commissionRate float64) float64 {
	return Round2(amount * (1 - commissionRate))
}
