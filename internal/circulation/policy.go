// internal/circulation/policy.go
package circulation

import "time"

const day = 24 * time.Hour

// Policy holds the late fee terms.
type Policy struct {
	GraceDays int
	FeePerDay float64
}

// DefaultPolicy is fourteen free days, then one unit per day.
func DefaultPolicy() Policy {
	return Policy{GraceDays: 14, FeePerDay: 1.0}
}

// ElapsedDays counts whole or partial days between two instants, in either order.
// Partial days round up.
func ElapsedDays(issued, returned time.Time) int {
	d := returned.Sub(issued)
	if d < 0 {
		d = -d
	}
	days := d / day
	if d%day != 0 {
		days++
	}
	return int(days)
}

// LateFee charges FeePerDay for every elapsed day beyond the grace period.
func (p Policy) LateFee(issued, returned time.Time) float64 {
	over := max(0, ElapsedDays(issued, returned)-p.GraceDays)
	return float64(over) * p.FeePerDay
}
