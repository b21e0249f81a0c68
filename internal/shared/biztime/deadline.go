package biztime

import "time"

// PaymentDeadline is the fixed SLA between creation and payment.
const PaymentDeadline = 120 * time.Minute

const day = 24 * time.Hour

// ComputeDeadline returns the instant after which an unpaid record is overdue.
func ComputeDeadline(created time.Time) time.Time {
	return created.Add(PaymentDeadline)
}

// PastDeadline reports whether now is strictly after the deadline for created.
func PastDeadline(created, now time.Time) bool {
	return now.After(ComputeDeadline(created))
}

// ElapsedMinutes returns whole minutes between created and now, never negative.
func ElapsedMinutes(created, now time.Time) int {
	return floorMinutes(now.Sub(created))
}

// MinutesPastDeadline returns whole minutes by which now exceeds the
// deadline, or 0 when the deadline has not passed.
func MinutesPastDeadline(created, now time.Time) int {
	return floorMinutes(now.Sub(ComputeDeadline(created)))
}

// SettlementLatency returns the time between creation and payment given as
// offsets from midnight. Payment carries no date of its own, so a payment
// time of day earlier than creation means it happened on the next day.
func SettlementLatency(createdTOD, paymentTOD time.Duration) time.Duration {
	if paymentTOD < createdTOD {
		paymentTOD += day
	}
	return paymentTOD - createdTOD
}

func floorMinutes(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(d / time.Minute)
}
