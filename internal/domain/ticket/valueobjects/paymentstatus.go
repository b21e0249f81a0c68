package valueobjects

import "fmt"

// PaymentStatus is the settlement state of a single line item.
type PaymentStatus string

const (
	PaymentAwaiting      PaymentStatus = "awaiting_payment"
	PaymentPaid          PaymentStatus = "paid"
	PaymentPartiallyPaid PaymentStatus = "partially_paid"
)

var validPaymentStatuses = map[PaymentStatus]bool{
	PaymentAwaiting:      true,
	PaymentPaid:          true,
	PaymentPartiallyPaid: true,
}

func (ps PaymentStatus) String() string {
	return string(ps)
}

func (ps PaymentStatus) IsValid() bool {
	return validPaymentStatuses[ps]
}

// IsSettled reports whether a payment time may be recorded for the status.
func (ps PaymentStatus) IsSettled() bool {
	return ps == PaymentPaid || ps == PaymentPartiallyPaid
}

func NewPaymentStatus(s string) (PaymentStatus, error) {
	status := PaymentStatus(s)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid payment status: %s", s)
	}
	return status, nil
}
