package ticket

import (
	"errors"
	"fmt"
	"time"

	vo "github.com/warehouse-ops/ntconsole/internal/domain/ticket/valueobjects"
	"github.com/warehouse-ops/ntconsole/internal/shared/biztime"
)

// ErrLatencyNotComputable is returned for items without a settled payment.
var ErrLatencyNotComputable = errors.New("payment latency not computable")

// CreatedInstant combines the item's creation date and time of day.
func (li *LineItem) CreatedInstant() (time.Time, error) {
	t, err := biztime.ToInstant(li.CreatedDate, li.CreatedTime)
	if err != nil {
		return time.Time{}, fmt.Errorf("line item %s creation: %w", li.ID, err)
	}
	return t, nil
}

// Deadline returns the payment deadline of the item.
func (li *LineItem) Deadline() (time.Time, error) {
	created, err := li.CreatedInstant()
	if err != nil {
		return time.Time{}, err
	}
	return biztime.ComputeDeadline(created), nil
}

// IsOverdue reports whether the item is still awaiting payment after its
// deadline. A malformed creation stamp yields false together with the
// parse error so the caller can log it.
func (li *LineItem) IsOverdue(now time.Time) (bool, error) {
	if li.Status != vo.PaymentAwaiting {
		return false, nil
	}
	created, err := li.CreatedInstant()
	if err != nil {
		return false, err
	}
	return biztime.PastDeadline(created, now), nil
}

// ElapsedMinutes returns whole minutes since creation, clamped at zero.
func (li *LineItem) ElapsedMinutes(now time.Time) (int, error) {
	created, err := li.CreatedInstant()
	if err != nil {
		return 0, err
	}
	return biztime.ElapsedMinutes(created, now), nil
}

// OverdueMinutes returns whole minutes past the deadline, or 0 when the
// item is settled or not yet due.
func (li *LineItem) OverdueMinutes(now time.Time) (int, error) {
	if li.Status != vo.PaymentAwaiting {
		return 0, nil
	}
	created, err := li.CreatedInstant()
	if err != nil {
		return 0, err
	}
	return biztime.MinutesPastDeadline(created, now), nil
}

// PaymentLatency returns the time between creation and payment of a
// settled item. A payment time of day earlier than creation is taken to
// be on the following day.
func (li *LineItem) PaymentLatency() (time.Duration, error) {
	if !li.Status.IsSettled() || li.PaymentTime == nil {
		return 0, ErrLatencyNotComputable
	}
	created, err := biztime.ParseTimeOfDay(li.CreatedTime)
	if err != nil {
		return 0, fmt.Errorf("line item %s creation: %w", li.ID, err)
	}
	paid, err := biztime.ParseTimeOfDay(*li.PaymentTime)
	if err != nil {
		return 0, fmt.Errorf("line item %s payment: %w", li.ID, err)
	}
	return biztime.SettlementLatency(created, paid), nil
}

// Facts is the set of time-derived values shown next to a line item.
type Facts struct {
	Shift                 biztime.Shift `json:"shift"`
	Deadline              time.Time     `json:"deadline"`
	Overdue               bool          `json:"overdue"`
	ElapsedMinutes        int           `json:"elapsed_minutes"`
	OverdueMinutes        int           `json:"overdue_minutes"`
	PaymentLatencyMinutes *int          `json:"payment_latency_minutes,omitempty"`
}

// Facts computes every temporal fact for the item at now. It fails as a
// whole when the creation stamp is malformed; a malformed payment time
// only leaves the latency empty.
func (li *LineItem) Facts(now time.Time) (Facts, error) {
	created, err := li.CreatedInstant()
	if err != nil {
		return Facts{}, err
	}

	f := Facts{
		Shift:          biztime.AssignShift(created),
		Deadline:       biztime.ComputeDeadline(created),
		ElapsedMinutes: biztime.ElapsedMinutes(created, now),
	}
	if li.Status == vo.PaymentAwaiting {
		f.Overdue = biztime.PastDeadline(created, now)
		f.OverdueMinutes = biztime.MinutesPastDeadline(created, now)
	}
	if latency, err := li.PaymentLatency(); err == nil {
		m := int(latency / time.Minute)
		f.PaymentLatencyMinutes = &m
	}
	return f, nil
}
