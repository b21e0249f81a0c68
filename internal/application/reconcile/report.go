package reconcile

import (
	"time"

	"github.com/warehouse-ops/ntconsole/internal/domain/ticket"
	vo "github.com/warehouse-ops/ntconsole/internal/domain/ticket/valueobjects"
	"github.com/warehouse-ops/ntconsole/internal/shared/biztime"
)

// ShiftCounts is the tally of one shift.
type ShiftCounts struct {
	Shift    biztime.Shift            `json:"shift"`
	Total    int                      `json:"total"`
	ByStatus map[vo.PaymentStatus]int `json:"by_status"`
	Overdue  int                      `json:"overdue"`
}

// ShiftReport counts the line items created on one business date.
type ShiftReport struct {
	Date   string        `json:"date"`
	Shifts []ShiftCounts `json:"shifts"`
	// Skipped counts items whose creation stamp could not be read.
	Skipped int `json:"skipped"`
}

// ShiftSummary groups the items created on date by shift and status.
// Overdue is evaluated at now.
func ShiftSummary(items []*ticket.LineItem, date string, now time.Time) (ShiftReport, error) {
	day, err := biztime.ParseDate(date)
	if err != nil {
		return ShiftReport{}, err
	}
	report := ShiftReport{Date: day.Format(biztime.DateLayout)}

	counts := make(map[biztime.Shift]*ShiftCounts, len(biztime.Shifts))
	for _, s := range biztime.Shifts {
		c := ShiftCounts{Shift: s, ByStatus: make(map[vo.PaymentStatus]int)}
		report.Shifts = append(report.Shifts, c)
	}
	for i := range report.Shifts {
		counts[report.Shifts[i].Shift] = &report.Shifts[i]
	}

	for _, li := range items {
		created, err := li.CreatedInstant()
		if err != nil {
			report.Skipped++
			continue
		}
		if biztime.FormatDate(created) != report.Date {
			continue
		}
		c := counts[biztime.AssignShift(created)]
		c.Total++
		c.ByStatus[li.Status]++
		if overdue, _ := li.IsOverdue(now); overdue {
			c.Overdue++
		}
	}
	return report, nil
}
