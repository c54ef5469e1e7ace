package lifecycle

import (
	"time"

	"toolhub/models"
)

// Summary counts loans by effective status for dashboards.
type Summary struct {
	Active   int `json:"activeCount"`
	Pending  int `json:"pendingCount"`
	Overdue  int `json:"overdueCount"`
	Approved int `json:"approvedCount"`
	Returned int `json:"returnedCount"`
	Rejected int `json:"rejectedCount"`
	Total    int `json:"totalCount"`
}

// EffectiveStatus derives overdue at read time: a loan that is out (stored as
// active, or a legacy stored overdue) is overdue iff its due date has passed,
// otherwise active. Every other status is returned as stored.
func EffectiveStatus(l models.Loan, now time.Time) models.LoanStatus {
	switch l.Status {
	case models.LoanActive, models.LoanOverdue:
		if l.DueDate != nil && l.DueDate.Before(now) {
			return models.LoanOverdue
		}
		return models.LoanActive
	}
	return l.Status
}

// Summarize counts loans in one pass. It never trusts a stored overdue value;
// see EffectiveStatus. Rows with unknown statuses only count toward Total.
func Summarize(loans []models.Loan, now time.Time) Summary {
	var s Summary
	for _, l := range loans {
		s.Total++
		switch EffectiveStatus(l, now) {
		case models.LoanActive:
			s.Active++
		case models.LoanPending:
			s.Pending++
		case models.LoanOverdue:
			s.Overdue++
		case models.LoanApproved:
			s.Approved++
		case models.LoanReturned:
			s.Returned++
		case models.LoanRejected:
			s.Rejected++
		}
	}
	return s
}

// DueOn returns loans that are out and due on now's calendar day (in now's
// location), including ones already past their due time today.
func DueOn(loans []models.Loan, now time.Time) []models.Loan {
	y, m, d := now.Date()
	var out []models.Loan
	for _, l := range loans {
		if l.DueDate == nil {
			continue
		}
		if st := EffectiveStatus(l, now); st != models.LoanActive && st != models.LoanOverdue {
			continue
		}
		dy, dm, dd := l.DueDate.In(now.Location()).Date()
		if dy == y && dm == m && dd == d {
			out = append(out, l)
		}
	}
	return out
}
