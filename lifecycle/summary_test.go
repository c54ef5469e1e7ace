package lifecycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"toolhub/models"
)

func loanWith(status models.LoanStatus, due *time.Time) models.Loan {
	return models.Loan{ID: string(status), Status: status, DueDate: due}
}

func TestSummarize(t *testing.T) {
	now := time.Date(2025, 6, 1, 15, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	t.Run("empty", func(t *testing.T) {
		assert.Equal(t, Summary{}, Summarize(nil, now))
	})

	t.Run("active past due counts as overdue only", func(t *testing.T) {
		s := Summarize([]models.Loan{loanWith(models.LoanActive, &past)}, now)
		assert.Equal(t, Summary{Overdue: 1, Total: 1}, s)
	})

	t.Run("stored overdue that is not late is active", func(t *testing.T) {
		s := Summarize([]models.Loan{loanWith(models.LoanOverdue, &future)}, now)
		assert.Equal(t, Summary{Active: 1, Total: 1}, s)
	})

	t.Run("mixed", func(t *testing.T) {
		loans := []models.Loan{
			loanWith(models.LoanPending, &future),
			loanWith(models.LoanPending, &past),
			loanWith(models.LoanApproved, &past),
			loanWith(models.LoanActive, &future),
			loanWith(models.LoanActive, nil),
			loanWith(models.LoanActive, &past),
			loanWith(models.LoanReturned, &past),
			loanWith(models.LoanRejected, nil),
			loanWith(models.LoanStatus("archived"), nil),
		}
		assert.Equal(t, Summary{
			Active:   2,
			Pending:  2,
			Overdue:  1,
			Approved: 1,
			Returned: 1,
			Rejected: 1,
			Total:    9,
		}, Summarize(loans, now))
	})
}

func TestDueOn(t *testing.T) {
	now := time.Date(2025, 6, 1, 15, 0, 0, 0, time.UTC)
	morning := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	evening := time.Date(2025, 6, 1, 20, 0, 0, 0, time.UTC)
	tomorrow := evening.Add(24 * time.Hour)

	loans := []models.Loan{
		{ID: "a", Status: models.LoanActive, DueDate: &evening},
		{ID: "b", Status: models.LoanActive, DueDate: &morning},
		{ID: "c", Status: models.LoanActive, DueDate: &tomorrow},
		{ID: "d", Status: models.LoanReturned, DueDate: &evening},
		{ID: "e", Status: models.LoanPending, DueDate: &evening},
		{ID: "f", Status: models.LoanActive},
	}
	got := DueOn(loans, now)
	ids := make([]string, 0, len(got))
	for _, l := range got {
		ids = append(ids, l.ID)
	}
	assert.Equal(t, []string{"a", "b"}, ids)
}
