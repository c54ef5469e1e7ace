package lifecycle

import (
	"fmt"
	"slices"
	"time"

	"toolhub/models"
)

type edge struct {
	from, to models.LoanStatus
}

// edges is the whole state machine: every allowed move and who may make it.
// pending is only ever set at creation; overdue is derived, never written.
var edges = map[edge][]models.Role{
	{models.LoanPending, models.LoanApproved}: {models.RoleAdmin},
	{models.LoanPending, models.LoanActive}:   {models.RoleAdmin},
	{models.LoanPending, models.LoanRejected}: {models.RoleAdmin},
	{models.LoanApproved, models.LoanActive}:  {models.RoleAdmin, models.RoleSystem},
	{models.LoanActive, models.LoanReturned}:  {models.RoleAdmin, models.RoleToolDoctor},
}

// AllowedRoles returns the roles permitted on from -> to, or nil when the move
// is not an edge.
func AllowedRoles(from, to models.LoanStatus) []models.Role {
	return slices.Clone(edges[edge{from, to}])
}

// NextStatuses lists the statuses role may move a loan in from to.
func NextStatuses(from models.LoanStatus, role models.Role) []models.LoanStatus {
	var out []models.LoanStatus
	for _, to := range models.LoanStatuses {
		if slices.Contains(edges[edge{from, to}], role) {
			out = append(out, to)
		}
	}
	return out
}

// CheckTransition validates the move without touching any state.
func CheckTransition(from, to models.LoanStatus, role models.Role) error {
	if !to.Valid() {
		return fmt.Errorf("%w: unknown target status %q", ErrInvalidTransition, string(to))
	}
	roles, ok := edges[edge{from, to}]
	if !ok {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	if !slices.Contains(roles, role) {
		return fmt.Errorf("%w: role %s may not move a loan from %s to %s", ErrForbidden, role, from, to)
	}
	return nil
}

// Plan builds the Transition for moving loan to target at now. item is the
// loan's item; fines decides the amount on late returns.
func Plan(loan models.Loan, item Item, target models.LoanStatus, actor Actor, now time.Time, fines FinePolicy) (Transition, error) {
	if err := CheckTransition(loan.Status, target, actor.Role); err != nil {
		return Transition{}, err
	}

	if target.HoldsItem() {
		if !item.Lendable() {
			return Transition{}, fmt.Errorf("%w: %s condition is %s", ErrItemUnavailable, item.Ref, item.Condition)
		}
		// An approved loan already holds the item, so the flag is only
		// meaningful when the item leaves the shelf.
		if !loan.Status.HoldsItem() && !item.Available {
			return Transition{}, fmt.Errorf("%w: %s is withdrawn", ErrItemUnavailable, item.Ref)
		}
	}

	t := Transition{
		LoanID:     loan.ID,
		BorrowerID: loan.UserID,
		Item:       loan.Item(),
		From:       loan.Status,
		To:         target,
		Actor:      actor,
		At:         now,
	}

	switch target {
	case models.LoanApproved:
		t.ApprovedAt = &now
	case models.LoanActive:
		// Pickup after approval keeps the original approval time.
		if loan.ApprovedAt == nil {
			t.ApprovedAt = &now
		}
	case models.LoanReturned:
		t.ReturnedAt = &now
		if loan.DueDate != nil {
			t.Fine = fines.Compute(*loan.DueDate, now, item.DailyRate)
		}
		t.CO2PerUse = item.CO2PerUse
	case models.LoanRejected:
	case models.LoanPending, models.LoanOverdue:
		// unreachable: CheckTransition has no edge into these
		return Transition{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, loan.Status, target)
	default:
		panic(fmt.Sprintf("lifecycle: unhandled loan status %q", string(target)))
	}

	// A tool retired or sent to maintenance while out stays off the shelf.
	switch {
	case target.HoldsItem():
		t.SetAvailable = boolPtr(false)
	case loan.Status.HoldsItem() && item.Lendable():
		t.SetAvailable = boolPtr(true)
	}
	return t, nil
}

func boolPtr(v bool) *bool { return &v }
