// Package lifecycle owns the loan state machine: which role may move a loan from
// one status to another, which timestamps each move stamps, how item availability
// follows the loan, how late returns are fined and how dashboards count loans.
//
// Persistence is behind Store. Every status change is committed through
// Store.CommitTransition as one compare-and-swap on the current status together
// with the item availability flip, so a failed call leaves nothing behind.
package lifecycle

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"toolhub/models"
)

// Actor is whoever triggers an operation. The role is always passed explicitly.
type Actor struct {
	UserID string
	Role   models.Role
}

// System is the actor for transitions the service performs itself.
var System = Actor{Role: models.RoleSystem}

// Item is the lifecycle's view of a tool or hardware sample.
type Item struct {
	Ref       models.ItemRef
	Name      string
	Available bool

	// tools only
	Condition models.ToolCondition
	DailyRate decimal.NullDecimal
	CO2PerUse decimal.NullDecimal

	// hardware samples only
	LoanHours int
}

// Lendable reports whether the item's condition lets it go out. Hardware
// samples carry no condition.
func (i Item) Lendable() bool {
	if i.Ref.Kind() == models.KindTool {
		return i.Condition.Lendable()
	}
	return true
}

// Transition is a validated status change ready to be committed.
type Transition struct {
	// AuditID is the id of the loan_transitions row the commit writes. It is
	// fixed before the first attempt so a retry can tell whether an earlier,
	// unacknowledged attempt already committed.
	AuditID    string
	LoanID     string
	BorrowerID string
	Item       models.ItemRef
	From       models.LoanStatus
	To         models.LoanStatus
	Actor      Actor
	At         time.Time

	// Exactly the timestamp column the edge stamps; the other stays nil.
	ApprovedAt *time.Time
	ReturnedAt *time.Time

	// Fine is set only on late returns.
	Fine decimal.NullDecimal

	// SetAvailable is nil when the item flag is left alone.
	SetAvailable *bool

	// CO2PerUse is credited to the borrower's impact metrics on return.
	CO2PerUse decimal.NullDecimal
}

// LoanFilter narrows ListLoans. Zero values mean "any".
type LoanFilter struct {
	UserID string
	Status models.LoanStatus
	Item   models.ItemRef
	Limit  int
}

// Store is the relational backend as the lifecycle sees it. Implementations
// report failures with this package's sentinel errors (wrapped is fine).
type Store interface {
	GetLoan(ctx context.Context, id string) (models.Loan, error)
	GetItem(ctx context.Context, ref models.ItemRef) (Item, error)
	CreateLoan(ctx context.Context, loan *models.Loan) error

	// CommitTransition applies t atomically: the loan row is updated only if its
	// status is still t.From (else ErrConflictingUpdate), the item availability
	// follows, return bookkeeping and the audit row (id t.AuditID) are written.
	// Returns the updated loan.
	CommitTransition(ctx context.Context, t Transition) (models.Loan, error)

	// SaveFeedback sets rating and feedback on a returned loan owned by userID.
	SaveFeedback(ctx context.Context, loanID, userID string, rating int, feedback string) (models.Loan, error)

	// ListLoans returns loans ordered by requested_at descending.
	ListLoans(ctx context.Context, f LoanFilter) ([]models.Loan, error)
	LoanHistory(ctx context.Context, loanID string) ([]models.LoanTransition, error)
}
