package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"toolhub/events"
	"toolhub/logging"
	"toolhub/models"
)

const (
	DefaultTimeout = 3 * time.Second
	DefaultRetries = 3
	DefaultBackoff = 100 * time.Millisecond

	// ToolLoanPeriod is the due date offset for tool loans.
	ToolLoanPeriod = 7 * day

	maxFeedbackLen = 2000
)

// TransitionNotifier hears about every committed transition.
type TransitionNotifier interface {
	LoanTransitioned(ctx context.Context, evt events.LoanTransitioned) error
}

type Options struct {
	// Timeout bounds each attempt against the store.
	Timeout time.Duration
	// Retries is how many times ErrStoreUnavailable is retried.
	Retries uint64
	// Backoff is the first retry delay; it doubles per attempt.
	Backoff time.Duration

	Fines    FinePolicy
	Notifier TransitionNotifier
	Logger   logging.Logger
	Now      func() time.Time
}

type Manager struct {
	store    Store
	notifier TransitionNotifier
	log      logging.Logger
	now      func() time.Time
	fines    FinePolicy

	timeout time.Duration
	retries uint64
	backoff time.Duration
}

func NewManager(store Store, opts Options) *Manager {
	m := &Manager{
		store:    store,
		notifier: opts.Notifier,
		log:      opts.Logger,
		now:      opts.Now,
		fines:    opts.Fines,
		timeout:  opts.Timeout,
		retries:  opts.Retries,
		backoff:  opts.Backoff,
	}
	if m.log == nil {
		m.log = logging.Discard()
	}
	m.log = m.log.With("component", "lifecycle")
	if m.now == nil {
		m.now = func() time.Time { return time.Now().UTC() }
	}
	if m.timeout <= 0 {
		m.timeout = DefaultTimeout
	}
	if m.backoff <= 0 {
		m.backoff = DefaultBackoff
	}
	return m
}

// ApplyTransition moves loan loanID to target on behalf of actor.
//
// Fails with ErrNotFound (unknown loan), ErrInvalidTransition (not an edge),
// ErrForbidden (role not allowed on the edge), ErrItemUnavailable (the item
// can't go out), ErrConflictingUpdate (someone else moved the loan first) or
// ErrStoreUnavailable (after retries). On any failure the loan and its item are
// unchanged.
//
// When a commit succeeds but its acknowledgement is lost, the retry finds the
// audit row written under this call's AuditID and reports success.
func (m *Manager) ApplyTransition(ctx context.Context, loanID string, target models.LoanStatus, actor Actor) (models.Loan, error) {
	var (
		auditID   = uuid.NewString()
		attempted bool
		updated   models.Loan
		applied   Transition
	)
	err := m.do(ctx, func(ctx context.Context) error {
		loan, err := m.store.GetLoan(ctx, loanID)
		if err != nil {
			return err
		}
		if attempted && loan.Status == target {
			done, err := m.committed(ctx, loanID, auditID)
			if err != nil {
				return err
			}
			if done {
				updated = loan
				return nil
			}
		}
		if err := CheckTransition(loan.Status, target, actor.Role); err != nil {
			return err
		}
		item, err := m.store.GetItem(ctx, loan.Item())
		if err != nil {
			return fmt.Errorf("item %s: %w", loan.Item(), err)
		}
		t, err := Plan(loan, item, target, actor, m.now(), m.fines)
		if err != nil {
			return err
		}
		t.AuditID = auditID
		applied, attempted = t, true
		updated, err = m.store.CommitTransition(ctx, t)
		return err
	})
	if err != nil {
		m.log.Warn(ctx, "transition rejected", "loan_id", loanID, "to", target, "role", actor.Role, "err", err)
		return models.Loan{}, err
	}

	m.log.Info(ctx, "loan transitioned", "loan_id", loanID, "from", applied.From, "to", applied.To, "role", actor.Role, "actor_id", actor.UserID)
	m.notify(ctx, applied)
	return updated, nil
}

// committed reports whether the audit row auditID exists for loanID.
func (m *Manager) committed(ctx context.Context, loanID, auditID string) (bool, error) {
	rows, err := m.store.LoanHistory(ctx, loanID)
	if err != nil {
		return false, err
	}
	for _, r := range rows {
		if r.ID == auditID {
			return true, nil
		}
	}
	return false, nil
}

// ConfirmPickup is the automatic approved -> active move made when the borrower
// collects the item.
func (m *Manager) ConfirmPickup(ctx context.Context, loanID string) (models.Loan, error) {
	return m.ApplyTransition(ctx, loanID, models.LoanActive, System)
}

// RequestLoan creates a pending loan for borrower on the referenced item. The due
// date comes from the item's loan policy: seven days for tools, the sample's
// max_loan_hours for hardware samples.
func (m *Manager) RequestLoan(ctx context.Context, borrower Actor, ref models.ItemRef, purpose string) (models.Loan, error) {
	if err := ref.Validate(); err != nil {
		return models.Loan{}, ErrInvalidItemRef
	}
	if borrower.UserID == "" {
		return models.Loan{}, fmt.Errorf("%w: anonymous borrower", ErrForbidden)
	}
	if ref.Kind() == models.KindHardwareSample && !borrower.Role.CanRequestHardware() {
		return models.Loan{}, fmt.Errorf("%w: hardware samples are available to architects only", ErrForbidden)
	}

	purpose = strings.TrimSpace(purpose)
	loan := models.Loan{
		ID:      uuid.NewString(),
		UserID:  borrower.UserID,
		Status:  models.LoanPending,
		Purpose: purpose,
	}
	switch ref.Kind() {
	case models.KindTool:
		id := ref.ToolID
		loan.ToolID = &id
		if loan.Purpose == "" {
			loan.Purpose = "General borrowing"
		}
	case models.KindHardwareSample:
		id := ref.HardwareSampleID
		loan.HardwareSampleID = &id
		if loan.Purpose == "" {
			loan.Purpose = "B2B Trial"
		}
	}

	var attempted bool
	err := m.do(ctx, func(ctx context.Context) error {
		// The id is fresh, so finding it means an earlier attempt's insert
		// landed and only its acknowledgement was lost.
		if attempted {
			stored, err := m.store.GetLoan(ctx, loan.ID)
			switch {
			case err == nil:
				loan = stored
				return nil
			case !errors.Is(err, ErrNotFound):
				return err
			}
		}
		item, err := m.store.GetItem(ctx, ref)
		if err != nil {
			return err
		}
		if !item.Available {
			return fmt.Errorf("%w: %s is on loan or withdrawn", ErrItemUnavailable, ref)
		}
		if !item.Lendable() {
			return fmt.Errorf("%w: tool condition is %s", ErrItemUnavailable, item.Condition)
		}

		now := m.now()
		due := now.Add(ToolLoanPeriod)
		if ref.Kind() == models.KindHardwareSample {
			hours := item.LoanHours
			if hours <= 0 {
				hours = models.DefaultHardwareLoanHours
			}
			due = now.Add(time.Duration(hours) * time.Hour)
		}
		loan.RequestedAt = now
		loan.DueDate = &due
		attempted = true
		return m.store.CreateLoan(ctx, &loan)
	})
	if err != nil {
		m.log.Warn(ctx, "loan request rejected", "item", ref.String(), "user_id", borrower.UserID, "err", err)
		return models.Loan{}, err
	}
	m.log.Info(ctx, "loan requested", "loan_id", loan.ID, "item", ref.String(), "user_id", borrower.UserID)
	return loan, nil
}

// SubmitFeedback lets a borrower rate (1..5) a loan once it has been returned.
func (m *Manager) SubmitFeedback(ctx context.Context, borrower Actor, loanID string, rating int, feedback string) (models.Loan, error) {
	if rating < 1 || rating > 5 {
		return models.Loan{}, fmt.Errorf("%w: rating must be between 1 and 5", ErrInvalidFeedback)
	}
	feedback = strings.TrimSpace(feedback)
	if len(feedback) > maxFeedbackLen {
		return models.Loan{}, fmt.Errorf("%w: feedback longer than %d bytes", ErrInvalidFeedback, maxFeedbackLen)
	}

	var out models.Loan
	err := m.do(ctx, func(ctx context.Context) error {
		loan, err := m.store.GetLoan(ctx, loanID)
		if err != nil {
			return err
		}
		if loan.UserID != borrower.UserID {
			return fmt.Errorf("%w: not your loan", ErrForbidden)
		}
		if loan.Status != models.LoanReturned {
			return fmt.Errorf("%w: loan is %s, feedback opens after return", ErrInvalidFeedback, loan.Status)
		}
		out, err = m.store.SaveFeedback(ctx, loanID, borrower.UserID, rating, feedback)
		return err
	})
	if err != nil {
		return models.Loan{}, err
	}
	return out, nil
}

func (m *Manager) GetLoan(ctx context.Context, loanID string) (models.Loan, error) {
	var loan models.Loan
	err := m.do(ctx, func(ctx context.Context) error {
		var err error
		loan, err = m.store.GetLoan(ctx, loanID)
		return err
	})
	return loan, err
}

func (m *Manager) ListLoans(ctx context.Context, f LoanFilter) ([]models.Loan, error) {
	var loans []models.Loan
	err := m.do(ctx, func(ctx context.Context) error {
		var err error
		loans, err = m.store.ListLoans(ctx, f)
		return err
	})
	return loans, err
}

func (m *Manager) History(ctx context.Context, loanID string) ([]models.LoanTransition, error) {
	var rows []models.LoanTransition
	err := m.do(ctx, func(ctx context.Context) error {
		if _, err := m.store.GetLoan(ctx, loanID); err != nil {
			return err
		}
		var err error
		rows, err = m.store.LoanHistory(ctx, loanID)
		return err
	})
	return rows, err
}

// Dashboard is a member's or architect's view of their own loans.
type Dashboard struct {
	Loans    []models.Loan `json:"loans"`
	Summary  Summary       `json:"summary"`
	DueToday []models.Loan `json:"dueToday"`
}

func (m *Manager) Dashboard(ctx context.Context, f LoanFilter) (Dashboard, error) {
	loans, err := m.ListLoans(ctx, f)
	if err != nil {
		return Dashboard{}, err
	}
	now := m.now()
	return Dashboard{Loans: loans, Summary: Summarize(loans, now), DueToday: DueOn(loans, now)}, nil
}

// Summarize counts loans as of the manager's clock.
func (m *Manager) Summarize(loans []models.Loan) Summary {
	return Summarize(loans, m.now())
}

func (m *Manager) EffectiveStatus(l models.Loan) models.LoanStatus {
	return EffectiveStatus(l, m.now())
}

// do runs fn with a per-attempt timeout, retrying ErrStoreUnavailable with
// exponential backoff. A per-attempt deadline counts as unavailability; the
// caller's own cancellation does not.
func (m *Manager) do(ctx context.Context, fn func(ctx context.Context) error) error {
	b := retry.WithMaxRetries(m.retries, retry.NewExponential(m.backoff))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, m.timeout)
		defer cancel()

		err := fn(attemptCtx)
		if err == nil {
			return nil
		}
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, ErrStoreUnavailable) {
			err = fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
		}
		if errors.Is(err, ErrStoreUnavailable) {
			m.log.Warn(ctx, "store unavailable", "err", err)
			return retry.RetryableError(err)
		}
		return err
	})
}

func (m *Manager) notify(ctx context.Context, t Transition) {
	if m.notifier == nil {
		return
	}
	evt := events.LoanTransitioned{
		LoanID:     t.LoanID,
		UserID:     t.BorrowerID,
		ItemKind:   string(t.Item.Kind()),
		ItemID:     t.Item.ID(),
		FromStatus: string(t.From),
		ToStatus:   string(t.To),
		ActorID:    t.Actor.UserID,
		ActorRole:  string(t.Actor.Role),
		At:         t.At,
	}
	if t.Fine.Valid {
		evt.FineAmount = t.Fine.Decimal.StringFixed(2)
	}
	if err := m.notifier.LoanTransitioned(ctx, evt); err != nil {
		m.log.Error(ctx, "publish loan event", "loan_id", t.LoanID, "err", err)
	}
}
