package lifecycle

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toolhub/events"
	"toolhub/models"
)

var testNow = time.Date(2025, 4, 2, 10, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	mu   sync.Mutex
	evts []events.LoanTransitioned
	err  error
}

func (n *recordingNotifier) LoanTransitioned(_ context.Context, evt events.LoanTransitioned) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.evts = append(n.evts, evt)
	return n.err
}

func newTestManager(store Store, opts Options) *Manager {
	if opts.Now == nil {
		opts.Now = func() time.Time { return testNow }
	}
	if opts.Backoff == 0 {
		opts.Backoff = time.Millisecond
	}
	return NewManager(store, opts)
}

func seedTool(s *MemoryStore, rate string) models.Tool {
	tool := models.Tool{
		ID:          uuid.NewString(),
		Name:        "Cordless drill",
		Category:    models.CategoryPowerTool,
		Condition:   models.ConditionGood,
		CO2PerUse:   decimal.NewNullDecimal(decimal.RequireFromString("2.5")),
		IsAvailable: true,
	}
	if rate != "" {
		tool.DailyRate = decimal.NewNullDecimal(decimal.RequireFromString(rate))
	}
	s.PutTool(tool)
	return tool
}

func seedLoan(s *MemoryStore, toolID string, status models.LoanStatus, due time.Time) models.Loan {
	loan := models.Loan{
		ID:          uuid.NewString(),
		UserID:      uuid.NewString(),
		ToolID:      &toolID,
		Status:      status,
		RequestedAt: testNow.Add(-10 * 24 * time.Hour),
		DueDate:     &due,
	}
	s.PutLoan(loan)
	return loan
}

var (
	admin  = Actor{UserID: uuid.NewString(), Role: models.RoleAdmin}
	doctor = Actor{UserID: uuid.NewString(), Role: models.RoleToolDoctor}
)

func TestApplyTransition_AdminHandsOutPendingLoan(t *testing.T) {
	store := NewMemoryStore()
	tool := seedTool(store, "")
	loan := seedLoan(store, tool.ID, models.LoanPending, testNow.Add(7*24*time.Hour))
	notifier := &recordingNotifier{}
	m := newTestManager(store, Options{Notifier: notifier})

	got, err := m.ApplyTransition(context.Background(), loan.ID, models.LoanActive, admin)
	require.NoError(t, err)
	assert.Equal(t, models.LoanActive, got.Status)
	require.NotNil(t, got.ApprovedAt)
	assert.Equal(t, testNow, *got.ApprovedAt)
	assert.Nil(t, got.ReturnedAt)

	stored, _ := store.Tool(tool.ID)
	assert.False(t, stored.IsAvailable)

	history, err := m.History(context.Background(), loan.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.LoanPending, history[0].FromStatus)
	assert.Equal(t, models.LoanActive, history[0].ToStatus)
	require.NotNil(t, history[0].ActorID)
	assert.Equal(t, admin.UserID, *history[0].ActorID)

	require.Len(t, notifier.evts, 1)
	evt := notifier.evts[0]
	assert.Equal(t, loan.ID, evt.LoanID)
	assert.Equal(t, "pending", evt.FromStatus)
	assert.Equal(t, "active", evt.ToStatus)
	assert.Equal(t, string(models.KindTool), evt.ItemKind)
	assert.Equal(t, tool.ID, evt.ItemID)
	assert.Empty(t, evt.FineAmount)
}

func TestApplyTransition_ToolDoctorTakesLateReturn(t *testing.T) {
	store := NewMemoryStore()
	tool := seedTool(store, "2.00")
	tool.IsAvailable = false
	store.PutTool(tool)
	loan := seedLoan(store, tool.ID, models.LoanActive, testNow.Add(-50*time.Hour))
	notifier := &recordingNotifier{}
	m := newTestManager(store, Options{Notifier: notifier})

	got, err := m.ApplyTransition(context.Background(), loan.ID, models.LoanReturned, doctor)
	require.NoError(t, err)
	assert.Equal(t, models.LoanReturned, got.Status)
	require.NotNil(t, got.ReturnedAt)
	assert.Equal(t, testNow, *got.ReturnedAt)
	require.True(t, got.FineAmount.Valid)
	assert.Equal(t, "6.00", got.FineAmount.Decimal.StringFixed(2))

	stored, _ := store.Tool(tool.ID)
	assert.True(t, stored.IsAvailable)
	assert.EqualValues(t, 1, stored.TotalLoans)

	impact, ok := store.Impact(loan.UserID)
	require.True(t, ok)
	assert.EqualValues(t, 1, impact.TotalLoans)
	assert.Equal(t, "2.50", impact.CO2Reduced.StringFixed(2))

	require.Len(t, notifier.evts, 1)
	assert.Equal(t, "6.00", notifier.evts[0].FineAmount)
}

func TestApplyTransition_OnTimeReturnHasNoFine(t *testing.T) {
	store := NewMemoryStore()
	tool := seedTool(store, "2.00")
	loan := seedLoan(store, tool.ID, models.LoanActive, testNow.Add(time.Hour))
	m := newTestManager(store, Options{})

	got, err := m.ApplyTransition(context.Background(), loan.ID, models.LoanReturned, admin)
	require.NoError(t, err)
	assert.False(t, got.FineAmount.Valid)
}

func TestApplyTransition_MemberCannotHandOut(t *testing.T) {
	store := NewMemoryStore()
	tool := seedTool(store, "")
	loan := seedLoan(store, tool.ID, models.LoanPending, testNow.Add(time.Hour))
	notifier := &recordingNotifier{}
	m := newTestManager(store, Options{Notifier: notifier})

	member := Actor{UserID: loan.UserID, Role: models.RoleCommunityMember}
	_, err := m.ApplyTransition(context.Background(), loan.ID, models.LoanActive, member)
	require.ErrorIs(t, err, ErrForbidden)

	unchanged, err := m.GetLoan(context.Background(), loan.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LoanPending, unchanged.Status)
	assert.Nil(t, unchanged.ApprovedAt)
	stored, _ := store.Tool(tool.ID)
	assert.True(t, stored.IsAvailable)
	assert.Empty(t, notifier.evts)
}

func TestApplyTransition_Errors(t *testing.T) {
	store := NewMemoryStore()
	tool := seedTool(store, "")
	returned := seedLoan(store, tool.ID, models.LoanReturned, testNow)
	m := newTestManager(store, Options{})
	ctx := context.Background()

	_, err := m.ApplyTransition(ctx, uuid.NewString(), models.LoanActive, admin)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = m.ApplyTransition(ctx, returned.ID, models.LoanActive, admin)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = m.ApplyTransition(ctx, returned.ID, models.LoanStatus("archived"), admin)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	// unknown loan is reported before a bad edge or role
	_, err = m.ApplyTransition(ctx, uuid.NewString(), models.LoanStatus("archived"), Actor{Role: models.RoleCommunityMember})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConfirmPickup(t *testing.T) {
	store := NewMemoryStore()
	tool := seedTool(store, "")
	loan := seedLoan(store, tool.ID, models.LoanPending, testNow.Add(48*time.Hour))
	m := newTestManager(store, Options{})
	ctx := context.Background()

	approved, err := m.ApplyTransition(ctx, loan.ID, models.LoanApproved, admin)
	require.NoError(t, err)
	stored, _ := store.Tool(tool.ID)
	assert.False(t, stored.IsAvailable)

	active, err := m.ConfirmPickup(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LoanActive, active.Status)
	assert.Equal(t, approved.ApprovedAt, active.ApprovedAt)

	history, err := m.History(ctx, loan.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, models.RoleSystem, history[1].ActorRole)
	assert.Nil(t, history[1].ActorID)
}

// gatedStore lets every caller finish GetLoan before any of them commits.
type gatedStore struct {
	*MemoryStore
	read sync.WaitGroup
}

func (s *gatedStore) GetLoan(ctx context.Context, id string) (models.Loan, error) {
	l, err := s.MemoryStore.GetLoan(ctx, id)
	s.read.Done()
	s.read.Wait()
	return l, err
}

func TestApplyTransition_ConcurrentSameExpectedStatus(t *testing.T) {
	mem := NewMemoryStore()
	tool := seedTool(mem, "")
	loan := seedLoan(mem, tool.ID, models.LoanPending, testNow.Add(time.Hour))
	store := &gatedStore{MemoryStore: mem}
	store.read.Add(2)
	m := newTestManager(store, Options{})

	targets := []models.LoanStatus{models.LoanActive, models.LoanRejected}
	errs := make([]error, len(targets))
	var wg sync.WaitGroup
	for i, target := range targets {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = m.ApplyTransition(context.Background(), loan.ID, target, admin)
		}()
	}
	wg.Wait()

	var ok, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrConflictingUpdate):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, conflicts)

	history, err := mem.LoanHistory(context.Background(), loan.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestApplyTransition_SecondLoanOnHeldItemRefused(t *testing.T) {
	store := NewMemoryStore()
	tool := seedTool(store, "")
	first := seedLoan(store, tool.ID, models.LoanPending, testNow.Add(time.Hour))
	second := seedLoan(store, tool.ID, models.LoanPending, testNow.Add(time.Hour))
	m := newTestManager(store, Options{})
	ctx := context.Background()

	_, err := m.ApplyTransition(ctx, first.ID, models.LoanActive, admin)
	require.NoError(t, err)
	_, err = m.ApplyTransition(ctx, second.ID, models.LoanApproved, admin)
	require.ErrorIs(t, err, ErrItemUnavailable)

	// a writer that planned before the first commit still loses at commit time
	_, err = store.CommitTransition(ctx, Transition{
		LoanID: second.ID,
		Item:   models.ToolRef(tool.ID),
		From:   models.LoanPending,
		To:     models.LoanApproved,
		Actor:  admin,
		At:     testNow,
	})
	require.ErrorIs(t, err, ErrConflictingUpdate)

	// rejecting the second one does not touch the item
	_, err = m.ApplyTransition(ctx, second.ID, models.LoanRejected, admin)
	require.NoError(t, err)
	stored, _ := store.Tool(tool.ID)
	assert.False(t, stored.IsAvailable)
}

func TestApplyTransition_WithdrawnOrRetiredToolStaysPut(t *testing.T) {
	ctx := context.Background()

	t.Run("approval of a withdrawn tool", func(t *testing.T) {
		store := NewMemoryStore()
		tool := seedTool(store, "")
		tool.IsAvailable = false
		store.PutTool(tool)
		loan := seedLoan(store, tool.ID, models.LoanPending, testNow.Add(time.Hour))
		m := newTestManager(store, Options{})

		_, err := m.ApplyTransition(ctx, loan.ID, models.LoanApproved, admin)
		require.ErrorIs(t, err, ErrItemUnavailable)
		got, _ := store.GetLoan(ctx, loan.ID)
		assert.Equal(t, models.LoanPending, got.Status)
	})

	t.Run("approval of a tool under maintenance", func(t *testing.T) {
		store := NewMemoryStore()
		tool := seedTool(store, "")
		tool.Condition = models.ConditionUnderMaintenance
		store.PutTool(tool)
		loan := seedLoan(store, tool.ID, models.LoanPending, testNow.Add(time.Hour))
		m := newTestManager(store, Options{})

		_, err := m.ApplyTransition(ctx, loan.ID, models.LoanActive, admin)
		require.ErrorIs(t, err, ErrItemUnavailable)
		stored, _ := store.Tool(tool.ID)
		assert.True(t, stored.IsAvailable)
	})

	t.Run("return of a tool retired while out", func(t *testing.T) {
		store := NewMemoryStore()
		tool := seedTool(store, "")
		tool.IsAvailable = false
		tool.Condition = models.ConditionRetired
		store.PutTool(tool)
		loan := seedLoan(store, tool.ID, models.LoanActive, testNow.Add(time.Hour))
		m := newTestManager(store, Options{})

		got, err := m.ApplyTransition(ctx, loan.ID, models.LoanReturned, doctor)
		require.NoError(t, err)
		assert.Equal(t, models.LoanReturned, got.Status)

		stored, _ := store.Tool(tool.ID)
		assert.False(t, stored.IsAvailable)
		assert.Equal(t, models.ConditionRetired, stored.Condition)
		assert.EqualValues(t, 1, stored.TotalLoans)
	})
}

// lostAckStore commits the first write and then reports the store as
// unavailable, as when a connection drops after COMMIT.
type lostAckStore struct {
	*MemoryStore
	commits atomic.Int32
	creates atomic.Int32
}

func (s *lostAckStore) CommitTransition(ctx context.Context, t Transition) (models.Loan, error) {
	l, err := s.MemoryStore.CommitTransition(ctx, t)
	if err == nil && s.commits.Add(1) == 1 {
		return models.Loan{}, ErrStoreUnavailable
	}
	return l, err
}

func (s *lostAckStore) CreateLoan(ctx context.Context, loan *models.Loan) error {
	err := s.MemoryStore.CreateLoan(ctx, loan)
	if err == nil && s.creates.Add(1) == 1 {
		return ErrStoreUnavailable
	}
	return err
}

func TestApplyTransition_LostCommitAckIsSuccess(t *testing.T) {
	mem := NewMemoryStore()
	tool := seedTool(mem, "")
	loan := seedLoan(mem, tool.ID, models.LoanPending, testNow.Add(time.Hour))
	store := &lostAckStore{MemoryStore: mem}
	notifier := &recordingNotifier{}
	m := newTestManager(store, Options{Retries: 3, Notifier: notifier})
	ctx := context.Background()

	got, err := m.ApplyTransition(ctx, loan.ID, models.LoanActive, admin)
	require.NoError(t, err)
	assert.Equal(t, models.LoanActive, got.Status)

	history, err := mem.LoanHistory(ctx, loan.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
	stored, _ := mem.Tool(tool.ID)
	assert.False(t, stored.IsAvailable)

	require.Len(t, notifier.evts, 1)
	assert.Equal(t, "pending", notifier.evts[0].FromStatus)
	assert.Equal(t, "active", notifier.evts[0].ToStatus)

	// a later call for the same move is still rejected
	_, err = m.ApplyTransition(ctx, loan.ID, models.LoanActive, admin)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestRequestLoan_LostCreateAckIsSuccess(t *testing.T) {
	mem := NewMemoryStore()
	tool := seedTool(mem, "")
	store := &lostAckStore{MemoryStore: mem}
	m := newTestManager(store, Options{Retries: 3})
	ctx := context.Background()
	member := Actor{UserID: uuid.NewString(), Role: models.RoleCommunityMember}

	loan, err := m.RequestLoan(ctx, member, models.ToolRef(tool.ID), "")
	require.NoError(t, err)
	assert.Equal(t, models.LoanPending, loan.Status)

	loans, err := mem.ListLoans(ctx, LoanFilter{UserID: member.UserID})
	require.NoError(t, err)
	require.Len(t, loans, 1)
	assert.Equal(t, loan.ID, loans[0].ID)
}

// brokenStore fails GetLoan with an error that is not worth retrying.
type brokenStore struct {
	*MemoryStore
	calls atomic.Int32
}

func (s *brokenStore) GetLoan(context.Context, string) (models.Loan, error) {
	s.calls.Add(1)
	return models.Loan{}, errors.New("pq: invalid input syntax")
}

type unavailableStore struct {
	*MemoryStore
	calls atomic.Int32
}

func (s *unavailableStore) GetLoan(context.Context, string) (models.Loan, error) {
	s.calls.Add(1)
	return models.Loan{}, ErrStoreUnavailable
}

type slowStore struct {
	*MemoryStore
	calls atomic.Int32
}

func (s *slowStore) GetLoan(ctx context.Context, _ string) (models.Loan, error) {
	s.calls.Add(1)
	<-ctx.Done()
	return models.Loan{}, ctx.Err()
}

func TestApplyTransition_RetriesUnavailableStore(t *testing.T) {
	t.Run("recovers", func(t *testing.T) {
		mem := NewMemoryStore()
		tool := seedTool(mem, "")
		loan := seedLoan(mem, tool.ID, models.LoanPending, testNow.Add(time.Hour))
		store := &recoveringStore{MemoryStore: mem, failures: 2}
		m := newTestManager(store, Options{Retries: 3})

		got, err := m.ApplyTransition(context.Background(), loan.ID, models.LoanApproved, admin)
		require.NoError(t, err)
		assert.Equal(t, models.LoanApproved, got.Status)
		assert.EqualValues(t, 3, store.calls.Load())
	})

	t.Run("gives up", func(t *testing.T) {
		store := &unavailableStore{MemoryStore: NewMemoryStore()}
		m := newTestManager(store, Options{Retries: 2})

		_, err := m.ApplyTransition(context.Background(), uuid.NewString(), models.LoanApproved, admin)
		require.ErrorIs(t, err, ErrStoreUnavailable)
		assert.EqualValues(t, 3, store.calls.Load())
	})

	t.Run("plain errors are not retried", func(t *testing.T) {
		store := &brokenStore{MemoryStore: NewMemoryStore()}
		m := newTestManager(store, Options{Retries: 3})

		_, err := m.ApplyTransition(context.Background(), uuid.NewString(), models.LoanApproved, admin)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrStoreUnavailable)
		assert.EqualValues(t, 1, store.calls.Load())
	})

	t.Run("attempt timeout counts as unavailable", func(t *testing.T) {
		store := &slowStore{MemoryStore: NewMemoryStore()}
		m := newTestManager(store, Options{Retries: 1, Timeout: 10 * time.Millisecond})

		_, err := m.ApplyTransition(context.Background(), uuid.NewString(), models.LoanApproved, admin)
		require.ErrorIs(t, err, ErrStoreUnavailable)
		assert.EqualValues(t, 2, store.calls.Load())
	})
}

// recoveringStore fails GetLoan with ErrStoreUnavailable the first failures times.
type recoveringStore struct {
	*MemoryStore
	failures int32
	calls    atomic.Int32
}

func (s *recoveringStore) GetLoan(ctx context.Context, id string) (models.Loan, error) {
	if s.calls.Add(1) <= s.failures {
		return models.Loan{}, ErrStoreUnavailable
	}
	return s.MemoryStore.GetLoan(ctx, id)
}

func TestApplyTransition_PublishFailureKeepsTransition(t *testing.T) {
	store := NewMemoryStore()
	tool := seedTool(store, "")
	loan := seedLoan(store, tool.ID, models.LoanPending, testNow.Add(time.Hour))
	m := newTestManager(store, Options{Notifier: &recordingNotifier{err: errors.New("broker down")}})

	got, err := m.ApplyTransition(context.Background(), loan.ID, models.LoanApproved, admin)
	require.NoError(t, err)
	assert.Equal(t, models.LoanApproved, got.Status)
}

func TestRequestLoan(t *testing.T) {
	ctx := context.Background()
	member := Actor{UserID: uuid.NewString(), Role: models.RoleCommunityMember}
	architect := Actor{UserID: uuid.NewString(), Role: models.RoleArchitect}

	t.Run("tool loan is due in a week", func(t *testing.T) {
		store := NewMemoryStore()
		tool := seedTool(store, "")
		m := newTestManager(store, Options{})

		loan, err := m.RequestLoan(ctx, member, models.ToolRef(tool.ID), "  ")
		require.NoError(t, err)
		assert.Equal(t, models.LoanPending, loan.Status)
		assert.Equal(t, member.UserID, loan.UserID)
		assert.Equal(t, "General borrowing", loan.Purpose)
		assert.Equal(t, testNow, loan.RequestedAt)
		require.NotNil(t, loan.DueDate)
		assert.Equal(t, testNow.Add(7*24*time.Hour), *loan.DueDate)
		assert.Nil(t, loan.HardwareSampleID)

		stored, err := store.GetLoan(ctx, loan.ID)
		require.NoError(t, err)
		assert.Equal(t, loan.ID, stored.ID)
		// requesting does not reserve the item
		tl, _ := store.Tool(tool.ID)
		assert.True(t, tl.IsAvailable)
	})

	t.Run("hardware trial uses max loan hours", func(t *testing.T) {
		store := NewMemoryStore()
		hours := 24
		sample := models.HardwareSample{ID: uuid.NewString(), Name: "Smart lock", SampleType: "lock", MaxLoanHours: &hours, IsAvailable: true}
		store.PutHardwareSample(sample)
		m := newTestManager(store, Options{})

		loan, err := m.RequestLoan(ctx, architect, models.HardwareSampleRef(sample.ID), "")
		require.NoError(t, err)
		assert.Equal(t, "B2B Trial", loan.Purpose)
		require.NotNil(t, loan.DueDate)
		assert.Equal(t, testNow.Add(24*time.Hour), *loan.DueDate)

		_, err = m.RequestLoan(ctx, member, models.HardwareSampleRef(sample.ID), "")
		require.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("rejections", func(t *testing.T) {
		store := NewMemoryStore()
		busy := seedTool(store, "")
		busy.IsAvailable = false
		store.PutTool(busy)
		broken := seedTool(store, "")
		broken.Condition = models.ConditionUnderMaintenance
		store.PutTool(broken)
		m := newTestManager(store, Options{})

		_, err := m.RequestLoan(ctx, member, models.ItemRef{}, "")
		assert.ErrorIs(t, err, ErrInvalidItemRef)
		_, err = m.RequestLoan(ctx, member, models.ItemRef{ToolID: busy.ID, HardwareSampleID: uuid.NewString()}, "")
		assert.ErrorIs(t, err, ErrInvalidItemRef)
		_, err = m.RequestLoan(ctx, member, models.ToolRef(uuid.NewString()), "")
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = m.RequestLoan(ctx, member, models.ToolRef(busy.ID), "")
		assert.ErrorIs(t, err, ErrItemUnavailable)
		_, err = m.RequestLoan(ctx, member, models.ToolRef(broken.ID), "")
		assert.ErrorIs(t, err, ErrItemUnavailable)
		_, err = m.RequestLoan(ctx, Actor{Role: models.RoleCommunityMember}, models.ToolRef(busy.ID), "")
		assert.ErrorIs(t, err, ErrForbidden)
	})
}

func TestSubmitFeedback(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	tool := seedTool(store, "")
	returned := seedLoan(store, tool.ID, models.LoanReturned, testNow)
	active := seedLoan(store, tool.ID, models.LoanActive, testNow)
	m := newTestManager(store, Options{})
	borrower := Actor{UserID: returned.UserID, Role: models.RoleCommunityMember}

	_, err := m.SubmitFeedback(ctx, borrower, returned.ID, 0, "")
	assert.ErrorIs(t, err, ErrInvalidFeedback)
	_, err = m.SubmitFeedback(ctx, borrower, returned.ID, 6, "")
	assert.ErrorIs(t, err, ErrInvalidFeedback)
	_, err = m.SubmitFeedback(ctx, Actor{UserID: uuid.NewString(), Role: models.RoleAdmin}, returned.ID, 5, "")
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = m.SubmitFeedback(ctx, Actor{UserID: active.UserID}, active.ID, 4, "")
	assert.ErrorIs(t, err, ErrInvalidFeedback)

	got, err := m.SubmitFeedback(ctx, borrower, returned.ID, 4, "  worked great ")
	require.NoError(t, err)
	require.NotNil(t, got.Rating)
	assert.Equal(t, 4, *got.Rating)
	assert.Equal(t, "worked great", got.Feedback)
	assert.Equal(t, models.LoanReturned, got.Status)
}

func TestDashboard(t *testing.T) {
	store := NewMemoryStore()
	tool := seedTool(store, "")
	mine := seedLoan(store, tool.ID, models.LoanActive, testNow.Add(2*time.Hour))
	late := seedLoan(store, tool.ID, models.LoanActive, testNow.Add(-time.Hour))
	late.UserID = mine.UserID
	store.PutLoan(late)
	seedLoan(store, tool.ID, models.LoanPending, testNow.Add(time.Hour))
	m := newTestManager(store, Options{})

	d, err := m.Dashboard(context.Background(), LoanFilter{UserID: mine.UserID})
	require.NoError(t, err)
	assert.Len(t, d.Loans, 2)
	assert.Equal(t, Summary{Active: 1, Overdue: 1, Total: 2}, d.Summary)
	assert.Len(t, d.DueToday, 2)
}
