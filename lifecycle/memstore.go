package lifecycle

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"toolhub/models"
)

// MemoryStore is a Store kept in process memory. Every method runs under one
// mutex, which gives CommitTransition the same all-or-nothing behaviour as the
// Postgres store.
type MemoryStore struct {
	mu          sync.Mutex
	tools       map[string]models.Tool
	samples     map[string]models.HardwareSample
	loans       map[string]models.Loan
	transitions []models.LoanTransition
	impact      map[string]models.ImpactMetrics
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tools:   map[string]models.Tool{},
		samples: map[string]models.HardwareSample{},
		loans:   map[string]models.Loan{},
		impact:  map[string]models.ImpactMetrics{},
	}
}

func (s *MemoryStore) PutTool(t models.Tool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tools[t.ID] = t
}

func (s *MemoryStore) PutHardwareSample(h models.HardwareSample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples[h.ID] = h
}

// PutLoan inserts or replaces a loan as is, bypassing every check.
func (s *MemoryStore) PutLoan(l models.Loan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loans[l.ID] = l
}

func (s *MemoryStore) Tool(id string) (models.Tool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tools[id]
	return t, ok
}

func (s *MemoryStore) HardwareSample(id string) (models.HardwareSample, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.samples[id]
	return h, ok
}

func (s *MemoryStore) Impact(userID string) (models.ImpactMetrics, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.impact[userID]
	return m, ok
}

func (s *MemoryStore) GetLoan(ctx context.Context, id string) (models.Loan, error) {
	if err := ctxErr(ctx); err != nil {
		return models.Loan{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.loans[id]
	if !ok {
		return models.Loan{}, fmt.Errorf("loan %s: %w", id, ErrNotFound)
	}
	return l, nil
}

func (s *MemoryStore) GetItem(ctx context.Context, ref models.ItemRef) (Item, error) {
	if err := ctxErr(ctx); err != nil {
		return Item{}, err
	}
	if err := ref.Validate(); err != nil {
		return Item{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	switch ref.Kind() {
	case models.KindTool:
		t, ok := s.tools[ref.ToolID]
		if !ok {
			return Item{}, fmt.Errorf("tool %s: %w", ref.ToolID, ErrNotFound)
		}
		return ToolItem(t), nil
	case models.KindHardwareSample:
		h, ok := s.samples[ref.HardwareSampleID]
		if !ok {
			return Item{}, fmt.Errorf("hardware sample %s: %w", ref.HardwareSampleID, ErrNotFound)
		}
		return HardwareItem(h), nil
	}
	return Item{}, ErrInvalidItemRef
}

func (s *MemoryStore) CreateLoan(ctx context.Context, loan *models.Loan) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.loans[loan.ID]; ok {
		return fmt.Errorf("loan %s: %w", loan.ID, ErrConflictingUpdate)
	}
	now := time.Now().UTC()
	loan.CreatedAt, loan.UpdatedAt = now, now
	s.loans[loan.ID] = *loan
	return nil
}

func (s *MemoryStore) CommitTransition(ctx context.Context, t Transition) (models.Loan, error) {
	if err := ctxErr(ctx); err != nil {
		return models.Loan{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.loans[t.LoanID]
	if !ok {
		return models.Loan{}, fmt.Errorf("loan %s: %w", t.LoanID, ErrNotFound)
	}
	if l.Status != t.From {
		return models.Loan{}, fmt.Errorf("loan %s is %s, expected %s: %w", t.LoanID, l.Status, t.From, ErrConflictingUpdate)
	}
	if t.To.HoldsItem() && s.heldByOther(t.Item, t.LoanID) {
		return models.Loan{}, fmt.Errorf("%s already on loan: %w", t.Item, ErrConflictingUpdate)
	}

	l.Status = t.To
	if t.ApprovedAt != nil {
		l.ApprovedAt = t.ApprovedAt
	}
	if t.ReturnedAt != nil {
		l.ReturnedAt = t.ReturnedAt
	}
	if t.Fine.Valid {
		l.FineAmount = t.Fine
	}
	l.UpdatedAt = t.At
	s.loans[l.ID] = l

	if t.SetAvailable != nil {
		s.setAvailable(t.Item, *t.SetAvailable)
	}
	if t.To == models.LoanReturned {
		s.creditReturn(t)
	}

	row := models.LoanTransition{
		ID:         t.AuditID,
		LoanID:     t.LoanID,
		ActorRole:  t.Actor.Role,
		FromStatus: t.From,
		ToStatus:   t.To,
		CreatedAt:  t.At,
	}
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	if t.Actor.UserID != "" {
		id := t.Actor.UserID
		row.ActorID = &id
	}
	s.transitions = append(s.transitions, row)
	return l, nil
}

func (s *MemoryStore) SaveFeedback(ctx context.Context, loanID, userID string, rating int, feedback string) (models.Loan, error) {
	if err := ctxErr(ctx); err != nil {
		return models.Loan{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.loans[loanID]
	if !ok || l.UserID != userID {
		return models.Loan{}, fmt.Errorf("loan %s: %w", loanID, ErrNotFound)
	}
	if l.Status != models.LoanReturned {
		return models.Loan{}, fmt.Errorf("loan %s is %s: %w", loanID, l.Status, ErrConflictingUpdate)
	}
	l.Rating = &rating
	l.Feedback = feedback
	l.UpdatedAt = time.Now().UTC()
	s.loans[loanID] = l
	return l, nil
}

func (s *MemoryStore) ListLoans(ctx context.Context, f LoanFilter) ([]models.Loan, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Loan
	for _, l := range s.loans {
		if f.UserID != "" && l.UserID != f.UserID {
			continue
		}
		if f.Status != "" && l.Status != f.Status {
			continue
		}
		if f.Item != (models.ItemRef{}) && l.Item() != f.Item {
			continue
		}
		out = append(out, l)
	}
	slices.SortFunc(out, func(a, b models.Loan) int {
		if c := b.RequestedAt.Compare(a.RequestedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *MemoryStore) LoanHistory(ctx context.Context, loanID string) ([]models.LoanTransition, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.LoanTransition
	for _, t := range s.transitions {
		if t.LoanID == loanID {
			out = append(out, t)
		}
	}
	return out, nil
}

// heldByOther reports whether a loan other than loanID holds ref.
func (s *MemoryStore) heldByOther(ref models.ItemRef, loanID string) bool {
	for id, l := range s.loans {
		if id != loanID && l.Item() == ref && l.Status.Valid() && l.Status.HoldsItem() {
			return true
		}
	}
	return false
}

func (s *MemoryStore) setAvailable(ref models.ItemRef, v bool) {
	switch ref.Kind() {
	case models.KindTool:
		if t, ok := s.tools[ref.ToolID]; ok {
			t.IsAvailable = v
			s.tools[t.ID] = t
		}
	case models.KindHardwareSample:
		if h, ok := s.samples[ref.HardwareSampleID]; ok {
			h.IsAvailable = v
			s.samples[h.ID] = h
		}
	}
}

func (s *MemoryStore) creditReturn(t Transition) {
	if ref := t.Item; ref.Kind() == models.KindTool {
		if tool, ok := s.tools[ref.ToolID]; ok {
			tool.TotalLoans++
			s.tools[tool.ID] = tool
		}
	}
	m, ok := s.impact[t.BorrowerID]
	if !ok {
		m = models.ImpactMetrics{ID: uuid.NewString(), UserID: t.BorrowerID}
	}
	m.TotalLoans++
	if t.CO2PerUse.Valid {
		m.CO2Reduced = m.CO2Reduced.Add(t.CO2PerUse.Decimal)
	}
	m.UpdatedAt = t.At
	s.impact[t.BorrowerID] = m
}

// ToolItem converts a catalog row into the lifecycle's item view.
func ToolItem(t models.Tool) Item {
	return Item{
		Ref:       models.ToolRef(t.ID),
		Name:      t.Name,
		Available: t.IsAvailable,
		Condition: t.Condition,
		DailyRate: t.DailyRate,
		CO2PerUse: t.CO2PerUse,
	}
}

func HardwareItem(h models.HardwareSample) Item {
	return Item{
		Ref:       models.HardwareSampleRef(h.ID),
		Name:      h.Name,
		Available: h.IsAvailable,
		LoanHours: h.LoanHours(),
	}
}

// ctxErr makes an expired context look like an unreachable backend.
func ctxErr(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return nil
}
