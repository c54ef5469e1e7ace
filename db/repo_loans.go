package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"toolhub/lifecycle"
	"toolhub/models"
)

var _ lifecycle.Store = (*Repo)(nil)

func (r *Repo) GetLoan(ctx context.Context, id string) (models.Loan, error) {
	if uuid.Validate(id) != nil {
		return models.Loan{}, notFound("loan", id)
	}
	var l models.Loan
	if err := r.DB.WithContext(ctx).First(&l, "id = ?", id).Error; err != nil {
		return models.Loan{}, wrap(err, "loan "+id)
	}
	return l, nil
}

func (r *Repo) GetItem(ctx context.Context, ref models.ItemRef) (lifecycle.Item, error) {
	if err := ref.Validate(); err != nil {
		return lifecycle.Item{}, err
	}
	if uuid.Validate(ref.ID()) != nil {
		return lifecycle.Item{}, notFound(string(ref.Kind()), ref.ID())
	}
	db := r.DB.WithContext(ctx)
	switch ref.Kind() {
	case models.KindTool:
		var t models.Tool
		if err := db.First(&t, "id = ?", ref.ToolID).Error; err != nil {
			return lifecycle.Item{}, wrap(err, ref.String())
		}
		return lifecycle.ToolItem(t), nil
	case models.KindHardwareSample:
		var h models.HardwareSample
		if err := db.First(&h, "id = ?", ref.HardwareSampleID).Error; err != nil {
			return lifecycle.Item{}, wrap(err, ref.String())
		}
		return lifecycle.HardwareItem(h), nil
	}
	return lifecycle.Item{}, models.ErrInvalidItemRef
}

func (r *Repo) CreateLoan(ctx context.Context, loan *models.Loan) error {
	return wrap(r.DB.WithContext(ctx).Create(loan).Error, "create loan")
}

// CommitTransition writes t in one transaction. The loan update is a
// compare-and-swap on the expected status, so two writers racing from the same
// status can't both win; the partial unique indexes reject a second loan
// claiming an item that is already held.
func (r *Repo) CommitTransition(ctx context.Context, t lifecycle.Transition) (models.Loan, error) {
	var out models.Loan
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		set := map[string]any{
			"status":     t.To,
			"updated_at": t.At,
		}
		if t.ApprovedAt != nil {
			set["approved_at"] = *t.ApprovedAt
		}
		if t.ReturnedAt != nil {
			set["returned_at"] = *t.ReturnedAt
		}
		if t.Fine.Valid {
			set["fine_amount"] = t.Fine.Decimal
		}
		res := tx.Model(&models.Loan{}).
			Where("id = ? AND status = ?", t.LoanID, t.From).
			Updates(set)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("loan %s is no longer %s: %w", t.LoanID, t.From, lifecycle.ErrConflictingUpdate)
		}

		if t.SetAvailable != nil {
			if err := setItemAvailable(tx, t.Item, *t.SetAvailable); err != nil {
				return err
			}
		}
		if t.To == models.LoanReturned {
			if err := creditReturn(tx, t); err != nil {
				return err
			}
		}

		audit := models.LoanTransition{
			ID:         t.AuditID,
			LoanID:     t.LoanID,
			ActorRole:  t.Actor.Role,
			FromStatus: t.From,
			ToStatus:   t.To,
			CreatedAt:  t.At,
		}
		if audit.ID == "" {
			audit.ID = uuid.NewString()
		}
		if t.Actor.UserID != "" {
			id := t.Actor.UserID
			audit.ActorID = &id
		}
		if err := tx.Create(&audit).Error; err != nil {
			return err
		}
		return tx.First(&out, "id = ?", t.LoanID).Error
	})
	if err != nil {
		return models.Loan{}, wrap(err, "commit "+string(t.From)+" -> "+string(t.To))
	}
	return out, nil
}

// setItemAvailable writes the item's availability flag. A tool is only put back
// on the shelf while its condition is lendable; the condition is checked in the
// UPDATE itself so a maintenance record committed after planning still wins.
func setItemAvailable(tx *gorm.DB, ref models.ItemRef, available bool) error {
	var model any = &models.Tool{}
	if ref.Kind() == models.KindHardwareSample {
		model = &models.HardwareSample{}
	}
	q := tx.Model(model).Where("id = ?", ref.ID())
	guarded := available && ref.Kind() == models.KindTool
	if guarded {
		q = q.Where("condition IN ?", models.LendableConditions)
	}
	res := q.Update("is_available", available)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 && !guarded {
		return fmt.Errorf("%s: %w", ref, lifecycle.ErrNotFound)
	}
	return nil
}

// creditReturn bumps the tool's loan counter and the borrower's impact metrics.
func creditReturn(tx *gorm.DB, t lifecycle.Transition) error {
	if t.Item.Kind() == models.KindTool {
		if err := tx.Model(&models.Tool{}).
			Where("id = ?", t.Item.ToolID).
			UpdateColumn("total_loans", gorm.Expr("total_loans + 1")).Error; err != nil {
			return err
		}
	}

	co2 := decimal.Zero
	if t.CO2PerUse.Valid {
		co2 = t.CO2PerUse.Decimal
	}
	row := models.ImpactMetrics{
		ID:         uuid.NewString(),
		UserID:     t.BorrowerID,
		TotalLoans: 1,
		CO2Reduced: co2,
		MoneySaved: decimal.Zero,
		UpdatedAt:  t.At,
	}
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"total_loans": gorm.Expr(`"impact_metrics"."total_loans" + 1`),
			"co2_reduced": gorm.Expr(`"impact_metrics"."co2_reduced" + EXCLUDED.co2_reduced`),
			"updated_at":  gorm.Expr("EXCLUDED.updated_at"),
		}),
	}).Create(&row).Error
}

func (r *Repo) SaveFeedback(ctx context.Context, loanID, userID string, rating int, feedback string) (models.Loan, error) {
	var out models.Loan
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Loan{}).
			Where("id = ? AND user_id = ? AND status = ?", loanID, userID, models.LoanReturned).
			Updates(map[string]any{"rating": rating, "feedback": feedback})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("loan %s is not a returned loan of this user: %w", loanID, lifecycle.ErrConflictingUpdate)
		}
		return tx.First(&out, "id = ?", loanID).Error
	})
	if err != nil {
		return models.Loan{}, wrap(err, "feedback")
	}
	return out, nil
}

func (r *Repo) ListLoans(ctx context.Context, f lifecycle.LoanFilter) ([]models.Loan, error) {
	q := r.DB.WithContext(ctx).Model(&models.Loan{}).Order("requested_at DESC, id")
	if f.UserID != "" {
		q = q.Where("user_id = ?", f.UserID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Item.ToolID != "" {
		q = q.Where("tool_id = ?", f.Item.ToolID)
	}
	if f.Item.HardwareSampleID != "" {
		q = q.Where("hardware_sample_id = ?", f.Item.HardwareSampleID)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	var ls []models.Loan
	if err := q.Find(&ls).Error; err != nil {
		return nil, wrap(err, "list loans")
	}
	return ls, nil
}

func (r *Repo) LoanHistory(ctx context.Context, loanID string) ([]models.LoanTransition, error) {
	var rows []models.LoanTransition
	err := r.DB.WithContext(ctx).
		Where("loan_id = ?", loanID).
		Order("created_at, id").
		Find(&rows).Error
	if err != nil {
		return nil, wrap(err, "loan history")
	}
	return rows, nil
}

var heldStatuses = []models.LoanStatus{models.LoanApproved, models.LoanActive, models.LoanOverdue}
