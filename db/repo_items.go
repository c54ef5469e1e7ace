package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"toolhub/lifecycle"
	"toolhub/models"
)

type ToolQuery struct {
	Q             string // name, brand or description
	Category      models.ToolCategory
	AvailableOnly bool
}

func (r *Repo) ListTools(ctx context.Context, q ToolQuery) ([]models.Tool, error) {
	tx := r.DB.WithContext(ctx).Model(&models.Tool{})
	if s := strings.TrimSpace(q.Q); s != "" {
		pat := "%" + strings.ToLower(s) + "%"
		tx = tx.Where("LOWER(name) LIKE ? OR LOWER(brand) LIKE ? OR LOWER(description) LIKE ?", pat, pat, pat)
	}
	if q.Category != "" {
		tx = tx.Where("category = ?", q.Category)
	}
	if q.AvailableOnly {
		tx = tx.Where("is_available = TRUE")
	}
	var tools []models.Tool
	if err := tx.Order("name").Find(&tools).Error; err != nil {
		return nil, wrap(err, "list tools")
	}
	return tools, nil
}

type HardwareQuery struct {
	Q             string // name, brand or sample type
	AvailableOnly bool
}

func (r *Repo) ListHardwareSamples(ctx context.Context, q HardwareQuery) ([]models.HardwareSample, error) {
	tx := r.DB.WithContext(ctx).Model(&models.HardwareSample{})
	if s := strings.TrimSpace(q.Q); s != "" {
		pat := "%" + strings.ToLower(s) + "%"
		tx = tx.Where("LOWER(name) LIKE ? OR LOWER(brand) LIKE ? OR LOWER(sample_type) LIKE ?", pat, pat, pat)
	}
	if q.AvailableOnly {
		tx = tx.Where("is_available = TRUE")
	}
	var rows []models.HardwareSample
	if err := tx.Order("name").Find(&rows).Error; err != nil {
		return nil, wrap(err, "list hardware samples")
	}
	return rows, nil
}

func (r *Repo) GetTool(ctx context.Context, id string) (*models.Tool, error) {
	if uuid.Validate(id) != nil {
		return nil, notFound("tool", id)
	}
	var t models.Tool
	if err := r.DB.WithContext(ctx).First(&t, "id = ?", id).Error; err != nil {
		return nil, wrap(err, "tool "+id)
	}
	return &t, nil
}

func (r *Repo) GetHardwareSample(ctx context.Context, id string) (*models.HardwareSample, error) {
	if uuid.Validate(id) != nil {
		return nil, notFound("hardware sample", id)
	}
	var h models.HardwareSample
	if err := r.DB.WithContext(ctx).First(&h, "id = ?", id).Error; err != nil {
		return nil, wrap(err, "hardware sample "+id)
	}
	return &h, nil
}

func (r *Repo) CreateTool(ctx context.Context, t *models.Tool) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return wrap(r.DB.WithContext(ctx).Create(t).Error, "create tool")
}

func (r *Repo) CreateHardwareSample(ctx context.Context, h *models.HardwareSample) error {
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	return wrap(r.DB.WithContext(ctx).Create(h).Error, "create hardware sample")
}

// SetItemAvailability is the admin toggle. Marking an item available while an
// approved or active loan holds it fails with ErrConflictingUpdate; the item
// row is locked so a concurrent approval can't slip in between.
func (r *Repo) SetItemAvailability(ctx context.Context, ref models.ItemRef, available bool) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	if uuid.Validate(ref.ID()) != nil {
		return notFound(string(ref.Kind()), ref.ID())
	}
	table, col := itemTable(ref)
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var locked struct{ ID string }
		if err := tx.Table(table).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id").
			Where("id = ?", ref.ID()).
			Take(&locked).Error; err != nil {
			return err
		}
		if available {
			var held int64
			if err := tx.Model(&models.Loan{}).
				Where(col+" = ? AND status IN ?", ref.ID(), heldStatuses).
				Count(&held).Error; err != nil {
				return err
			}
			if held > 0 {
				return fmt.Errorf("%s is on loan: %w", ref, lifecycle.ErrConflictingUpdate)
			}
		}
		return tx.Table(table).
			Where("id = ?", ref.ID()).
			Updates(map[string]any{"is_available": available, "updated_at": time.Now().UTC()}).Error
	})
	return wrap(err, "availability "+ref.String())
}

func (r *Repo) UpdateToolCondition(ctx context.Context, id string, cond models.ToolCondition) (*models.Tool, error) {
	if uuid.Validate(id) != nil {
		return nil, notFound("tool", id)
	}
	var t models.Tool
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Tool{}).Where("id = ?", id).Update("condition", cond)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.First(&t, "id = ?", id).Error
	})
	if err != nil {
		return nil, wrap(err, "tool "+id)
	}
	return &t, nil
}

func (r *Repo) SetItemImage(ctx context.Context, ref models.ItemRef, url string) error {
	table, _ := itemTable(ref)
	res := r.DB.WithContext(ctx).Table(table).
		Where("id = ?", ref.ID()).
		Updates(map[string]any{"image_url": url, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return wrap(res.Error, "image "+ref.String())
	}
	if res.RowsAffected == 0 {
		return notFound(string(ref.Kind()), ref.ID())
	}
	return nil
}

type CatalogCounts struct {
	Tools           int64 `json:"totalTools"`
	HardwareSamples int64 `json:"totalHardware"`
}

func (r *Repo) CountCatalog(ctx context.Context) (CatalogCounts, error) {
	var c CatalogCounts
	db := r.DB.WithContext(ctx)
	if err := db.Model(&models.Tool{}).Count(&c.Tools).Error; err != nil {
		return c, wrap(err, "count tools")
	}
	if err := db.Model(&models.HardwareSample{}).Count(&c.HardwareSamples).Error; err != nil {
		return c, wrap(err, "count hardware samples")
	}
	return c, nil
}

// InventoryRow is a tool together with the loan currently holding it, if any.
type InventoryRow struct {
	ID          string               `json:"id"`
	Name        string               `json:"name"`
	Category    models.ToolCategory  `json:"category"`
	Condition   models.ToolCondition `json:"condition"`
	IsAvailable bool                 `json:"isAvailable"`
	TotalLoans  int64                `json:"totalLoans"`

	LoanID              *string            `json:"loanId,omitempty"`
	LoanStatus          *models.LoanStatus `json:"loanStatus,omitempty"`
	BorrowerID          *string            `json:"borrowerId,omitempty"`
	BorrowerUsername    *string            `json:"borrowerUsername,omitempty"`
	BorrowerDisplayName *string            `json:"borrowerDisplayName,omitempty"`
	DueDate             *time.Time         `json:"dueDate,omitempty"`
	Overdue             bool               `json:"overdue"`
}

type InventoryQuery struct {
	Q      string
	Filter string // "", "held", "available", "overdue", "maintenance"
	Page   int
	Size   int
}

type PagedInventory struct {
	Total int64          `json:"total"`
	Items []InventoryRow `json:"items"`
}

// ListInventory is the admin inventory view. Overdue is computed from due_date
// against NOW(), never read from a stored status.
func (r *Repo) ListInventory(ctx context.Context, q InventoryQuery) (*PagedInventory, error) {
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.Size <= 0 || q.Size > 200 {
		q.Size = 20
	}
	db := r.DB.WithContext(ctx)

	held := db.
		Table(models.LoanTable+" l").
		Select(`DISTINCT ON (l.tool_id) l.id, l.tool_id, l.user_id, l.status, l.due_date`).
		Where("l.tool_id IS NOT NULL AND l.status IN ?", heldStatuses).
		Order("l.tool_id, l.requested_at DESC")

	filter := func(tx *gorm.DB) *gorm.DB {
		tx = tx.Joins("LEFT JOIN (?) AS hl ON hl.tool_id = t.id", held)
		if s := strings.TrimSpace(q.Q); s != "" {
			pat := "%" + strings.ToLower(s) + "%"
			tx = tx.Where("LOWER(t.name) LIKE ? OR LOWER(t.brand) LIKE ?", pat, pat)
		}
		switch q.Filter {
		case "held":
			tx = tx.Where("hl.id IS NOT NULL")
		case "available":
			tx = tx.Where("t.is_available = TRUE")
		case "overdue":
			tx = tx.Where("hl.status IN ? AND hl.due_date < NOW()", []models.LoanStatus{models.LoanActive, models.LoanOverdue})
		case "maintenance":
			tx = tx.Where("t.condition IN ?", []models.ToolCondition{models.ConditionNeedsRepair, models.ConditionUnderMaintenance})
		}
		return tx
	}

	var total int64
	if err := filter(db.Table(models.ToolTable + " t")).Count(&total).Error; err != nil {
		return nil, wrap(err, "count inventory")
	}

	var rows []InventoryRow
	err := filter(db.Table(models.ToolTable+" t")).
		Select(`
			t.id, t.name, t.category, t.condition, t.is_available, t.total_loans,
			hl.id          AS loan_id,
			hl.status      AS loan_status,
			hl.user_id     AS borrower_id,
			hl.due_date,
			u.username     AS borrower_username,
			u.display_name AS borrower_display_name,
			CASE WHEN hl.status IN ('active', 'overdue') AND hl.due_date < NOW() THEN TRUE ELSE FALSE END AS overdue
		`).
		Joins("LEFT JOIN users u ON u.id = hl.user_id").
		Order("t.name").
		Offset((q.Page - 1) * q.Size).
		Limit(q.Size).
		Scan(&rows).Error
	if err != nil {
		return nil, wrap(err, "list inventory")
	}
	return &PagedInventory{Total: total, Items: rows}, nil
}

func itemTable(ref models.ItemRef) (table, loanColumn string) {
	if ref.Kind() == models.KindHardwareSample {
		return models.HardwareSampleTable, "hardware_sample_id"
	}
	return models.ToolTable, "tool_id"
}
