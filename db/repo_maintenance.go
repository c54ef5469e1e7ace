package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"toolhub/models"
)

// RecordMaintenance stores an inspection and moves the tool to the new
// condition in one transaction. PreviousCondition is read under a row lock.
// Tools going under maintenance or into retirement are taken off the shelf.
func (r *Repo) RecordMaintenance(ctx context.Context, rec *models.MaintenanceRecord) error {
	if uuid.Validate(rec.ToolID) != nil {
		return notFound("tool", rec.ToolID)
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var t models.Tool
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&t, "id = ?", rec.ToolID).Error; err != nil {
			return err
		}
		prev := t.Condition
		rec.PreviousCondition = &prev

		set := map[string]any{"condition": rec.NewCondition}
		if !rec.NewCondition.Lendable() {
			set["is_available"] = false
		}
		if err := tx.Model(&models.Tool{}).Where("id = ?", t.ID).Updates(set).Error; err != nil {
			return err
		}
		return tx.Create(rec).Error
	})
	return wrap(err, "record maintenance")
}

// MaintenanceRow is a maintenance record with its tool's name.
type MaintenanceRow struct {
	models.MaintenanceRecord
	ToolName string `json:"toolName"`
}

func (r *Repo) ListMaintenance(ctx context.Context, limit int) ([]MaintenanceRow, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var rows []MaintenanceRow
	err := r.DB.WithContext(ctx).
		Table("maintenance_records m").
		Select("m.*, t.name AS tool_name").
		Joins("JOIN " + models.ToolTable + " t ON t.id = m.tool_id").
		Order("m.created_at DESC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, wrap(err, "list maintenance")
	}
	return rows, nil
}

type MaintenanceStats struct {
	NeedsRepair     int64 `json:"needsRepair"`
	UpcomingService int64 `json:"upcomingService"`
}

// MaintenanceStats counts tools needing repair and services due within a week
// of now.
func (r *Repo) MaintenanceStats(ctx context.Context, now time.Time) (MaintenanceStats, error) {
	var s MaintenanceStats
	db := r.DB.WithContext(ctx)
	if err := db.Model(&models.Tool{}).
		Where("condition = ?", models.ConditionNeedsRepair).
		Count(&s.NeedsRepair).Error; err != nil {
		return s, wrap(err, "count needs repair")
	}
	if err := db.Model(&models.MaintenanceRecord{}).
		Where("next_service_date >= ? AND next_service_date <= ?", now, now.Add(7*24*time.Hour)).
		Count(&s.UpcomingService).Error; err != nil {
		return s, wrap(err, "count upcoming service")
	}
	return s, nil
}

// GetImpact returns the user's impact metrics; a user with no returns yet gets
// a zero row.
func (r *Repo) GetImpact(ctx context.Context, userID string) (models.ImpactMetrics, error) {
	var m models.ImpactMetrics
	res := r.DB.WithContext(ctx).Where("user_id = ?", userID).Limit(1).Find(&m)
	if res.Error != nil {
		return m, wrap(res.Error, "impact")
	}
	if res.RowsAffected == 0 {
		return models.ImpactMetrics{UserID: userID}, nil
	}
	return m, nil
}
