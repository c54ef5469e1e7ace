package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// MaintenanceRecord is one tool-doctor inspection.
type MaintenanceRecord struct {
	ID                string              `gorm:"type:uuid;primaryKey" json:"id"`
	ToolID            string              `gorm:"type:uuid;index;not null" json:"toolId"`
	LoanID            *string             `gorm:"type:uuid;index" json:"loanId,omitempty"`
	InspectedBy       *string             `gorm:"type:uuid" json:"inspectedBy,omitempty"`
	PreviousCondition *ToolCondition      `gorm:"size:32" json:"previousCondition,omitempty"`
	NewCondition      ToolCondition       `gorm:"size:32;not null" json:"newCondition"`
	Notes             string              `gorm:"type:text" json:"notes,omitempty"`
	RepairCost        decimal.NullDecimal `gorm:"type:numeric(10,2)" json:"repairCost"`
	NextServiceDate   *time.Time          `gorm:"index" json:"nextServiceDate,omitempty"`
	CreatedAt         time.Time           `gorm:"index" json:"createdAt"`
}

func (MaintenanceRecord) TableName() string { return "maintenance_records" }

// ImpactMetrics accumulates a member's community impact across returned loans.
type ImpactMetrics struct {
	ID             string          `gorm:"type:uuid;primaryKey" json:"id"`
	UserID         string          `gorm:"type:uuid;uniqueIndex;not null" json:"userId"`
	TotalLoans     int64           `gorm:"not null;default:0" json:"totalLoans"`
	CO2Reduced     decimal.Decimal `gorm:"column:co2_reduced;type:numeric(12,2);not null;default:0" json:"co2Reduced"`
	MoneySaved     decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"moneySaved"`
	CommunityScore int64           `gorm:"not null;default:0" json:"communityScore"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

func (ImpactMetrics) TableName() string { return "impact_metrics" }
