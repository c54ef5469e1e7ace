package models

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

const (
	ToolTable           = "tools"
	HardwareSampleTable = "hardware_samples"
)

// ItemKind names the concrete item table a loan points at.
type ItemKind string

const (
	KindTool           ItemKind = ToolTable
	KindHardwareSample ItemKind = HardwareSampleTable
)

func ParseItemKind(s string) (ItemKind, error) {
	switch ItemKind(s) {
	case KindTool, KindHardwareSample:
		return ItemKind(s), nil
	}
	return "", fmt.Errorf("unknown item kind %q", s)
}

var ErrInvalidItemRef = errors.New("exactly one of toolId or hardwareSampleId is required")

// ItemRef points at exactly one tool or hardware sample.
type ItemRef struct {
	ToolID           string `json:"toolId,omitempty"`
	HardwareSampleID string `json:"hardwareSampleId,omitempty"`
}

func ToolRef(id string) ItemRef           { return ItemRef{ToolID: id} }
func HardwareSampleRef(id string) ItemRef { return ItemRef{HardwareSampleID: id} }

func (r ItemRef) Validate() error {
	if (r.ToolID == "") == (r.HardwareSampleID == "") {
		return ErrInvalidItemRef
	}
	return nil
}

// Kind assumes the ref is valid.
func (r ItemRef) Kind() ItemKind {
	if r.ToolID != "" {
		return KindTool
	}
	return KindHardwareSample
}

func (r ItemRef) ID() string {
	if r.ToolID != "" {
		return r.ToolID
	}
	return r.HardwareSampleID
}

func (r ItemRef) String() string { return string(r.Kind()) + "/" + r.ID() }

type ToolCategory string

const (
	CategoryPowerTool       ToolCategory = "power_tool"
	CategoryHandTool        ToolCategory = "hand_tool"
	CategoryHardwareSample  ToolCategory = "hardware_sample"
	CategoryMeasurement     ToolCategory = "measurement"
	CategorySafetyEquipment ToolCategory = "safety_equipment"
)

func ParseToolCategory(s string) (ToolCategory, error) {
	switch c := ToolCategory(s); c {
	case CategoryPowerTool, CategoryHandTool, CategoryHardwareSample, CategoryMeasurement, CategorySafetyEquipment:
		return c, nil
	}
	return "", fmt.Errorf("unknown tool category %q", s)
}

type ToolCondition string

const (
	ConditionExcellent        ToolCondition = "excellent"
	ConditionGood             ToolCondition = "good"
	ConditionNeedsRepair      ToolCondition = "needs_repair"
	ConditionUnderMaintenance ToolCondition = "under_maintenance"
	ConditionRetired          ToolCondition = "retired"
)

func ParseToolCondition(s string) (ToolCondition, error) {
	switch c := ToolCondition(s); c {
	case ConditionExcellent, ConditionGood, ConditionNeedsRepair, ConditionUnderMaintenance, ConditionRetired:
		return c, nil
	}
	return "", fmt.Errorf("unknown tool condition %q", s)
}

// LendableConditions are the conditions a tool may be lent out in.
var LendableConditions = []ToolCondition{ConditionExcellent, ConditionGood, ConditionNeedsRepair}

// Lendable reports whether a tool in this condition may be requested.
func (c ToolCondition) Lendable() bool {
	return slices.Contains(LendableConditions, c)
}

type Tool struct {
	ID               string              `gorm:"type:uuid;primaryKey" json:"id"`
	Name             string              `gorm:"size:200;not null;index" json:"name"`
	Brand            string              `gorm:"size:120" json:"brand,omitempty"`
	Model            string              `gorm:"size:120" json:"model,omitempty"`
	Description      string              `gorm:"type:text" json:"description,omitempty"`
	ImageURL         string              `gorm:"size:500" json:"imageUrl,omitempty"`
	Category         ToolCategory        `gorm:"size:32;not null;index" json:"category"`
	Condition        ToolCondition       `gorm:"size:32;not null;default:'good'" json:"condition"`
	DailyRate        decimal.NullDecimal `gorm:"type:numeric(10,2)" json:"dailyRate"`
	ReplacementValue decimal.NullDecimal `gorm:"type:numeric(10,2)" json:"replacementValue"`
	CO2PerUse        decimal.NullDecimal `gorm:"column:co2_per_use;type:numeric(10,2)" json:"co2PerUse"`
	TotalLoans       int64               `gorm:"not null;default:0" json:"totalLoans"`
	IsAvailable      bool                `gorm:"not null;default:true" json:"isAvailable"`
	CreatedAt        time.Time           `json:"createdAt"`
	UpdatedAt        time.Time           `json:"updatedAt"`
}

func (Tool) TableName() string { return ToolTable }

// DefaultHardwareLoanHours applies when a sample has no max_loan_hours.
const DefaultHardwareLoanHours = 72

type HardwareSample struct {
	ID           string    `gorm:"type:uuid;primaryKey" json:"id"`
	Name         string    `gorm:"size:200;not null;index" json:"name"`
	Brand        string    `gorm:"size:120" json:"brand,omitempty"`
	Model        string    `gorm:"size:120" json:"model,omitempty"`
	Description  string    `gorm:"type:text" json:"description,omitempty"`
	ImageURL     string    `gorm:"size:500" json:"imageUrl,omitempty"`
	SampleType   string    `gorm:"size:120;not null" json:"sampleType"`
	MaxLoanHours *int      `json:"maxLoanHours,omitempty"`
	IsAvailable  bool      `gorm:"not null;default:true" json:"isAvailable"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func (HardwareSample) TableName() string { return HardwareSampleTable }

// LoanHours is the trial length granted for this sample.
func (h HardwareSample) LoanHours() int {
	if h.MaxLoanHours == nil || *h.MaxLoanHours <= 0 {
		return DefaultHardwareLoanHours
	}
	return *h.MaxLoanHours
}
