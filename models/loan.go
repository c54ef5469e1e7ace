package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const LoanTable = "loans"

// LoanStatus is the wire-level loan status. The set is closed: use ParseLoanStatus
// for anything coming from storage or a request body.
type LoanStatus string

const (
	LoanPending  LoanStatus = "pending"
	LoanApproved LoanStatus = "approved"
	LoanRejected LoanStatus = "rejected"
	LoanActive   LoanStatus = "active"
	LoanReturned LoanStatus = "returned"
	LoanOverdue  LoanStatus = "overdue"
)

// LoanStatuses lists every status in declaration order.
var LoanStatuses = []LoanStatus{LoanPending, LoanApproved, LoanRejected, LoanActive, LoanReturned, LoanOverdue}

func ParseLoanStatus(s string) (LoanStatus, error) {
	st := LoanStatus(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown loan status %q", s)
	}
	return st, nil
}

func (s LoanStatus) Valid() bool {
	switch s {
	case LoanPending, LoanApproved, LoanRejected, LoanActive, LoanReturned, LoanOverdue:
		return true
	}
	return false
}

// HoldsItem reports whether a loan in this status keeps its item unavailable.
func (s LoanStatus) HoldsItem() bool {
	switch s {
	case LoanApproved, LoanActive, LoanOverdue:
		return true
	case LoanPending, LoanRejected, LoanReturned:
		return false
	}
	panic(fmt.Sprintf("models: unhandled loan status %q", string(s)))
}

// Terminal reports whether no further transition may leave this status.
func (s LoanStatus) Terminal() bool {
	switch s {
	case LoanReturned, LoanRejected:
		return true
	case LoanPending, LoanApproved, LoanActive, LoanOverdue:
		return false
	}
	panic(fmt.Sprintf("models: unhandled loan status %q", string(s)))
}

// Label is the human readable form used in notifications and dashboards.
func (s LoanStatus) Label() string {
	switch s {
	case LoanPending:
		return "Pending approval"
	case LoanApproved:
		return "Approved"
	case LoanRejected:
		return "Rejected"
	case LoanActive:
		return "On loan"
	case LoanReturned:
		return "Returned"
	case LoanOverdue:
		return "Overdue"
	}
	panic(fmt.Sprintf("models: unhandled loan status %q", string(s)))
}

type Loan struct {
	ID               string     `gorm:"type:uuid;primaryKey" json:"id"`
	UserID           string     `gorm:"type:uuid;index;not null" json:"userId"`
	ToolID           *string    `gorm:"type:uuid;index" json:"toolId,omitempty"`
	HardwareSampleID *string    `gorm:"type:uuid;index" json:"hardwareSampleId,omitempty"`
	Status           LoanStatus `gorm:"size:20;index;not null;default:'pending'" json:"status"`

	RequestedAt time.Time  `gorm:"index;not null" json:"requestedAt"`
	ApprovedAt  *time.Time `json:"approvedAt,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	ReturnedAt  *time.Time `json:"returnedAt,omitempty"`

	FineAmount decimal.NullDecimal `gorm:"type:numeric(10,2)" json:"fineAmount"`
	Purpose    string              `gorm:"type:text" json:"purpose,omitempty"`
	Feedback   string              `gorm:"type:text" json:"feedback,omitempty"`
	Rating     *int                `json:"rating,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (Loan) TableName() string { return LoanTable }

// Item returns the single item the loan references.
func (l Loan) Item() ItemRef {
	return ItemRef{ToolID: deref(l.ToolID), HardwareSampleID: deref(l.HardwareSampleID)}
}

// LoanTransition is the append-only audit row written with every applied transition.
type LoanTransition struct {
	ID         string     `gorm:"type:uuid;primaryKey" json:"id"`
	LoanID     string     `gorm:"type:uuid;index;not null" json:"loanId"`
	ActorID    *string    `gorm:"type:uuid" json:"actorId,omitempty"`
	ActorRole  Role       `gorm:"size:32;not null" json:"actorRole"`
	FromStatus LoanStatus `gorm:"size:20;not null" json:"fromStatus"`
	ToStatus   LoanStatus `gorm:"size:20;not null" json:"toStatus"`
	CreatedAt  time.Time  `json:"createdAt"`
}

func (LoanTransition) TableName() string { return "loan_transitions" }

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
