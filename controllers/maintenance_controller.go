package controllers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"toolhub/app"
	"toolhub/models"
)

type maintenanceReq struct {
	ToolID          string  `json:"toolId" binding:"required"`
	LoanID          *string `json:"loanId"`
	NewCondition    string  `json:"newCondition" binding:"required"`
	Notes           string  `json:"notes"`
	RepairCost      *string `json:"repairCost"`
	NextServiceDate *string `json:"nextServiceDate"` // YYYY-MM-DD
}

// POST /api/maintenance
func (s *Srv) RecordMaintenance(c *gin.Context) {
	var in maintenanceReq
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err.Error())
		return
	}
	if !validID(c, in.ToolID) {
		return
	}
	cond, err := models.ParseToolCondition(in.NewCondition)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	inspector := app.CurrentUserID(c)
	rec := models.MaintenanceRecord{
		ToolID:       in.ToolID,
		InspectedBy:  &inspector,
		NewCondition: cond,
		Notes:        in.Notes,
	}
	if in.LoanID != nil && *in.LoanID != "" {
		if !validID(c, *in.LoanID) {
			return
		}
		rec.LoanID = in.LoanID
	}
	if in.RepairCost != nil {
		d, err := decimal.NewFromString(*in.RepairCost)
		if err != nil || d.IsNegative() {
			badRequest(c, "repairCost must be a non-negative number")
			return
		}
		rec.RepairCost = decimal.NewNullDecimal(d.Round(2))
	}
	if in.NextServiceDate != nil && *in.NextServiceDate != "" {
		d, err := time.Parse(time.DateOnly, *in.NextServiceDate)
		if err != nil {
			badRequest(c, "nextServiceDate must be YYYY-MM-DD")
			return
		}
		rec.NextServiceDate = &d
	}

	ctx, cancel := withTimeout(c)
	defer cancel()
	if err := s.Repo.RecordMaintenance(ctx, &rec); err != nil {
		s.fail(c, err)
		return
	}
	s.log().Info(ctx, "maintenance recorded", "tool_id", rec.ToolID, "condition", rec.NewCondition, "by", inspector)
	c.JSON(http.StatusCreated, app.H{"record": rec})
}

// GET /api/maintenance?limit=20
func (s *Srv) ListMaintenance(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	ctx, cancel := withTimeout(c)
	defer cancel()
	rows, err := s.Repo.ListMaintenance(ctx, limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"records": rows})
}

// GET /api/maintenance/stats
func (s *Srv) MaintenanceStats(c *gin.Context) {
	ctx, cancel := withTimeout(c)
	defer cancel()
	st, err := s.Repo.MaintenanceStats(ctx, time.Now().UTC())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}
