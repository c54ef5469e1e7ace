package controllers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"toolhub/app"
	"toolhub/lifecycle"
	"toolhub/models"
)

type loanRequest struct {
	models.ItemRef
	Purpose string `json:"purpose"`
}

// POST /api/loans {"toolId": "..."} or {"hardwareSampleId": "...", "purpose": "..."}
func (s *Srv) RequestLoan(c *gin.Context) {
	var in loanRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err.Error())
		return
	}
	loan, err := s.Loans.RequestLoan(c.Request.Context(), app.CurrentActor(c), in.ItemRef, in.Purpose)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, app.H{"loan": loan})
}

// GET /api/loans/mine?status=active
func (s *Srv) MyLoans(c *gin.Context) {
	f := lifecycle.LoanFilter{UserID: app.CurrentUserID(c)}
	if st := c.Query("status"); st != "" {
		parsed, err := models.ParseLoanStatus(st)
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		f.Status = parsed
	}
	d, err := s.Loans.Dashboard(c.Request.Context(), f)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func isStaff(r models.Role) bool {
	switch r {
	case models.RoleAdmin, models.RoleToolDoctor:
		return true
	case models.RoleCommunityMember, models.RoleArchitect, models.RoleSystem:
		return false
	}
	return false
}

// GET /api/loans/:id. Borrowers see their own loans, staff see all.
func (s *Srv) GetLoan(c *gin.Context) {
	id := c.Param("id")
	if !validID(c, id) {
		return
	}
	loan, err := s.Loans.GetLoan(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	if loan.UserID != app.CurrentUserID(c) && !isStaff(app.CurrentRole(c)) {
		// Same answer as a missing loan.
		c.JSON(http.StatusNotFound, app.H{"error": "loan not found"})
		return
	}
	if !loan.Status.Valid() {
		s.fail(c, fmt.Errorf("loan %s has unknown status %q", loan.ID, string(loan.Status)))
		return
	}
	effective := s.Loans.EffectiveStatus(loan)
	c.JSON(http.StatusOK, app.H{
		"loan":            loan,
		"effectiveStatus": effective,
		"statusLabel":     effective.Label(),
		"final":           loan.Status.Terminal(),
		"nextStatuses":    lifecycle.NextStatuses(loan.Status, app.CurrentRole(c)),
	})
}

// POST /api/loans/:id/transition {"status": "approved"}
//
// Any signed-in user may call this; the lifecycle decides whether their role
// may take the edge.
func (s *Srv) TransitionLoan(c *gin.Context) {
	id := c.Param("id")
	if !validID(c, id) {
		return
	}
	var in struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err.Error())
		return
	}
	target, err := models.ParseLoanStatus(in.Status)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	loan, err := s.Loans.ApplyTransition(c.Request.Context(), id, target, app.CurrentActor(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"loan": loan})
}

// POST /api/loans/:id/pickup: the borrower confirms collection of an approved
// loan, which activates it.
func (s *Srv) ConfirmPickup(c *gin.Context) {
	id := c.Param("id")
	if !validID(c, id) {
		return
	}
	ctx := c.Request.Context()
	loan, err := s.Loans.GetLoan(ctx, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	if loan.UserID != app.CurrentUserID(c) {
		c.JSON(http.StatusForbidden, app.H{"error": "only the borrower can confirm pickup"})
		return
	}
	loan, err = s.Loans.ConfirmPickup(ctx, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"loan": loan})
}

// POST /api/loans/:id/feedback {"rating": 5, "feedback": "..."}
func (s *Srv) SubmitFeedback(c *gin.Context) {
	id := c.Param("id")
	if !validID(c, id) {
		return
	}
	var in struct {
		Rating   int    `json:"rating" binding:"required"`
		Feedback string `json:"feedback"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err.Error())
		return
	}
	loan, err := s.Loans.SubmitFeedback(c.Request.Context(), app.CurrentActor(c), id, in.Rating, in.Feedback)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"loan": loan})
}

// GET /api/me/impact
func (s *Srv) MyImpact(c *gin.Context) {
	ctx, cancel := withTimeout(c)
	defer cancel()
	m, err := s.Repo.GetImpact(ctx, app.CurrentUserID(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"impact": m})
}

// GET /api/admin/loans?status=pending&userId=...&limit=100
func (s *Srv) ListLoans(c *gin.Context) {
	var f lifecycle.LoanFilter
	if st := c.Query("status"); st != "" {
		parsed, err := models.ParseLoanStatus(st)
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		f.Status = parsed
	}
	if uid := c.Query("userId"); uid != "" {
		if !validID(c, uid) {
			return
		}
		f.UserID = uid
	}
	if l := c.Query("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			badRequest(c, "limit must be a positive integer")
			return
		}
		f.Limit = n
	}

	loans, err := s.Loans.ListLoans(c.Request.Context(), f)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"loans": loans, "summary": s.Loans.Summarize(loans)})
}

// GET /api/admin/loans/:id/history
func (s *Srv) LoanHistory(c *gin.Context) {
	id := c.Param("id")
	if !validID(c, id) {
		return
	}
	rows, err := s.Loans.History(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"history": rows})
}
