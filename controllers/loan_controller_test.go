package controllers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toolhub/app"
	"toolhub/lifecycle"
	"toolhub/logging"
	"toolhub/models"
)

var testNow = time.Date(2025, 4, 2, 10, 0, 0, 0, time.UTC)

// The test router trusts these headers in place of a session cookie.
const (
	hdrUser = "X-Test-User"
	hdrRole = "X-Test-Role"
)

func fakeAuth(c *gin.Context) {
	c.Set(app.CtxUserID, c.GetHeader(hdrUser))
	c.Set(app.CtxRole, models.Role(c.GetHeader(hdrRole)))
	c.Next()
}

type harness struct {
	store  *lifecycle.MemoryStore
	router *gin.Engine
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := lifecycle.NewMemoryStore()
	s := &Srv{
		Loans: lifecycle.NewManager(store, lifecycle.Options{
			Backoff: time.Millisecond,
			Fines:   lifecycle.FinePolicy{DefaultDailyRate: decimal.NewFromInt(1)},
			Now:     func() time.Time { return testNow },
		}),
		Log: logging.Discard(),
	}

	r := gin.New()
	api := r.Group("/api", fakeAuth)
	api.POST("/loans", s.RequestLoan)
	api.GET("/loans/mine", s.MyLoans)
	api.GET("/loans/:id", s.GetLoan)
	api.POST("/loans/:id/transition", s.TransitionLoan)
	api.POST("/loans/:id/pickup", s.ConfirmPickup)
	api.POST("/loans/:id/feedback", s.SubmitFeedback)
	api.GET("/admin/loans", s.ListLoans)
	api.GET("/admin/loans/:id/history", s.LoanHistory)

	return &harness{store: store, router: r}
}

func (h *harness) do(method, path string, who lifecycle.Actor, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(hdrUser, who.UserID)
	req.Header.Set(hdrRole, string(who.Role))
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func (h *harness) tool(rate string) models.Tool {
	t := models.Tool{
		ID:          uuid.NewString(),
		Name:        "Circular saw",
		Category:    models.CategoryPowerTool,
		Condition:   models.ConditionGood,
		IsAvailable: true,
	}
	if rate != "" {
		t.DailyRate = decimal.NewNullDecimal(decimal.RequireFromString(rate))
	}
	h.store.PutTool(t)
	return t
}

func (h *harness) loan(toolID, userID string, status models.LoanStatus, due time.Time) models.Loan {
	l := models.Loan{
		ID:          uuid.NewString(),
		UserID:      userID,
		ToolID:      &toolID,
		Status:      status,
		RequestedAt: testNow.Add(-10 * 24 * time.Hour),
		DueDate:     &due,
	}
	h.store.PutLoan(l)
	return l
}

func actor(role models.Role) lifecycle.Actor {
	return lifecycle.Actor{UserID: uuid.NewString(), Role: role}
}

type loanBody struct {
	Loan  models.Loan `json:"loan"`
	Error string      `json:"error"`
}

func decodeLoan(t *testing.T, rec *httptest.ResponseRecorder) loanBody {
	t.Helper()
	var b loanBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &b), rec.Body.String())
	return b
}

func TestTransitionLoan_AdminHandsOutPendingLoan(t *testing.T) {
	h := newHarness(t)
	tool := h.tool("")
	loan := h.loan(tool.ID, uuid.NewString(), models.LoanPending, testNow.Add(7*24*time.Hour))

	rec := h.do(http.MethodPost, "/api/loans/"+loan.ID+"/transition", actor(models.RoleAdmin), app.H{"status": "active"})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decodeLoan(t, rec).Loan
	assert.Equal(t, models.LoanActive, got.Status)
	require.NotNil(t, got.ApprovedAt)
	assert.True(t, got.ApprovedAt.Equal(testNow))

	stored, _ := h.store.Tool(tool.ID)
	assert.False(t, stored.IsAvailable)
}

func TestTransitionLoan_LateReturnByToolDoctor(t *testing.T) {
	h := newHarness(t)
	tool := h.tool("4.00")
	loan := h.loan(tool.ID, uuid.NewString(), models.LoanActive, testNow.Add(-50*time.Hour))

	rec := h.do(http.MethodPost, "/api/loans/"+loan.ID+"/transition", actor(models.RoleToolDoctor), app.H{"status": "returned"})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decodeLoan(t, rec).Loan
	assert.Equal(t, models.LoanReturned, got.Status)
	require.NotNil(t, got.ReturnedAt)
	require.True(t, got.FineAmount.Valid)
	assert.True(t, decimal.RequireFromString("12").Equal(got.FineAmount.Decimal), got.FineAmount.Decimal.String())

	stored, _ := h.store.Tool(tool.ID)
	assert.True(t, stored.IsAvailable)
}

func TestTransitionLoan_Errors(t *testing.T) {
	h := newHarness(t)
	tool := h.tool("")
	pending := h.loan(tool.ID, uuid.NewString(), models.LoanPending, testNow.Add(24*time.Hour))
	returned := h.loan(h.tool("").ID, uuid.NewString(), models.LoanReturned, testNow.Add(24*time.Hour))
	shelved := h.tool("")
	shelved.IsAvailable = false
	h.store.PutTool(shelved)
	onShelved := h.loan(shelved.ID, uuid.NewString(), models.LoanPending, testNow.Add(24*time.Hour))

	tests := []struct {
		name   string
		loanID string
		who    lifecycle.Actor
		status string
		want   int
	}{
		{"member cannot activate", pending.ID, actor(models.RoleCommunityMember), "active", http.StatusForbidden},
		{"missing loan", uuid.NewString(), actor(models.RoleAdmin), "approved", http.StatusNotFound},
		{"returned is terminal", returned.ID, actor(models.RoleAdmin), "active", http.StatusConflict},
		{"overdue is not a target", pending.ID, actor(models.RoleAdmin), "overdue", http.StatusConflict},
		{"unknown status", pending.ID, actor(models.RoleAdmin), "lost", http.StatusBadRequest},
		{"bad id", "nope", actor(models.RoleAdmin), "approved", http.StatusBadRequest},
		{"withdrawn tool", onShelved.ID, actor(models.RoleAdmin), "approved", http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := h.do(http.MethodPost, "/api/loans/"+tt.loanID+"/transition", tt.who, app.H{"status": tt.status})
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
			assert.NotEmpty(t, decodeLoan(t, rec).Error)
		})
	}

	got, err := h.store.GetLoan(t.Context(), pending.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LoanPending, got.Status)
}

func TestRequestLoan(t *testing.T) {
	h := newHarness(t)
	tool := h.tool("")
	sample := models.HardwareSample{ID: uuid.NewString(), Name: "Smart lock", SampleType: "lock", IsAvailable: true}
	h.store.PutHardwareSample(sample)

	member := actor(models.RoleCommunityMember)

	t.Run("tool", func(t *testing.T) {
		rec := h.do(http.MethodPost, "/api/loans", member, app.H{"toolId": tool.ID})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		got := decodeLoan(t, rec).Loan
		assert.Equal(t, models.LoanPending, got.Status)
		assert.Equal(t, member.UserID, got.UserID)
		assert.Equal(t, "General borrowing", got.Purpose)
		require.NotNil(t, got.DueDate)
		assert.True(t, got.DueDate.Equal(testNow.Add(7*24*time.Hour)))
	})
	t.Run("hardware needs architect", func(t *testing.T) {
		rec := h.do(http.MethodPost, "/api/loans", member, app.H{"hardwareSampleId": sample.ID})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
	t.Run("architect trial", func(t *testing.T) {
		rec := h.do(http.MethodPost, "/api/loans", actor(models.RoleArchitect), app.H{"hardwareSampleId": sample.ID, "purpose": "Showroom"})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		got := decodeLoan(t, rec).Loan
		assert.Equal(t, "Showroom", got.Purpose)
		assert.True(t, got.DueDate.Equal(testNow.Add(models.DefaultHardwareLoanHours*time.Hour)))
	})
	t.Run("both refs", func(t *testing.T) {
		rec := h.do(http.MethodPost, "/api/loans", member, app.H{"toolId": tool.ID, "hardwareSampleId": sample.ID})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
	t.Run("withdrawn tool", func(t *testing.T) {
		off := h.tool("")
		off.IsAvailable = false
		h.store.PutTool(off)
		rec := h.do(http.MethodPost, "/api/loans", member, app.H{"toolId": off.ID})
		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

func TestConfirmPickup(t *testing.T) {
	h := newHarness(t)
	borrower := actor(models.RoleCommunityMember)
	loan := h.loan(h.tool("").ID, borrower.UserID, models.LoanApproved, testNow.Add(24*time.Hour))

	rec := h.do(http.MethodPost, "/api/loans/"+loan.ID+"/pickup", actor(models.RoleCommunityMember), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(http.MethodPost, "/api/loans/"+loan.ID+"/pickup", borrower, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, models.LoanActive, decodeLoan(t, rec).Loan.Status)

	rec = h.do(http.MethodPost, "/api/loans/"+loan.ID+"/pickup", borrower, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSubmitFeedback(t *testing.T) {
	h := newHarness(t)
	borrower := actor(models.RoleCommunityMember)
	active := h.loan(h.tool("").ID, borrower.UserID, models.LoanActive, testNow.Add(24*time.Hour))
	returned := h.loan(h.tool("").ID, borrower.UserID, models.LoanReturned, testNow.Add(-24*time.Hour))

	rec := h.do(http.MethodPost, "/api/loans/"+active.ID+"/feedback", borrower, app.H{"rating": 5})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(http.MethodPost, "/api/loans/"+returned.ID+"/feedback", borrower, app.H{"rating": 9})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(http.MethodPost, "/api/loans/"+returned.ID+"/feedback", actor(models.RoleCommunityMember), app.H{"rating": 4})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(http.MethodPost, "/api/loans/"+returned.ID+"/feedback", borrower, app.H{"rating": 4, "feedback": " sharp blade "})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decodeLoan(t, rec).Loan
	require.NotNil(t, got.Rating)
	assert.Equal(t, 4, *got.Rating)
	assert.Equal(t, "sharp blade", got.Feedback)
}

func TestMyLoans_Dashboard(t *testing.T) {
	h := newHarness(t)
	me := actor(models.RoleCommunityMember)
	h.loan(h.tool("").ID, me.UserID, models.LoanPending, testNow.Add(48*time.Hour))
	h.loan(h.tool("").ID, me.UserID, models.LoanActive, testNow.Add(2*time.Hour))
	h.loan(h.tool("").ID, me.UserID, models.LoanActive, testNow.Add(-2*time.Hour))
	h.loan(h.tool("").ID, uuid.NewString(), models.LoanActive, testNow.Add(-2*time.Hour))

	rec := h.do(http.MethodGet, "/api/loans/mine", me, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var d lifecycle.Dashboard
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &d))
	assert.Len(t, d.Loans, 3)
	assert.Equal(t, 1, d.Summary.Active)
	assert.Equal(t, 1, d.Summary.Pending)
	assert.Equal(t, 1, d.Summary.Overdue)
	assert.Len(t, d.DueToday, 2)

	rec = h.do(http.MethodGet, "/api/loans/mine?status=bogus", me, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetLoan_Visibility(t *testing.T) {
	h := newHarness(t)
	owner := actor(models.RoleCommunityMember)
	loan := h.loan(h.tool("").ID, owner.UserID, models.LoanActive, testNow.Add(-time.Hour))

	rec := h.do(http.MethodGet, "/api/loans/"+loan.ID, owner, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		EffectiveStatus models.LoanStatus `json:"effectiveStatus"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, models.LoanOverdue, body.EffectiveStatus)

	rec = h.do(http.MethodGet, "/api/loans/"+loan.ID, actor(models.RoleCommunityMember), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(http.MethodGet, "/api/loans/"+loan.ID, actor(models.RoleToolDoctor), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var staff struct {
		StatusLabel  string              `json:"statusLabel"`
		Final        bool                `json:"final"`
		NextStatuses []models.LoanStatus `json:"nextStatuses"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &staff))
	assert.Equal(t, "Overdue", staff.StatusLabel)
	assert.False(t, staff.Final)
	assert.Equal(t, []models.LoanStatus{models.LoanReturned}, staff.NextStatuses)
}

func TestGetLoan_UnknownStoredStatus(t *testing.T) {
	h := newHarness(t)
	owner := actor(models.RoleCommunityMember)
	loan := h.loan(h.tool("").ID, owner.UserID, models.LoanStatus("lost"), testNow.Add(time.Hour))

	rec := h.do(http.MethodGet, "/api/loans/"+loan.ID, owner, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal error", decodeLoan(t, rec).Error)
}

func TestAdminLoansAndHistory(t *testing.T) {
	h := newHarness(t)
	adm := actor(models.RoleAdmin)
	loan := h.loan(h.tool("").ID, uuid.NewString(), models.LoanPending, testNow.Add(24*time.Hour))
	h.loan(h.tool("").ID, uuid.NewString(), models.LoanReturned, testNow.Add(-24*time.Hour))

	rec := h.do(http.MethodPost, "/api/loans/"+loan.ID+"/transition", adm, app.H{"status": "approved"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.do(http.MethodGet, "/api/admin/loans?status=approved", adm, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Loans   []models.Loan     `json:"loans"`
		Summary lifecycle.Summary `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Loans, 1)
	assert.Equal(t, loan.ID, list.Loans[0].ID)

	rec = h.do(http.MethodGet, "/api/admin/loans/"+loan.ID+"/history", adm, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var hist struct {
		History []models.LoanTransition `json:"history"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &hist))
	require.Len(t, hist.History, 1)
	assert.Equal(t, models.LoanPending, hist.History[0].FromStatus)
	assert.Equal(t, models.LoanApproved, hist.History[0].ToStatus)
	require.NotNil(t, hist.History[0].ActorID)
	assert.Equal(t, adm.UserID, *hist.History[0].ActorID)

	rec = h.do(http.MethodGet, "/api/admin/loans/"+uuid.NewString()+"/history", adm, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(http.MethodGet, "/api/admin/loans?limit=-1", adm, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
