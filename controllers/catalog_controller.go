package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"toolhub/app"
	"toolhub/db"
	"toolhub/lifecycle"
	"toolhub/models"
	"toolhub/storage"
)

// GET /api/tools?q=drill&category=power_tool&available=true
func (s *Srv) ListTools(c *gin.Context) {
	q := db.ToolQuery{Q: c.Query("q"), AvailableOnly: c.Query("available") == "true"}
	if cat := c.Query("category"); cat != "" {
		parsed, err := models.ParseToolCategory(cat)
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		q.Category = parsed
	}

	ctx, cancel := withTimeout(c)
	defer cancel()
	tools, err := s.Repo.ListTools(ctx, q)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"tools": tools})
}

func (s *Srv) GetTool(c *gin.Context) {
	ctx, cancel := withTimeout(c)
	defer cancel()
	t, err := s.Repo.GetTool(ctx, c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"tool": t})
}

// GET /api/hardware?q=&available=true
func (s *Srv) ListHardware(c *gin.Context) {
	ctx, cancel := withTimeout(c)
	defer cancel()
	rows, err := s.Repo.ListHardwareSamples(ctx, db.HardwareQuery{
		Q:             c.Query("q"),
		AvailableOnly: c.Query("available") == "true",
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"hardware": rows})
}

func (s *Srv) GetHardware(c *gin.Context) {
	ctx, cancel := withTimeout(c)
	defer cancel()
	h, err := s.Repo.GetHardwareSample(ctx, c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"hardware": h})
}

type createToolReq struct {
	Name             string  `json:"name" binding:"required"`
	Brand            string  `json:"brand"`
	Model            string  `json:"model"`
	Description      string  `json:"description"`
	Category         string  `json:"category" binding:"required"`
	Condition        string  `json:"condition"`
	DailyRate        *string `json:"dailyRate"`
	ReplacementValue *string `json:"replacementValue"`
	CO2PerUse        *string `json:"co2PerUse"`
}

// POST /api/admin/tools
func (s *Srv) CreateTool(c *gin.Context) {
	var in createToolReq
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err.Error())
		return
	}
	cat, err := models.ParseToolCategory(in.Category)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	cond := models.ConditionGood
	if in.Condition != "" {
		if cond, err = models.ParseToolCondition(in.Condition); err != nil {
			badRequest(c, err.Error())
			return
		}
	}
	t := models.Tool{
		Name:        in.Name,
		Brand:       in.Brand,
		Model:       in.Model,
		Description: in.Description,
		Category:    cat,
		Condition:   cond,
		IsAvailable: cond.Lendable(),
	}
	for _, f := range []struct {
		name string
		in   *string
		out  *decimal.NullDecimal
	}{
		{"dailyRate", in.DailyRate, &t.DailyRate},
		{"replacementValue", in.ReplacementValue, &t.ReplacementValue},
		{"co2PerUse", in.CO2PerUse, &t.CO2PerUse},
	} {
		if f.in == nil {
			continue
		}
		d, err := decimal.NewFromString(*f.in)
		if err != nil || d.IsNegative() {
			badRequest(c, f.name+" must be a non-negative number")
			return
		}
		*f.out = decimal.NewNullDecimal(d)
	}

	ctx, cancel := withTimeout(c)
	defer cancel()
	if err := s.Repo.CreateTool(ctx, &t); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, app.H{"tool": t})
}

// POST /api/admin/hardware
func (s *Srv) CreateHardware(c *gin.Context) {
	var in struct {
		Name         string `json:"name" binding:"required"`
		Brand        string `json:"brand"`
		Model        string `json:"model"`
		Description  string `json:"description"`
		SampleType   string `json:"sampleType" binding:"required"`
		MaxLoanHours *int   `json:"maxLoanHours"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err.Error())
		return
	}
	if in.MaxLoanHours != nil && *in.MaxLoanHours <= 0 {
		badRequest(c, "maxLoanHours must be positive")
		return
	}
	h := models.HardwareSample{
		Name:         in.Name,
		Brand:        in.Brand,
		Model:        in.Model,
		Description:  in.Description,
		SampleType:   in.SampleType,
		MaxLoanHours: in.MaxLoanHours,
		IsAvailable:  true,
	}

	ctx, cancel := withTimeout(c)
	defer cancel()
	if err := s.Repo.CreateHardwareSample(ctx, &h); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, app.H{"hardware": h})
}

// PATCH /api/admin/items/:kind/:id/availability {"isAvailable": false}
func (s *Srv) SetAvailability(c *gin.Context) {
	ref, ok := itemRefParam(c)
	if !ok {
		return
	}
	var in struct {
		IsAvailable *bool `json:"isAvailable" binding:"required"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err.Error())
		return
	}

	ctx, cancel := withTimeout(c)
	defer cancel()
	if err := s.Repo.SetItemAvailability(ctx, ref, *in.IsAvailable); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"ok": true, "isAvailable": *in.IsAvailable})
}

// PATCH /api/admin/tools/:id/condition {"condition": "needs_repair"}
func (s *Srv) SetToolCondition(c *gin.Context) {
	var in struct {
		Condition string `json:"condition" binding:"required"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err.Error())
		return
	}
	cond, err := models.ParseToolCondition(in.Condition)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	ctx, cancel := withTimeout(c)
	defer cancel()
	t, err := s.Repo.UpdateToolCondition(ctx, c.Param("id"), cond)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"tool": t})
}

// POST /api/admin/items/:kind/:id/image (multipart field "image")
func (s *Srv) UploadItemImage(c *gin.Context) {
	if s.Images == nil {
		c.JSON(http.StatusServiceUnavailable, app.H{"error": "image storage is not configured"})
		return
	}
	ref, ok := itemRefParam(c)
	if !ok {
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, storage.MaxImageSize+1<<20)
	fh, err := c.FormFile("image")
	if err != nil {
		badRequest(c, "missing image file")
		return
	}
	f, err := fh.Open()
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	defer f.Close()

	ctx := c.Request.Context()
	url, err := s.Images.Upload(ctx, ref, f, fh.Size, fh.Header.Get("Content-Type"))
	if err != nil {
		s.fail(c, err)
		return
	}
	if err := s.Repo.SetItemImage(ctx, ref, url); err != nil {
		if rerr := s.Images.Remove(ctx, url); rerr != nil {
			s.log().Warn(ctx, "orphaned image", "url", url, "err", rerr)
		}
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"imageUrl": url})
}

// GET /api/admin/inventory?q=&filter=held&page=1&size=20
func (s *Srv) ListInventory(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))
	filter := c.Query("filter")
	switch filter {
	case "", "held", "available", "overdue", "maintenance":
	default:
		badRequest(c, "unknown filter "+strconv.Quote(filter))
		return
	}

	ctx, cancel := withTimeout(c)
	defer cancel()
	res, err := s.Repo.ListInventory(ctx, db.InventoryQuery{Q: c.Query("q"), Filter: filter, Page: page, Size: size})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// GET /api/admin/stats
func (s *Srv) AdminStats(c *gin.Context) {
	ctx, cancel := withTimeout(c)
	defer cancel()

	counts, err := s.Repo.CountCatalog(ctx)
	if err != nil {
		s.fail(c, err)
		return
	}
	loans, err := s.Loans.ListLoans(ctx, lifecycle.LoanFilter{})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{
		"totalTools":    counts.Tools,
		"totalHardware": counts.HardwareSamples,
		"loans":         s.Loans.Summarize(loans),
	})
}

func validID(c *gin.Context, id string) bool {
	if uuid.Validate(id) != nil {
		badRequest(c, "invalid id")
		return false
	}
	return true
}
