package routes

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"toolhub/app"
	"toolhub/controllers"
	"toolhub/models"
)

// LastSeenThrottle bounds how often last_seen_at is written per user.
const LastSeenThrottle = 5 * time.Minute

func RegisterRoutes(r *gin.Engine, a *app.App) {
	s := controllers.GetSrv(a)

	authMW := app.AuthRequired(s.AppSess, s.Repo, a.Config)
	seenMW := app.TouchLastSeen(s.Repo, a.RDB, LastSeenThrottle)
	staffMW := app.RequireRole(models.RoleAdmin, models.RoleToolDoctor)
	adminMW := app.RequireRole(models.RoleAdmin)

	r.GET("/healthz", func(c *app.Ctx) { c.JSON(http.StatusOK, app.H{"ok": true}) })

	// Passkey ceremonies, public.
	wa := r.Group("/webauthn")
	{
		wa.POST("/register/begin", s.BeginRegistration)
		wa.POST("/register/finish", s.FinishRegistration)
		wa.POST("/login/begin", s.BeginLogin)
		wa.POST("/login/finish", s.FinishLogin)
	}
	waAuth := wa.Group("", authMW, seenMW)
	{
		waAuth.POST("/logout", s.Logout)
	}

	api := r.Group("/api", authMW, seenMW)
	{
		api.GET("/me", s.Me)
		api.GET("/me/impact", s.MyImpact)

		api.POST("/credentials/add/begin", s.BeginAddCredential)
		api.POST("/credentials/add/finish", s.FinishAddCredential)

		api.GET("/tools", s.ListTools)
		api.GET("/tools/:id", s.GetTool)
		api.GET("/hardware", s.ListHardware)
		api.GET("/hardware/:id", s.GetHardware)

		api.POST("/loans", s.RequestLoan)
		api.GET("/loans/mine", s.MyLoans)
		api.GET("/loans/:id", s.GetLoan)
		api.POST("/loans/:id/transition", s.TransitionLoan)
		api.POST("/loans/:id/pickup", s.ConfirmPickup)
		api.POST("/loans/:id/feedback", s.SubmitFeedback)
	}

	staff := api.Group("/maintenance", staffMW)
	{
		staff.GET("", s.ListMaintenance)
		staff.POST("", s.RecordMaintenance)
		staff.GET("/stats", s.MaintenanceStats)
	}

	admin := api.Group("/admin", adminMW)
	{
		admin.GET("/stats", s.AdminStats)

		admin.GET("/users", s.ListUsers)
		admin.GET("/users/:id", s.GetUser)
		admin.PATCH("/users/:id/role", s.SetUserRole)
		admin.DELETE("/users/:id", s.DeleteUser)

		admin.GET("/invites", s.ListInvites)
		admin.POST("/invites", s.CreateInvite)

		admin.POST("/tools", s.CreateTool)
		admin.PATCH("/tools/:id/condition", s.SetToolCondition)
		admin.POST("/hardware", s.CreateHardware)
		admin.PATCH("/items/:kind/:id/availability", s.SetAvailability)
		admin.POST("/items/:kind/:id/image", s.UploadItemImage)
		admin.GET("/inventory", s.ListInventory)

		admin.GET("/loans", s.ListLoans)
		admin.GET("/loans/:id/history", s.LoanHistory)
	}
}
