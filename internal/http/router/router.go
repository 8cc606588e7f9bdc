package router

import (
	"github.com/gin-gonic/gin"

	"github.com/kasigigs/kasigigs-backend/internal/config"
	"github.com/kasigigs/kasigigs-backend/internal/http/handlers"
	"github.com/kasigigs/kasigigs-backend/internal/http/middleware"
	"github.com/kasigigs/kasigigs-backend/internal/models"
	"github.com/kasigigs/kasigigs-backend/internal/service"
)

// SetupRouter wires every handler into the HTTP surface.
func SetupRouter(
	cfg *config.Config,
	authHandler *handlers.AuthHandler,
	profileHandler *handlers.ProfileHandler,
	postingHandler *handlers.PostingHandler,
	skillTestHandler *handlers.SkillTestHandler,
	applicationHandler *handlers.ApplicationHandler,
	milestoneHandler *handlers.MilestoneHandler,
	escrowHandler *handlers.EscrowHandler,
	disputeHandler *handlers.DisputeHandler,
	reviewHandler *handlers.ReviewHandler,
	notificationHandler *handlers.NotificationHandler,
	attachmentHandler *handlers.AttachmentHandler,
	reportHandler *handlers.ReportHandler,
	healthHandler *handlers.HealthHandler,
	wsHandler *handlers.WSHandler,
	tokenManager *service.TokenManager,
) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))

	r.GET("/health", healthHandler.Health)

	api := r.Group("/api")

	// Auth endpoints get a tighter rate limit: they are the brute-force
	// surface.
	auth := api.Group("/auth")
	auth.Use(middleware.RateLimitMiddleware(cfg.RateLimitLimit, cfg.RateLimitPeriod))
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
	}

	// Gateway webhook is unauthenticated; the HMAC signature is the auth.
	api.POST("/webhooks/payments", escrowHandler.Webhook)

	// Public browsing.
	api.GET("/postings", postingHandler.List)
	api.GET("/users/:id", middleware.UUIDValidator("id"), profileHandler.GetUser)
	api.GET("/users/:id/reviews", middleware.UUIDValidator("id"), reviewHandler.ListForUser)
	api.GET("/media/:id", middleware.UUIDValidator("id"), attachmentHandler.Download)

	api.GET("/ws", wsHandler.Handle)

	authed := api.Group("")
	authed.Use(middleware.AuthMiddleware(tokenManager))
	{
		authSessions := authed.Group("/auth")
		{
			authSessions.POST("/logout", authHandler.Logout)
			authSessions.GET("/sessions", authHandler.Sessions)
			authSessions.DELETE("/sessions/:id", middleware.UUIDValidator("id"), authHandler.RevokeSession)
			authSessions.POST("/sessions/revoke-others", authHandler.RevokeOtherSessions)
		}

		users := authed.Group("/users")
		{
			users.GET("/me", profileHandler.Me)
			users.PATCH("/me", profileHandler.UpdateMe)
			users.POST("/me/verify/send", profileHandler.SendVerificationCode)
			users.POST("/me/verify/confirm", profileHandler.ConfirmVerification)
		}

		postings := authed.Group("/postings")
		{
			postings.POST("", postingHandler.Create)
			postings.GET("/mine", postingHandler.ListOwn)
			postings.GET("/:id", middleware.UUIDValidator("id"), postingHandler.Get)
			postings.PUT("/:id", middleware.UUIDValidator("id"), postingHandler.Update)
			postings.POST("/:id/cancel", middleware.UUIDValidator("id"), postingHandler.Cancel)
			postings.GET("/:id/applications", middleware.UUIDValidator("id"), applicationHandler.ListForPosting)
			postings.GET("/:id/skill-test/eligibility", middleware.UUIDValidator("id"), skillTestHandler.Eligibility)
			postings.POST("/:id/skill-test/attempts", middleware.UUIDValidator("id"), skillTestHandler.Start)
			postings.GET("/:id/skill-test/attempts", middleware.UUIDValidator("id"), skillTestHandler.ListForPosting)
		}

		attempts := authed.Group("/skill-test/attempts")
		attempts.Use(middleware.UUIDValidator("id"))
		{
			attempts.GET("/:id", skillTestHandler.Get)
			attempts.POST("/:id/submit", skillTestHandler.Submit)
		}

		applications := authed.Group("/applications")
		{
			applications.POST("", applicationHandler.Apply)
			applications.GET("/mine", applicationHandler.ListMine)
			applications.POST("/:id/withdraw", middleware.UUIDValidator("id"), applicationHandler.Withdraw)
			applications.POST("/:id/shortlist", middleware.UUIDValidator("id"), applicationHandler.Shortlist)
			applications.POST("/:id/reject", middleware.UUIDValidator("id"), applicationHandler.Reject)
			applications.POST("/:id/accept", middleware.UUIDValidator("id"), applicationHandler.Accept)
		}

		gigs := authed.Group("/gigs/:id")
		gigs.Use(middleware.UUIDValidator("id"))
		{
			gigs.GET("/milestones", milestoneHandler.ListByGig)
			gigs.GET("/milestones/next", milestoneHandler.NextPending)
			gigs.GET("/escrows", escrowHandler.ListByGig)
			gigs.GET("/reviews", reviewHandler.ListForGig)
		}

		milestones := authed.Group("/milestones")
		milestones.Use(middleware.UUIDValidator("id"))
		{
			milestones.GET("/:id", milestoneHandler.Get)
			milestones.POST("/:id/submit", milestoneHandler.Submit)
			milestones.POST("/:id/review", milestoneHandler.Review)
			milestones.POST("/:id/fund", escrowHandler.Fund)
		}

		escrows := authed.Group("/escrows")
		escrows.Use(middleware.UUIDValidator("id"))
		{
			escrows.GET("/:id", escrowHandler.Get)
			escrows.POST("/:id/release", escrowHandler.Release)
			escrows.POST("/:id/refund", escrowHandler.Refund)
			escrows.GET("/:id/ledger", escrowHandler.Ledger)
		}

		disputes := authed.Group("/disputes")
		{
			disputes.POST("", disputeHandler.Open)
			disputes.GET("/mine", disputeHandler.ListMine)
			disputes.GET("/:id", middleware.UUIDValidator("id"), disputeHandler.Get)
			disputes.POST("/:id/respond", middleware.UUIDValidator("id"), disputeHandler.Respond)
			disputes.POST("/:id/evidence", middleware.UUIDValidator("id"), disputeHandler.AddEvidence)
			disputes.GET("/:id/evidence", middleware.UUIDValidator("id"), disputeHandler.ListEvidence)
		}

		reviews := authed.Group("/reviews")
		{
			reviews.POST("", reviewHandler.Create)
		}

		notifications := authed.Group("/notifications")
		{
			notifications.GET("", notificationHandler.List)
			notifications.POST("/read-all", notificationHandler.MarkAllRead)
			notifications.POST("/:id/read", middleware.UUIDValidator("id"), notificationHandler.MarkRead)
		}

		attachments := authed.Group("/attachments")
		{
			attachments.POST("", attachmentHandler.Upload)
			attachments.DELETE("/:id", middleware.UUIDValidator("id"), attachmentHandler.Delete)
		}

		reports := authed.Group("/reports")
		{
			reports.POST("", reportHandler.Create)
			reports.GET("/mine", reportHandler.ListMine)
		}

		admin := authed.Group("/admin")
		admin.Use(middleware.RequireRole(models.RoleAdmin))
		{
			admin.GET("/disputes", disputeHandler.ListOpen)
			admin.POST("/disputes/:id/resolve", middleware.UUIDValidator("id"), disputeHandler.Resolve)
			admin.GET("/reports", reportHandler.ListPending)
			admin.POST("/reports/:id/resolve", middleware.UUIDValidator("id"), reportHandler.Resolve)
			admin.POST("/reviews/:id/flag", middleware.UUIDValidator("id"), reviewHandler.Flag)
			admin.POST("/postings/:id/flag", middleware.UUIDValidator("id"), postingHandler.Flag)
		}
	}

	return r
}
