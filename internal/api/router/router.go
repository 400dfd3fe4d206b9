package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/shiftlyhq/backend/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "marketplace-api-service",
		})
	})

	jobHandler := handler.NewJobHandler(deps)
	appHandler := handler.NewApplicationHandler(deps)
	checkInHandler := handler.NewCheckInHandler(deps)
	webhookHandler := handler.NewWebhookHandler(deps)
	paymentHandler := handler.NewPaymentHandler(deps)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		jobs := v1.Group("/jobs")
		{
			// POST /api/v1/jobs - Create a new job
			jobs.POST("", jobHandler.CreateJob)

			// GET /api/v1/jobs - List jobs with filtering and pagination
			jobs.GET("", jobHandler.ListJobs)

			// GET /api/v1/jobs/nearby - Search published jobs by location
			jobs.GET("/nearby", jobHandler.SearchJobs)

			// GET /api/v1/jobs/:job_id - Get job details
			jobs.GET("/:job_id", jobHandler.GetJob)

			// POST /api/v1/jobs/:job_id/publish - Open a job for applications
			jobs.POST("/:job_id/publish", jobHandler.PublishJob)

			// POST /api/v1/jobs/:job_id/complete - Mark a job finished
			jobs.POST("/:job_id/complete", jobHandler.CompleteJob)

			// POST /api/v1/jobs/:job_id/cancel - Cancel a job and refund escrows
			jobs.POST("/:job_id/cancel", jobHandler.CancelJob)

			// POST /api/v1/jobs/:job_id/apply - Apply to a job
			jobs.POST("/:job_id/apply", appHandler.Apply)

			// GET /api/v1/jobs/:job_id/applications - List applications for a job
			jobs.GET("/:job_id/applications", appHandler.ListForJob)
		}

		applications := v1.Group("/applications")
		{
			// GET /api/v1/applications - List the caller's applications
			applications.GET("", appHandler.ListMine)

			// POST /api/v1/applications/:application_id/accept - Accept and fund escrow
			applications.POST("/:application_id/accept", appHandler.Accept)

			// POST /api/v1/applications/:application_id/reject - Reject an application
			applications.POST("/:application_id/reject", appHandler.Reject)

			// POST /api/v1/applications/:application_id/withdraw - Withdraw an application
			applications.POST("/:application_id/withdraw", appHandler.Withdraw)

			// POST /api/v1/applications/:application_id/check-in - GPS check-in at the job site
			applications.POST("/:application_id/check-in", checkInHandler.CheckIn)

			// POST /api/v1/applications/:application_id/check-out - Check out and settle payment
			applications.POST("/:application_id/check-out", checkInHandler.CheckOut)

			// GET /api/v1/applications/:application_id/check-in - Get the presence record
			applications.GET("/:application_id/check-in", checkInHandler.GetCheckIn)
		}

		payments := v1.Group("/payments")
		{
			// GET /api/v1/payments/transactions/:transaction_id - Transaction details
			payments.GET("/transactions/:transaction_id", paymentHandler.GetTransaction)
		}

		payouts := v1.Group("/payouts")
		{
			// POST /api/v1/payouts/:payout_id/retry - Retry a failed payout transfer
			payouts.POST("/:payout_id/retry", paymentHandler.RetryPayout)
		}

		webhooks := v1.Group("/webhooks")
		{
			// POST /api/v1/webhooks/psp - Payment provider event callbacks
			webhooks.POST("/psp", webhookHandler.HandlePSP)
		}
	}

	return r
}
