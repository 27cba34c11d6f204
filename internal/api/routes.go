package api

import (
	"alcyxob/session-booking/internal/domain" // Needed for RoleMiddleware
	"alcyxob/session-booking/internal/service"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Services bundles what the routes need.
type Services struct {
	Auth        service.AuthService
	Booking     service.BookingService
	Attachments service.AttachmentService
	Plans       service.PlanService
}

func SetupRoutes(
	router *gin.Engine,
	jwtSecret string,
	storeTimeout time.Duration,
	services Services,
) {
	authHandler := NewAuthHandler(services.Auth)
	requestHandler := NewSessionRequestHandler(services.Booking, services.Attachments)
	sessionHandler := NewSessionHandler(services.Booking)
	planHandler := NewPlanHandler(services.Plans)

	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	apiV1 := router.Group("/api/v1")
	apiV1.Use(StoreTimeout(storeTimeout))
	{
		authGroup := apiV1.Group("/auth")
		{
			authGroup.POST("/register", authHandler.Register)
			authGroup.POST("/login", authHandler.Login)
		}
	}

	protected := apiV1.Group("")
	protected.Use(AuthMiddleware(jwtSecret))
	{
		protected.GET("/me", func(c *gin.Context) {
			actor, ok := actorFromContext(c)
			if !ok {
				return
			}
			c.JSON(http.StatusOK, gin.H{"userId": actor.UserID.Hex(), "role": actor.Role})
		})

		// --- Session Requests ---
		requests := protected.Group("/session-requests")
		{
			// POST /api/v1/session-requests - Clients ask for a session
			requests.POST("", RoleMiddleware(domain.RoleClient), requestHandler.CreateSessionRequest)
			requests.GET("", RoleMiddleware(domain.RoleTrainer, domain.RoleClient), requestHandler.ListSessionRequests)
			requests.GET("/:id", requestHandler.GetSessionRequest)
			// PATCH /api/v1/session-requests/{id} - The single mutation entry point
			requests.PATCH("/:id", requestHandler.ApplyAction)

			requests.POST("/:id/attachment", RoleMiddleware(domain.RoleClient), requestHandler.RequestAttachmentUploadURL)
			requests.GET("/:id/attachment", requestHandler.GetAttachmentDownloadURL)
		}

		protected.GET("/sessions", RoleMiddleware(domain.RoleTrainer, domain.RoleClient), sessionHandler.ListSessions)
		protected.GET("/conflicts", RoleMiddleware(domain.RoleTrainer), sessionHandler.PreviewConflicts)

		// --- Trainer Specific Routes ---
		trainerApiGroup := protected.Group("/trainer")
		trainerApiGroup.Use(RoleMiddleware(domain.RoleTrainer))
		{
			// POST /api/v1/trainer/clients/{clientId}/plans
			trainerApiGroup.POST("/clients/:clientId/plans", planHandler.CreateTrainingPlan)
			// PATCH /api/v1/trainer/plans/{planId}/owner
			trainerApiGroup.PATCH("/plans/:planId/owner", planHandler.TransferPlanOwner)
		}
	}
}
