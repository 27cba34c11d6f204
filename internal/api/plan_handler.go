// internal/api/plan_handler.go
package api

import (
	"alcyxob/session-booking/internal/domain"
	"alcyxob/session-booking/internal/service"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type PlanHandler struct {
	planService service.PlanService
}

func NewPlanHandler(planService service.PlanService) *PlanHandler {
	return &PlanHandler{planService: planService}
}

type CreateTrainingPlanRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

type TransferPlanRequest struct {
	TrainerID string `json:"trainerId" binding:"required"`
}

type TrainingPlanResponse struct {
	ID          string    `json:"id"`
	TrainerID   string    `json:"trainerId"`
	ClientID    string    `json:"clientId"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	IsActive    bool      `json:"isActive"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// MapTrainingPlanToResponse converts domain.TrainingPlan to DTO
func MapTrainingPlanToResponse(p *domain.TrainingPlan) TrainingPlanResponse {
	if p == nil {
		return TrainingPlanResponse{}
	}
	return TrainingPlanResponse{
		ID:          p.ID.Hex(),
		TrainerID:   p.TrainerID.Hex(),
		ClientID:    p.ClientID.Hex(),
		Name:        p.Name,
		Description: p.Description,
		IsActive:    p.IsActive,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

// CreateTrainingPlan godoc
// @Summary Create a new training plan for a client
// @Description Session requests made against the plan go to the plan's owning trainer.
// @Tags Trainer Plans
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param clientId path string true "Client's ObjectID Hex"
// @Param planRequest body CreateTrainingPlanRequest true "Training Plan details"
// @Success 201 {object} TrainingPlanResponse "Training plan created successfully"
// @Failure 400 {object} ErrorResponse "Invalid input"
// @Failure 403 {object} ErrorResponse "Not a trainer"
// @Failure 404 {object} ErrorResponse "Client not found"
// @Router /trainer/clients/{clientId}/plans [post]
func (h *PlanHandler) CreateTrainingPlan(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	clientID, err := primitive.ObjectIDFromHex(c.Param("clientId"))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, service.CodeInvalidRequest, "Invalid client ID format in URL path.")
		return
	}

	var req CreateTrainingPlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidBody(c, err)
		return
	}

	plan, err := h.planService.CreatePlan(c.Request.Context(), actor, clientID, req.Name, req.Description)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, MapTrainingPlanToResponse(plan))
}

// TransferPlanOwner godoc
// @Summary Hand a training plan to another trainer
// @Tags Trainer Plans
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param planId path string true "Plan's ObjectID Hex"
// @Param transfer body TransferPlanRequest true "New owning trainer"
// @Success 200 {object} TrainingPlanResponse
// @Failure 403 {object} ErrorResponse "Not the plan's owner"
// @Failure 404 {object} ErrorResponse "Plan or trainer not found"
// @Router /trainer/plans/{planId}/owner [patch]
func (h *PlanHandler) TransferPlanOwner(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	planID, ok := objectIDParam(c, "planId")
	if !ok {
		return
	}

	var req TransferPlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidBody(c, err)
		return
	}
	trainerID, err := primitive.ObjectIDFromHex(req.TrainerID)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, service.CodeInvalidBody, "Invalid trainerId format.")
		return
	}

	plan, err := h.planService.TransferOwner(c.Request.Context(), actor, planID, trainerID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, MapTrainingPlanToResponse(plan))
}
