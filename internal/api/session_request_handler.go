// internal/api/session_request_handler.go
package api

import (
	"alcyxob/session-booking/internal/domain"
	"alcyxob/session-booking/internal/service"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type SessionRequestHandler struct {
	bookingService    service.BookingService
	attachmentService service.AttachmentService
}

func NewSessionRequestHandler(bookingService service.BookingService, attachmentService service.AttachmentService) *SessionRequestHandler {
	return &SessionRequestHandler{
		bookingService:    bookingService,
		attachmentService: attachmentService,
	}
}

// --- DTOs ---

type CreateSessionRequestRequest struct {
	TrainerID string  `json:"trainerId"`
	PlanID    string  `json:"planId"`
	Start     string  `json:"start" binding:"required"`
	End       string  `json:"end" binding:"required"`
	Message   *string `json:"message"`
}

// ActionRequest is the tagged union accepted by PATCH. Which of the optional fields are
// read depends on Action.
type ActionRequest struct {
	Action domain.ActionKind `json:"action" binding:"required"`
	Note   *string           `json:"note"`
	Start  *string           `json:"start"` // propose_reschedule only
	End    *string           `json:"end"`   // propose_reschedule only
}

type AttachmentUploadRequest struct {
	ContentType string `json:"contentType" binding:"required"`
}

var errMalformedAction = errors.New("malformed action")

// toAction decodes the union. Shape errors wrap errMalformedAction; unparsable
// timestamps come back as domain.ErrUnparsableTimestamp.
func (r ActionRequest) toAction() (domain.Action, error) {
	switch r.Action {
	case domain.ActionAccept:
		return domain.Accept{}, nil
	case domain.ActionDecline:
		return domain.Decline{Note: r.Note}, nil
	case domain.ActionProposeReschedule:
		if r.Start == nil || r.End == nil {
			return nil, fmt.Errorf("%w: propose_reschedule needs start and end", errMalformedAction)
		}
		start, err := domain.ParseTimestamp(*r.Start)
		if err != nil {
			return nil, err
		}
		end, err := domain.ParseTimestamp(*r.End)
		if err != nil {
			return nil, err
		}
		return domain.ProposeReschedule{Start: start, End: end, Note: r.Note}, nil
	case domain.ActionAcceptReschedule:
		return domain.AcceptReschedule{}, nil
	case domain.ActionDeclineReschedule:
		return domain.DeclineReschedule{Note: r.Note}, nil
	case domain.ActionCancel:
		return domain.Cancel{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown action %q", errMalformedAction, r.Action)
	}
}

// --- Handlers ---

// CreateSessionRequest godoc
// @Summary Ask a trainer for a session
// @Tags SessionRequests
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreateSessionRequestRequest true "Trainer or plan, and the wanted time"
// @Success 201 {object} service.RequestDetails
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Router /session-requests [post]
func (h *SessionRequestHandler) CreateSessionRequest(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req CreateSessionRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidBody(c, err)
		return
	}

	in := service.CreateRequestInput{Message: req.Message}
	var err error
	if in.TrainerID, err = optionalObjectID(req.TrainerID); err != nil {
		abortWithError(c, http.StatusBadRequest, service.CodeInvalidBody, "Invalid trainerId format.")
		return
	}
	if in.PlanID, err = optionalObjectID(req.PlanID); err != nil {
		abortWithError(c, http.StatusBadRequest, service.CodeInvalidBody, "Invalid planId format.")
		return
	}
	if in.Start, err = domain.ParseTimestamp(req.Start); err != nil {
		respondError(c, err)
		return
	}
	if in.End, err = domain.ParseTimestamp(req.End); err != nil {
		respondError(c, err)
		return
	}

	created, err := h.bookingService.CreateRequest(c.Request.Context(), actor, in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

// GetSessionRequest godoc
// @Summary Get one session request
// @Tags SessionRequests
// @Produce json
// @Security BearerAuth
// @Param id path string true "Session request ID"
// @Success 200 {object} service.RequestDetails
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /session-requests/{id} [get]
func (h *SessionRequestHandler) GetSessionRequest(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	id, ok := objectIDParam(c, "id")
	if !ok {
		return
	}

	details, err := h.bookingService.GetRequest(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, details)
}

// ListSessionRequests godoc
// @Summary List the caller's session requests, newest first
// @Tags SessionRequests
// @Produce json
// @Security BearerAuth
// @Param status query string false "Comma separated statuses"
// @Success 200 {array} domain.SessionRequest
// @Router /session-requests [get]
func (h *SessionRequestHandler) ListSessionRequests(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}

	var statuses []domain.RequestStatus
	for _, raw := range c.QueryArray("status") {
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				statuses = append(statuses, domain.RequestStatus(s))
			}
		}
	}

	requests, err := h.bookingService.ListRequests(c.Request.Context(), actor, statuses)
	if err != nil {
		respondError(c, err)
		return
	}
	if requests == nil {
		requests = []domain.SessionRequest{} // Return empty JSON array, not null
	}
	c.JSON(http.StatusOK, requests)
}

// ApplyAction godoc
// @Summary Move a session request through its lifecycle
// @Description Accept, decline, propose a reschedule, answer a proposal, or cancel.
// @Tags SessionRequests
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Session request ID"
// @Param action body ActionRequest true "Tagged action"
// @Success 200 {object} service.RequestDetails
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse "Conflicting bookings listed"
// @Failure 504 {object} ErrorResponse "Store timeout, retryable"
// @Router /session-requests/{id} [patch]
func (h *SessionRequestHandler) ApplyAction(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	id, ok := objectIDParam(c, "id")
	if !ok {
		return
	}
	var req ActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidBody(c, err)
		return
	}
	action, err := req.toAction()
	if err != nil {
		if errors.Is(err, errMalformedAction) {
			invalidBody(c, err)
			return
		}
		respondError(c, err)
		return
	}

	updated, err := h.bookingService.Apply(c.Request.Context(), actor, id, action)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// RequestAttachmentUploadURL godoc
// @Summary Get a presigned URL to attach a file to a session request
// @Tags SessionRequests
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Session request ID"
// @Param upload body AttachmentUploadRequest true "Content type of the file"
// @Success 200 {object} service.AttachmentURL
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse "Attachment storage disabled"
// @Router /session-requests/{id}/attachment [post]
func (h *SessionRequestHandler) RequestAttachmentUploadURL(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	id, ok := objectIDParam(c, "id")
	if !ok {
		return
	}
	var req AttachmentUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidBody(c, err)
		return
	}

	url, err := h.attachmentService.CreateUploadURL(c.Request.Context(), actor, id, req.ContentType)
	if err != nil {
		h.attachmentError(c, err)
		return
	}
	c.JSON(http.StatusOK, url)
}

// GetAttachmentDownloadURL godoc
// @Summary Get a presigned URL to download a session request's attachment
// @Tags SessionRequests
// @Produce json
// @Security BearerAuth
// @Param id path string true "Session request ID"
// @Success 200 {object} service.AttachmentURL
// @Failure 404 {object} ErrorResponse
// @Router /session-requests/{id}/attachment [get]
func (h *SessionRequestHandler) GetAttachmentDownloadURL(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	id, ok := objectIDParam(c, "id")
	if !ok {
		return
	}

	url, err := h.attachmentService.GetDownloadURL(c.Request.Context(), actor, id)
	if err != nil {
		h.attachmentError(c, err)
		return
	}
	c.JSON(http.StatusOK, url)
}

func (h *SessionRequestHandler) attachmentError(c *gin.Context, err error) {
	if errors.Is(err, service.ErrStorageDisabled) {
		abortWithError(c, http.StatusServiceUnavailable, service.CodeInternal, err.Error())
		return
	}
	respondError(c, err)
}

func optionalObjectID(hex string) (*primitive.ObjectID, error) {
	if hex == "" {
		return nil, nil
	}
	id, err := primitive.ObjectIDFromHex(hex)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// parseTimeQuery reads a required timestamp query parameter.
func parseTimeQuery(c *gin.Context, name string) (time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		abortWithError(c, http.StatusBadRequest, service.CodeInvalidRequest, fmt.Sprintf("Query parameter %q is required.", name))
		return time.Time{}, false
	}
	t, err := domain.ParseTimestamp(raw)
	if err != nil {
		respondError(c, err)
		return time.Time{}, false
	}
	return t, true
}
