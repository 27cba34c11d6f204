// internal/api/session_handler.go
package api

import (
	"alcyxob/session-booking/internal/domain"
	"alcyxob/session-booking/internal/service"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type SessionHandler struct {
	bookingService service.BookingService
}

func NewSessionHandler(bookingService service.BookingService) *SessionHandler {
	return &SessionHandler{bookingService: bookingService}
}

// ListSessions godoc
// @Summary List the caller's confirmed sessions starting in a window
// @Tags Sessions
// @Produce json
// @Security BearerAuth
// @Param from query string true "RFC 3339 start of the window"
// @Param to query string true "RFC 3339 end of the window"
// @Success 200 {array} domain.Session
// @Failure 400 {object} ErrorResponse
// @Router /sessions [get]
func (h *SessionHandler) ListSessions(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	from, ok := parseTimeQuery(c, "from")
	if !ok {
		return
	}
	to, ok := parseTimeQuery(c, "to")
	if !ok {
		return
	}

	sessions, err := h.bookingService.ListSessions(c.Request.Context(), actor, from, to)
	if err != nil {
		respondError(c, err)
		return
	}
	if sessions == nil {
		sessions = []domain.Session{}
	}
	c.JSON(http.StatusOK, sessions)
}

// PreviewConflicts godoc
// @Summary Report bookings that overlap a candidate slot
// @Description Read-only. Lists sessions and open requests of either party overlapping [start, end).
// @Tags Sessions
// @Produce json
// @Security BearerAuth
// @Param trainerId query string true "Trainer ID"
// @Param clientId query string true "Client ID"
// @Param start query string true "RFC 3339 start"
// @Param end query string true "RFC 3339 end"
// @Param excludeSessionId query string false "Session to ignore"
// @Param excludeRequestId query string false "Request to ignore"
// @Success 200 {object} service.ConflictReport
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Router /conflicts [get]
func (h *SessionHandler) PreviewConflicts(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}

	var q service.ConflictQuery
	var err error
	if q.TrainerID, err = primitive.ObjectIDFromHex(c.Query("trainerId")); err != nil {
		abortWithError(c, http.StatusBadRequest, service.CodeInvalidRequest, "Invalid trainerId format.")
		return
	}
	if q.ClientID, err = primitive.ObjectIDFromHex(c.Query("clientId")); err != nil {
		abortWithError(c, http.StatusBadRequest, service.CodeInvalidRequest, "Invalid clientId format.")
		return
	}
	if q.ExcludeSessionID, err = optionalObjectID(c.Query("excludeSessionId")); err != nil {
		abortWithError(c, http.StatusBadRequest, service.CodeInvalidRequest, "Invalid excludeSessionId format.")
		return
	}
	if q.ExcludeRequestID, err = optionalObjectID(c.Query("excludeRequestId")); err != nil {
		abortWithError(c, http.StatusBadRequest, service.CodeInvalidRequest, "Invalid excludeRequestId format.")
		return
	}
	if q.Interval.Start, ok = parseTimeQuery(c, "start"); !ok {
		return
	}
	if q.Interval.End, ok = parseTimeQuery(c, "end"); !ok {
		return
	}

	report, err := h.bookingService.PreviewConflicts(c.Request.Context(), actor, q)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}
