package api

import (
	"alcyxob/session-booking/internal/logging"
	"alcyxob/session-booking/internal/service"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var statusByCode = map[service.Code]int{
	service.CodeUnauthenticated:  http.StatusUnauthorized,
	service.CodeForbidden:        http.StatusForbidden,
	service.CodeNotFound:         http.StatusNotFound,
	service.CodeInvalidBody:      http.StatusBadRequest,
	service.CodeInvalidState:     http.StatusBadRequest,
	service.CodeInvalidRequest:   http.StatusBadRequest,
	service.CodeInvalidRange:     http.StatusBadRequest,
	service.CodePastRange:        http.StatusBadRequest,
	service.CodeSessionNotLinked: http.StatusBadRequest,
	service.CodeConflict:         http.StatusConflict,
	service.CodeTimeout:          http.StatusGatewayTimeout,
	service.CodeInternal:         http.StatusInternalServerError,
}

// respondError translates a service error into the JSON error reply.
func respondError(c *gin.Context, err error) {
	code := service.ErrorCode(err)
	status, ok := statusByCode[code]
	if !ok {
		status = http.StatusInternalServerError
	}

	body := ErrorResponse{Error: err.Error(), Code: code, Retryable: service.Retryable(err)}
	var conflictErr *service.ConflictError
	if errors.As(err, &conflictErr) {
		body.Conflicts = conflictErr.Conflicts
	}

	if status >= http.StatusInternalServerError {
		logging.FromContext(c.Request.Context()).Error().Err(err).
			Str("code", string(code)).
			Str("path", c.FullPath()).
			Msg("request failed")
	}
	c.AbortWithStatusJSON(status, body)
}

func invalidBody(c *gin.Context, err error) {
	abortWithError(c, http.StatusBadRequest, service.CodeInvalidBody, "Validation error: "+err.Error())
}

// objectIDParam reads a hex ObjectID path parameter. A malformed id cannot name any
// record, so it is reported as not found.
func objectIDParam(c *gin.Context, name string) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(c.Param(name))
	if err != nil {
		abortWithError(c, http.StatusNotFound, service.CodeNotFound, "Invalid "+name+" format.")
		return primitive.NilObjectID, false
	}
	return id, true
}
