package api

import (
	"alcyxob/session-booking/internal/domain"
	"alcyxob/session-booking/internal/service"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Constants for context keys
const (
	ContextUserIDKey   = "userID"
	ContextUserRoleKey = "userRole"
)

// AuthMiddleware creates a Gin middleware for JWT authentication.
func AuthMiddleware(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortWithError(c, http.StatusUnauthorized, service.CodeUnauthenticated, "Authorization header is missing")
			return
		}

		// Expecting "Bearer <token>"
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			abortWithError(c, http.StatusUnauthorized, service.CodeUnauthenticated, "Authorization header format must be Bearer {token}")
			return
		}
		tokenString := parts[1]

		// Parse and validate the token
		claims := &service.Claims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
			// Validate the alg is what we expect:
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(jwtSecret), nil
		})
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				abortWithError(c, http.StatusUnauthorized, service.CodeUnauthenticated, "Token has expired")
			} else {
				abortWithError(c, http.StatusUnauthorized, service.CodeUnauthenticated, fmt.Sprintf("Invalid token: %v", err))
			}
			return
		}

		if !token.Valid || claims.UserID == "" || claims.Role == "" || claims.Issuer != service.TokenIssuer {
			abortWithError(c, http.StatusUnauthorized, service.CodeUnauthenticated, "Invalid token or missing claims")
			return
		}
		if _, err := primitive.ObjectIDFromHex(claims.UserID); err != nil {
			abortWithError(c, http.StatusUnauthorized, service.CodeUnauthenticated, "Invalid user ID in token")
			return
		}

		// --- Token is valid ---
		c.Set(ContextUserIDKey, claims.UserID) // Hex string
		c.Set(ContextUserRoleKey, claims.Role)

		c.Next()
	}
}

// StoreTimeout bounds every downstream store call made while serving the request.
func StoreTimeout(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if d <= 0 {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error     string                `json:"error"`
	Code      service.Code          `json:"code"`
	Conflicts []domain.ConflictInfo `json:"conflicts,omitempty"`
	Retryable bool                  `json:"retryable,omitempty"`
}

// Helper to return JSON error response and abort request
func abortWithError(c *gin.Context, status int, code service.Code, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Error: message, Code: code})
}

// RoleMiddleware creates middleware to check if user has the required role(s).
// Admins pass every role check. Must run AFTER AuthMiddleware.
func RoleMiddleware(allowedRoles ...domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		userRole, err := getUserRoleFromContext(c)
		if err != nil {
			// This should not happen if AuthMiddleware ran correctly
			abortWithError(c, http.StatusInternalServerError, service.CodeInternal, err.Error())
			return
		}
		if userRole == domain.RoleAdmin {
			c.Next()
			return
		}

		for _, allowedRole := range allowedRoles {
			if userRole == allowedRole {
				c.Next()
				return
			}
		}
		abortWithError(c, http.StatusForbidden, service.CodeForbidden, fmt.Sprintf("Access denied: Role '%s' does not have permission", userRole))
	}
}

// Helper function to get User ID from context (used by handlers)
func getUserIDFromContext(c *gin.Context) (string, error) {
	idRaw, exists := c.Get(ContextUserIDKey)
	if !exists {
		return "", errors.New("user ID not found in context")
	}
	idStr, ok := idRaw.(string)
	if !ok {
		return "", errors.New("invalid user ID type in context")
	}
	return idStr, nil
}

// Helper function to get User Role from context (used by handlers)
func getUserRoleFromContext(c *gin.Context) (domain.Role, error) {
	roleRaw, exists := c.Get(ContextUserRoleKey)
	if !exists {
		return "", errors.New("user role not found in context")
	}
	role, ok := roleRaw.(domain.Role)
	if !ok {
		return "", errors.New("invalid user role type in context")
	}
	return role, nil
}

// actorFromContext builds the acting principal. On failure the request is already aborted.
func actorFromContext(c *gin.Context) (domain.Actor, bool) {
	idStr, err := getUserIDFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusUnauthorized, service.CodeUnauthenticated, "Unable to identify user from token.")
		return domain.Actor{}, false
	}
	id, err := primitive.ObjectIDFromHex(idStr)
	if err != nil {
		abortWithError(c, http.StatusUnauthorized, service.CodeUnauthenticated, "Invalid user ID format in token.")
		return domain.Actor{}, false
	}
	role, err := getUserRoleFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusUnauthorized, service.CodeUnauthenticated, "Unable to identify role from token.")
		return domain.Actor{}, false
	}
	return domain.Actor{UserID: id, Role: role}, true
}
