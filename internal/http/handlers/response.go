// Package handlers provides HTTP handler implementations for the public API.
//
// This file defines the response shapes shared by all endpoints and the
// helpers that write them. Success bodies are either the requested records or
// a MessageResponse confirmation; failures always use ErrorResponse and are
// written only by ErrorTranslator.
//
// Example error response:
//
//	HTTP/1.1 400 Bad Request
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "not_found",
//	  "message": "question not found"
//	}
//
// Example success response:
//
//	HTTP/1.1 200 OK
//	{ "message": "Question added" }
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrorResponse is the standard error envelope returned by all endpoints.
//
// Fields:
//   - RequestID: correlation ID echoed from X-Request-ID, used to match server
//     logs with client-side errors.
//   - Code: a stable, machine-readable string (see errors.go constants).
//   - Message: a human-readable description, safe for display to users.
type ErrorResponse struct {
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code (see errors.go constants)
	Code string `json:"code" example:"bad_request"`
	// Human-readable message (safe to show to users)
	Message string `json:"message" example:"missing parameter: end"`
}

// MessageResponse confirms a successful mutation.
type MessageResponse struct {
	Message string `json:"message" example:"Question added"`
}

// AnswerCreatedResponse confirms a new answer and carries its generated id.
type AnswerCreatedResponse struct {
	Message string `json:"message" example:"Answer added"`
	ID      string `json:"id" example:"6f1c2b9e-9d7a-4c53-bb0e-1e5b1f0e2a11"`
}

// Confirmation messages.
const (
	msgQuestionAdded   = "Question added"
	msgQuestionUpdated = "Question updated"
	msgQuestionDeleted = "Question deleted"
	msgAnswerAdded     = "Answer added"
)

// writeError writes the error envelope and aborts the chain.
func writeError(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, ErrorResponse{
		RequestID: c.Writer.Header().Get(headerRequestID),
		Code:      code,
		Message:   msg,
	})
}

// ok writes a success JSON response.
func ok(c *gin.Context, body any) {
	c.JSON(http.StatusOK, body)
}

// confirm writes a MessageResponse with status 200.
func confirm(c *gin.Context, msg string) {
	ok(c, MessageResponse{Message: msg})
}
