// Package handlers – error codes and the boundary translator.
//
// Handlers and middleware never write error bodies. They record the failure
// with c.Error and abort; ErrorTranslator then calls Translate exactly once per
// request and writes the envelope:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "bad_request",
//	  "message": "cannot parse parameter \"start\": strconv.ParseUint: parsing \"abc\": invalid syntax"
//	}
//
// Codes are lowercase snake_case and stable; clients branch on them.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-qa-backend/internal/domain"
	"github.com/tbourn/go-qa-backend/internal/http/middleware"
)

const (
	ErrCodeBadRequest        = "bad_request"
	ErrCodeForbidden         = "forbidden"
	ErrCodeNotFound          = "not_found"
	ErrCodeUnprocessable     = "unprocessable_entity"
	ErrCodeBadIdempotencyKey = "bad_idempotency_key"
	ErrCodeRateLimited       = "too_many_requests"
	ErrCodeInternal          = "internal_error"
)

const (
	msgRouteNotFound       = "Route not found"
	msgInternalServerError = "Internal Server Error"
	headerRequestID        = "X-Request-ID"

	// maxLoggedErrorDetail caps the error text attached to 5xx logs.
	maxLoggedErrorDetail = 1024
)

// ErrRouteNotFound is recorded by NoRoute when no route matches the request,
// including a known path requested with an unsupported method.
var ErrRouteNotFound = errors.New("route not found")

// BodyDecodeError reports a request body that could not be decoded into the
// expected shape: malformed JSON or form data, a missing or empty required
// field, or a body over the size limit.
type BodyDecodeError struct {
	Err error
}

func (e *BodyDecodeError) Error() string {
	return "Request body deserialize error: " + e.Err.Error()
}

func (e *BodyDecodeError) Unwrap() error { return e.Err }

// Translate maps any error surfaced by a handler or middleware to an HTTP
// status, a stable code, and the message shown to the caller.
//
// Unknown errors become 500 with a fixed message; the caller is responsible
// for logging the original error (ErrorTranslator does).
func Translate(err error) (status int, code, message string) {
	var (
		parseErr  *domain.ParseError
		decodeErr *BodyDecodeError
		corsErr   *middleware.CORSForbiddenError
	)
	switch {
	case errors.As(err, &parseErr),
		errors.Is(err, domain.ErrMissingParameters),
		errors.Is(err, domain.ErrInvalidRange),
		errors.Is(err, domain.ErrEmptyQuestionID):
		return http.StatusBadRequest, ErrCodeBadRequest, err.Error()
	case errors.Is(err, domain.ErrQuestionNotFound):
		// 400, not 404: an unknown id is reported as a bad request.
		return http.StatusBadRequest, ErrCodeNotFound, err.Error()
	case errors.As(err, &corsErr):
		return http.StatusForbidden, ErrCodeForbidden, err.Error()
	case errors.As(err, &decodeErr):
		return http.StatusUnprocessableEntity, ErrCodeUnprocessable, err.Error()
	case errors.Is(err, ErrRouteNotFound):
		return http.StatusNotFound, ErrCodeNotFound, msgRouteNotFound
	case errors.Is(err, middleware.ErrInvalidIdempotencyKey):
		return http.StatusBadRequest, ErrCodeBadIdempotencyKey, err.Error()
	case errors.Is(err, middleware.ErrRateLimited):
		return http.StatusTooManyRequests, ErrCodeRateLimited, err.Error()
	default:
		return http.StatusInternalServerError, ErrCodeInternal, msgInternalServerError
	}
}

// ErrorTranslator turns the error recorded on the Gin context into the error
// envelope once the rest of the chain has returned. It must sit after
// RequestID and the logger and before Recovery, so recovered panics are
// translated too.
//
// When several errors were recorded, the last one decides the response. If
// the handler already wrote a response the error is only logged.
func ErrorTranslator() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		last := c.Errors.Last()
		if last == nil {
			return
		}
		err := last.Err

		if c.Writer.Written() {
			middleware.LoggerFrom(c).Error().
				Err(err).
				Int("status", c.Writer.Status()).
				Msg("error after response was written")
			return
		}

		status, code, msg := Translate(err)
		if status >= http.StatusInternalServerError {
			detail := err.Error()
			if len(detail) > maxLoggedErrorDetail {
				detail = detail[:maxLoggedErrorDetail]
			}
			middleware.LoggerFrom(c).Error().
				Int("status", status).
				Str("code", code).
				Str("error", detail).
				Msg("api error")
		}
		middleware.ObserveAPIError(code)
		writeError(c, status, code, msg)
	}
}

// NoRoute records ErrRouteNotFound. Install it with engine.NoRoute.
func NoRoute(c *gin.Context) {
	abortWith(c, ErrRouteNotFound)
}

// abortWith records err for the translator and stops the chain.
func abortWith(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}
