// Question HTTP handlers.
//
// This file exposes REST endpoints for question resources:
//   - GET    /questions        (list, optional start/end window, ETag support)
//   - POST   /questions        (create or overwrite by id)
//   - PUT    /questions/{id}   (replace)
//   - DELETE /questions/{id}   (delete)
//
// Handlers are transport-thin: they bind input, call application services,
// and either write the success body or record the error for ErrorTranslator.
package handlers

import (
	"context"
	"fmt"
	"hash/fnv"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-qa-backend/internal/domain"
)

//
// Service contracts (context-aware)
//

// QuestionService defines the question operations consumed by HTTP handlers.
//
// Implementations must be safe for concurrent use.
type QuestionService interface {
	// List returns questions ordered by id, optionally windowed by the
	// "start"/"end" params, and the store version the result was read at.
	List(ctx context.Context, params map[string]string) ([]domain.Question, uint64, error)
	// Create stores q, overwriting any question with the same id.
	Create(ctx context.Context, q domain.Question) error
	// Replace overwrites the question stored under id.
	Replace(ctx context.Context, id domain.QuestionID, q domain.Question) error
	// Delete removes the question stored under id.
	Delete(ctx context.Context, id domain.QuestionID) error
}

// AnswerService defines the answer operations consumed by HTTP handlers.
type AnswerService interface {
	// Create records an answer. A non-empty key makes the call idempotent;
	// replayed reports that the key was seen before and nothing was inserted.
	Create(ctx context.Context, key string, questionID domain.QuestionID, content string) (a domain.Answer, replayed bool, err error)
	// List returns answers, filtered by questionID when it is non-empty.
	List(ctx context.Context, questionID domain.QuestionID) []domain.Answer
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for questions and answers.
type Handlers struct {
	questionSvc QuestionService
	answerSvc   AnswerService
}

// New constructs and returns a Handlers instance bound to the given services.
func New(questionSvc QuestionService, answerSvc AnswerService) *Handlers {
	return &Handlers{questionSvc: questionSvc, answerSvc: answerSvc}
}

//
// DTOs
//

// QuestionRequest is the JSON payload for creating or replacing a question.
// Only id is required; absent text fields are stored empty and absent tags as null.
type QuestionRequest struct {
	ID      domain.QuestionID `json:"id" binding:"required" example:"42" swaggertype:"string"`
	Title   string            `json:"title" example:"How do I reverse a slice?"`
	Content string            `json:"content" example:"Is there a builtin for it?"`
	Tags    []string          `json:"tags" example:"go,slices"`
}

func (r QuestionRequest) question() domain.Question {
	return domain.Question{ID: r.ID, Title: r.Title, Content: r.Content, Tags: r.Tags}
}

//
// Helpers
//

// queryParams flattens the query string, keeping the first value of each key.
func queryParams(c *gin.Context) map[string]string {
	q := c.Request.URL.Query()
	params := make(map[string]string, len(q))
	for k, vs := range q {
		if len(vs) > 0 {
			params[k] = vs[0]
		}
	}
	return params
}

// questionsETag derives a weak ETag from the store version and the raw query,
// so the same window over an unchanged store always yields the same tag.
func questionsETag(version uint64, rawQuery string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(rawQuery))
	return fmt.Sprintf(`W/"questions:v%d:%x"`, version, h.Sum64())
}

// pathQuestionID reads the {id} path parameter.
// etagMatches applies If-None-Match semantics: "*" or any listed tag equal
// to etag under weak comparison.
func etagMatches(header, etag string) bool {
	for _, tag := range strings.Split(header, ",") {
		tag = strings.TrimSpace(tag)
		if tag == "*" || (tag != "" && strings.TrimPrefix(tag, "W/") == strings.TrimPrefix(etag, "W/")) {
			return true
		}
	}
	return false
}

func pathQuestionID(c *gin.Context) (domain.QuestionID, error) {
	id, err := domain.NewQuestionID(c.Param("id"))
	if err != nil {
		return "", domain.ErrQuestionNotFound
	}
	return id, nil
}

//
// Handlers
//

// ListQuestions godoc
// @ID          listQuestions
// @Summary     List questions
// @Description Returns questions ordered by id. With start and end, returns the half-open window [start, end) clamped to the collection. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Questions
// @Produce     json
//
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"  example(W/\"questions:v3:cbf29ce484222325\")
// @Param       start          query   int     false "Window start (inclusive)"    minimum(0)
// @Param       end            query   int     false "Window end (exclusive)"      minimum(0)
//
// @Success     200  {array}  domain.Question
// @Header      200  {string} ETag  "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     400  {object} handlers.ErrorResponse "Missing or unparsable parameter"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /questions [get]
func (h *Handlers) ListQuestions(c *gin.Context) {
	items, version, err := h.questionSvc.List(c.Request.Context(), queryParams(c))
	if err != nil {
		abortWith(c, err)
		return
	}

	etag := questionsETag(version, c.Request.URL.RawQuery)
	c.Header("ETag", etag)
	if etagMatches(c.GetHeader("If-None-Match"), etag) {
		c.Status(http.StatusNotModified)
		return
	}
	ok(c, items)
}

// CreateQuestion godoc
// @ID          createQuestion
// @Summary     Add a question
// @Description Stores a question under its id. An existing question with the same id is replaced.
// @Tags        Questions
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.QuestionRequest  true  "Question"
//
// @Success     200  {object} handlers.MessageResponse
// @Failure     422  {object} handlers.ErrorResponse "Malformed body or missing id"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /questions [post]
func (h *Handlers) CreateQuestion(c *gin.Context) {
	var req QuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWith(c, &BodyDecodeError{Err: err})
		return
	}
	if err := h.questionSvc.Create(c.Request.Context(), req.question()); err != nil {
		abortWith(c, err)
		return
	}
	confirm(c, msgQuestionAdded)
}

// ReplaceQuestion godoc
// @ID          replaceQuestion
// @Summary     Replace a question
// @Description Overwrites the question stored under the path id with the body. The body's own id is stored as given.
// @Tags        Questions
// @Accept      json
// @Produce     json
//
// @Param       id    path  string                   true  "Question ID"  example(42)
// @Param       body  body  handlers.QuestionRequest  true  "Question"
//
// @Success     200  {object} handlers.MessageResponse
// @Failure     400  {object} handlers.ErrorResponse "Question not found"
// @Failure     422  {object} handlers.ErrorResponse "Malformed body or missing id"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /questions/{id} [put]
func (h *Handlers) ReplaceQuestion(c *gin.Context) {
	id, err := pathQuestionID(c)
	if err != nil {
		abortWith(c, err)
		return
	}
	var req QuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWith(c, &BodyDecodeError{Err: err})
		return
	}
	if err := h.questionSvc.Replace(c.Request.Context(), id, req.question()); err != nil {
		abortWith(c, err)
		return
	}
	confirm(c, msgQuestionUpdated)
}

// DeleteQuestion godoc
// @ID          deleteQuestion
// @Summary     Delete a question
// @Tags        Questions
// @Produce     json
//
// @Param       id  path  string  true  "Question ID"  example(42)
//
// @Success     200  {object} handlers.MessageResponse
// @Failure     400  {object} handlers.ErrorResponse "Question not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /questions/{id} [delete]
func (h *Handlers) DeleteQuestion(c *gin.Context) {
	id, err := pathQuestionID(c)
	if err != nil {
		abortWith(c, err)
		return
	}
	if err := h.questionSvc.Delete(c.Request.Context(), id); err != nil {
		abortWith(c, err)
		return
	}
	confirm(c, msgQuestionDeleted)
}
