// Answer HTTP handlers.
//
//   - POST /answers   (form: question_id, content; optional Idempotency-Key)
//   - GET  /answers   (optional ?question_id= filter)
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-qa-backend/internal/domain"
	"github.com/tbourn/go-qa-backend/internal/http/middleware"
)

// CreateAnswerRequest is the form payload for posting an answer.
type CreateAnswerRequest struct {
	QuestionID string `form:"question_id" binding:"required" example:"42"`
	Content    string `form:"content" binding:"required" example:"Use slices.Reverse."`
}

// CreateAnswer godoc
// @ID          createAnswer
// @Summary     Add an answer
// @Description Records an answer with a server-generated id. The question id is not checked. With an Idempotency-Key header, a repeated request returns the original id and sets Idempotency-Replayed.
// @Tags        Answers
// @Accept      x-www-form-urlencoded
// @Produce     json
//
// @Param       Idempotency-Key  header    string  false "Idempotency key"  example(2b8f8c7e-answer-1)
// @Param       question_id      formData  string  true  "Question ID"      example(42)
// @Param       content          formData  string  true  "Answer text"
//
// @Success     200  {object} handlers.AnswerCreatedResponse
// @Header      200  {string} Idempotency-Replayed "true when the response replays an earlier request"
// @Failure     400  {object} handlers.ErrorResponse "Invalid Idempotency-Key"
// @Failure     422  {object} handlers.ErrorResponse "Malformed form or missing field"
// @Failure     429  {object} handlers.ErrorResponse "Rate limited"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /answers [post]
func (h *Handlers) CreateAnswer(c *gin.Context) {
	var req CreateAnswerRequest
	if err := c.ShouldBind(&req); err != nil {
		abortWith(c, &BodyDecodeError{Err: err})
		return
	}
	qid, err := domain.NewQuestionID(req.QuestionID)
	if err != nil {
		abortWith(c, &BodyDecodeError{Err: err})
		return
	}

	key, _ := middleware.GetIdempotencyKey(c)
	a, replayed, err := h.answerSvc.Create(c.Request.Context(), key, qid, req.Content)
	if err != nil {
		abortWith(c, err)
		return
	}
	if replayed {
		c.Header(middleware.HeaderIdempotencyReplayed, "true")
		middleware.ObserveReplay(c)
	}
	ok(c, AnswerCreatedResponse{Message: msgAnswerAdded, ID: string(a.ID)})
}

// ListAnswers godoc
// @ID          listAnswers
// @Summary     List answers
// @Tags        Answers
// @Produce     json
//
// @Param       question_id  query  string  false "Only answers for this question"  example(42)
//
// @Success     200  {array}  domain.Answer
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /answers [get]
func (h *Handlers) ListAnswers(c *gin.Context) {
	qid := domain.QuestionID(c.Query("question_id"))
	ok(c, h.answerSvc.List(c.Request.Context(), qid))
}
