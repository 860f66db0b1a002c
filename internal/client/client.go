// Package client is a typed HTTP client for the questions/answers API, used
// by the CLI subcommands. Non-2xx responses are decoded from the service's
// error envelope into *APIError.
package client

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/tbourn/go-qa-backend/internal/domain"
)

const (
	headerIdempotencyKey      = "Idempotency-Key"
	headerIdempotencyReplayed = "Idempotency-Replayed"
	defaultTimeout            = 10 * time.Second
)

// APIError is a non-2xx response from the service.
type APIError struct {
	Status    int    `json:"-"`
	RequestID string `json:"request_id"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

func (e *APIError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("%d %s: %s (request_id=%s)", e.Status, e.Code, e.Message, e.RequestID)
	}
	return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
}

// Window selects the half-open range [Start, End) of the ordered question list.
type Window struct {
	Start int
	End   int
}

// AnswerCreated is the result of CreateAnswer.
type AnswerCreated struct {
	ID       domain.AnswerID
	Replayed bool
}

type messageResponse struct {
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}

// Option configures a Client.
type Option func(*resty.Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(r *resty.Client) { r.SetTimeout(d) }
}

// WithRetries retries transport failures and 429/5xx responses count times.
func WithRetries(count int) Option {
	return func(r *resty.Client) {
		r.SetRetryCount(count).
			SetRetryWaitTime(100 * time.Millisecond).
			SetRetryMaxWaitTime(2 * time.Second).
			AddRetryCondition(func(resp *resty.Response, err error) bool {
				if err != nil {
					return true
				}
				s := resp.StatusCode()
				return s == http.StatusTooManyRequests || s >= http.StatusInternalServerError
			})
	}
}

// WithTransport replaces the underlying round tripper.
func WithTransport(rt http.RoundTripper) Option {
	return func(r *resty.Client) { r.SetTransport(rt) }
}

// Client talks to one service instance.
type Client struct {
	r *resty.Client
}

// New returns a Client for baseURL, e.g. "http://localhost:8080" or
// "http://localhost:8080/api/v1".
func New(baseURL string, opts ...Option) *Client {
	r := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(defaultTimeout).
		SetHeader("Accept", "application/json")
	for _, opt := range opts {
		opt(r)
	}
	return &Client{r: r}
}

func (c *Client) request(ctx context.Context) *resty.Request {
	return c.r.R().SetContext(ctx).SetError(&APIError{})
}

// check turns a failed response into *APIError.
func check(resp *resty.Response, err error) error {
	if err != nil {
		return err
	}
	if !resp.IsError() {
		return nil
	}
	apiErr, ok := resp.Error().(*APIError)
	if !ok || apiErr.Code == "" {
		apiErr = &APIError{Code: "unknown", Message: strings.TrimSpace(resp.String())}
	}
	apiErr.Status = resp.StatusCode()
	return apiErr
}

// ListQuestions fetches questions ordered by id. A nil window returns all.
func (c *Client) ListQuestions(ctx context.Context, w *Window) ([]domain.Question, error) {
	var out []domain.Question
	req := c.request(ctx).SetResult(&out)
	if w != nil {
		req.SetQueryParams(map[string]string{
			"start": strconv.Itoa(w.Start),
			"end":   strconv.Itoa(w.End),
		})
	}
	if err := check(req.Get("/questions")); err != nil {
		return nil, err
	}
	if out == nil {
		out = []domain.Question{}
	}
	return out, nil
}

// CreateQuestion stores q, overwriting any question with the same id.
func (c *Client) CreateQuestion(ctx context.Context, q domain.Question) error {
	return check(c.request(ctx).
		SetBody(q).
		SetResult(&messageResponse{}).
		Post("/questions"))
}

// ReplaceQuestion overwrites the question stored under id.
func (c *Client) ReplaceQuestion(ctx context.Context, id domain.QuestionID, q domain.Question) error {
	return check(c.request(ctx).
		SetPathParam("id", id.String()).
		SetBody(q).
		SetResult(&messageResponse{}).
		Put("/questions/{id}"))
}

// DeleteQuestion removes the question stored under id.
func (c *Client) DeleteQuestion(ctx context.Context, id domain.QuestionID) error {
	return check(c.request(ctx).
		SetPathParam("id", id.String()).
		SetResult(&messageResponse{}).
		Delete("/questions/{id}"))
}

// CreateAnswer posts an answer. A non-empty idempotencyKey makes retries
// return the original answer id.
func (c *Client) CreateAnswer(ctx context.Context, idempotencyKey string, questionID domain.QuestionID, content string) (AnswerCreated, error) {
	var out messageResponse
	req := c.request(ctx).
		SetFormData(map[string]string{
			"question_id": questionID.String(),
			"content":     content,
		}).
		SetResult(&out)
	if idempotencyKey != "" {
		req.SetHeader(headerIdempotencyKey, idempotencyKey)
	}
	resp, err := req.Post("/answers")
	if err := check(resp, err); err != nil {
		return AnswerCreated{}, err
	}
	return AnswerCreated{
		ID:       domain.AnswerID(out.ID),
		Replayed: resp.Header().Get(headerIdempotencyReplayed) == "true",
	}, nil
}

// ListAnswers fetches answers, filtered by questionID when non-empty.
func (c *Client) ListAnswers(ctx context.Context, questionID domain.QuestionID) ([]domain.Answer, error) {
	var out []domain.Answer
	req := c.request(ctx).SetResult(&out)
	if questionID != "" {
		req.SetQueryParam("question_id", questionID.String())
	}
	if err := check(req.Get("/answers")); err != nil {
		return nil, err
	}
	if out == nil {
		out = []domain.Answer{}
	}
	return out, nil
}
