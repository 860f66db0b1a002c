// Package services – AnswerService
//
// AnswerService owns answer creation. Answer ids are generated here, so a
// retried POST would normally create a second answer; when the caller sends
// an Idempotency-Key the key is reserved in the idempotency repository first
// and a retry gets the original id back instead.

package services

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-qa-backend/internal/domain"
	"github.com/tbourn/go-qa-backend/internal/observability"
	"github.com/tbourn/go-qa-backend/internal/repo"
)

// IdempotencyScope is the scope under which answer creation keys are recorded.
const IdempotencyScope = "answers"

// DefaultIdempotencyTTL applies when AnswerService.TTL is not set.
const DefaultIdempotencyTTL = 24 * time.Hour

const answerTracer = "services/answers"

// AnswerService creates and lists answers.
//
// DB may be nil, in which case Idempotency-Key values are ignored.
type AnswerService struct {
	Store *repo.Store
	DB    *gorm.DB
	TTL   time.Duration

	// NewID generates answer ids. Defaults to uuid.NewString.
	NewID func() string
}

// Create stores a new answer for questionID and returns it.
//
// The question id is not checked against the stored questions. When key is
// non-empty and a live reservation for it exists, nothing is inserted: the
// returned answer carries the originally assigned id and replayed is true.
func (s *AnswerService) Create(ctx context.Context, key string, questionID domain.QuestionID, content string) (a domain.Answer, replayed bool, err error) {
	ctx, span := observability.Tracer(answerTracer).Start(ctx, "answers.create",
		trace.WithAttributes(
			observability.AttrQuestionID.String(questionID.String()),
			observability.AttrIdempotent.Bool(key != "" && s.DB != nil),
		),
	)
	defer span.End()

	a = domain.Answer{
		ID:         domain.AnswerID(s.newID()),
		QuestionID: questionID,
		Content:    content,
	}

	if key != "" && s.DB != nil {
		_, err := repo.CreateIdempotency(ctx, s.DB, IdempotencyScope, key, string(a.ID), http.StatusOK, s.ttl())
		switch {
		case errors.Is(err, repo.ErrDuplicate):
			rec, gerr := repo.GetIdempotency(ctx, s.DB, IdempotencyScope, key, time.Now().UTC())
			if gerr != nil {
				return domain.Answer{}, false, fail(span, gerr)
			}
			span.SetAttributes(observability.AttrReplayed.Bool(true))
			a.ID = domain.AnswerID(rec.ResourceID)
			zerolog.Ctx(ctx).Debug().Str("answer_id", rec.ResourceID).Msg("answer creation replayed")
			return a, true, nil
		case err != nil:
			return domain.Answer{}, false, fail(span, err)
		}
	}

	s.Store.InsertAnswer(a)
	return a, false, nil
}

// List returns all answers ordered by id, or only those recorded against
// questionID when it is non-empty.
func (s *AnswerService) List(ctx context.Context, questionID domain.QuestionID) []domain.Answer {
	_, span := observability.Tracer(answerTracer).Start(ctx, "answers.list",
		trace.WithAttributes(observability.AttrQuestionID.String(questionID.String())),
	)
	defer span.End()

	all := s.Store.ListAnswers()
	if questionID == "" {
		span.SetAttributes(observability.AttrResultCount.Int(len(all)))
		return all
	}
	out := make([]domain.Answer, 0, len(all))
	for _, a := range all {
		if a.QuestionID == questionID {
			out = append(out, a)
		}
	}
	span.SetAttributes(observability.AttrResultCount.Int(len(out)))
	return out
}

// Replayable reports whether a live reservation exists for key. It backs the
// idempotency middleware lookup.
func (s *AnswerService) Replayable(ctx context.Context, key string, now time.Time) (bool, error) {
	if s.DB == nil {
		return false, nil
	}
	_, err := repo.GetIdempotency(ctx, s.DB, IdempotencyScope, key, now)
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (s *AnswerService) newID() string {
	if s.NewID != nil {
		return s.NewID()
	}
	return uuid.NewString()
}

func (s *AnswerService) ttl() time.Duration {
	if s.TTL > 0 {
		return s.TTL
	}
	return DefaultIdempotencyTTL
}
