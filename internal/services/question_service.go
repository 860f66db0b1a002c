// Package services defines the business logic for questions and answers.
//
// Services sit between the HTTP handlers and the in-memory repo.Store. They
// never translate errors into transport terms: domain errors are returned
// unchanged so the handler boundary can map them exactly once.
//
// Observability: public methods are OpenTelemetry-instrumented the same way
// throughout the package.
package services

import (
	"context"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/unicode/norm"

	"github.com/tbourn/go-qa-backend/internal/domain"
	"github.com/tbourn/go-qa-backend/internal/observability"
	"github.com/tbourn/go-qa-backend/internal/repo"
	"github.com/tbourn/go-qa-backend/internal/utils"
)

const questionTracer = "services/questions"

// QuestionService coordinates question listing and whole-value mutations.
type QuestionService struct {
	Store *repo.Store
}

// List returns the stored questions ordered by id together with the store
// version the snapshot was taken at.
//
// An empty params map returns everything. Otherwise "start" and "end" are
// extracted (extraction errors are returned unchanged) and applied to a single
// snapshot: both bounds are clamped to the collection length and an empty or
// inverted window yields an empty, non-nil slice.
func (s *QuestionService) List(ctx context.Context, params map[string]string) ([]domain.Question, uint64, error) {
	_, span := observability.Tracer(questionTracer).Start(ctx, "questions.list")
	defer span.End()

	if len(params) == 0 {
		qs, v := s.Store.ListQuestionsVersioned()
		span.SetAttributes(observability.AttrResultCount.Int(len(qs)))
		return qs, v, nil
	}

	p, err := utils.ExtractPagination(params)
	if err != nil {
		return nil, 0, fail(span, err)
	}
	span.SetAttributes(observability.AttrWindowStart.Int(p.Start), observability.AttrWindowEnd.Int(p.End))

	qs, v := s.Store.ListQuestionsVersioned()
	lo, hi, ok := utils.Clamp(p, len(qs))
	if !ok {
		span.SetAttributes(observability.AttrResultCount.Int(0))
		return []domain.Question{}, v, nil
	}
	span.SetAttributes(observability.AttrResultCount.Int(hi - lo))
	return qs[lo:hi], v, nil
}

// Create stores q under q.ID. An existing question with the same id is
// replaced wholesale.
func (s *QuestionService) Create(ctx context.Context, q domain.Question) error {
	_, span := observability.Tracer(questionTracer).Start(ctx, "questions.create",
		trace.WithAttributes(observability.AttrQuestionID.String(q.ID.String())),
	)
	defer span.End()

	s.Store.UpsertQuestion(normalizeQuestion(q))
	return nil
}

// Replace overwrites the question stored under id with q. It returns
// domain.ErrQuestionNotFound when id is unknown.
func (s *QuestionService) Replace(ctx context.Context, id domain.QuestionID, q domain.Question) error {
	_, span := observability.Tracer(questionTracer).Start(ctx, "questions.replace",
		trace.WithAttributes(observability.AttrQuestionID.String(id.String())),
	)
	defer span.End()

	return fail(span, s.Store.ReplaceQuestion(id, normalizeQuestion(q)))
}

// Delete removes the question stored under id. It returns
// domain.ErrQuestionNotFound when id is unknown. Answers that reference the
// question are kept.
func (s *QuestionService) Delete(ctx context.Context, id domain.QuestionID) error {
	_, span := observability.Tracer(questionTracer).Start(ctx, "questions.delete",
		trace.WithAttributes(observability.AttrQuestionID.String(id.String())),
	)
	defer span.End()

	return fail(span, s.Store.RemoveQuestion(id))
}

// normalizeQuestion puts free text into Unicode NFC so that visually equal
// titles and tags compare equal. Already-normalized input is returned as is;
// the id and the presence of tags are never changed.
func normalizeQuestion(q domain.Question) domain.Question {
	q.Title = norm.NFC.String(q.Title)
	q.Content = norm.NFC.String(q.Content)
	if q.Tags != nil {
		tags := make([]string, len(q.Tags))
		for i, t := range q.Tags {
			tags[i] = norm.NFC.String(t)
		}
		q.Tags = tags
	}
	return q
}

// fail marks span as errored when err is non-nil and returns err.
func fail(span trace.Span, err error) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
