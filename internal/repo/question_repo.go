// Package repo implements the data layer. This file holds the question
// operations of Store: snapshot listing and whole-value upsert, replace, and
// remove. Every mutation is a single map assignment or delete under the
// questions write lock, so readers see either the old or the new value.
package repo

import (
	"sort"

	"github.com/tbourn/go-qa-backend/internal/domain"
)

// ListQuestions returns a snapshot of all questions ordered by id.
// The read lock is held only while copying.
func (s *Store) ListQuestions() []domain.Question {
	qs, _ := s.ListQuestionsVersioned()
	return qs
}

// ListQuestionsVersioned returns the same snapshot as ListQuestions together
// with the collection version observed under the same read lock. The version
// changes whenever a question is inserted, replaced, or removed.
func (s *Store) ListQuestionsVersioned() ([]domain.Question, uint64) {
	s.qmu.RLock()
	out := make([]domain.Question, 0, len(s.questions))
	keys := make([]domain.QuestionID, 0, len(s.questions))
	for id := range s.questions {
		keys = append(keys, id)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	for _, id := range keys {
		out = append(out, s.questions[id].Clone())
	}
	v := s.qversion
	s.qmu.RUnlock()
	return out, v
}

// GetQuestion returns the question stored under id.
func (s *Store) GetQuestion(id domain.QuestionID) (domain.Question, error) {
	s.qmu.RLock()
	defer s.qmu.RUnlock()
	q, ok := s.questions[id]
	if !ok {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	return q.Clone(), nil
}

// UpsertQuestion stores q under q.ID, wholly replacing any previous value.
func (s *Store) UpsertQuestion(q domain.Question) {
	q = q.Clone()
	s.qmu.Lock()
	s.questions[q.ID] = q
	s.qversion++
	s.qmu.Unlock()
}

// ReplaceQuestion overwrites the question stored under id. The stored value is
// q as given, even when q.ID differs from id. It returns
// domain.ErrQuestionNotFound when nothing is stored under id.
func (s *Store) ReplaceQuestion(id domain.QuestionID, q domain.Question) error {
	q = q.Clone()
	s.qmu.Lock()
	defer s.qmu.Unlock()
	if _, ok := s.questions[id]; !ok {
		return domain.ErrQuestionNotFound
	}
	s.questions[id] = q
	s.qversion++
	return nil
}

// RemoveQuestion deletes the question stored under id, or returns
// domain.ErrQuestionNotFound.
func (s *Store) RemoveQuestion(id domain.QuestionID) error {
	s.qmu.Lock()
	defer s.qmu.Unlock()
	if _, ok := s.questions[id]; !ok {
		return domain.ErrQuestionNotFound
	}
	delete(s.questions, id)
	s.qversion++
	return nil
}

// QuestionCount returns the number of stored questions.
func (s *Store) QuestionCount() int {
	s.qmu.RLock()
	defer s.qmu.RUnlock()
	return len(s.questions)
}
