package repo

import (
	"sort"

	"github.com/tbourn/go-qa-backend/internal/domain"
)

// InsertAnswer stores a under a.ID. Ids are generated by the caller and are
// expected to be unique; an existing entry with the same id is overwritten.
func (s *Store) InsertAnswer(a domain.Answer) {
	s.amu.Lock()
	s.answers[a.ID] = a
	s.amu.Unlock()
}

// ListAnswers returns a snapshot of all answers ordered by id.
func (s *Store) ListAnswers() []domain.Answer {
	s.amu.RLock()
	out := make([]domain.Answer, 0, len(s.answers))
	for _, a := range s.answers {
		out = append(out, a)
	}
	s.amu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AnswerCount returns the number of stored answers.
func (s *Store) AnswerCount() int {
	s.amu.RLock()
	defer s.amu.RUnlock()
	return len(s.answers)
}
