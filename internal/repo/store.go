// Package repo implements the data layer. The questions and answers live in
// Store, an in-memory container with one reader/writer lock per collection;
// idempotency records live in SQLite through GORM (see db.go).
//
// Store is created once at startup and shared by reference with every
// request. It is never recreated; all mutations are lost on restart.
package repo

import (
	"sync"

	"github.com/tbourn/go-qa-backend/internal/domain"
)

// Store owns the questions and answers collections. Each collection has its
// own RWMutex, so a question write never blocks an answer operation and vice
// versa. No method holds more than one of the two locks at a time.
//
// The zero value is not usable; construct with NewStore or NewStoreFromSeed.
type Store struct {
	qmu       sync.RWMutex
	questions map[domain.QuestionID]domain.Question
	qversion  uint64 // bumped on every question mutation, guarded by qmu

	amu     sync.RWMutex
	answers map[domain.AnswerID]domain.Answer
}

// NewStore returns a Store holding a copy of seed as its questions and no
// answers. A nil seed yields an empty store.
func NewStore(seed map[domain.QuestionID]domain.Question) *Store {
	qs := make(map[domain.QuestionID]domain.Question, len(seed))
	for id, q := range seed {
		qs[id] = q.Clone()
	}
	return &Store{
		questions: qs,
		answers:   make(map[domain.AnswerID]domain.Answer),
	}
}
