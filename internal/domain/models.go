// Package domain defines the records served by the API: questions and the
// answers posted against them. These types are plain values; the in-memory
// store in package repo owns them and hands out copies.
package domain

import "errors"

// ErrEmptyQuestionID is returned when a QuestionID is built from an empty string.
var ErrEmptyQuestionID = errors.New("no id provided")

// QuestionID uniquely identifies a Question. The zero value is not a valid id;
// construct ids with NewQuestionID or by decoding JSON/text, both of which
// reject the empty string.
type QuestionID string

// NewQuestionID validates s and returns it as a QuestionID.
func NewQuestionID(s string) (QuestionID, error) {
	if s == "" {
		return "", ErrEmptyQuestionID
	}
	return QuestionID(s), nil
}

// String implements fmt.Stringer.
func (id QuestionID) String() string { return string(id) }

// UnmarshalText implements encoding.TextUnmarshaler. encoding/json uses it for
// both string values and map keys, so an empty id never decodes.
func (id *QuestionID) UnmarshalText(b []byte) error {
	v, err := NewQuestionID(string(b))
	if err != nil {
		return err
	}
	*id = v
	return nil
}

// Question is a user-submitted question.
//
// Fields:
//   - ID: caller-supplied identifier, unique within the store.
//   - Title / Content: free text.
//   - Tags: optional ordered labels; null when absent.
//
// A Question is always replaced as a whole; there is no partial update.
type Question struct {
	ID      QuestionID `json:"id"`
	Title   string     `json:"title"`
	Content string     `json:"content"`
	Tags    []string   `json:"tags"`
}

// Clone returns a copy of q that does not share the Tags backing array.
func (q Question) Clone() Question {
	if q.Tags != nil {
		q.Tags = append(make([]string, 0, len(q.Tags)), q.Tags...)
	}
	return q
}

// AnswerID identifies an Answer. Answer ids are generated by the server.
type AnswerID string

// Answer is a reply to a question. QuestionID is informational only: it is
// not checked against the questions collection and may point at a question
// that does not exist or was deleted later.
type Answer struct {
	ID         AnswerID   `json:"id"`
	QuestionID QuestionID `json:"question_id"`
	Content    string     `json:"content"`
}
