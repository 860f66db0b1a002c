// Package repo implements the data layer. This file loads the seed document
// that pre-populates the questions collection at startup: a JSON object
// mapping question id to a question. A copy is embedded in the binary so the
// service starts without any files on disk.
package repo

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/tbourn/go-qa-backend/internal/domain"
)

//go:embed data/questions.json
var defaultSeed []byte

// DefaultSeed returns the embedded seed document.
func DefaultSeed() []byte { return append([]byte(nil), defaultSeed...) }

// LoadSeed decodes a seed document from r. Unknown fields, trailing data,
// and empty ids (as keys or values) are errors.
func LoadSeed(r io.Reader) (map[domain.QuestionID]domain.Question, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()

	var qs map[domain.QuestionID]domain.Question
	if err := dec.Decode(&qs); err != nil {
		return nil, fmt.Errorf("decode seed: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("decode seed: unexpected data after document")
	}
	if qs == nil {
		return nil, fmt.Errorf("decode seed: document is null")
	}
	return qs, nil
}

// NewStoreFromSeed builds a Store from the seed document at path, or from the
// embedded document when path is empty.
func NewStoreFromSeed(path string) (*Store, error) {
	var r io.Reader = bytes.NewReader(defaultSeed)
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	qs, err := LoadSeed(r)
	if err != nil {
		return nil, err
	}
	return NewStore(qs), nil
}
