package models

import (
	"maps"
	"reflect"
	"slices"
	"time"
)

// Document is an answer tree bound to a form. Table answers own their row documents.
type Document struct {
	ID             string             `json:"id"`
	Form           string             `json:"form"`
	FamilyID       string             `json:"family_id"`         // ID of the root document
	CaseID         string             `json:"case_id,omitempty"` // Case owning the document, if any
	Answers        map[string]*Answer `json:"answers"`
	CreatedByUser  string             `json:"created_by_user,omitempty"`
	CreatedByGroup string             `json:"created_by_group,omitempty"`
	Meta           map[string]any     `json:"meta,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
	ModifiedAt     time.Time          `json:"modified_at"`
}

// Answer holds the value given to one question of a document.
type Answer struct {
	Question   string      `json:"question"`
	Value      any         `json:"value,omitempty"`
	File       *File       `json:"file,omitempty"`
	Rows       []*Document `json:"rows,omitempty"`
	ModifiedAt time.Time   `json:"modified_at"`
}

// File references an uploaded object.
type File struct {
	Name      string `json:"name"`
	ObjectKey string `json:"object_key,omitempty"`
}

// Answer returns the answer to a question slug, or nil.
func (d *Document) Answer(slug string) *Answer {
	if d == nil || d.Answers == nil {
		return nil
	}

	return d.Answers[slug]
}

// SetAnswer stores an answer, replacing any previous answer to the same question.
func (d *Document) SetAnswer(answer *Answer) {
	if d.Answers == nil {
		d.Answers = map[string]*Answer{}
	}

	d.Answers[answer.Question] = answer
}

// Walk visits the document and all row documents below it, parents first, in question
// slug then row order. Nil rows are skipped.
func (d *Document) Walk(fn func(*Document)) {
	if d == nil {
		return
	}

	stack := []*Document{d}

	for len(stack) > 0 {
		doc := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		fn(doc)

		slugs := slices.Sorted(maps.Keys(doc.Answers))
		for i := len(slugs) - 1; i >= 0; i-- {
			answer := doc.Answers[slugs[i]]
			if answer == nil {
				continue
			}

			for j := len(answer.Rows) - 1; j >= 0; j-- {
				if answer.Rows[j] != nil {
					stack = append(stack, answer.Rows[j])
				}
			}
		}
	}
}

// IsEmpty reports whether the answer carries no value for the given question type.
func (a *Answer) IsEmpty(questionType QuestionType) bool {
	if a == nil {
		return true
	}

	switch questionType {
	case QuestionTypeTable:
		return len(a.Rows) == 0
	case QuestionTypeFile:
		return a.File == nil || a.File.Name == ""
	}

	switch v := a.Value.(type) {
	case nil:
		return true
	case string:
		return v == ""
	}

	rv := reflect.ValueOf(a.Value)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Map {
		return rv.Len() == 0
	}

	return false
}
