// Package validation decides whether documents satisfy the hidden, required and value
// constraints of their forms.
package validation

import (
	"context"
	"slices"

	"github.com/dukex/casework/pkg/jexl"
	"github.com/dukex/casework/pkg/models"
)

const (
	messageRequired      = "This field is required."
	messageTableRequired = "At least one complete row is required."
	messageStrayAnswer   = "Question is not part of the document's form."
)

// Validator evaluates document validity against a schema.
type Validator struct {
	schema    Schema
	plugins   Plugins
	evaluator *jexl.Evaluator
}

// NewValidator creates a validator. It holds no per-document state and is safe for concurrent use.
func NewValidator(schema Schema, plugins Plugins, evaluator *jexl.Evaluator) *Validator {
	return &Validator{schema: schema, plugins: plugins, evaluator: evaluator}
}

// Result is the outcome of ComputeValidity.
type Result struct {
	IsValid bool    `json:"is_valid"`
	Issues  []Issue `json:"errors"`
}

// Err returns a ValidationError when the result is invalid.
func (r *Result) Err(document string) error {
	if r.IsValid {
		return nil
	}

	return &ValidationError{Document: document, Issues: r.Issues}
}

// frame is a form whose questions are walked within a document scope.
type frame struct {
	scope *scope
	form  *models.Form
	next  int
	// checkRequired is false below hidden questions and in rows of tables that are
	// not required; only value constraints apply there.
	checkRequired bool
	report        bool
}

type tableCheck struct {
	question *models.Question
	scope    *scope
	seq      int
	report   bool
	rows     []*scope
}

type sequencedIssue struct {
	seq   int
	issue Issue
}

type walk struct {
	v       *Validator
	ctx     context.Context
	user    *models.User
	seq     int
	issues  []sequencedIssue
	tables  []*tableCheck
	visible map[string]struct{}
	stack   []*frame
}

// ComputeValidity walks the whole document tree and collects every unmet required
// question and every invalid value. Expression and configuration errors are returned
// as errors.
func (v *Validator) ComputeValidity(ctx context.Context, doc *models.Document, user *models.User) (*Result, error) {
	w, err := v.walk(ctx, doc, user)
	if err != nil {
		return nil, err
	}

	slices.SortStableFunc(w.issues, func(a, b sequencedIssue) int { return a.seq - b.seq })

	result := &Result{IsValid: len(w.issues) == 0, Issues: make([]Issue, 0, len(w.issues))}
	for _, si := range w.issues {
		result.Issues = append(result.Issues, si.issue)
	}

	return result, nil
}

// VisibleQuestions returns the slugs of the root document's visible questions,
// including those of embedded forms but not of table rows.
func (v *Validator) VisibleQuestions(ctx context.Context, doc *models.Document) (map[string]struct{}, error) {
	w, err := v.walk(ctx, doc, nil)
	if err != nil {
		return nil, err
	}

	return w.visible, nil
}

// Questions returns every question reachable from a form through form-type nesting.
func (v *Validator) Questions(formSlug string) (map[string]*models.Question, error) {
	st, err := v.structure(formSlug)
	if err != nil {
		return nil, err
	}

	return st.questions, nil
}

func (v *Validator) walk(ctx context.Context, doc *models.Document, user *models.User) (*walk, error) {
	root, err := v.newScope(doc, doc.Form, nil, nil)
	if err != nil {
		return nil, err
	}

	w := &walk{v: v, ctx: ctx, user: user, visible: map[string]struct{}{}}
	w.open(root, root.st.form, true, true)

	for len(w.stack) > 0 {
		top := w.stack[len(w.stack)-1]
		if top.next >= len(top.form.Questions) {
			w.stack = w.stack[:len(w.stack)-1]
			continue
		}

		slug := top.form.Questions[top.next]
		top.next++

		if err := w.visit(top, slug); err != nil {
			return nil, err
		}
	}

	// Rows of nested tables were opened after their enclosing table, so walking the
	// checks backwards settles inner tables first.
	for i := len(w.tables) - 1; i >= 0; i-- {
		tc := w.tables[i]

		complete := slices.ContainsFunc(tc.rows, func(row *scope) bool { return row.unmet == 0 })
		if complete {
			continue
		}

		tc.scope.unmet++

		if tc.report {
			w.add(tc.seq, Issue{Question: tc.question.Slug, Document: tc.scope.doc.ID, Message: messageTableRequired})
		}
	}

	return w, nil
}

// open pushes a frame and reports answers its document holds for foreign questions.
func (w *walk) open(s *scope, form *models.Form, checkRequired, report bool) {
	if form == s.st.form {
		for _, slug := range s.strayAnswers() {
			w.add(w.nextSeq(), Issue{Question: slug, Document: s.doc.ID, Message: messageStrayAnswer})
		}
	}

	w.stack = append(w.stack, &frame{scope: s, form: form, checkRequired: checkRequired, report: report})
}

func (w *walk) nextSeq() int {
	w.seq++
	return w.seq
}

func (w *walk) add(seq int, issue Issue) {
	w.issues = append(w.issues, sequencedIssue{seq: seq, issue: issue})
}

func (w *walk) visit(f *frame, slug string) error {
	s := f.scope
	q := s.st.questions[slug]
	seq := w.nextSeq()
	answer := s.doc.Answer(slug)

	messages, err := w.v.ValidateAnswer(w.ctx, s.doc, q, answer, w.user)
	if err != nil {
		return err
	}

	for _, msg := range messages {
		w.add(seq, Issue{Question: slug, Document: s.doc.ID, Message: msg})
	}

	checking := f.checkRequired

	if checking {
		hidden, err := s.isHidden(slug)
		if err != nil {
			return err
		}

		checking = !hidden

		if checking && s.outer == nil {
			w.visible[slug] = struct{}{}
		}
	}

	switch q.Type {
	case models.QuestionTypeForm:
		sub, ok := w.v.schema.Form(q.SubForm.Form)
		if !ok {
			return ErrFormNotFound
		}

		w.open(s, sub, checking, f.report)

		return nil
	case models.QuestionTypeTable:
		return w.visitTable(f, q, answer, seq, checking)
	}

	if !checking {
		return nil
	}

	required, err := s.isRequired(slug)
	if err != nil {
		return err
	}

	if required && answer.IsEmpty(q.Type) {
		s.unmet++

		if f.report {
			w.add(seq, Issue{Question: slug, Document: s.doc.ID, Message: messageRequired})
		}
	}

	return nil
}

func (w *walk) visitTable(f *frame, q *models.Question, answer *models.Answer, seq int, checking bool) error {
	s := f.scope

	var tc *tableCheck

	if checking {
		required, err := s.isRequired(q.Slug)
		if err != nil {
			return err
		}

		if required {
			tc = &tableCheck{question: q, scope: s, seq: seq, report: f.report}
			w.tables = append(w.tables, tc)
		}
	}

	if answer == nil {
		return nil
	}

	var rows []*scope

	for _, row := range answer.Rows {
		if row == nil {
			continue
		}

		rowScope, err := w.v.newScope(row, q.RowForm.Form, s, s.st.owner[q.Slug])
		if err != nil {
			return err
		}

		rows = append(rows, rowScope)
	}

	if tc != nil {
		tc.rows = rows
	}

	// Pushed in reverse so the first row is walked first.
	for i := len(rows) - 1; i >= 0; i-- {
		w.open(rows[i], rows[i].st.form, tc != nil, false)
	}

	return nil
}
