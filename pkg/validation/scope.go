package validation

import (
	"fmt"
	"slices"

	"github.com/dukex/casework/pkg/jexl"
	"github.com/dukex/casework/pkg/models"
)

// structure is every question reachable from a form through form-type nesting.
type structure struct {
	form      *models.Form
	questions map[string]*models.Question
	owner     map[string]*models.Form // form listing the question
	container map[string]string       // form question embedding the owner form, "" at top level
}

func (v *Validator) structure(formSlug string) (*structure, error) {
	form, ok := v.schema.Form(formSlug)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrFormNotFound, formSlug)
	}

	st := &structure{
		form:      form,
		questions: map[string]*models.Question{},
		owner:     map[string]*models.Form{},
		container: map[string]string{},
	}

	type pending struct {
		form      *models.Form
		container string
		path      []string
	}

	work := []pending{{form: form, path: []string{form.Slug}}}

	for len(work) > 0 {
		item := work[len(work)-1]
		work = work[:len(work)-1]

		for _, slug := range item.form.Questions {
			q, ok := v.schema.Question(slug)
			if !ok {
				return nil, fmt.Errorf("%w: %q in form %q", ErrQuestionNotFound, slug, item.form.Slug)
			}

			st.questions[slug] = q
			st.owner[slug] = item.form
			st.container[slug] = item.container

			if q.Type != models.QuestionTypeForm || q.SubForm == nil {
				continue
			}

			sub, ok := v.schema.Form(q.SubForm.Form)
			if !ok {
				return nil, fmt.Errorf("%w: %q referenced by question %q", ErrFormNotFound, q.SubForm.Form, slug)
			}

			if slices.Contains(item.path, sub.Slug) {
				return nil, fmt.Errorf("%w: %s", ErrRecursiveForm, sub.Slug)
			}

			work = append(work, pending{form: sub, container: slug, path: append(slices.Clone(item.path), sub.Slug)})
		}
	}

	return st, nil
}

// scope is the answer lookup of one document. Row scopes fall back to their outer scope.
type scope struct {
	v          *Validator
	doc        *models.Document
	st         *structure
	outer      *scope
	parentForm *models.Form // form enclosing the document's form, nil at the root
	rootForm   *models.Form

	hidden     map[string]bool
	evaluating map[string]bool
	contexts   map[string]*jexl.Context
	unmet      int
}

func (v *Validator) newScope(doc *models.Document, formSlug string, outer *scope, parentForm *models.Form) (*scope, error) {
	st, err := v.structure(formSlug)
	if err != nil {
		return nil, err
	}

	s := &scope{
		v:          v,
		doc:        doc,
		st:         st,
		outer:      outer,
		parentForm: parentForm,
		rootForm:   st.form,
		hidden:     map[string]bool{},
		evaluating: map[string]bool{},
		contexts:   map[string]*jexl.Context{},
	}

	if outer != nil {
		s.rootForm = outer.rootForm
	}

	return s, nil
}

// strayAnswers returns answered slugs that are not part of the document's form, sorted.
func (s *scope) strayAnswers() []string {
	var stray []string

	for slug := range s.doc.Answers {
		if _, ok := s.st.questions[slug]; !ok {
			stray = append(stray, slug)
		}
	}

	slices.Sort(stray)

	return stray
}

func formInfo(form *models.Form) any {
	if form == nil {
		return nil
	}

	meta := form.Meta
	if meta == nil {
		meta = map[string]any{}
	}

	return map[string]any{"form": form.Slug, "formMeta": meta}
}

// ownerParent is the form enclosing the form that lists slug.
func (s *scope) ownerParent(slug string) *models.Form {
	if container := s.st.container[slug]; container != "" {
		return s.st.owner[container]
	}

	return s.parentForm
}

// context returns the expression context for questions listed by the same form as slug.
func (s *scope) context(slug string) *jexl.Context {
	owner := s.st.owner[slug]

	if ctx, ok := s.contexts[owner.Slug]; ok {
		return ctx
	}

	meta := owner.Meta
	if meta == nil {
		meta = map[string]any{}
	}

	ctx := jexl.NewContext(map[string]any{
		"form": owner.Slug,
		"info": map[string]any{
			"form":     owner.Slug,
			"formMeta": meta,
			"parent":   formInfo(s.ownerParent(slug)),
			"root":     formInfo(s.rootForm),
		},
	}).WithTransform("answer", s.answerTransform)

	s.contexts[owner.Slug] = ctx

	return ctx
}

func (s *scope) answerTransform(subject any, _ []any) (any, error) {
	slug, ok := subject.(string)
	if !ok {
		return nil, fmt.Errorf("answer expects a question slug, got %T", subject)
	}

	for cur := s; cur != nil; cur = cur.outer {
		if _, ok := cur.st.questions[slug]; ok {
			return cur.value(slug)
		}
	}

	return nil, &jexl.QuestionMissingError{Question: slug, Form: s.st.form.Slug}
}

// value is the answer to slug as expressions see it. Hidden questions yield their default.
func (s *scope) value(slug string) (any, error) {
	q := s.st.questions[slug]

	hidden, err := s.isHidden(slug)
	if err != nil {
		return nil, err
	}

	if hidden {
		return q.EmptyValue(), nil
	}

	return s.v.plainValue(q, s.doc.Answer(slug))
}

func (s *scope) isHidden(slug string) (bool, error) {
	if hidden, ok := s.hidden[slug]; ok {
		return hidden, nil
	}

	q := s.st.questions[slug]

	if s.evaluating[slug] {
		return false, &jexl.EvaluationError{
			Expression: q.HiddenExpression(),
			Err:        fmt.Errorf("cyclic is_hidden reference through question %q", slug),
		}
	}

	s.evaluating[slug] = true
	defer delete(s.evaluating, slug)

	if container := s.st.container[slug]; container != "" {
		containerHidden, err := s.isHidden(container)
		if err != nil {
			return false, err
		}

		if containerHidden {
			s.hidden[slug] = true
			return true, nil
		}
	}

	hidden, err := s.v.evaluator.EvaluateBool(q.HiddenExpression(), s.context(slug))
	if err != nil {
		return false, err
	}

	s.hidden[slug] = hidden

	return hidden, nil
}

func (s *scope) isRequired(slug string) (bool, error) {
	q := s.st.questions[slug]
	return s.v.evaluator.EvaluateBool(q.RequiredExpression(), s.context(slug))
}

// plainValue converts a stored answer into an expression value. Table answers become
// lists of row objects keyed by question slug.
func (v *Validator) plainValue(q *models.Question, answer *models.Answer) (any, error) {
	if answer == nil {
		return q.EmptyValue(), nil
	}

	switch q.Type {
	case models.QuestionTypeTable:
		rows := make([]any, 0, len(answer.Rows))

		for _, row := range answer.Rows {
			st, err := v.structure(q.RowForm.Form)
			if err != nil {
				return nil, err
			}

			values := make(map[string]any, len(st.questions))

			for slug, rowQuestion := range st.questions {
				value, err := v.plainValue(rowQuestion, row.Answer(slug))
				if err != nil {
					return nil, err
				}

				values[slug] = value
			}

			rows = append(rows, values)
		}

		return rows, nil
	case models.QuestionTypeFile:
		if answer.File == nil {
			return nil, nil
		}

		return map[string]any{"name": answer.File.Name, "object_key": answer.File.ObjectKey}, nil
	}

	if answer.Value == nil {
		return q.EmptyValue(), nil
	}

	return answer.Value, nil
}
