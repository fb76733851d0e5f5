package models

import (
	"errors"
	"fmt"
)

// Form is an ordered list of questions.
type Form struct {
	Slug        string         `json:"slug"                  validate:"required,min=1"`
	Name        string         `json:"name"                  validate:"required"`
	Description string         `json:"description,omitempty"`
	Questions   []string       `json:"questions"             validate:"dive,required"`
	IsArchived  bool           `json:"is_archived"`
	Meta        map[string]any `json:"meta,omitempty"`
}

// QuestionType discriminates the question union.
type QuestionType string

const (
	QuestionTypeText                  QuestionType = "text"
	QuestionTypeTextarea              QuestionType = "textarea"
	QuestionTypeInteger               QuestionType = "integer"
	QuestionTypeFloat                 QuestionType = "float"
	QuestionTypeChoice                QuestionType = "choice"
	QuestionTypeMultipleChoice        QuestionType = "multiple_choice"
	QuestionTypeDynamicChoice         QuestionType = "dynamic_choice"
	QuestionTypeDynamicMultipleChoice QuestionType = "dynamic_multiple_choice"
	QuestionTypeDate                  QuestionType = "date"
	QuestionTypeFile                  QuestionType = "file"
	QuestionTypeForm                  QuestionType = "form"
	QuestionTypeTable                 QuestionType = "table"
	QuestionTypeStatic                QuestionType = "static"
)

// DateLayout is the wire format of date answers.
const DateLayout = "2006-01-02"

var ErrInvalidQuestion = errors.New("invalid question configuration")

// Question is a form field. Exactly the configuration block matching Type is set.
type Question struct {
	Slug       string         `json:"slug"                  validate:"required,min=1"`
	Label      string         `json:"label"                 validate:"required"`
	Type       QuestionType   `json:"type"                  validate:"required"`
	IsRequired string         `json:"is_required,omitempty"` // JEXL, defaults to "false"
	IsHidden   string         `json:"is_hidden,omitempty"`   // JEXL, defaults to "false"
	IsArchived bool           `json:"is_archived"`
	Meta       map[string]any `json:"meta,omitempty"`

	Text       *TextConfig       `json:"text,omitempty"`
	Number     *NumberConfig     `json:"number,omitempty"`
	Options    *OptionsConfig    `json:"options,omitempty"`
	DataSource *DataSourceConfig `json:"data_source,omitempty"`
	SubForm    *FormRef          `json:"sub_form,omitempty"`
	RowForm    *FormRef          `json:"row_form,omitempty"`
	Static     *StaticConfig     `json:"static,omitempty"`
}

type TextConfig struct {
	MinLength        *int     `json:"min_length,omitempty"        validate:"omitempty,min=0"`
	MaxLength        *int     `json:"max_length,omitempty"        validate:"omitempty,min=1"`
	FormatValidators []string `json:"format_validators,omitempty"`
	Placeholder      string   `json:"placeholder,omitempty"`
}

type NumberConfig struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

type OptionsConfig struct {
	Options []Option `json:"options" validate:"required,min=1,dive"`
}

type Option struct {
	Slug       string `json:"slug"  validate:"required"`
	Label      string `json:"label" validate:"required"`
	IsArchived bool   `json:"is_archived"`
}

// DataSourceConfig names the data source resolving dynamic choices.
type DataSourceConfig struct {
	Name string `json:"name" validate:"required"`
}

type FormRef struct {
	Form string `json:"form" validate:"required"`
}

type StaticConfig struct {
	Content string `json:"content"`
}

// RequiredExpression returns the is_required expression with its default applied.
func (q *Question) RequiredExpression() string {
	if q.IsRequired == "" {
		return "false"
	}

	return q.IsRequired
}

// HiddenExpression returns the is_hidden expression with its default applied.
func (q *Question) HiddenExpression() string {
	if q.IsHidden == "" {
		return "false"
	}

	return q.IsHidden
}

// IsMultiValued reports whether answers of the question are lists.
func (q *Question) IsMultiValued() bool {
	switch q.Type {
	case QuestionTypeMultipleChoice, QuestionTypeDynamicMultipleChoice, QuestionTypeTable:
		return true
	}

	return false
}

// EmptyValue is the value an unanswered question contributes to expressions.
func (q *Question) EmptyValue() any {
	if q.IsMultiValued() {
		return []any{}
	}

	return nil
}

// Option returns the configured option with the given slug.
func (q *Question) Option(slug string) (Option, bool) {
	if q.Options == nil {
		return Option{}, false
	}

	for _, opt := range q.Options.Options {
		if opt.Slug == slug {
			return opt, true
		}
	}

	return Option{}, false
}

// CheckConfig verifies that exactly the configuration block matching Type is present.
func (q *Question) CheckConfig() error {
	blocks := map[string]bool{
		"text":        q.Text != nil,
		"number":      q.Number != nil,
		"options":     q.Options != nil,
		"data_source": q.DataSource != nil,
		"sub_form":    q.SubForm != nil,
		"row_form":    q.RowForm != nil,
		"static":      q.Static != nil,
	}

	var required, optional string

	switch q.Type {
	case QuestionTypeText, QuestionTypeTextarea:
		optional = "text"
	case QuestionTypeInteger, QuestionTypeFloat:
		optional = "number"
	case QuestionTypeChoice, QuestionTypeMultipleChoice:
		required = "options"
	case QuestionTypeDynamicChoice, QuestionTypeDynamicMultipleChoice:
		required = "data_source"
	case QuestionTypeForm:
		required = "sub_form"
	case QuestionTypeTable:
		required = "row_form"
	case QuestionTypeStatic:
		optional = "static"
	case QuestionTypeDate, QuestionTypeFile:
	default:
		return fmt.Errorf("%w: question %q has unknown type %q", ErrInvalidQuestion, q.Slug, q.Type)
	}

	if required != "" && !blocks[required] {
		return fmt.Errorf("%w: %s question %q requires %s", ErrInvalidQuestion, q.Type, q.Slug, required)
	}

	for name, set := range blocks {
		if set && name != required && name != optional {
			return fmt.Errorf("%w: %s question %q must not configure %s", ErrInvalidQuestion, q.Type, q.Slug, name)
		}
	}

	return nil
}
