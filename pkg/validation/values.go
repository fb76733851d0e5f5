package validation

import (
	"context"
	"fmt"
	"math"
	"time"
	"unicode/utf8"

	"github.com/dukex/casework/pkg/jexl"
	"github.com/dukex/casework/pkg/models"
)

// ValidateAnswer checks the value constraints of one answer. Unknown data sources and
// format validators are configuration errors and returned as errors.
func (v *Validator) ValidateAnswer(ctx context.Context, doc *models.Document, q *models.Question, answer *models.Answer, user *models.User) ([]string, error) {
	if answer == nil {
		return nil, nil
	}

	switch q.Type {
	case models.QuestionTypeTable:
		return v.checkRows(q, answer), nil
	case models.QuestionTypeFile:
		if answer.Value != nil || answer.File == nil || answer.File.Name == "" {
			return []string{"File answers need a file name."}, nil
		}

		return nil, nil
	case models.QuestionTypeStatic, models.QuestionTypeForm:
		if answer.Value != nil || answer.File != nil || len(answer.Rows) > 0 {
			return []string{fmt.Sprintf("%s questions cannot be answered.", q.Type)}, nil
		}

		return nil, nil
	}

	if len(answer.Rows) > 0 {
		return []string{"Only table questions can have rows."}, nil
	}

	if answer.Value == nil {
		return nil, nil
	}

	switch q.Type {
	case models.QuestionTypeText, models.QuestionTypeTextarea:
		return v.checkText(q, answer.Value)
	case models.QuestionTypeInteger:
		return checkNumber(q, answer.Value, true), nil
	case models.QuestionTypeFloat:
		return checkNumber(q, answer.Value, false), nil
	case models.QuestionTypeChoice:
		return checkChoice(q, answer.Value), nil
	case models.QuestionTypeMultipleChoice:
		var messages []string
		for _, item := range jexl.ToList(answer.Value) {
			messages = append(messages, checkChoice(q, item)...)
		}

		return messages, nil
	case models.QuestionTypeDynamicChoice:
		return v.checkDynamicChoice(ctx, doc, q, answer.Value, user)
	case models.QuestionTypeDynamicMultipleChoice:
		var messages []string

		for _, item := range jexl.ToList(answer.Value) {
			itemMessages, err := v.checkDynamicChoice(ctx, doc, q, item, user)
			if err != nil {
				return nil, err
			}

			messages = append(messages, itemMessages...)
		}

		return messages, nil
	case models.QuestionTypeDate:
		s, ok := answer.Value.(string)
		if !ok {
			return []string{"Dates must be strings."}, nil
		}

		if _, err := time.Parse(models.DateLayout, s); err != nil {
			return []string{fmt.Sprintf("%q is not a valid date, expected YYYY-MM-DD.", s)}, nil
		}

		return nil, nil
	}

	return nil, nil
}

func (v *Validator) checkText(q *models.Question, value any) ([]string, error) {
	s, ok := value.(string)
	if !ok {
		return []string{"Text answers must be strings."}, nil
	}

	if q.Text == nil {
		return nil, nil
	}

	var messages []string

	length := utf8.RuneCountInString(s)

	if q.Text.MinLength != nil && length < *q.Text.MinLength {
		messages = append(messages, fmt.Sprintf("Ensure this value has at least %d characters.", *q.Text.MinLength))
	}

	if q.Text.MaxLength != nil && length > *q.Text.MaxLength {
		messages = append(messages, fmt.Sprintf("Ensure this value has at most %d characters.", *q.Text.MaxLength))
	}

	for _, slug := range q.Text.FormatValidators {
		validator, ok := v.plugins.FormatValidator(slug)
		if !ok {
			return nil, fmt.Errorf("%w: %q on question %q", ErrFormatValidatorNotFound, slug, q.Slug)
		}

		messages = append(messages, validator.Validate(s)...)
	}

	return messages, nil
}

func checkNumber(q *models.Question, value any, integer bool) []string {
	n, ok := toFloat(value)
	if !ok {
		return []string{"Please enter a number."}
	}

	if integer && n != math.Trunc(n) {
		return []string{"Please enter a whole number."}
	}

	var messages []string

	if q.Number != nil && q.Number.Min != nil && n < *q.Number.Min {
		messages = append(messages, fmt.Sprintf("Ensure this value is greater than or equal to %v.", *q.Number.Min))
	}

	if q.Number != nil && q.Number.Max != nil && n > *q.Number.Max {
		messages = append(messages, fmt.Sprintf("Ensure this value is less than or equal to %v.", *q.Number.Max))
	}

	return messages
}

func checkChoice(q *models.Question, value any) []string {
	slug, ok := value.(string)
	if !ok {
		return []string{fmt.Sprintf("Options are referenced by slug, got %T.", value)}
	}

	opt, ok := q.Option(slug)
	if !ok || opt.IsArchived {
		return []string{fmt.Sprintf("%q is not a valid option.", slug)}
	}

	return nil
}

func (v *Validator) checkDynamicChoice(ctx context.Context, doc *models.Document, q *models.Question, value any, user *models.User) ([]string, error) {
	if q.DataSource == nil {
		return nil, fmt.Errorf("%w: question %q has no data source", ErrDataSourceNotFound, q.Slug)
	}

	source, ok := v.plugins.DataSource(q.DataSource.Name)
	if !ok {
		return nil, fmt.Errorf("%w: %q on question %q", ErrDataSourceNotFound, q.DataSource.Name, q.Slug)
	}

	_, found, err := source.Resolve(ctx, q, value, doc, user)
	if err != nil {
		return nil, fmt.Errorf("resolving %v with data source %q: %w", value, source.Name(), err)
	}

	if !found {
		return []string{fmt.Sprintf("%v is not a valid value of data source %q.", value, source.Name())}, nil
	}

	return nil, nil
}

func (v *Validator) checkRows(q *models.Question, answer *models.Answer) []string {
	var messages []string

	if answer.Value != nil || answer.File != nil {
		messages = append(messages, "Table answers hold rows only.")
	}

	for i, row := range answer.Rows {
		if row == nil {
			messages = append(messages, fmt.Sprintf("Row %d is empty.", i+1))
			continue
		}

		if row.Form != q.RowForm.Form {
			messages = append(messages, fmt.Sprintf("Row %d uses form %q instead of %q.", i+1, row.Form, q.RowForm.Form))
		}
	}

	return messages
}

func toFloat(value any) (float64, bool) {
	switch n := value.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	}

	return 0, false
}
