package validation

import (
	"context"
	"net/mail"
	"regexp"

	"github.com/dukex/casework/pkg/models"
)

// Schema resolves form and question definitions.
type Schema interface {
	Form(slug string) (*models.Form, bool)
	Question(slug string) (*models.Question, bool)
}

// DataSource resolves the label of a dynamic choice value.
type DataSource interface {
	Name() string
	Resolve(ctx context.Context, question *models.Question, value any, doc *models.Document, user *models.User) (label string, found bool, err error)
}

// FormatValidator checks a text answer and returns error messages, if any.
type FormatValidator interface {
	Slug() string
	Validate(value string) []string
}

// Plugins looks up data sources and format validators by name.
type Plugins interface {
	DataSource(name string) (DataSource, bool)
	FormatValidator(slug string) (FormatValidator, bool)
}

// EmailValidator accepts a single RFC 5322 address.
type EmailValidator struct{}

func (EmailValidator) Slug() string { return "email" }

func (EmailValidator) Validate(value string) []string {
	addr, err := mail.ParseAddress(value)
	if err != nil || addr.Address != value {
		return []string{"Please enter a valid email address."}
	}

	return nil
}

var phonePattern = regexp.MustCompile(`^\+?[0-9][0-9 ()\-]{5,19}$`)

// PhoneNumberValidator accepts international and local phone numbers.
type PhoneNumberValidator struct{}

func (PhoneNumberValidator) Slug() string { return "phone-number" }

func (PhoneNumberValidator) Validate(value string) []string {
	if !phonePattern.MatchString(value) {
		return []string{"Please enter a valid phone number."}
	}

	return nil
}
