package web

import (
	"errors"

	"github.com/dukex/casework/pkg/access"
	"github.com/dukex/casework/pkg/persistence"
	"github.com/dukex/casework/pkg/services"
	"github.com/dukex/casework/pkg/validation"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

// documentIssues is the extension of an invalid_document problem.
type documentIssues struct {
	Document string             `json:"document,omitempty"`
	Issues   []validation.Issue `json:"issues"`
}

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

// handleServiceError maps engine errors to problem responses.
func handleServiceError(c fiber.Ctx, err error) error {
	var validationErr *validation.ValidationError

	switch {
	case errors.As(err, &validationErr):
		problem := problems.Extend(
			problems.NewStatusProblem(400).
				WithInstance(c.Path()).
				WithType("invalid_document").
				WithDetail(err.Error()),
			documentIssues{Document: validationErr.Document, Issues: validationErr.Issues},
		)

		return c.Status(fiber.StatusBadRequest).JSON(problem)

	case services.IsValidationError(err):
		return badRequest(c, err.Error())

	case services.IsConflictError(err):
		problem := problems.NewStatusProblem(409).
			WithInstance(c.Path()).
			WithType("invalid_operation").
			WithDetail(err.Error())

		return c.Status(fiber.StatusConflict).JSON(problem)

	case persistence.IsNotFound(err):
		problem := problems.NewStatusProblem(404).
			WithInstance(c.Path()).
			WithType("not_found").
			WithDetail(notFoundDetail(err))

		return c.Status(fiber.StatusNotFound).JSON(problem)

	case errors.Is(err, access.ErrPermissionDenied):
		problem := problems.NewStatusProblem(403).
			WithInstance(c.Path()).
			WithType("permission_denied").
			WithDetail(err.Error())

		return c.Status(fiber.StatusForbidden).JSON(problem)

	default:
		// configuration and expression errors
		problem := problems.NewStatusProblem(500).
			WithInstance(c.Path()).
			WithType("internal_error").
			WithError(err)

		return c.Status(fiber.StatusInternalServerError).JSON(problem)
	}
}

func notFoundDetail(err error) string {
	switch {
	case errors.Is(err, persistence.ErrCaseNotFound):
		return "case not found"
	case errors.Is(err, persistence.ErrWorkItemNotFound):
		return "work item not found"
	default:
		return "document not found"
	}
}

// ErrorHandler renders errors no handler turned into a response, recovered panics
// included, as problems. Details of internal errors are not exposed.
func ErrorHandler(c fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		code = fiberErr.Code
	}

	problem := problems.NewStatusProblem(code).WithInstance(c.Path())

	switch {
	case code == fiber.StatusNotFound:
		problem = problem.WithType("not_found").WithError(err)
	case code < fiber.StatusInternalServerError:
		problem = problem.WithType("request_error").WithError(err)
	default:
		problem = problem.WithType("internal_error")
	}

	return c.Status(code).JSON(problem)
}
