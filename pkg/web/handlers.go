// Package web exposes the case engine over HTTP.
package web

import (
	"time"

	"github.com/dukex/casework/pkg/models"
	"github.com/dukex/casework/pkg/persistence"
	"github.com/dukex/casework/pkg/registry"
	"github.com/dukex/casework/pkg/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

type APIHandlers struct {
	engine    *services.Engine
	registry  *registry.Registry
	validator *validator.Validate
}

func NewAPIHandlers(
	engine *services.Engine,
	registry *registry.Registry,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		engine:    engine,
		registry:  registry,
		validator: validator,
	}
}

// Register mounts the case, work item, document and workflow routes.
func (h *APIHandlers) Register(router fiber.Router) {
	cases := router.Group("/cases")
	cases.Get("/", h.GetCases)
	cases.Post("/", h.StartCase)
	cases.Get("/:id", h.GetCase)
	cases.Post("/:id/cancel", h.CancelCase)
	cases.Get("/:id/work-items", h.GetCaseWorkItems)

	items := router.Group("/work-items")
	items.Get("/:id", h.GetWorkItem)
	items.Post("/:id/complete", h.CompleteWorkItem)
	items.Post("/:id/skip", h.SkipWorkItem)
	items.Post("/:id/cancel", h.CancelWorkItem)

	documents := router.Group("/documents")
	documents.Get("/:id", h.GetDocument)
	documents.Get("/:id/validity", h.GetDocumentValidity)
	documents.Put("/:id/answers/:question", h.SaveAnswer)

	router.Get("/workflows", h.GetWorkflows)
	router.Get("/health", h.HealthCheck)
}

func (h *APIHandlers) StartCase(c fiber.Ctx) error {
	var req StartCaseRequest

	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.engine.StartCase(c.Context(), services.StartCaseRequest{
		Workflow:         req.Workflow,
		Form:             req.Form,
		Document:         req.Document,
		ParentWorkItemID: req.ParentWorkItemID,
		Meta:             req.Meta,
	}, principal(c))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) GetCases(c fiber.Ctx) error {
	filter := persistence.CaseFilter{
		Workflow:         c.Query("workflow"),
		Status:           models.CaseStatus(c.Query("status")),
		FamilyID:         c.Query("family_id"),
		ParentWorkItemID: c.Query("parent_work_item_id"),
	}

	cases, err := h.engine.Cases(c.Context(), filter, principal(c))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(cases)
}

func (h *APIHandlers) GetCase(c fiber.Ctx) error {
	found, err := h.engine.Case(c.Context(), c.Params("id"), principal(c))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(found)
}

func (h *APIHandlers) CancelCase(c fiber.Ctx) error {
	canceled, err := h.engine.CancelCase(c.Context(), c.Params("id"), principal(c))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(canceled)
}

func (h *APIHandlers) GetCaseWorkItems(c fiber.Ctx) error {
	items, err := h.engine.WorkItems(c.Context(), c.Params("id"), principal(c))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(items)
}

func (h *APIHandlers) GetWorkItem(c fiber.Ctx) error {
	item, err := h.engine.WorkItem(c.Context(), c.Params("id"), principal(c))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(item)
}

func (h *APIHandlers) CompleteWorkItem(c fiber.Ctx) error {
	item, err := h.engine.CompleteWorkItem(c.Context(), c.Params("id"), principal(c))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(item)
}

func (h *APIHandlers) SkipWorkItem(c fiber.Ctx) error {
	item, err := h.engine.SkipWorkItem(c.Context(), c.Params("id"), principal(c))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(item)
}

func (h *APIHandlers) CancelWorkItem(c fiber.Ctx) error {
	item, err := h.engine.CancelWorkItem(c.Context(), c.Params("id"), principal(c))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(item)
}

func (h *APIHandlers) GetDocument(c fiber.Ctx) error {
	doc, err := h.engine.Document(c.Context(), c.Params("id"), principal(c))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(doc)
}

func (h *APIHandlers) GetDocumentValidity(c fiber.Ctx) error {
	result, err := h.engine.DocumentValidity(c.Context(), c.Params("id"), principal(c))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

func (h *APIHandlers) SaveAnswer(c fiber.Ctx) error {
	var req SaveAnswerRequest

	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	doc, err := h.engine.SaveAnswer(c.Context(), services.SaveAnswerRequest{
		DocumentID: c.Params("id"),
		Question:   c.Params("question"),
		Value:      req.Value,
		File:       req.File,
		Rows:       req.Rows,
	}, principal(c))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(doc)
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	return c.JSON(h.registry.Workflows())
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	message, ok := h.engine.HealthCheck(c.Context())

	status := "healthy"
	code := fiber.StatusOK

	if !ok {
		status = "unhealthy"
		code = fiber.StatusServiceUnavailable
	}

	return c.Status(code).JSON(fiber.Map{
		"status":    status,
		"message":   message,
		"checkers":  fiber.Map{"persistence": status},
		"timestamp": time.Now().UTC(),
	})
}
