package web

import (
	"strings"

	"github.com/dukex/casework/pkg/models"
	"github.com/gofiber/fiber/v3"
)

// Principal headers. Authentication happens in front of the API.
const (
	UserHeader   = "X-User"
	GroupHeader  = "X-Group"
	GroupsHeader = "X-Groups"
)

// StartCaseRequest represents the request body for starting a case.
type StartCaseRequest struct {
	Workflow         string           `json:"workflow"                      validate:"required"`
	Form             string           `json:"form,omitempty"`
	Document         *models.Document `json:"document,omitempty"`
	ParentWorkItemID string           `json:"parent_work_item_id,omitempty"`
	Meta             map[string]any   `json:"meta,omitempty"`
}

// SaveAnswerRequest represents the request body for answering a question.
// Table questions take rows, file questions a file, all others a value.
type SaveAnswerRequest struct {
	Value any              `json:"value"`
	File  *models.File     `json:"file,omitempty"`
	Rows  []map[string]any `json:"rows,omitempty"`
}

// principal reads the acting user from the request headers. X-Groups lists the user's
// groups; X-Group names the group acted for and defaults to the first of them.
func principal(c fiber.Ctx) *models.User {
	username := strings.TrimSpace(c.Get(UserHeader))
	if username == "" {
		return models.AnonymousUser
	}

	user := &models.User{Username: username}

	for _, group := range strings.Split(c.Get(GroupsHeader), ",") {
		if group = strings.TrimSpace(group); group != "" {
			user.Groups = append(user.Groups, group)
		}
	}

	user.Group = strings.TrimSpace(c.Get(GroupHeader))
	if user.Group == "" && len(user.Groups) > 0 {
		user.Group = user.Groups[0]
	}

	return user
}
