package registry

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dukex/casework/pkg/models"
	"github.com/xeipuuv/gojsonschema"
)

//go:embed definitions.schema.json
var definitionsSchema []byte

// Definitions is the on-disk format of a definitions file.
type Definitions struct {
	Questions []*models.Question `json:"questions"`
	Forms     []*models.Form     `json:"forms"`
	Tasks     []*models.Task     `json:"tasks"`
	Workflows []*models.Workflow `json:"workflows"`
}

// LoadFile reads a definitions file and registers its contents.
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading definitions: %w", err)
	}

	return r.Load(data)
}

// Load registers questions, forms, tasks and workflows, in that order, and verifies
// the references between them. All problems found are returned joined.
func (r *Registry) Load(data []byte) error {
	if err := checkSchema(data); err != nil {
		return err
	}

	var defs Definitions
	if err := json.Unmarshal(data, &defs); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
	}

	var problems []error

	for _, q := range defs.Questions {
		if err := r.RegisterQuestion(q); err != nil {
			problems = append(problems, err)
		}
	}

	for _, form := range defs.Forms {
		if err := r.RegisterForm(form); err != nil {
			problems = append(problems, err)
		}
	}

	for _, task := range defs.Tasks {
		if err := r.RegisterTask(task); err != nil {
			problems = append(problems, err)
		}
	}

	for _, wf := range defs.Workflows {
		if _, err := r.RegisterWorkflow(wf); err != nil {
			problems = append(problems, err)
		}
	}

	if len(problems) == 0 {
		if err := r.Verify(); err != nil {
			problems = append(problems, err)
		}
	}

	if err := errors.Join(problems...); err != nil {
		return err
	}

	r.logger.Info("Loaded definitions",
		"questions", len(defs.Questions),
		"forms", len(defs.Forms),
		"tasks", len(defs.Tasks),
		"workflows", len(defs.Workflows))

	return nil
}

func checkSchema(data []byte) error {
	result, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(definitionsSchema), gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
	}

	if !result.Valid() {
		var messages []string
		for _, desc := range result.Errors() {
			messages = append(messages, desc.String())
		}

		return fmt.Errorf("%w: %s", ErrInvalidDefinition, strings.Join(messages, "; "))
	}

	return nil
}
