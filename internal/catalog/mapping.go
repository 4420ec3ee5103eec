package catalog

import (
	"fmt"

	"formflow/internal/domain"
)

// FieldMapping is one flat field descriptor from a mapping document.
type FieldMapping struct {
	DisplayText string `json:"display_text"`
	Type        string `json:"type"`
	FormField   string `json:"form_field"`
}

// NormalizeKind maps a mapping descriptor type onto a question kind.
// Legacy authoring names (input_text, radio, dropdown, checkbox) are
// accepted alongside the canonical kind values.
func NormalizeKind(s string) domain.Kind {
	switch s {
	case "free_text", "input_text", "text", "paragraph", "date":
		return domain.KindFreeText
	case "single_choice", "radio", "dropdown":
		return domain.KindSingleChoice
	case "check_list", "checkbox":
		return domain.KindCheckList
	default:
		return domain.KindFreeText
	}
}

// BuildMapping converts a flat field-mapping list into a storable form
// definition. The form_field value becomes the question id; neighbouring
// fields are linked through the advisory previous/next ids. Duplicate
// form_field values are not rejected here; a duplicate makes the earlier
// question unreachable by id and is caught by SaveForm's validation.
func BuildMapping(formID string, fields []FieldMapping) ([]domain.Question, error) {
	if formID == "" {
		return nil, fmt.Errorf("form id is required")
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("no fields provided")
	}
	questions := make([]domain.Question, len(fields))
	for i, f := range fields {
		if f.FormField == "" {
			return nil, fmt.Errorf("field %d has empty form_field", i)
		}
		q := domain.Question{
			ID:          f.FormField,
			DisplayText: f.DisplayText,
			Kind:        NormalizeKind(f.Type),
			Prompt:      f.DisplayText,
		}
		if i > 0 {
			q.PreviousID = fields[i-1].FormField
		}
		if i < len(fields)-1 {
			q.NextID = fields[i+1].FormField
		}
		questions[i] = q
	}
	return questions, nil
}
