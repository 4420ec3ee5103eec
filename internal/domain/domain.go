package domain

// Kind classifies how a question collects its answer.
type Kind string

const (
	KindFreeText     Kind = "free_text"
	KindSingleChoice Kind = "single_choice"
	KindCheckList    Kind = "check_list"
)

// KnownKind reports whether k is one of the supported input kinds.
func KnownKind(k Kind) bool {
	switch k {
	case KindFreeText, KindSingleChoice, KindCheckList:
		return true
	}
	return false
}

// Choice is the metadata behind one selectable option of a choice question.
type Choice struct {
	Label      string `json:"label"`
	Field      string `json:"field,omitempty"`
	FieldValue string `json:"field_value,omitempty"`
}

// Question is one form field presented to a respondent.
// PreviousID/NextID are advisory links carried through from the form
// definition; traversal follows definition order, not the links.
type Question struct {
	ID          string            `json:"id"`
	DisplayText string            `json:"display_text"`
	Kind        Kind              `json:"input_kind" enum:"free_text,single_choice,check_list"`
	Prompt      string            `json:"prompt,omitempty"`
	Choices     map[string]Choice `json:"choices,omitempty"`
	PreviousID  string            `json:"previous_id,omitempty"`
	NextID      string            `json:"next_id,omitempty"`
	Answer      string            `json:"answer,omitempty"`
}

// CloneQuestions deep-copies a form definition so an in-flight session can
// record answers without touching the catalog's canonical copy.
func CloneQuestions(qs []Question) []Question {
	out := make([]Question, len(qs))
	for i, q := range qs {
		out[i] = q
		if q.Choices != nil {
			choices := make(map[string]Choice, len(q.Choices))
			for k, v := range q.Choices {
				choices[k] = v
			}
			out[i].Choices = choices
		}
	}
	return out
}

// Progress locates a respondent inside a form, 1-based.
type Progress struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// Session is the server-side record of one respondent working through one
// form instance. CurrentIndex ranges 0..len(Questions); once it reaches
// len(Questions) the session is terminal.
type Session struct {
	ID           string            `json:"id"`
	FormName     string            `json:"form_name"`
	CurrentIndex int               `json:"current_index"`
	Answers      map[string]string `json:"answers"`
	Questions    []Question        `json:"questions"`
	CreatedAt    string            `json:"created_at" format:"date-time"`
}

// Complete reports whether every question has been answered.
func (s *Session) Complete() bool {
	return s.CurrentIndex >= len(s.Questions)
}

// Submission is one archived, fully answered form.
type Submission struct {
	ID        string `json:"id"`
	FormName  string `json:"form_name"`
	FilePath  string `json:"file_path"`
	Answers   string `json:"answers_json"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// Event is one entry of the activity diary.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	FormName   string `json:"form_name,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	Payload    string `json:"payload_json"`
}
