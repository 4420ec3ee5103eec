package server

import (
	"formflow/internal/catalog"
	"formflow/internal/domain"
)

// Request payloads

type ChatResponseRequest struct {
	CurrentID string `json:"current_id"`
	Answer    string `json:"answer"`
	// SessionID is optional; when present the owning session is looked up
	// directly instead of by scanning for the question id.
	SessionID string `json:"session_id,omitempty"`
}

type FormMappingRequest struct {
	FormID      string                 `json:"form_id"`
	MappingData []catalog.FieldMapping `json:"mapping_data"`
}

type UploadFormRequest struct {
	FormName string            `json:"form_name"`
	Fields   []domain.Question `json:"fields"`
}

// Response payloads

type WelcomeResponse struct {
	Message string `json:"message"`
}

type FormsResponse struct {
	Forms []string `json:"forms"`
	Count int      `json:"count"`
}

type StartFormResponse struct {
	Type      string          `json:"type" enum:"question"`
	Body      domain.Question `json:"body"`
	SessionID string          `json:"session_id"`
	Progress  domain.Progress `json:"progress"`
}

// ChatReply is either the next question or the completion message.
type ChatReply struct {
	Type           string            `json:"type" enum:"question,complete_message"`
	Body           *domain.Question  `json:"body,omitempty"`
	Progress       *domain.Progress  `json:"progress,omitempty"`
	Message        string            `json:"message,omitempty"`
	AnswersSummary map[string]string `json:"answers_summary,omitempty"`
	Archived       *bool             `json:"archived,omitempty"`
}

type OpResultResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type HealthResponse struct {
	Status         string `json:"status"`
	FormsLoaded    int    `json:"forms_loaded"`
	ActiveSessions int    `json:"active_sessions"`
}

type SubmissionResponse struct {
	ID        string            `json:"id"`
	FormName  string            `json:"form_name"`
	FilePath  string            `json:"file_path"`
	Answers   map[string]string `json:"answers"`
	CreatedAt string            `json:"created_at" format:"date-time"`
}

type EventResponse struct {
	ID       int64          `json:"id"`
	TS       string         `json:"ts" format:"date-time"`
	Type     string         `json:"type"`
	FormName string         `json:"form_name,omitempty"`
	EntityID string         `json:"entity_id,omitempty"`
	Payload  map[string]any `json:"payload,omitempty"`
}
