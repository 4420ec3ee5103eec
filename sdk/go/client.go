package formflowsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal formflow HTTP API client.
type Client struct {
	BaseURL    string
	BasePath   string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "api",
		Timeout:  10 * time.Second,
	}
}

// Question represents the API question model.
type Question struct {
	ID          string            `json:"id"`
	DisplayText string            `json:"display_text"`
	InputKind   string            `json:"input_kind"`
	Prompt      string            `json:"prompt,omitempty"`
	Choices     map[string]Choice `json:"choices,omitempty"`
	Answer      string            `json:"answer,omitempty"`
}

// Choice is one selectable option of a choice question.
type Choice struct {
	Label      string `json:"label"`
	Field      string `json:"field,omitempty"`
	FieldValue string `json:"field_value,omitempty"`
}

// Progress locates the respondent inside the form.
type Progress struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// StartResult is the opening of a form-fill conversation.
type StartResult struct {
	Type      string   `json:"type"`
	Body      Question `json:"body"`
	SessionID string   `json:"session_id"`
	Progress  Progress `json:"progress"`
}

// ChatReply is either the next question or the completion message.
type ChatReply struct {
	Type           string            `json:"type"`
	Body           *Question         `json:"body,omitempty"`
	Progress       *Progress         `json:"progress,omitempty"`
	Message        string            `json:"message,omitempty"`
	AnswersSummary map[string]string `json:"answers_summary,omitempty"`
	Archived       *bool             `json:"archived,omitempty"`
}

// FieldMapping is one flat descriptor for CreateFormMapping.
type FieldMapping struct {
	DisplayText string `json:"display_text"`
	Type        string `json:"type"`
	FormField   string `json:"form_field"`
}

// Submission is one archived answer set.
type Submission struct {
	ID        string            `json:"id"`
	FormName  string            `json:"form_name"`
	FilePath  string            `json:"file_path"`
	Answers   map[string]string `json:"answers"`
	CreatedAt string            `json:"created_at"`
}

// Health reports service liveness.
type Health struct {
	Status         string `json:"status"`
	FormsLoaded    int    `json:"forms_loaded"`
	ActiveSessions int    `json:"active_sessions"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Forms returns the available form names.
func (c *Client) Forms(ctx context.Context) ([]string, error) {
	var resp struct {
		Forms []string `json:"forms"`
		Count int      `json:"count"`
	}
	err := c.do(ctx, http.MethodGet, "forms", nil, &resp)
	return resp.Forms, err
}

// StartForm begins filling the named form and returns the first question.
func (c *Client) StartForm(ctx context.Context, formName string) (StartResult, error) {
	var resp StartResult
	err := c.do(ctx, http.MethodGet, "start_fill_form/"+url.PathEscape(formName), nil, &resp)
	return resp, err
}

// SubmitAnswer answers the current question. sessionID may be empty; the
// server then locates the session by the question id.
func (c *Client) SubmitAnswer(ctx context.Context, sessionID, currentID, answer string) (ChatReply, error) {
	body := map[string]any{
		"current_id": currentID,
		"answer":     answer,
	}
	if sessionID != "" {
		body["session_id"] = sessionID
	}
	var resp ChatReply
	err := c.do(ctx, http.MethodPost, "chat_response", body, &resp)
	return resp, err
}

// CreateFormMapping builds and stores a form from flat field descriptors.
func (c *Client) CreateFormMapping(ctx context.Context, formID string, fields []FieldMapping) error {
	body := map[string]any{
		"form_id":      formID,
		"mapping_data": fields,
	}
	return c.do(ctx, http.MethodPost, "create_form_mapping", body, nil)
}

// UploadForm stores a complete form definition.
func (c *Client) UploadForm(ctx context.Context, formName string, fields []Question) error {
	body := map[string]any{
		"form_name": formName,
		"fields":    fields,
	}
	return c.do(ctx, http.MethodPost, "upload_form", body, nil)
}

// Submissions lists archived submissions, optionally filtered by form.
func (c *Client) Submissions(ctx context.Context, formName string, limit int) ([]Submission, error) {
	endpoint := "submissions"
	params := url.Values{}
	if formName != "" {
		params.Set("form_name", formName)
	}
	if limit > 0 {
		params.Set("limit", fmt.Sprint(limit))
	}
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	var resp []Submission
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Healthz returns the service health summary.
func (c *Client) Healthz(ctx context.Context) (Health, error) {
	var resp Health
	err := c.do(ctx, http.MethodGet, "health", nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/" + strings.Trim(c.BasePath, "/") + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
