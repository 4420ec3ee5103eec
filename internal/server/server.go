package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"formflow/internal/catalog"
	"formflow/internal/config"
	"formflow/internal/domain"
	"formflow/internal/engine"
	"formflow/internal/events"
	"formflow/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   *engine.Engine
	Repo     repo.Repo
	Events   events.Writer
	App      *config.Config
	BasePath string
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"form 'survey_form' not found"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the formflow API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/api"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	if cfg.App != nil && len(cfg.App.Server.AllowedOrigins) > 0 {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.App.Server.AllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Content-Type"},
			AllowCredentials: true,
		}))
	}
	hcfg := huma.DefaultConfig("Formflow API", "1.0.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerIndex(group, cfg.App)
	registerForms(group, cfg.Engine)
	registerFill(group, cfg.Engine, cfg.App)
	registerMappings(group, cfg.Engine, cfg.Events)
	registerSubmissions(group, cfg.Repo)
	registerEvents(group, cfg.Repo)
	registerHealth(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, engine.ErrFormNotFound),
		errors.Is(err, engine.ErrSessionNotFound),
		errors.Is(err, repo.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, engine.ErrEmptyForm):
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
	case errors.Is(err, engine.ErrOutOfTurn):
		return newAPIError(http.StatusConflict, "out_of_turn", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	if strings.Contains(lowered, "invalid") || strings.Contains(lowered, "required") || strings.Contains(lowered, "empty") {
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			spec, _ = json.Marshal(api.OpenAPI())
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Formflow API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
  </body>
</html>`, specURL)
}

func registerIndex(api huma.API, appCfg *config.Config) {
	huma.Register(api, huma.Operation{
		OperationID: "index",
		Method:      http.MethodGet,
		Path:        "/",
		Summary:     "Welcome",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body WelcomeResponse `json:"body"`
	}, error) {
		msg := "Welcome to the formflow API!"
		if appCfg != nil && appCfg.Chat.WelcomeMessage != "" {
			msg = appCfg.Chat.WelcomeMessage
		}
		return &struct {
			Body WelcomeResponse `json:"body"`
		}{Body: WelcomeResponse{Message: msg}}, nil
	})
}

func registerForms(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-forms",
		Method:      http.MethodGet,
		Path:        "/forms",
		Summary:     "List available forms",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body FormsResponse `json:"body"`
	}, error) {
		names := e.Catalog.Names()
		return &struct {
			Body FormsResponse `json:"body"`
		}{Body: FormsResponse{Forms: names, Count: len(names)}}, nil
	})
}

func registerFill(api huma.API, e *engine.Engine, appCfg *config.Config) {
	huma.Register(api, huma.Operation{
		OperationID: "start-fill-form",
		Method:      http.MethodGet,
		Path:        "/start_fill_form/{form_name}",
		Summary:     "Start filling a form",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		FormName string `path:"form_name"`
	}) (*struct {
		Body StartFormResponse `json:"body"`
	}, error) {
		res, err := e.Start(ctx, input.FormName)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body StartFormResponse `json:"body"`
		}{Body: StartFormResponse{
			Type:      "question",
			Body:      res.Question,
			SessionID: res.SessionID,
			Progress:  res.Progress,
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "chat-response",
		Method:      http.MethodPost,
		Path:        "/chat_response",
		Summary:     "Submit an answer",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body ChatResponseRequest `json:"body"`
	}) (*struct {
		Body ChatReply `json:"body"`
	}, error) {
		if input.Body.CurrentID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "current_id is required", nil)
		}
		outcome, err := e.Submit(ctx, input.Body.SessionID, input.Body.CurrentID, input.Body.Answer)
		if err != nil {
			return nil, handleError(err)
		}
		if outcome.Completed {
			msg := "Thank you! You have completed the form successfully."
			if appCfg != nil && appCfg.Chat.CompletionMessage != "" {
				msg = appCfg.Chat.CompletionMessage
			}
			archived := outcome.Archived
			return &struct {
				Body ChatReply `json:"body"`
			}{Body: ChatReply{
				Type:           "complete_message",
				Message:        msg,
				AnswersSummary: outcome.Summary,
				Archived:       &archived,
			}}, nil
		}
		q := outcome.Question
		p := outcome.Progress
		return &struct {
			Body ChatReply `json:"body"`
		}{Body: ChatReply{Type: "question", Body: &q, Progress: &p}}, nil
	})
}

func registerMappings(api huma.API, e *engine.Engine, ev events.Writer) {
	huma.Register(api, huma.Operation{
		OperationID: "create-form-mapping",
		Method:      http.MethodPost,
		Path:        "/create_form_mapping",
		Summary:     "Create or update a form mapping",
		Errors:      []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body FormMappingRequest `json:"body"`
	}) (*struct {
		Body OpResultResponse `json:"body"`
	}, error) {
		questions, err := catalog.BuildMapping(input.Body.FormID, input.Body.MappingData)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
		}
		if err := e.Catalog.SaveForm(input.Body.FormID, questions); err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error",
				fmt.Sprintf("error creating form mapping: %v", err), nil)
		}
		appendFormSaved(ctx, ev, input.Body.FormID, len(questions))
		return &struct {
			Body OpResultResponse `json:"body"`
		}{Body: OpResultResponse{Success: true, Message: "Form mapping created successfully."}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "upload-form",
		Method:      http.MethodPost,
		Path:        "/upload_form",
		Summary:     "Upload a form definition",
		Errors:      []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body UploadFormRequest `json:"body"`
	}) (*struct {
		Body OpResultResponse `json:"body"`
	}, error) {
		name := input.Body.FormName
		if name == "" {
			name = "uploaded_form"
		}
		if len(input.Body.Fields) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "no fields provided", nil)
		}
		if err := e.Catalog.SaveForm(name, input.Body.Fields); err != nil {
			if strings.Contains(err.Error(), "invalid") || strings.Contains(err.Error(), "duplicate") || strings.Contains(err.Error(), "unknown") {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
			}
			return nil, newAPIError(http.StatusInternalServerError, "internal_error",
				fmt.Sprintf("error uploading form: %v", err), nil)
		}
		appendFormSaved(ctx, ev, name, len(input.Body.Fields))
		return &struct {
			Body OpResultResponse `json:"body"`
		}{Body: OpResultResponse{Success: true, Message: fmt.Sprintf("Form '%s' uploaded successfully.", name)}}, nil
	})
}

func appendFormSaved(ctx context.Context, ev events.Writer, formName string, questions int) {
	if ev.DB == nil {
		return
	}
	_ = ev.Append(ctx, "form.saved", formName, "form", formName, events.EventPayload{"questions": questions})
}

func registerSubmissions(api huma.API, r repo.Repo) {
	huma.Register(api, huma.Operation{
		OperationID: "list-submissions",
		Method:      http.MethodGet,
		Path:        "/submissions",
		Summary:     "List archived submissions",
	}, func(ctx context.Context, input *struct {
		FormName string `query:"form_name"`
		Limit    int    `query:"limit" default:"50"`
	}) (*struct {
		Body []SubmissionResponse `json:"body"`
	}, error) {
		items, err := r.ListSubmissions(ctx, input.FormName, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]SubmissionResponse, 0, len(items))
		for _, s := range items {
			res = append(res, submissionResponse(s))
		}
		return &struct {
			Body []SubmissionResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-submission",
		Method:      http.MethodGet,
		Path:        "/submissions/{id}",
		Summary:     "Get an archived submission",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body SubmissionResponse `json:"body"`
	}, error) {
		s, err := r.GetSubmission(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SubmissionResponse `json:"body"`
		}{Body: submissionResponse(s)}, nil
	})
}

func registerEvents(api huma.API, r repo.Repo) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Tail the activity log",
	}, func(ctx context.Context, input *struct {
		FormName string `query:"form_name"`
		Type     string `query:"type"`
		Limit    int    `query:"limit" default:"20"`
	}) (*struct {
		Body []EventResponse `json:"body"`
	}, error) {
		items, err := r.LatestEvents(ctx, input.Limit, input.FormName, input.Type)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]EventResponse, 0, len(items))
		for _, e := range items {
			res = append(res, eventResponse(e))
		}
		return &struct {
			Body []EventResponse `json:"body"`
		}{Body: res}, nil
	})
}

func registerHealth(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body HealthResponse `json:"body"`
	}, error) {
		return &struct {
			Body HealthResponse `json:"body"`
		}{Body: HealthResponse{
			Status:         "healthy",
			FormsLoaded:    e.Catalog.Count(),
			ActiveSessions: e.ActiveSessions(),
		}}, nil
	})
}

func submissionResponse(s domain.Submission) SubmissionResponse {
	answers := map[string]string{}
	_ = json.Unmarshal([]byte(s.Answers), &answers)
	return SubmissionResponse{
		ID:        s.ID,
		FormName:  s.FormName,
		FilePath:  s.FilePath,
		Answers:   answers,
		CreatedAt: s.CreatedAt,
	}
}

func eventResponse(e domain.Event) EventResponse {
	payload := map[string]any{}
	_ = json.Unmarshal([]byte(e.Payload), &payload)
	return EventResponse{
		ID:       e.ID,
		TS:       e.TS,
		Type:     e.Type,
		FormName: e.FormName,
		EntityID: e.EntityID,
		Payload:  payload,
	}
}
