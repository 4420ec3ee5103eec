package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"formflow/internal/archive"
	"formflow/internal/catalog"
	"formflow/internal/domain"
	"formflow/internal/events"
	"formflow/internal/store"
)

var (
	// ErrFormNotFound means the requested form is absent from the catalog.
	ErrFormNotFound = errors.New("form not found")
	// ErrEmptyForm means the form has no questions to ask.
	ErrEmptyForm = errors.New("form is empty")
	// ErrSessionNotFound means no active session owns the question being
	// answered, or the presented session id is unknown or expired.
	ErrSessionNotFound = errors.New("session not found")
	// ErrOutOfTurn means the question being answered is not the session's
	// current question: answered twice, or ahead of the sequence.
	ErrOutOfTurn = errors.New("question answered out of turn")
)

// Engine drives form-fill sessions: it hands out questions one at a time,
// records answers, and archives the completed answer set.
type Engine struct {
	Catalog  *catalog.Catalog
	Sessions store.Store
	Archiver *archive.Archiver
	Events   events.Writer
	Log      *slog.Logger
	Now      func() time.Time

	// mu serializes submissions so two answers racing for the same session
	// cannot both observe the same current index.
	mu sync.Mutex
}

// New wires an engine from its collaborators.
func New(cat *catalog.Catalog, sessions store.Store, arch *archive.Archiver, ev events.Writer, log *slog.Logger) *Engine {
	return &Engine{
		Catalog:  cat,
		Sessions: sessions,
		Archiver: arch,
		Events:   ev,
		Log:      log,
		Now:      time.Now,
	}
}

// StartResult is the opening of a new form-fill session.
type StartResult struct {
	SessionID string
	Question  domain.Question
	Progress  domain.Progress
}

// Outcome is the result of one accepted answer: either the next question or
// the completion summary. Archived reports whether the completed answer set
// was persisted; an archive failure never fails the submission itself.
type Outcome struct {
	Completed bool
	Question  domain.Question
	Progress  domain.Progress
	Summary   map[string]string
	Archived  bool
}

// Start begins filling the named form. It snapshots the form definition into
// a new session keyed by a freshly generated id, which the caller must
// present (or at least the current question id) on every subsequent answer.
func (e *Engine) Start(ctx context.Context, formName string) (StartResult, error) {
	questions, ok := e.Catalog.Get(formName)
	if !ok {
		return StartResult{}, fmt.Errorf("form %q: %w", formName, ErrFormNotFound)
	}
	if len(questions) == 0 {
		return StartResult{}, fmt.Errorf("form %q: %w", formName, ErrEmptyForm)
	}
	s := &domain.Session{
		ID:           uuid.NewString(),
		FormName:     formName,
		CurrentIndex: 0,
		Answers:      map[string]string{},
		Questions:    questions,
		CreatedAt:    e.now().UTC().Format(time.RFC3339),
	}
	e.Sessions.Put(s)
	e.appendEvent(ctx, "session.started", formName, "session", s.ID, events.EventPayload{"questions": len(questions)})
	return StartResult{
		SessionID: s.ID,
		Question:  questions[0],
		Progress:  domain.Progress{Current: 1, Total: len(questions)},
	}, nil
}

// Submit records an answer for the given question and advances the owning
// session. When sessionID is non-empty the session is looked up directly;
// otherwise the store is scanned for the session whose snapshot owns the
// question id, which keeps the original wire contract working.
func (e *Engine) Submit(ctx context.Context, sessionID, questionID, answer string) (Outcome, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, idx, err := e.locate(sessionID, questionID)
	if err != nil {
		return Outcome{}, err
	}
	if idx != s.CurrentIndex {
		return Outcome{}, fmt.Errorf("question %q at position %d, session %s expects position %d: %w",
			questionID, idx, s.ID, s.CurrentIndex, ErrOutOfTurn)
	}

	s.Answers[questionID] = answer
	s.Questions[idx].Answer = answer
	s.CurrentIndex++
	total := len(s.Questions)

	if !s.Complete() {
		e.Sessions.Put(s)
		e.appendEvent(ctx, "answer.recorded", s.FormName, "session", s.ID, events.EventPayload{"question": questionID})
		return Outcome{
			Question: s.Questions[s.CurrentIndex],
			Progress: domain.Progress{Current: s.CurrentIndex + 1, Total: total},
		}, nil
	}

	// Terminal: the session accepts no further answers.
	e.Sessions.Remove(s.ID)
	archived := true
	if _, err := e.Archiver.Archive(ctx, s.FormName, s.Questions, s.Answers); err != nil {
		// Completion must not fail because of storage trouble.
		archived = false
		e.Log.Error("archiving completed form failed", "form", s.FormName, "session", s.ID, "err", err)
		e.appendEvent(ctx, "archive.failed", s.FormName, "session", s.ID, events.EventPayload{"error": err.Error()})
	}
	e.appendEvent(ctx, "session.completed", s.FormName, "session", s.ID, events.EventPayload{"archived": archived})
	return Outcome{
		Completed: true,
		Progress:  domain.Progress{Current: total, Total: total},
		Summary:   s.Answers,
		Archived:  archived,
	}, nil
}

func (e *Engine) locate(sessionID, questionID string) (*domain.Session, int, error) {
	if sessionID != "" {
		s, ok := e.Sessions.Get(sessionID)
		if !ok {
			return nil, 0, fmt.Errorf("session %q: %w", sessionID, ErrSessionNotFound)
		}
		for i, q := range s.Questions {
			if q.ID == questionID {
				return s, i, nil
			}
		}
		return nil, 0, fmt.Errorf("session %q does not contain question %q: %w", sessionID, questionID, ErrSessionNotFound)
	}
	s, idx, ok := e.Sessions.FindByQuestion(questionID)
	if !ok {
		return nil, 0, fmt.Errorf("no session owns question %q: %w", questionID, ErrSessionNotFound)
	}
	return s, idx, nil
}

// ActiveSessions returns the number of live sessions.
func (e *Engine) ActiveSessions() int {
	return e.Sessions.Len()
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) appendEvent(ctx context.Context, evtType, formName, entityKind, entityID string, payload events.EventPayload) {
	if e.Events.DB == nil {
		return
	}
	if err := e.Events.Append(ctx, evtType, formName, entityKind, entityID, payload); err != nil {
		e.Log.Warn("appending event failed", "type", evtType, "err", err)
	}
}
