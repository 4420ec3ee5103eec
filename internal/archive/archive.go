package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"formflow/internal/domain"
	"formflow/internal/events"
	"formflow/internal/repo"
)

// Archiver persists fully answered forms: one JSON artifact per submission
// under the completed-forms directory, plus an indexed row in the database.
type Archiver struct {
	Dir    string
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Log    *slog.Logger
	Now    func() time.Time
}

// New creates an archiver writing artifacts to dir and index rows to conn.
func New(dir string, conn *sql.DB, log *slog.Logger) *Archiver {
	return &Archiver{
		Dir:    dir,
		DB:     conn,
		Repo:   repo.Repo{DB: conn},
		Events: events.Writer{DB: conn},
		Log:    log,
		Now:    time.Now,
	}
}

// Archive writes the answered sequence as a timestamped artifact named
// <form>_completed_<timestamp>.json and records it in the submission index.
// Timestamps have whole-second resolution; collisions for the same form
// within the same second overwrite, which is acceptable. The artifact is
// written to a temporary name and renamed into place.
func (a *Archiver) Archive(ctx context.Context, formName string, answered []domain.Question, answers map[string]string) (domain.Submission, error) {
	now := a.Now().UTC()
	if err := os.MkdirAll(a.Dir, 0o755); err != nil {
		return domain.Submission{}, fmt.Errorf("ensure completed dir: %w", err)
	}
	filename := fmt.Sprintf("%s_completed_%s.json", formName, now.Format("20060102_150405"))
	final := filepath.Join(a.Dir, filename)

	data, err := json.MarshalIndent(answered, "", "  ")
	if err != nil {
		return domain.Submission{}, fmt.Errorf("marshal completed form: %w", err)
	}
	tmp, err := os.CreateTemp(a.Dir, filename+".*.tmp")
	if err != nil {
		return domain.Submission{}, fmt.Errorf("create temp artifact: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return domain.Submission{}, fmt.Errorf("write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return domain.Submission{}, fmt.Errorf("close artifact: %w", err)
	}
	if err := os.Rename(tmp.Name(), final); err != nil {
		os.Remove(tmp.Name())
		return domain.Submission{}, fmt.Errorf("finalize artifact: %w", err)
	}

	answersJSON, err := json.Marshal(answers)
	if err != nil {
		return domain.Submission{}, fmt.Errorf("marshal answers: %w", err)
	}
	sub := domain.Submission{
		ID:        uuid.NewString(),
		FormName:  formName,
		FilePath:  final,
		Answers:   string(answersJSON),
		CreatedAt: now.Format(time.RFC3339),
	}
	tx, err := a.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Submission{}, err
	}
	defer tx.Rollback()
	if err := a.Repo.InsertSubmissionTx(ctx, tx, sub); err != nil {
		return domain.Submission{}, fmt.Errorf("index submission: %w", err)
	}
	if err := a.Events.AppendTx(ctx, tx, "submission.archived", formName, "submission", sub.ID, events.EventPayload{"file": filename}); err != nil {
		return domain.Submission{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Submission{}, err
	}
	a.Log.Info("archived completed form", "form", formName, "file", filename)
	return sub, nil
}
