package archive_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"formflow/internal/archive"
	"formflow/internal/db"
	"formflow/internal/domain"
	"formflow/internal/logging"
	"formflow/internal/migrate"
	"formflow/internal/repo"
)

func TestArchiveWritesArtifactAndIndex(t *testing.T) {
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	completed := filepath.Join(dir, "completed_forms")
	arch := archive.New(completed, conn, logging.NewNop())
	arch.Now = func() time.Time { return time.Date(2024, 3, 15, 10, 30, 45, 0, time.UTC) }

	answered := []domain.Question{
		{ID: "Text-1", Kind: domain.KindFreeText, Answer: "Ada"},
		{ID: "Radio-1", Kind: domain.KindSingleChoice, Answer: "Email"},
	}
	answers := map[string]string{"Text-1": "Ada", "Radio-1": "Email"}

	ctx := context.Background()
	sub, err := arch.Archive(ctx, "survey_form", answered, answers)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	wantPath := filepath.Join(completed, "survey_form_completed_20240315_103045.json")
	if sub.FilePath != wantPath {
		t.Fatalf("file path %s, want %s", sub.FilePath, wantPath)
	}
	if sub.FormName != "survey_form" || sub.ID == "" {
		t.Fatalf("unexpected submission %+v", sub)
	}

	var stored map[string]string
	if err := json.Unmarshal([]byte(sub.Answers), &stored); err != nil {
		t.Fatalf("parse answers json: %v", err)
	}
	if stored["Text-1"] != "Ada" {
		t.Fatalf("answers json off: %v", stored)
	}

	r := repo.Repo{DB: conn}
	got, err := r.GetSubmission(ctx, sub.ID)
	if err != nil {
		t.Fatalf("get submission: %v", err)
	}
	if got.FilePath != wantPath {
		t.Fatalf("index row path %s", got.FilePath)
	}
	subs, err := r.ListSubmissions(ctx, "survey_form", 10)
	if err != nil || len(subs) != 1 {
		t.Fatalf("list submissions: %v (%d)", err, len(subs))
	}

	evts, err := r.LatestEvents(ctx, 10, "survey_form", "submission.archived")
	if err != nil {
		t.Fatalf("latest events: %v", err)
	}
	if len(evts) != 1 {
		t.Fatalf("expected one archived event, got %d", len(evts))
	}
}

func TestArchiveFailsWhenDirectoryBlocked(t *testing.T) {
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	// a file where the directory should be
	blocked := filepath.Join(dir, "completed_forms")
	if err := os.WriteFile(blocked, []byte("blocked"), 0o644); err != nil {
		t.Fatalf("block dir: %v", err)
	}

	arch := archive.New(blocked, conn, logging.NewNop())
	_, err = arch.Archive(context.Background(), "survey_form", nil, nil)
	if err == nil {
		t.Fatalf("expected failure when dir is a file")
	}
	// no orphan index row
	r := repo.Repo{DB: conn}
	subs, err := r.ListSubmissions(context.Background(), "survey_form", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(subs) != 0 {
		t.Fatalf("expected no submissions, got %d", len(subs))
	}
}
