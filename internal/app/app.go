package app

import (
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"formflow/internal/archive"
	"formflow/internal/catalog"
	"formflow/internal/config"
	"formflow/internal/db"
	"formflow/internal/engine"
	"formflow/internal/events"
	"formflow/internal/migrate"
	"formflow/internal/repo"
	"formflow/internal/store"
)

// App bundles the wired collaborators for one workspace.
type App struct {
	Config   *config.Config
	DB       *sql.DB
	Repo     repo.Repo
	Catalog  *catalog.Catalog
	Sessions *store.MemStore
	Engine   *engine.Engine
	Log      *slog.Logger
}

// Bootstrap opens the workspace database, applies migrations, loads the form
// catalog from disk, and wires the engine. Config falls back to defaults when
// formflow.yml is absent.
func Bootstrap(workspace string, log *slog.Logger) (*App, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	cat := catalog.New(resolveDir(workspace, cfg.Storage.FormsDir), log)
	if err := cat.LoadAll(); err != nil {
		conn.Close()
		return nil, err
	}
	log.Info("catalog loaded", "forms", cat.Count())

	sessions := store.NewMem(time.Duration(cfg.Sessions.TTLMinutes) * time.Minute)
	arch := archive.New(resolveDir(workspace, cfg.Storage.CompletedDir), conn, log)
	eng := engine.New(cat, sessions, arch, events.Writer{DB: conn}, log)

	return &App{
		Config:   cfg,
		DB:       conn,
		Repo:     repo.Repo{DB: conn},
		Catalog:  cat,
		Sessions: sessions,
		Engine:   eng,
		Log:      log,
	}, nil
}

// Close releases the workspace database.
func (a *App) Close() error {
	return a.DB.Close()
}

func resolveDir(workspace, dir string) string {
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(workspace, dir)
}
