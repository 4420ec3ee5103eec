package catalog

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"formflow/internal/domain"
)

// Catalog holds the in-memory mapping from form name to its ordered question
// sequence, backed by one JSON document per form on disk.
type Catalog struct {
	dir string
	log *slog.Logger

	mu    sync.RWMutex
	forms map[string][]domain.Question
}

// New creates a catalog over the given forms directory. Call LoadAll before
// first use.
func New(dir string, log *slog.Logger) *Catalog {
	return &Catalog{dir: dir, log: log, forms: map[string][]domain.Question{}}
}

// Dir returns the forms directory path.
func (c *Catalog) Dir() string { return c.dir }

// LoadAll scans the forms directory and replaces the catalog wholesale.
// A document that fails to parse or validate is skipped with a warning;
// one bad file never aborts the reload. Reloads are serialized.
func (c *Catalog) LoadAll() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("ensure forms dir: %w", err)
	}
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return fmt.Errorf("read forms dir: %w", err)
	}
	forms := map[string][]domain.Question{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ".json")
		path := filepath.Join(c.dir, entry.Name())
		questions, err := parseFormFile(path)
		if err != nil {
			c.log.Warn("skipping form", "form", name, "err", err)
			continue
		}
		forms[name] = questions
		c.log.Debug("loaded form", "form", name, "questions", len(questions))
	}
	c.forms = forms
	return nil
}

// Names returns the currently loaded form names, sorted.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.forms))
	for name := range c.forms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns a private copy of the named form definition. The copy is safe
// to hand to a session: recorded answers never touch the canonical catalog.
func (c *Catalog) Get(name string) ([]domain.Question, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	questions, ok := c.forms[name]
	if !ok {
		return nil, false
	}
	return domain.CloneQuestions(questions), true
}

// Count returns the number of loaded forms.
func (c *Catalog) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.forms)
}

// SaveForm writes a form definition into the backing store and reloads the
// catalog so it becomes immediately visible. The document is written to a
// temporary name and renamed into place so a failed write never leaves a
// half-written definition visible.
func (c *Catalog) SaveForm(name string, questions []domain.Question) error {
	if err := validateFormName(name); err != nil {
		return err
	}
	if err := validateForm(questions); err != nil {
		return fmt.Errorf("form %s: %w", name, err)
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("ensure forms dir: %w", err)
	}
	data, err := json.MarshalIndent(questions, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal form %s: %w", name, err)
	}
	final := filepath.Join(c.dir, name+".json")
	tmp, err := os.CreateTemp(c.dir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp form file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write form %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close form %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), final); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("finalize form %s: %w", name, err)
	}
	return c.LoadAll()
}

func parseFormFile(path string) ([]domain.Question, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var questions []domain.Question
	if err := json.Unmarshal(data, &questions); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	if err := validateForm(questions); err != nil {
		return nil, err
	}
	return questions, nil
}

func validateForm(questions []domain.Question) error {
	seen := map[string]int{}
	for i, q := range questions {
		if q.ID == "" {
			return fmt.Errorf("question %d has empty id", i)
		}
		if prev, dup := seen[q.ID]; dup {
			return fmt.Errorf("duplicate question id %q (positions %d and %d)", q.ID, prev, i)
		}
		seen[q.ID] = i
		if !domain.KnownKind(q.Kind) {
			return fmt.Errorf("question %q has unknown input kind %q", q.ID, q.Kind)
		}
	}
	return nil
}

func validateFormName(name string) error {
	if name == "" {
		return fmt.Errorf("form name is required")
	}
	if strings.ContainsAny(name, `/\`) || name != filepath.Base(name) {
		return fmt.Errorf("invalid form name %q", name)
	}
	return nil
}
