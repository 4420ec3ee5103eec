package catalog_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"formflow/internal/catalog"
	"formflow/internal/domain"
	"formflow/internal/logging"
)

func newTestCatalog(t *testing.T) (*catalog.Catalog, string) {
	t.Helper()
	dir := t.TempDir()
	return catalog.New(dir, logging.NewNop()), dir
}

func writeJSON(t *testing.T, path string, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func sampleQuestions() []domain.Question {
	return []domain.Question{
		{ID: "Text-1", DisplayText: "Name?", Kind: domain.KindFreeText},
		{ID: "Radio-1", DisplayText: "Contact?", Kind: domain.KindSingleChoice, Choices: map[string]domain.Choice{
			"Email": {Label: "Email"},
		}},
	}
}

func TestLoadAllScansDirectory(t *testing.T) {
	cat, dir := newTestCatalog(t)
	writeJSON(t, filepath.Join(dir, "alpha.json"), sampleQuestions())
	writeJSON(t, filepath.Join(dir, "beta.json"), sampleQuestions())
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := cat.LoadAll(); err != nil {
		t.Fatalf("load: %v", err)
	}
	names := cat.Names()
	if len(names) != 2 || names[0] != "alpha" || names[1] != "beta" {
		t.Fatalf("unexpected names %v", names)
	}
	if cat.Count() != 2 {
		t.Fatalf("expected 2 forms, got %d", cat.Count())
	}
}

func TestLoadAllSkipsBadFiles(t *testing.T) {
	cat, dir := newTestCatalog(t)
	writeJSON(t, filepath.Join(dir, "good.json"), sampleQuestions())
	if err := os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	// duplicate ids fail validation and the file is skipped
	writeJSON(t, filepath.Join(dir, "dupes.json"), []domain.Question{
		{ID: "Q1", Kind: domain.KindFreeText},
		{ID: "Q1", Kind: domain.KindFreeText},
	})
	// unknown input kind is rejected too
	writeJSON(t, filepath.Join(dir, "badkind.json"), []domain.Question{
		{ID: "Q1", Kind: "slider"},
	})
	if err := cat.LoadAll(); err != nil {
		t.Fatalf("load must not abort on bad files: %v", err)
	}
	if names := cat.Names(); len(names) != 1 || names[0] != "good" {
		t.Fatalf("expected only good form, got %v", names)
	}
}

func TestLoadAllIdempotent(t *testing.T) {
	cat, dir := newTestCatalog(t)
	writeJSON(t, filepath.Join(dir, "alpha.json"), sampleQuestions())
	writeJSON(t, filepath.Join(dir, "beta.json"), sampleQuestions())
	if err := cat.LoadAll(); err != nil {
		t.Fatalf("first load: %v", err)
	}
	names := cat.Names()
	forms := map[string][]domain.Question{}
	for _, name := range names {
		forms[name], _ = cat.Get(name)
	}

	// no filesystem change in between
	if err := cat.LoadAll(); err != nil {
		t.Fatalf("second load: %v", err)
	}
	if again := cat.Names(); !reflect.DeepEqual(again, names) {
		t.Fatalf("names changed across reloads: %v vs %v", again, names)
	}
	for _, name := range names {
		questions, ok := cat.Get(name)
		if !ok {
			t.Fatalf("form %s missing after reload", name)
		}
		if !reflect.DeepEqual(questions, forms[name]) {
			t.Fatalf("form %s changed across reloads", name)
		}
	}
}

func TestLoadAllReplacesWholesale(t *testing.T) {
	cat, dir := newTestCatalog(t)
	writeJSON(t, filepath.Join(dir, "first.json"), sampleQuestions())
	if err := cat.LoadAll(); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(filepath.Join(dir, "first.json")); err != nil {
		t.Fatal(err)
	}
	writeJSON(t, filepath.Join(dir, "second.json"), sampleQuestions())
	if err := cat.LoadAll(); err != nil {
		t.Fatal(err)
	}
	if _, ok := cat.Get("first"); ok {
		t.Fatalf("removed form still present after reload")
	}
	if _, ok := cat.Get("second"); !ok {
		t.Fatalf("new form missing after reload")
	}
}

func TestGetReturnsPrivateCopy(t *testing.T) {
	cat, dir := newTestCatalog(t)
	writeJSON(t, filepath.Join(dir, "alpha.json"), sampleQuestions())
	if err := cat.LoadAll(); err != nil {
		t.Fatal(err)
	}
	first, _ := cat.Get("alpha")
	first[0].Answer = "scribbled"
	first[1].Choices["Email"] = domain.Choice{Label: "changed"}
	second, _ := cat.Get("alpha")
	if second[0].Answer != "" {
		t.Fatalf("answer leaked into catalog copy")
	}
	if second[1].Choices["Email"].Label != "Email" {
		t.Fatalf("choice mutation leaked into catalog copy")
	}
}

func TestSaveFormRoundTrip(t *testing.T) {
	cat, dir := newTestCatalog(t)
	if err := cat.LoadAll(); err != nil {
		t.Fatal(err)
	}
	if err := cat.SaveForm("uploaded", sampleQuestions()); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "uploaded.json")); err != nil {
		t.Fatalf("expected form file: %v", err)
	}
	questions, ok := cat.Get("uploaded")
	if !ok || len(questions) != 2 {
		t.Fatalf("saved form not reloaded")
	}
}

func TestSaveFormRejectsInvalid(t *testing.T) {
	cat, _ := newTestCatalog(t)
	if err := cat.SaveForm("", sampleQuestions()); err == nil {
		t.Fatalf("expected error for empty name")
	}
	if err := cat.SaveForm("../escape", sampleQuestions()); err == nil {
		t.Fatalf("expected error for path traversal name")
	}
	if err := cat.SaveForm("dupes", []domain.Question{
		{ID: "Q1", Kind: domain.KindFreeText},
		{ID: "Q1", Kind: domain.KindFreeText},
	}); err == nil {
		t.Fatalf("expected error for duplicate ids")
	}
	if err := cat.SaveForm("badkind", []domain.Question{
		{ID: "Q1", Kind: "slider"},
	}); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
}

func TestBuildMapping(t *testing.T) {
	fields := []catalog.FieldMapping{
		{DisplayText: "What is your name?", Type: "input_text", FormField: "Text-1"},
		{DisplayText: "Pick one", Type: "radio", FormField: "Radio-1"},
		{DisplayText: "Pick many", Type: "checkbox", FormField: "Check-1"},
	}
	questions, err := catalog.BuildMapping("intake", fields)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(questions) != 3 {
		t.Fatalf("expected 3 questions, got %d", len(questions))
	}
	if questions[0].ID != "Text-1" || questions[0].Kind != domain.KindFreeText {
		t.Fatalf("unexpected first question %+v", questions[0])
	}
	if questions[1].Kind != domain.KindSingleChoice || questions[2].Kind != domain.KindCheckList {
		t.Fatalf("kind normalization off: %v %v", questions[1].Kind, questions[2].Kind)
	}
	if questions[0].NextID != "Radio-1" || questions[1].PreviousID != "Text-1" {
		t.Fatalf("neighbour links off: %+v", questions[1])
	}
	if questions[0].PreviousID != "" || questions[2].NextID != "" {
		t.Fatalf("endpoints must have open links")
	}
	if questions[0].Prompt != "What is your name?" {
		t.Fatalf("prompt should mirror display text")
	}
}

func TestBuildMappingErrors(t *testing.T) {
	if _, err := catalog.BuildMapping("", []catalog.FieldMapping{{FormField: "a"}}); err == nil {
		t.Fatalf("expected error for empty form id")
	}
	if _, err := catalog.BuildMapping("intake", nil); err == nil {
		t.Fatalf("expected error for no fields")
	}
	if _, err := catalog.BuildMapping("intake", []catalog.FieldMapping{{DisplayText: "x"}}); err == nil {
		t.Fatalf("expected error for empty form_field")
	}
}

func TestNormalizeKindDefaultsToFreeText(t *testing.T) {
	if got := catalog.NormalizeKind("unheard_of"); got != domain.KindFreeText {
		t.Fatalf("expected free_text fallback, got %s", got)
	}
	if got := catalog.NormalizeKind("dropdown"); got != domain.KindSingleChoice {
		t.Fatalf("expected single_choice for dropdown, got %s", got)
	}
}
