package store_test

import (
	"testing"
	"time"

	"formflow/internal/domain"
	"formflow/internal/store"
)

func session(id string, questionIDs ...string) *domain.Session {
	questions := make([]domain.Question, len(questionIDs))
	for i, qid := range questionIDs {
		questions[i] = domain.Question{ID: qid, Kind: domain.KindFreeText}
	}
	return &domain.Session{
		ID:        id,
		FormName:  "survey_form",
		Answers:   map[string]string{},
		Questions: questions,
	}
}

func TestPutGetRemove(t *testing.T) {
	m := store.NewMem(0)
	s := session("s1", "Q1")
	m.Put(s)
	got, ok := m.Get("s1")
	if !ok || got.ID != "s1" {
		t.Fatalf("expected session back")
	}
	if m.Len() != 1 {
		t.Fatalf("expected len 1")
	}
	m.Remove("s1")
	if _, ok := m.Get("s1"); ok {
		t.Fatalf("expected session gone")
	}
	// removing again is a no-op
	m.Remove("s1")
	if m.Len() != 0 {
		t.Fatalf("expected empty store")
	}
}

func TestFindByQuestion(t *testing.T) {
	m := store.NewMem(0)
	m.Put(session("s1", "A-1", "A-2"))
	m.Put(session("s2", "B-1"))
	s, idx, ok := m.FindByQuestion("A-2")
	if !ok || s.ID != "s1" || idx != 1 {
		t.Fatalf("expected s1 index 1, got %v %d %v", s, idx, ok)
	}
	if _, _, ok := m.FindByQuestion("C-1"); ok {
		t.Fatalf("expected no match")
	}
}

func TestTTLExpiry(t *testing.T) {
	m := store.NewMem(10 * time.Minute)
	base := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	now := base
	m.SetClock(func() time.Time { return now })

	m.Put(session("s1", "Q1"))
	now = base.Add(5 * time.Minute)
	if _, ok := m.Get("s1"); !ok {
		t.Fatalf("session expired early")
	}
	now = base.Add(11 * time.Minute)
	if _, ok := m.Get("s1"); ok {
		t.Fatalf("expected session expired")
	}
}

func TestPutRefreshesDeadline(t *testing.T) {
	m := store.NewMem(10 * time.Minute)
	base := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	now := base
	m.SetClock(func() time.Time { return now })

	s := session("s1", "Q1")
	m.Put(s)
	now = base.Add(8 * time.Minute)
	m.Put(s)
	now = base.Add(15 * time.Minute)
	if _, ok := m.Get("s1"); !ok {
		t.Fatalf("refreshed session expired too early")
	}
}

func TestSweep(t *testing.T) {
	m := store.NewMem(10 * time.Minute)
	base := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	now := base
	m.SetClock(func() time.Time { return now })

	m.Put(session("old", "Q1"))
	now = base.Add(6 * time.Minute)
	m.Put(session("fresh", "Q2"))
	now = base.Add(12 * time.Minute)

	removed := m.Sweep()
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	if _, ok := m.Get("fresh"); !ok {
		t.Fatalf("fresh session must survive sweep")
	}
	if m.Len() != 1 {
		t.Fatalf("expected len 1 after sweep")
	}
}

func TestZeroTTLNeverExpires(t *testing.T) {
	m := store.NewMem(0)
	base := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	now := base
	m.SetClock(func() time.Time { return now })
	m.Put(session("s1", "Q1"))
	now = base.Add(1000 * time.Hour)
	if _, ok := m.Get("s1"); !ok {
		t.Fatalf("ttl disabled, session must persist")
	}
	if m.Sweep() != 0 {
		t.Fatalf("sweep must remove nothing")
	}
}
