package web

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/conorfennell/studydeck/internal/domain"
	"github.com/conorfennell/studydeck/internal/library"
	"github.com/conorfennell/studydeck/internal/storage"
)

func newTestServer(t *testing.T, sets []*domain.CardSet) *Server {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	writer := storage.NewWriter(db, slog.Default())
	t.Cleanup(writer.Close)

	lib := library.New(sets)
	return NewServer(lib, db, writer, slog.Default(), domain.Settings{Mode: domain.ModeStandard}, t.TempDir())
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return out
}

func TestImportAndListSets(t *testing.T) {
	s := newTestServer(t, nil)

	rec := do(t, s, http.MethodPost, "/api/sets", `{"name":"Capitals","text":"Paris / Capital of France\n&&&\nLondon / Capital of England"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("import status = %d, body %s", rec.Code, rec.Body)
	}
	created := decode[setSummary](t, rec)
	if created.Cards != 2 {
		t.Errorf("expected 2 cards imported, got %d", created.Cards)
	}

	rec = do(t, s, http.MethodGet, "/api/sets", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	sets := decode[[]setSummary](t, rec)
	if len(sets) != 1 || sets[0].Name != "Capitals" {
		t.Errorf("unexpected listing: %+v", sets)
	}
}

func TestSessionLifecycle(t *testing.T) {
	set := &domain.CardSet{ID: "s1", Name: "Capitals", Cards: []*domain.Card{
		{ID: "c1", Terms: []string{"Paris"}, Content: "Capital of France"},
	}}
	s := newTestServer(t, []*domain.CardSet{set})

	rec := do(t, s, http.MethodPost, "/api/sets/s1/start", `{}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("start status = %d, body %s", rec.Code, rec.Body)
	}
	view := decode[sessionView](t, rec)
	if view.Feedback != "idle" || view.Card == nil {
		t.Fatalf("unexpected initial view: %+v", view)
	}
	if view.Card.Content != "Capital of France" {
		t.Errorf("card content = %q", view.Card.Content)
	}

	rec = do(t, s, http.MethodPost, "/api/sets/s1/start", `{}`)
	if rec.Code != http.StatusConflict {
		t.Errorf("double start should conflict, got %d", rec.Code)
	}

	rec = do(t, s, http.MethodPost, "/api/sessions/s1/submit", `{"term":"Paris"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("submit status = %d", rec.Code)
	}
	view = decode[sessionView](t, rec)
	if view.Feedback != "correct" {
		t.Errorf("feedback = %q, want correct", view.Feedback)
	}
	if view.Streak != 1 {
		t.Errorf("streak = %d, want 1", view.Streak)
	}
	if view.Revealed["term"] != "Paris" {
		t.Errorf("judged card should reveal its term, got %v", view.Revealed)
	}

	rec = do(t, s, http.MethodPost, "/api/sets/s1/end", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("end status = %d", rec.Code)
	}
	rec = do(t, s, http.MethodPost, "/api/sessions/s1/advance", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("ended session should be gone, got %d", rec.Code)
	}

	rec = do(t, s, http.MethodGet, "/api/stats", "")
	stats := decode[map[string]int64](t, rec)
	if stats["lifetimeCorrect"] != 1 {
		t.Errorf("lifetimeCorrect = %d, want 1", stats["lifetimeCorrect"])
	}
}

func TestResetLevelNeedsConfirmation(t *testing.T) {
	set := &domain.CardSet{ID: "s1", Name: "Capitals", Cards: []*domain.Card{
		{ID: "c1", Terms: []string{"Paris"}, Mastery: 2},
		{ID: "c2", Terms: []string{"London"}, Mastery: 1},
	}}
	s := newTestServer(t, []*domain.CardSet{set})

	rec := do(t, s, http.MethodPost, "/api/sets/s1/reset-level", `{"level":2}`)
	first := decode[map[string]any](t, rec)
	if first["confirm"] != "armed" {
		t.Fatalf("first press should arm, got %v", first)
	}
	if set.Cards[0].Mastery != 2 {
		t.Error("arming must not change anything")
	}

	rec = do(t, s, http.MethodPost, "/api/sets/s1/reset-level", `{"level":2}`)
	second := decode[map[string]any](t, rec)
	if second["confirm"] != "executed" {
		t.Fatalf("second press should execute, got %v", second)
	}
	if set.Cards[0].Mastery != 1 {
		t.Error("mastered card should be demoted")
	}
	if set.Cards[1].Mastery != 1 {
		t.Error("cards at other levels must be untouched")
	}
}

func TestSourceManagement(t *testing.T) {
	s := newTestServer(t, nil)

	rec := do(t, s, http.MethodPost, "/api/sources", `{"path":"git@github.com:alice/decks.git"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("add source status = %d", rec.Code)
	}
	created := decode[map[string]any](t, rec)
	if created["type"] != "git" {
		t.Errorf("git URL should be detected, got %v", created["type"])
	}

	rec = do(t, s, http.MethodGet, "/api/sources", "")
	sources := decode[[]storage.Source](t, rec)
	if len(sources) != 1 {
		t.Fatalf("expected 1 source, got %d", len(sources))
	}

	rec = do(t, s, http.MethodDelete, "/api/sources/1", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
}

func TestUnknownSetIs404(t *testing.T) {
	s := newTestServer(t, nil)
	rec := do(t, s, http.MethodGet, "/api/sets/nope", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
