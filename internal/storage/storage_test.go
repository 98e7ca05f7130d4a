package storage

import (
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/conorfennell/studydeck/internal/domain"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleSet() *domain.CardSet {
	return &domain.CardSet{
		ID:   "set1",
		Name: "Biology",
		Cards: []*domain.Card{
			{
				ID:      "c1",
				Terms:   []string{"Mitochondria", "Mitochondrion"},
				Content: "Powerhouse of the cell",
				Year:    "",
				Fields:  []domain.CustomField{{Name: "Organelle", Value: "Yes"}},
				Mastery: 1,
				Star:    true,
			},
			{
				ID:      "c2",
				Terms:   []string{"Ribosome"},
				Content: "Builds proteins",
			},
		},
		LastPlayed:       time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC),
		ElapsedTime:      90 * time.Second,
		TopStreak:        7,
		CustomFieldNames: []string{"Organelle"},
	}
}

func TestSaveAndLoadSet(t *testing.T) {
	db := openTestDB(t)

	if err := db.SaveSet(sampleSet(), 0); err != nil {
		t.Fatalf("SaveSet: %v", err)
	}

	sets, err := db.LoadSets()
	if err != nil {
		t.Fatalf("LoadSets: %v", err)
	}
	if len(sets) != 1 {
		t.Fatalf("expected 1 set, got %d", len(sets))
	}

	set := sets[0]
	if set.Name != "Biology" || set.TopStreak != 7 {
		t.Errorf("set metadata lost: %+v", set)
	}
	if set.ElapsedTime != 90*time.Second {
		t.Errorf("elapsed = %v, want 90s", set.ElapsedTime)
	}
	if len(set.Cards) != 2 {
		t.Fatalf("expected 2 cards, got %d", len(set.Cards))
	}

	card := set.Cards[0]
	if card.ID != "c1" {
		t.Errorf("card order not preserved, first card is %s", card.ID)
	}
	if len(card.Terms) != 2 || card.Terms[1] != "Mitochondrion" {
		t.Errorf("terms lost: %v", card.Terms)
	}
	if card.Mastery != 1 || !card.Star {
		t.Errorf("study state lost: mastery=%d star=%v", card.Mastery, card.Star)
	}
	if len(card.Fields) != 1 || card.Fields[0].Value != "Yes" {
		t.Errorf("custom fields lost: %v", card.Fields)
	}
}

func TestSaveSetReplacesCards(t *testing.T) {
	db := openTestDB(t)
	set := sampleSet()
	if err := db.SaveSet(set, 0); err != nil {
		t.Fatalf("SaveSet: %v", err)
	}

	set.Cards = set.Cards[:1]
	set.Cards[0].Mastery = 2
	if err := db.SaveSet(set, 0); err != nil {
		t.Fatalf("SaveSet again: %v", err)
	}

	sets, err := db.LoadSets()
	if err != nil {
		t.Fatalf("LoadSets: %v", err)
	}
	if len(sets[0].Cards) != 1 {
		t.Errorf("expected dropped card to disappear, got %d cards", len(sets[0].Cards))
	}
	if sets[0].Cards[0].Mastery != 2 {
		t.Error("updated mastery not persisted")
	}
}

func TestDeleteSet(t *testing.T) {
	db := openTestDB(t)
	if err := db.SaveSet(sampleSet(), 0); err != nil {
		t.Fatalf("SaveSet: %v", err)
	}
	if err := db.DeleteSet("set1"); err != nil {
		t.Fatalf("DeleteSet: %v", err)
	}
	sets, err := db.LoadSets()
	if err != nil {
		t.Fatalf("LoadSets: %v", err)
	}
	if len(sets) != 0 {
		t.Errorf("expected no sets, got %d", len(sets))
	}
}

func TestSources(t *testing.T) {
	db := openTestDB(t)

	id, err := db.InsertSource("/decks/history", "local")
	if err != nil {
		t.Fatalf("InsertSource: %v", err)
	}

	found, err := db.FindSourceByPath("/decks/history")
	if err != nil {
		t.Fatalf("FindSourceByPath: %v", err)
	}
	if found == nil || found.ID != id || found.Type != "local" {
		t.Fatalf("unexpected source: %+v", found)
	}

	missing, err := db.FindSourceByPath("/nowhere")
	if err != nil {
		t.Fatalf("FindSourceByPath: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for an unknown path")
	}

	set := sampleSet()
	if err := db.SaveSet(set, id); err != nil {
		t.Fatalf("SaveSet: %v", err)
	}
	ids, err := db.SetIDsBySource(id)
	if err != nil {
		t.Fatalf("SetIDsBySource: %v", err)
	}
	if len(ids) != 1 || ids[0] != "set1" {
		t.Errorf("SetIDsBySource = %v", ids)
	}

	// A later save without attribution keeps the link.
	if err := db.SaveSet(set, 0); err != nil {
		t.Fatalf("SaveSet: %v", err)
	}
	ids, err = db.SetIDsBySource(id)
	if err != nil {
		t.Fatalf("SetIDsBySource: %v", err)
	}
	if len(ids) != 1 {
		t.Error("source attribution lost on re-save")
	}

	if err := db.UpdateSourceLastScanned(id); err != nil {
		t.Fatalf("UpdateSourceLastScanned: %v", err)
	}
	if err := db.DeleteSource(id); err != nil {
		t.Fatalf("DeleteSource: %v", err)
	}
	sources, err := db.GetAllSources()
	if err != nil {
		t.Fatalf("GetAllSources: %v", err)
	}
	if len(sources) != 0 {
		t.Errorf("expected no sources, got %d", len(sources))
	}
}

func TestLifetimeCorrect(t *testing.T) {
	db := openTestDB(t)

	n, err := db.LifetimeCorrect()
	if err != nil {
		t.Fatalf("LifetimeCorrect: %v", err)
	}
	if n != 0 {
		t.Errorf("fresh database should report 0, got %d", n)
	}

	for range 3 {
		if err := db.IncrementLifetimeCorrect(); err != nil {
			t.Fatalf("IncrementLifetimeCorrect: %v", err)
		}
	}
	n, err = db.LifetimeCorrect()
	if err != nil {
		t.Fatalf("LifetimeCorrect: %v", err)
	}
	if n != 3 {
		t.Errorf("counter = %d, want 3", n)
	}
}

func TestWriterFlushesOnClose(t *testing.T) {
	db := openTestDB(t)
	w := NewWriter(db, slog.Default())

	set := sampleSet()
	w.Save(set)

	// Mutating the live set after Save must not affect the queued write.
	set.Cards[0].Mastery = 0
	w.Close()

	sets, err := db.LoadSets()
	if err != nil {
		t.Fatalf("LoadSets: %v", err)
	}
	if len(sets) != 1 {
		t.Fatalf("expected the queued save to be flushed, got %d sets", len(sets))
	}
	if sets[0].Cards[0].Mastery != 1 {
		t.Error("writer should persist the snapshot taken at enqueue time")
	}
}
