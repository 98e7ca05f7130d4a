package sync

import (
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/conorfennell/studydeck/internal/domain"
	"github.com/conorfennell/studydeck/internal/gitsource"
	"github.com/conorfennell/studydeck/internal/library"
	"github.com/conorfennell/studydeck/internal/parser"
	"github.com/conorfennell/studydeck/internal/storage"
)

// deckExtension marks the plain-text deck files picked up during a scan.
const deckExtension = ".cards"

// RunSync iterates over all sources and reconciles them.
func RunSync(db *storage.DB, lib *library.Library, reposDir string) {
	slog.Info("Starting sync process for all sources...")
	sources, err := db.GetAllSources()
	if err != nil {
		slog.Error("Failed to get sources", "error", err)
		return
	}

	if len(sources) == 0 {
		slog.Info("No sources configured. Add one with --add-source <path/or/url.git>")
		return
	}

	if err := os.MkdirAll(reposDir, os.ModePerm); err != nil {
		slog.Error("Failed to create repos directory", "error", err)
		return
	}

	for _, source := range sources {
		slog.Info("Syncing source", "id", source.ID, "type", source.Type, "path", source.Path)

		sourceToReconcile := source

		if source.Type == "local" {
			reconcileLocalSource(db, lib, &sourceToReconcile)
		} else if source.Type == "git" {
			localRepoPath, err := gitURLToLocalPath(reposDir, source.Path)
			if err != nil {
				slog.Error("Error determining local path for git repo", "url", source.Path, "error", err)
				continue
			}

			if err := gitsource.Sync(source.Path, localRepoPath); err != nil {
				slog.Error("Error syncing git repo", "url", source.Path, "error", err)
				continue
			}

			sourceToReconcile.Path = localRepoPath
			reconcileLocalSource(db, lib, &sourceToReconcile)
		}
	}
	slog.Info("Sync process complete.")
}

// reconcileLocalSource turns every deck file under the source path into
// a set. Existing sets keep their id and per-card progress; sets whose
// file disappeared are removed.
func reconcileLocalSource(db *storage.DB, lib *library.Library, source *storage.Source) {
	knownIDs, err := db.SetIDsBySource(source.ID)
	if err != nil {
		slog.Error("Error listing sets for source", "source_id", source.ID, "error", err)
		return
	}
	byName := make(map[string]*domain.CardSet)
	for _, id := range knownIDs {
		if set := lib.Find(id); set != nil {
			byName[set.Name] = set
		}
	}

	var parseErrors []error
	foundSetIDs := make(map[string]bool)

	walkErr := filepath.WalkDir(source.Path, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(strings.ToLower(d.Name()), deckExtension) {
			return nil
		}

		cards, parseErr := parser.ParseFile(path)
		if parseErr != nil {
			parseErrors = append(parseErrors, fmt.Errorf("parsing %s: %w", path, parseErr))
			return nil
		}

		name := strings.TrimSuffix(d.Name(), filepath.Ext(d.Name()))
		set := byName[name]
		if set == nil {
			slog.Info("New deck found, importing", "name", name)
			set = &domain.CardSet{ID: uuid.NewString(), Name: name}
			lib.Add(set)
		}
		refreshSet(set, cards)
		foundSetIDs[set.ID] = true

		if saveErr := db.SaveSet(set, source.ID); saveErr != nil {
			parseErrors = append(parseErrors, fmt.Errorf("saving %s: %w", name, saveErr))
		}
		return nil
	})

	if walkErr != nil {
		slog.Error("Error walking directory", "path", source.Path, "error", walkErr)
		return
	}

	var orphanedSets int
	for _, id := range knownIDs {
		if !foundSetIDs[id] {
			slog.Info("Orphaned deck, deleting", "set_id", id)
			orphanedSets++
			if err := lib.Delete(id); err != nil {
				slog.Warn("Failed to drop orphaned set from library", "set_id", id, "error", err)
			}
			if err := db.DeleteSet(id); err != nil {
				slog.Warn("Failed to delete orphaned set", "set_id", id, "error", err)
			}
		}
	}

	if err := db.UpdateSourceLastScanned(source.ID); err != nil {
		slog.Warn("Failed to update last scanned for source", "source_id", source.ID, "error", err)
	}

	slog.Info("reconciliation complete",
		"path", source.Path,
		"decks", len(foundSetIDs),
		"orphaned_deleted", orphanedSets,
		"errors", len(parseErrors),
	)
}

// refreshSet replaces a set's cards with a fresh parse while carrying
// over mastery and stars for cards whose content id survived.
func refreshSet(set *domain.CardSet, cards []*domain.Card) {
	previous := make(map[string]*domain.Card, len(set.Cards))
	for _, card := range set.Cards {
		previous[card.ID] = card
	}
	for _, card := range cards {
		if old := previous[card.ID]; old != nil {
			card.Mastery = old.Mastery
			card.Star = old.Star
		}
	}
	set.Cards = cards
	set.CustomFieldNames = parser.FieldNames(cards)
}

func gitURLToLocalPath(baseDir, repoURL string) (string, error) {
	parsedURL, err := url.Parse(repoURL)
	if err != nil || (parsedURL.Scheme != "https" && parsedURL.Scheme != "http") {
		if strings.Contains(repoURL, "@") {
			parts := strings.Split(repoURL, ":")
			if len(parts) == 2 {
				hostAndUser := strings.Split(parts[0], "@")
				if len(hostAndUser) == 2 {
					host := hostAndUser[1]
					repoPath := strings.TrimSuffix(parts[1], ".git")
					return filepath.Join(baseDir, host, repoPath), nil
				}
			}
		}
		return "", fmt.Errorf("could not parse git URL: %s", repoURL)
	}

	sanitizedPath := strings.TrimSuffix(parsedURL.Path, ".git")
	return filepath.Join(baseDir, parsedURL.Host, sanitizedPath), nil
}
