// Package sync reconciles deck sources with the cards table. Cards
// found in a source but not in the database are inserted with a fresh
// scheduling row; cards in the database whose content disappeared from
// the source are deactivated, never deleted, so their scheduling state
// and log history survive a re-add.
package sync

import (
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/conorfennell/recall/internal/deck"
	"github.com/conorfennell/recall/internal/gitsource"
	"github.com/conorfennell/recall/internal/storage"
)

// SourceType returns "git" for URLs that look like git remotes and
// "local" otherwise.
func SourceType(path string) string {
	if strings.HasSuffix(path, ".git") || strings.HasPrefix(path, "git@") ||
		strings.HasPrefix(path, "https://") || strings.HasPrefix(path, "http://") {
		return "git"
	}
	return "local"
}

// Syncer reconciles deck sources into the database.
type Syncer struct {
	db       *storage.DB
	reposDir string
	loc      *time.Location
}

// New creates a Syncer. reposDir is where git sources are checked out.
func New(db *storage.DB, reposDir string, loc *time.Location) *Syncer {
	return &Syncer{db: db, reposDir: reposDir, loc: loc}
}

// RunAll reconciles every source of every user. Individual source
// failures are logged and skipped; the rest of the run continues.
func (s *Syncer) RunAll() {
	slog.Info("starting sync for all sources")
	sources, err := s.db.GetAllSources()
	if err != nil {
		slog.Error("failed to get sources", "error", err)
		return
	}
	if len(sources) == 0 {
		slog.Info("no sources configured")
		return
	}
	for _, source := range sources {
		if err := s.SyncSource(source); err != nil {
			slog.Error("source sync failed", "id", source.ID, "path", source.Path, "error", err)
		}
	}
	slog.Info("sync complete", "sources", len(sources))
}

// RunUser reconciles one user's sources and returns how many cards
// were added across them.
func (s *Syncer) RunUser(userID int64) (int, error) {
	sources, err := s.db.GetSourcesByUser(userID)
	if err != nil {
		return 0, err
	}
	added := 0
	for _, source := range sources {
		n, err := s.syncSource(source)
		if err != nil {
			return added, err
		}
		added += n
	}
	return added, nil
}

// SyncSource reconciles a single source.
func (s *Syncer) SyncSource(source storage.Source) error {
	_, err := s.syncSource(source)
	return err
}

func (s *Syncer) syncSource(source storage.Source) (int, error) {
	slog.Info("syncing source", "id", source.ID, "type", source.Type, "path", source.Path)

	localPath := source.Path
	if source.Type == "git" {
		var err error
		localPath, err = gitURLToLocalPath(s.reposDir, source.Path)
		if err != nil {
			return 0, fmt.Errorf("determining local path for %s: %w", source.Path, err)
		}
		if err := gitsource.Sync(source.Path, localPath); err != nil {
			return 0, fmt.Errorf("syncing git repo %s: %w", source.Path, err)
		}
	}

	return s.reconcile(source, localPath)
}

func (s *Syncer) reconcile(source storage.Source, localPath string) (int, error) {
	now := time.Now().In(s.loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)

	foundHashes := make(map[string]bool)
	added := 0
	var parseErrors []error

	walkErr := filepath.WalkDir(localPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(strings.ToLower(d.Name()), ".md") {
			return nil
		}

		fileCards, parseErr := deck.ParseFile(path)
		if parseErr != nil {
			parseErrors = append(parseErrors, fmt.Errorf("parsing %s: %w", path, parseErr))
		}
		for _, card := range fileCards {
			card.UserID = source.UserID
			card.Hash = deck.Hash(card)
			foundHashes[card.Hash] = true

			existing, findErr := s.db.FindCardByHash(source.UserID, card.Hash)
			if findErr != nil {
				parseErrors = append(parseErrors, fmt.Errorf("db check for %s: %w", card.Hash, findErr))
				continue
			}
			switch {
			case existing == nil:
				slog.Info("new card found, inserting", "hash", card.Hash)
				if _, insertErr := s.db.InsertCard(card, source.ID, today); insertErr != nil {
					parseErrors = append(parseErrors, fmt.Errorf("db insert for %s: %w", card.Hash, insertErr))
				} else {
					added++
				}
			case !existing.Active:
				// Re-added card: reactivate with its old scheduling state.
				slog.Info("reactivating card", "hash", card.Hash)
				if actErr := s.db.SetCardActive(existing.ID, true); actErr != nil {
					parseErrors = append(parseErrors, fmt.Errorf("reactivating %s: %w", card.Hash, actErr))
				}
			}
		}
		return nil
	})
	if walkErr != nil {
		return added, fmt.Errorf("walking %s: %w", localPath, walkErr)
	}

	dbCards, err := s.db.GetCardsBySourceID(source.ID)
	if err != nil {
		return added, fmt.Errorf("getting cards for source %d: %w", source.ID, err)
	}

	orphaned := 0
	for _, dbCard := range dbCards {
		if dbCard.Active && !foundHashes[dbCard.Hash] {
			slog.Info("orphaned card, deactivating", "hash", dbCard.Hash)
			orphaned++
			if err := s.db.SetCardActive(dbCard.ID, false); err != nil {
				slog.Warn("failed to deactivate orphaned card", "hash", dbCard.Hash, "error", err)
			}
		}
	}

	if err := s.db.UpdateSourceLastScanned(source.ID); err != nil {
		slog.Warn("failed to update last scanned for source", "source_id", source.ID, "error", err)
	}

	slog.Info("reconciliation complete",
		"path", localPath,
		"added", added,
		"orphaned_deactivated", orphaned,
		"errors", len(parseErrors),
	)
	return added, nil
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
