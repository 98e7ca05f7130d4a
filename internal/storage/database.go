package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/conorfennell/studydeck/internal/domain"
	_ "modernc.org/sqlite" // Registers the sqlite driver
)

// statLifetimeCorrect is the stats key for the lifetime correct-answer
// counter fed by the session engine's OnCorrect signal.
const statLifetimeCorrect = "lifetime_correct"

// DB represents a wrapper around the SQL database connection.
type DB struct {
	conn *sql.DB
}

// Open creates a new database connection and ensures the schema is up to date.
func Open(dsn string) (*DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Execute the schema to create tables if they don't exist.
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &DB{conn: db}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// SaveSet upserts a set and replaces its cards in one transaction.
// sourceID links sets produced by deck sync to their source; pass 0 for
// sets created in the app.
func (db *DB) SaveSet(set *domain.CardSet, sourceID int64) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction for set %s: %w", set.ID, err)
	}
	defer tx.Rollback()

	fieldNames, err := json.Marshal(set.CustomFieldNames)
	if err != nil {
		return fmt.Errorf("failed to encode field names for set %s: %w", set.ID, err)
	}

	var src sql.NullInt64
	if sourceID != 0 {
		src = sql.NullInt64{Int64: sourceID, Valid: true}
	}

	_, err = tx.Exec(`
		INSERT INTO card_sets (id, name, last_played, elapsed_ms, top_streak, is_multistudy, custom_field_names, source_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			last_played = excluded.last_played,
			elapsed_ms = excluded.elapsed_ms,
			top_streak = excluded.top_streak,
			is_multistudy = excluded.is_multistudy,
			custom_field_names = excluded.custom_field_names,
			source_id = COALESCE(excluded.source_id, source_id)
	`,
		set.ID,
		set.Name,
		set.LastPlayed,
		set.ElapsedTime.Milliseconds(),
		set.TopStreak,
		set.Multistudy,
		string(fieldNames),
		src,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert set %s: %w", set.ID, err)
	}

	if _, err := tx.Exec(`DELETE FROM cards WHERE set_id = ?`, set.ID); err != nil {
		return fmt.Errorf("failed to clear cards for set %s: %w", set.ID, err)
	}

	for i, card := range set.Cards {
		terms, err := json.Marshal(card.Terms)
		if err != nil {
			return fmt.Errorf("failed to encode terms for card %s: %w", card.ID, err)
		}
		fields, err := json.Marshal(card.Fields)
		if err != nil {
			return fmt.Errorf("failed to encode fields for card %s: %w", card.ID, err)
		}
		tags, err := json.Marshal(card.Tags)
		if err != nil {
			return fmt.Errorf("failed to encode tags for card %s: %w", card.ID, err)
		}

		_, err = tx.Exec(`
			INSERT INTO cards (set_id, id, position, terms, content, year, image, fields, tags, original_set_name, mastery, star)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			set.ID,
			card.ID,
			i,
			string(terms),
			card.Content,
			card.Year,
			card.Image,
			string(fields),
			string(tags),
			card.OriginalSetName,
			card.Mastery,
			card.Star,
		)
		if err != nil {
			return fmt.Errorf("failed to insert card %s: %w", card.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit set %s: %w", set.ID, err)
	}
	return nil
}

// LoadSets retrieves every set with its cards in stored display order.
func (db *DB) LoadSets() ([]*domain.CardSet, error) {
	rows, err := db.conn.Query(`
		SELECT id, name, last_played, elapsed_ms, top_streak, is_multistudy, custom_field_names
		FROM card_sets ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sets: %w", err)
	}
	defer rows.Close()

	var sets []*domain.CardSet
	for rows.Next() {
		var (
			set        domain.CardSet
			lastPlayed sql.NullTime
			elapsedMS  int64
			fieldNames sql.NullString
		)
		if err := rows.Scan(&set.ID, &set.Name, &lastPlayed, &elapsedMS, &set.TopStreak, &set.Multistudy, &fieldNames); err != nil {
			return nil, fmt.Errorf("failed to scan set row: %w", err)
		}
		if lastPlayed.Valid {
			set.LastPlayed = lastPlayed.Time
		}
		set.ElapsedTime = time.Duration(elapsedMS) * time.Millisecond
		if fieldNames.Valid && fieldNames.String != "" {
			if err := json.Unmarshal([]byte(fieldNames.String), &set.CustomFieldNames); err != nil {
				return nil, fmt.Errorf("failed to decode field names for set %s: %w", set.ID, err)
			}
		}
		sets = append(sets, &set)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed reading set rows: %w", err)
	}

	for _, set := range sets {
		cards, err := db.loadCards(set.ID)
		if err != nil {
			return nil, err
		}
		set.Cards = cards
	}
	return sets, nil
}

func (db *DB) loadCards(setID string) ([]*domain.Card, error) {
	rows, err := db.conn.Query(`
		SELECT id, terms, content, year, image, fields, tags, original_set_name, mastery, star
		FROM cards WHERE set_id = ? ORDER BY position
	`, setID)
	if err != nil {
		return nil, fmt.Errorf("failed to query cards for set %s: %w", setID, err)
	}
	defer rows.Close()

	var cards []*domain.Card
	for rows.Next() {
		var (
			card   domain.Card
			terms  string
			fields sql.NullString
			tags   sql.NullString
		)
		if err := rows.Scan(&card.ID, &terms, &card.Content, &card.Year, &card.Image, &fields, &tags, &card.OriginalSetName, &card.Mastery, &card.Star); err != nil {
			return nil, fmt.Errorf("failed to scan card row for set %s: %w", setID, err)
		}
		if err := json.Unmarshal([]byte(terms), &card.Terms); err != nil {
			return nil, fmt.Errorf("failed to decode terms for card %s: %w", card.ID, err)
		}
		if fields.Valid && fields.String != "" && fields.String != "null" {
			if err := json.Unmarshal([]byte(fields.String), &card.Fields); err != nil {
				return nil, fmt.Errorf("failed to decode fields for card %s: %w", card.ID, err)
			}
		}
		if tags.Valid && tags.String != "" && tags.String != "null" {
			if err := json.Unmarshal([]byte(tags.String), &card.Tags); err != nil {
				return nil, fmt.Errorf("failed to decode tags for card %s: %w", card.ID, err)
			}
		}
		cards = append(cards, &card)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed reading card rows for set %s: %w", setID, err)
	}
	return cards, nil
}

// DeleteSet removes a set and its cards.
func (db *DB) DeleteSet(id string) error {
	if _, err := db.conn.Exec(`DELETE FROM cards WHERE set_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete cards for set %s: %w", id, err)
	}
	if _, err := db.conn.Exec(`DELETE FROM card_sets WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete set %s: %w", id, err)
	}
	return nil
}

// SetIDsBySource returns the ids of the sets imported from a source.
func (db *DB) SetIDsBySource(sourceID int64) ([]string, error) {
	rows, err := db.conn.Query(`SELECT id FROM card_sets WHERE source_id = ?`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sets for source %d: %w", sourceID, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan set id for source %d: %w", sourceID, err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Source represents a card source, either a local path or a Git URL.
type Source struct {
	ID          int64
	Path        string
	Type        string
	LastScanned sql.NullTime
}

// InsertSource inserts a new source into the database and returns its ID.
func (db *DB) InsertSource(path, sourceType string) (int64, error) {
	res, err := db.conn.Exec(`
		INSERT INTO sources (path, type)
		VALUES (?, ?)
	`, path, sourceType)
	if err != nil {
		return 0, fmt.Errorf("failed to insert source %s: %w", path, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for source %s: %w", path, err)
	}
	return id, nil
}

// FindSourceByPath retrieves a source from the database by its path.
func (db *DB) FindSourceByPath(path string) (*Source, error) {
	var s Source
	row := db.conn.QueryRow(`
		SELECT id, path, type, last_scanned
		FROM sources WHERE path = ?
	`, path)

	err := row.Scan(&s.ID, &s.Path, &s.Type, &s.LastScanned)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Source not found
		}
		return nil, fmt.Errorf("failed to find source by path %s: %w", path, err)
	}
	return &s, nil
}

// GetAllSources retrieves all stored sources from the database.
func (db *DB) GetAllSources() ([]Source, error) {
	rows, err := db.conn.Query(`
		SELECT id, path, type, last_scanned
		FROM sources
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get all sources: %w", err)
	}
	defer rows.Close()

	var sources []Source
	for rows.Next() {
		var s Source
		if err := rows.Scan(&s.ID, &s.Path, &s.Type, &s.LastScanned); err != nil {
			return nil, fmt.Errorf("failed to scan source row: %w", err)
		}
		sources = append(sources, s)
	}
	return sources, rows.Err()
}

// UpdateSourceLastScanned updates the last_scanned timestamp for a source.
func (db *DB) UpdateSourceLastScanned(sourceID int64) error {
	_, err := db.conn.Exec(`
		UPDATE sources
		SET last_scanned = ?
		WHERE id = ?
	`, time.Now(), sourceID)
	if err != nil {
		return fmt.Errorf("failed to update last scanned for source ID %d: %w", sourceID, err)
	}
	return nil
}

// DeleteSource removes a source record.
func (db *DB) DeleteSource(id int64) error {
	if _, err := db.conn.Exec(`DELETE FROM sources WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete source %d: %w", id, err)
	}
	return nil
}

// IncrementLifetimeCorrect bumps the lifetime correct-answer counter.
func (db *DB) IncrementLifetimeCorrect() error {
	_, err := db.conn.Exec(`
		INSERT INTO stats (key, value) VALUES (?, 1)
		ON CONFLICT(key) DO UPDATE SET value = value + 1
	`, statLifetimeCorrect)
	if err != nil {
		return fmt.Errorf("failed to increment lifetime correct: %w", err)
	}
	return nil
}

// LifetimeCorrect reads the lifetime correct-answer counter.
func (db *DB) LifetimeCorrect() (int64, error) {
	var value int64
	err := db.conn.QueryRow(`SELECT value FROM stats WHERE key = ?`, statLifetimeCorrect).Scan(&value)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read lifetime correct: %w", err)
	}
	return value, nil
}
