package storage

const schema = `
-- The 'card_sets' table stores each set's durable study state. The
-- active-session flag is runtime-only and deliberately not persisted.
CREATE TABLE IF NOT EXISTS card_sets (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    last_played DATETIME,
    elapsed_ms INTEGER NOT NULL DEFAULT 0,
    top_streak INTEGER NOT NULL DEFAULT 0,
    is_multistudy INTEGER NOT NULL DEFAULT 0,
    custom_field_names TEXT, -- JSON array of declared field names
    source_id INTEGER,

    FOREIGN KEY(source_id) REFERENCES sources(id)
);

-- The 'cards' table stores the cards of every set. Position preserves
-- display order; list-valued fields are stored as JSON.
CREATE TABLE IF NOT EXISTS cards (
    set_id TEXT NOT NULL,
    id TEXT NOT NULL,
    position INTEGER NOT NULL,
    terms TEXT NOT NULL,
    content TEXT NOT NULL DEFAULT '',
    year TEXT NOT NULL DEFAULT '',
    image TEXT NOT NULL DEFAULT '',
    fields TEXT,
    tags TEXT,
    original_set_name TEXT NOT NULL DEFAULT '',
    mastery INTEGER NOT NULL DEFAULT 0,
    star INTEGER NOT NULL DEFAULT 0,

    PRIMARY KEY(set_id, id),
    FOREIGN KEY(set_id) REFERENCES card_sets(id)
);

-- The 'sources' table tracks where imported decks come from, either a
-- local directory or a git repository.
CREATE TABLE IF NOT EXISTS sources (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    path TEXT NOT NULL UNIQUE,
    type TEXT NOT NULL DEFAULT 'local',
    last_scanned DATETIME
);

-- The 'stats' table holds lifetime counters, e.g. total correct answers.
CREATE TABLE IF NOT EXISTS stats (
    key TEXT PRIMARY KEY,
    value INTEGER NOT NULL DEFAULT 0
);
`
