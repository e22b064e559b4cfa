package store

const schema = `
CREATE TABLE IF NOT EXISTS items (
    query        TEXT NOT NULL,
    id           TEXT NOT NULL,
    source       TEXT NOT NULL,
    title        TEXT NOT NULL,
    url          TEXT NOT NULL DEFAULT '',
    author       TEXT NOT NULL DEFAULT '',
    thumbnail    TEXT NOT NULL DEFAULT '',
    snippet      TEXT NOT NULL DEFAULT '',
    published_at DATETIME,
    upvotes      INTEGER NOT NULL DEFAULT 0,
    views        INTEGER NOT NULL DEFAULT 0,
    score        INTEGER NOT NULL DEFAULT 0,
    collected_at DATETIME NOT NULL,
    PRIMARY KEY (query, id)
);

CREATE INDEX IF NOT EXISTS idx_items_source ON items(source);
CREATE INDEX IF NOT EXISTS idx_items_collected_at ON items(collected_at);

CREATE TABLE IF NOT EXISTS runs (
    id              TEXT PRIMARY KEY,
    query           TEXT NOT NULL,
    kind            TEXT NOT NULL,
    best_pick_score INTEGER NOT NULL DEFAULT 0,
    confidence      INTEGER NOT NULL DEFAULT 0,
    top_pick        TEXT NOT NULL DEFAULT '',
    payload         TEXT NOT NULL DEFAULT '{}',
    created_at      DATETIME NOT NULL,
    fallback        BOOLEAN NOT NULL DEFAULT 0,
    alerted         BOOLEAN NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_runs_query ON runs(query, kind, created_at);
`
