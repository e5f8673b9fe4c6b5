package store

// Schema contains the complete DDL for the broker tables.
const Schema = `
-- Broker settings: a single row, updated in place. The excluded_sites
-- column holds a JSON array of hostnames.
CREATE TABLE IF NOT EXISTS settings (
    id             INTEGER PRIMARY KEY CHECK (id = 1),
    server_url     TEXT NOT NULL DEFAULT '',
    username       TEXT NOT NULL DEFAULT '',
    token          TEXT NOT NULL DEFAULT '',
    auto_save      INTEGER NOT NULL DEFAULT 1,
    excluded_sites TEXT NOT NULL DEFAULT '[]',
    updated_at     INTEGER NOT NULL
);

-- Capture journal: one row per save or update decision, for the status
-- surface. No passwords, ever.
CREATE TABLE IF NOT EXISTS capture_log (
    id         TEXT PRIMARY KEY,
    page_url   TEXT NOT NULL,
    platform   TEXT NOT NULL,
    identity   TEXT NOT NULL,
    outcome    TEXT NOT NULL,
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_capture_platform ON capture_log(platform);
CREATE INDEX IF NOT EXISTS idx_capture_created ON capture_log(created_at DESC);
`
