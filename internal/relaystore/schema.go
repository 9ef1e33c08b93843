package relaystore

// Schema contains the complete DDL for the relay presence tables.
const Schema = `
-- Presence entries: one row per page URL, upserted on each signal
CREATE TABLE IF NOT EXISTS presence (
    id              TEXT NOT NULL,
    url             TEXT PRIMARY KEY,
    name            TEXT NOT NULL,
    description     TEXT NOT NULL DEFAULT '',
    image           TEXT NOT NULL DEFAULT '',
    active          INTEGER NOT NULL DEFAULT 1,
    signal_count    INTEGER NOT NULL DEFAULT 1,
    first_seen      INTEGER NOT NULL,
    last_seen       INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_presence_active ON presence(active, last_seen DESC);

-- Relay liveness probes, one row per beat
CREATE TABLE IF NOT EXISTS heartbeats (
    hostname        TEXT NOT NULL,
    pid             INTEGER NOT NULL,
    timestamp       INTEGER NOT NULL,
    goroutines      INTEGER NOT NULL,
    memory_alloc_mb REAL NOT NULL,
    gc_count        INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_heartbeats_time ON heartbeats(timestamp DESC);
`
