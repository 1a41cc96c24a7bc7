package store

// Schema contains the complete DDL for the run store.
const Schema = `
-- Runs: one row per pipeline run, status updated at every transition.
-- report_json is written once, on completion (full or degraded).
CREATE TABLE IF NOT EXISTS runs (
    id          TEXT PRIMARY KEY,
    document_id TEXT NOT NULL,
    filename    TEXT NOT NULL DEFAULT '',
    format      TEXT NOT NULL DEFAULT '',
    status      TEXT NOT NULL,
    stage       TEXT NOT NULL DEFAULT '',
    report_json TEXT,
    error       TEXT NOT NULL DEFAULT '',
    created_at  INTEGER NOT NULL,
    updated_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_document ON runs(document_id);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at DESC);
`
