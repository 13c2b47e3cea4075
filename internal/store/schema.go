package store

// schema contains the SQL statements to create the codegraph database schema.
const schema = `
-- Graph nodes with their serialized record text
CREATE TABLE IF NOT EXISTS nodes (
    id   INTEGER PRIMARY KEY,
    type TEXT NOT NULL,
    name TEXT NOT NULL,
    text TEXT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_nodes_identity ON nodes(type, name);
CREATE INDEX IF NOT EXISTS idx_nodes_name ON nodes(name);

-- Graph edges; seq is the position in the build's edge list
CREATE TABLE IF NOT EXISTS edges (
    record_id TEXT PRIMARY KEY,
    seq       INTEGER NOT NULL,
    source_id INTEGER NOT NULL,
    target_id INTEGER NOT NULL,
    relation  TEXT NOT NULL,
    text      TEXT NOT NULL,
    FOREIGN KEY (source_id) REFERENCES nodes(id),
    FOREIGN KEY (target_id) REFERENCES nodes(id)
);

CREATE INDEX IF NOT EXISTS idx_edges_seq ON edges(seq);
CREATE INDEX IF NOT EXISTS idx_edges_source ON edges(source_id);
CREATE INDEX IF NOT EXISTS idx_edges_target ON edges(target_id);
CREATE INDEX IF NOT EXISTS idx_edges_relation ON edges(relation);

-- Input files and their tree fingerprints
CREATE TABLE IF NOT EXISTS files (
    path        TEXT PRIMARY KEY,
    fingerprint TEXT NOT NULL,
    tree_nodes  INTEGER NOT NULL
);

-- Metadata table for run info
CREATE TABLE IF NOT EXISTS metadata (
    key   TEXT PRIMARY KEY,
    value TEXT
);
`
