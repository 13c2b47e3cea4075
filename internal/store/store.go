package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// DirName is the store directory created under the project root.
const DirName = ".codegraph"

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("not found")

// Store handles persistence of built graphs to SQLite.
type Store struct {
	db     *sql.DB
	dbPath string
}

// Open creates or opens a codegraph database at .codegraph/graph.db
// relative to the given project directory.
func Open(projectDir string) (*Store, error) {
	return OpenDir(filepath.Join(projectDir, DirName))
}

// OpenDir creates or opens graph.db inside dir.
func OpenDir(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}

	dbPath := filepath.Join(dir, "graph.db")
	// DSN pragmas apply to every pooled connection.
	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -64000", // 64MB cache
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Store{db: db, dbPath: dbPath}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DBPath returns the path to the database file.
func (s *Store) DBPath() string {
	return s.dbPath
}

// Clear removes all data from the database. Every build is a full rebuild.
func (s *Store) Clear() error {
	tables := []string{"edges", "nodes", "files", "metadata"}
	for _, table := range tables {
		if _, err := s.db.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("clearing table %s: %w", table, err)
		}
	}
	return nil
}

// SetMetadata stores a key-value pair in the metadata table.
func (s *Store) SetMetadata(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO metadata (key, value)
		VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

// GetMetadata retrieves a value from the metadata table.
func (s *Store) GetMetadata(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("metadata %q: %w", key, ErrNotFound)
	}
	return value, err
}

// Stats holds statistics about the stored graph.
type Stats struct {
	NodeCount       int            `json:"node_count"`
	EdgeCount       int            `json:"edge_count"`
	FileCount       int            `json:"file_count"`
	NodesByType     map[string]int `json:"nodes_by_type"`
	EdgesByRelation map[string]int `json:"edges_by_relation"`
	RunID           string         `json:"run_id,omitempty"`
	InputHash       string         `json:"input_hash,omitempty"`
	IndexedAt       time.Time      `json:"indexed_at"`
}

// GetStats returns statistics about the stored graph.
func (s *Store) GetStats() (*Stats, error) {
	stats := &Stats{}

	rows := []struct {
		table string
		dest  *int
	}{
		{"nodes", &stats.NodeCount},
		{"edges", &stats.EdgeCount},
		{"files", &stats.FileCount},
	}

	for _, r := range rows {
		err := s.db.QueryRow("SELECT COUNT(*) FROM " + r.table).Scan(r.dest)
		if err != nil {
			return nil, fmt.Errorf("counting %s: %w", r.table, err)
		}
	}

	var err error
	stats.NodesByType, err = s.countBy("SELECT type, COUNT(*) FROM nodes GROUP BY type")
	if err != nil {
		return nil, fmt.Errorf("counting node types: %w", err)
	}
	stats.EdgesByRelation, err = s.countBy("SELECT relation, COUNT(*) FROM edges GROUP BY relation")
	if err != nil {
		return nil, fmt.Errorf("counting edge relations: %w", err)
	}

	stats.RunID, _ = s.GetMetadata(MetaRunID)
	stats.InputHash, _ = s.GetMetadata(MetaInputHash)
	if ts, err := s.GetMetadata(MetaIndexedAt); err == nil {
		stats.IndexedAt, _ = time.Parse(time.RFC3339, ts)
	}

	return stats, nil
}

func (s *Store) countBy(query string) (map[string]int, error) {
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return nil, err
		}
		counts[key] = n
	}
	return counts, rows.Err()
}

// GetNode returns the node with the given id.
func (s *Store) GetNode(id int64) (*Node, error) {
	n := &Node{}
	err := s.db.QueryRow("SELECT id, type, name, text FROM nodes WHERE id = ?", id).
		Scan(&n.ID, &n.Type, &n.Name, &n.Text)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("node %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return n, nil
}

// ListNodes returns nodes ordered by id.
func (s *Store) ListNodes(filter NodeFilter) ([]Node, error) {
	query := "SELECT id, type, name, text FROM nodes"
	var args []any
	if filter.Type != "" {
		query += " WHERE type = ?"
		args = append(args, filter.Type)
	}
	query += " ORDER BY id"
	query, args = paginate(query, args, filter.Limit, filter.Offset)
	return s.queryNodes(query, args...)
}

// ListEdges returns edges in build order.
func (s *Store) ListEdges(limit, offset int) ([]Edge, error) {
	query, args := paginate(edgeSelect+" ORDER BY seq", nil, limit, offset)
	return s.queryEdges(query, args...)
}

// GetOutgoingEdges returns edges whose source is id, in build order.
func (s *Store) GetOutgoingEdges(id int64) ([]Edge, error) {
	return s.queryEdges(edgeSelect+" WHERE source_id = ? ORDER BY seq", id)
}

// GetIncomingEdges returns edges whose target is id, in build order.
func (s *Store) GetIncomingEdges(id int64) ([]Edge, error) {
	return s.queryEdges(edgeSelect+" WHERE target_id = ? ORDER BY seq", id)
}

// SearchNodes finds nodes whose name or record text contains query.
// Exact name matches sort first.
func (s *Store) SearchNodes(query string, limit int) ([]Node, error) {
	if limit <= 0 {
		limit = 50
	}
	pattern := "%" + query + "%"
	return s.queryNodes(`
		SELECT id, type, name, text FROM nodes
		WHERE name LIKE ? OR text LIKE ?
		ORDER BY (name = ?) DESC, id
		LIMIT ?
	`, pattern, pattern, query, limit)
}

// ListFiles returns the recorded input files ordered by path.
func (s *Store) ListFiles() ([]File, error) {
	rows, err := s.db.Query("SELECT path, fingerprint, tree_nodes FROM files ORDER BY path")
	if err != nil {
		return nil, fmt.Errorf("querying files: %w", err)
	}
	defer rows.Close()

	var files []File
	for rows.Next() {
		var f File
		if err := rows.Scan(&f.Path, &f.Fingerprint, &f.TreeNodes); err != nil {
			return nil, fmt.Errorf("scanning file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

const edgeSelect = "SELECT record_id, seq, source_id, target_id, relation, text FROM edges"

func paginate(query string, args []any, limit, offset int) (string, []any) {
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
		if offset > 0 {
			query += " OFFSET ?"
			args = append(args, offset)
		}
	}
	return query, args
}

func (s *Store) queryNodes(query string, args ...any) ([]Node, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying nodes: %w", err)
	}
	defer rows.Close()

	nodes := []Node{}
	for rows.Next() {
		var n Node
		if err := rows.Scan(&n.ID, &n.Type, &n.Name, &n.Text); err != nil {
			return nil, fmt.Errorf("scanning node: %w", err)
		}
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

func (s *Store) queryEdges(query string, args ...any) ([]Edge, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying edges: %w", err)
	}
	defer rows.Close()

	edges := []Edge{}
	for rows.Next() {
		var e Edge
		if err := rows.Scan(&e.ID, &e.Seq, &e.SourceID, &e.TargetID, &e.Relation, &e.Text); err != nil {
			return nil, fmt.Errorf("scanning edge: %w", err)
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// IndexMetadata holds the summary written to index.json next to the database.
type IndexMetadata struct {
	Version     string         `json:"version"`
	ProjectPath string         `json:"project_path"`
	RunID       string         `json:"run_id"`
	InputHash   string         `json:"input_hash"`
	IndexedAt   time.Time      `json:"indexed_at"`
	NodeCount   int            `json:"node_count"`
	EdgeCount   int            `json:"edge_count"`
	NodesByType map[string]int `json:"nodes_by_type"`
	Files       []string       `json:"files"`
}

// WriteIndexJSON writes index.json for tools that only need the summary.
func (s *Store) WriteIndexJSON() error {
	stats, err := s.GetStats()
	if err != nil {
		return fmt.Errorf("getting stats: %w", err)
	}

	files, err := s.ListFiles()
	if err != nil {
		return err
	}
	paths := make([]string, 0, len(files))
	for _, f := range files {
		paths = append(paths, f.Path)
	}

	projectPath, _ := s.GetMetadata(MetaProjectRoot)
	meta := &IndexMetadata{
		Version:     "1",
		ProjectPath: projectPath,
		RunID:       stats.RunID,
		InputHash:   stats.InputHash,
		IndexedAt:   stats.IndexedAt,
		NodeCount:   stats.NodeCount,
		EdgeCount:   stats.EdgeCount,
		NodesByType: stats.NodesByType,
		Files:       paths,
	}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling index.json: %w", err)
	}

	indexPath := filepath.Join(filepath.Dir(s.dbPath), "index.json")
	if err := os.WriteFile(indexPath, data, 0644); err != nil {
		return fmt.Errorf("writing index.json: %w", err)
	}

	return nil
}

// Tx returns the underlying database for advanced queries.
// Use with caution - prefer adding methods to Store instead.
func (s *Store) Tx() *sql.DB {
	return s.db
}

// BeginBatch starts a transaction for batch inserts.
// Call Commit() when done, or Rollback() on error.
func (s *Store) BeginBatch() (*BatchTx, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	return &BatchTx{tx: tx}, nil
}

// BatchTx wraps a transaction for batch operations.
type BatchTx struct {
	tx *sql.Tx
}

// Commit commits the batch transaction.
func (b *BatchTx) Commit() error {
	return b.tx.Commit()
}

// Rollback rolls back the batch transaction.
func (b *BatchTx) Rollback() error {
	return b.tx.Rollback()
}

// InsertNode inserts a node within the batch.
func (b *BatchTx) InsertNode(n *Node) error {
	_, err := b.tx.Exec(`
		INSERT INTO nodes (id, type, name, text)
		VALUES (?, ?, ?, ?)
	`, n.ID, n.Type, n.Name, n.Text)
	return err
}

// InsertEdge inserts an edge within the batch. Both endpoints must exist.
func (b *BatchTx) InsertEdge(e *Edge) error {
	_, err := b.tx.Exec(`
		INSERT INTO edges (record_id, seq, source_id, target_id, relation, text)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.ID, e.Seq, e.SourceID, e.TargetID, e.Relation, e.Text)
	return err
}

// InsertFile inserts or updates an input file within the batch.
func (b *BatchTx) InsertFile(f *File) error {
	_, err := b.tx.Exec(`
		INSERT INTO files (path, fingerprint, tree_nodes)
		VALUES (?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			fingerprint = excluded.fingerprint,
			tree_nodes = excluded.tree_nodes
	`, f.Path, f.Fingerprint, f.TreeNodes)
	return err
}
