// Package export loads a serialized graph into external graph databases.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/abramin/codegraph/internal/graph"
	"github.com/abramin/codegraph/internal/record"
)

// batchSize bounds the rows sent in a single UNWIND statement.
const batchSize = 1000

// labels maps entity types to the secondary Neo4j label set on CodeEntity nodes.
var labels = map[string]string{
	string(graph.EntityFile):     "File",
	string(graph.EntityFunction): "Function",
	string(graph.EntityMethod):   "Method",
	string(graph.EntityStruct):   "Struct",
	string(graph.EntityClass):    "Class",
	string(graph.EntityVariable): "Variable",
	string(graph.EntityField):    "Field",
	string(graph.EntityDataType): "DataType",
}

// relationshipTypes maps relations to Neo4j relationship types. Cypher cannot
// take a relationship type as a parameter, so only these are ever spliced
// into a statement.
var relationshipTypes = map[string]string{
	string(graph.RelationDefines):  "DEFINES",
	string(graph.RelationDeclares): "DECLARES",
	string(graph.RelationHasType):  "HAS_TYPE",
	string(graph.RelationHasField): "HAS_FIELD",
	string(graph.RelationReturns):  "RETURNS",
	string(graph.RelationIncludes): "INCLUDES",
	string(graph.RelationContains): "CONTAINS",
	string(graph.RelationCalls):    "CALLS",
	string(graph.RelationUses):     "USES",
}

// Neo4jConfig holds connection settings.
type Neo4jConfig struct {
	URI      string
	User     string
	Password string
	Database string
}

// Stats summarizes an export.
type Stats struct {
	Nodes   int
	Edges   int
	Skipped int
}

// queryFunc runs one Cypher statement.
type queryFunc func(ctx context.Context, cypher string, params map[string]any) error

// Neo4jExporter loads records into Neo4j using batch UNWIND queries.
type Neo4jExporter struct {
	driver   neo4j.DriverWithContext
	database string
	query    queryFunc
}

// NewNeo4jExporter connects to Neo4j and verifies the connection.
func NewNeo4jExporter(ctx context.Context, cfg Neo4jConfig) (*Neo4jExporter, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.User, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("creating neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("connecting to neo4j at %s: %w", cfg.URI, err)
	}
	e := &Neo4jExporter{driver: driver, database: cfg.Database}
	e.query = e.execute
	return e, nil
}

// Close releases the driver.
func (e *Neo4jExporter) Close(ctx context.Context) error {
	return e.driver.Close(ctx)
}

func (e *Neo4jExporter) run(ctx context.Context, cypher string, params map[string]any) error {
	return e.query(ctx, cypher, params)
}

func (e *Neo4jExporter) execute(ctx context.Context, cypher string, params map[string]any) error {
	var opts []neo4j.ExecuteQueryConfigurationOption
	if e.database != "" {
		opts = append(opts, neo4j.ExecuteQueryWithDatabase(e.database))
	}
	_, err := neo4j.ExecuteQuery(ctx, e.driver, cypher, params, neo4j.EagerResultTransformer, opts...)
	return err
}

// CleanGraph removes every previously exported entity and its relationships.
func (e *Neo4jExporter) CleanGraph(ctx context.Context) error {
	slog.Info("export.neo4j.clean")
	return e.run(ctx, "MATCH (n:CodeEntity) DETACH DELETE n", nil)
}

// CreateIndexes ensures the lookup indexes exist.
func (e *Neo4jExporter) CreateIndexes(ctx context.Context) error {
	indexes := []string{
		"CREATE INDEX code_entity_gid IF NOT EXISTS FOR (n:CodeEntity) ON (n.gid)",
		"CREATE INDEX code_entity_name IF NOT EXISTS FOR (n:CodeEntity) ON (n.name)",
	}
	for _, q := range indexes {
		if err := e.run(ctx, q, nil); err != nil {
			return fmt.Errorf("creating index: %w", err)
		}
	}
	return nil
}

// Export replaces the exported graph: node records become CodeEntity nodes
// and edge records typed relationships. Node gids are only stable within a
// run, so the previous graph is removed first. Relationships are created,
// not merged, so repeated edges stay repeated.
func (e *Neo4jExporter) Export(ctx context.Context, records []record.Record) (*Stats, error) {
	nodes, edges, skipped := splitRecords(records)

	if err := e.CleanGraph(ctx); err != nil {
		return nil, fmt.Errorf("cleaning graph: %w", err)
	}

	for _, typ := range sortedKeys(nodes) {
		rows := nodes[typ]
		label := labels[typ]
		cypher := `UNWIND $batch AS row
		 MERGE (n:CodeEntity {gid: row.gid})
		 SET n.type = row.type, n.name = row.name, n.text = row.text`
		if label != "" {
			cypher += "\n\t\t SET n:" + label
		}
		for _, batch := range chunk(rows, batchSize) {
			if err := e.run(ctx, cypher, map[string]any{"batch": batch}); err != nil {
				return nil, fmt.Errorf("loading %s nodes: %w", typ, err)
			}
		}
	}

	for _, rel := range sortedKeys(edges) {
		cypher := `UNWIND $batch AS row
		 MATCH (s:CodeEntity {gid: row.source}), (t:CodeEntity {gid: row.target})
		 CREATE (s)-[r:` + relationshipTypes[rel] + ` {id: row.id, seq: row.seq, text: row.text}]->(t)`
		for _, batch := range chunk(edges[rel], batchSize) {
			if err := e.run(ctx, cypher, map[string]any{"batch": batch}); err != nil {
				return nil, fmt.Errorf("loading %s edges: %w", rel, err)
			}
		}
	}

	stats := &Stats{Skipped: skipped}
	for _, rows := range nodes {
		stats.Nodes += len(rows)
	}
	for _, rows := range edges {
		stats.Edges += len(rows)
	}
	slog.Info("export.neo4j.done", "nodes", stats.Nodes, "edges", stats.Edges, "skipped", stats.Skipped)
	return stats, nil
}

// splitRecords groups node rows by entity type and edge rows by relation.
// Records with unparseable ids or unknown relations are counted as skipped.
func splitRecords(records []record.Record) (nodes, edges map[string][]map[string]any, skipped int) {
	nodes = make(map[string][]map[string]any)
	edges = make(map[string][]map[string]any)

	for _, r := range records {
		switch r.Kind {
		case record.KindNode:
			gid, err := strconv.ParseInt(r.ID, 10, 64)
			if err != nil {
				skipped++
				continue
			}
			nodes[r.Type] = append(nodes[r.Type], map[string]any{
				"gid":  gid,
				"type": r.Type,
				"name": r.Name,
				"text": r.Text,
			})

		case record.KindEdge:
			if _, ok := relationshipTypes[r.Relation]; !ok {
				skipped++
				continue
			}
			src, err1 := strconv.ParseInt(r.SourceID, 10, 64)
			dst, err2 := strconv.ParseInt(r.TargetID, 10, 64)
			seq, err3 := strconv.Atoi(r.ID[min(1, len(r.ID)):])
			if err1 != nil || err2 != nil || err3 != nil {
				skipped++
				continue
			}
			edges[r.Relation] = append(edges[r.Relation], map[string]any{
				"id":     r.ID,
				"seq":    seq,
				"source": src,
				"target": dst,
				"text":   r.Text,
			})

		default:
			skipped++
		}
	}
	return nodes, edges, skipped
}

func chunk(rows []map[string]any, size int) [][]map[string]any {
	var out [][]map[string]any
	for size < len(rows) {
		out = append(out, rows[:size:size])
		rows = rows[size:]
	}
	if len(rows) > 0 {
		out = append(out, rows)
	}
	return out
}

func sortedKeys(m map[string][]map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
