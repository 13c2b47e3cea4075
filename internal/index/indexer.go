package index

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/abramin/codegraph/internal/config"
	"github.com/abramin/codegraph/internal/export"
	"github.com/abramin/codegraph/internal/graph"
	"github.com/abramin/codegraph/internal/record"
	"github.com/abramin/codegraph/internal/store"
	"github.com/abramin/codegraph/internal/tree"
)

var tracer = otel.Tracer("codegraph.index")

// Exporter receives the serialized records after they are written.
type Exporter interface {
	Export(ctx context.Context, records []record.Record) (*export.Stats, error)
}

// Indexer coordinates the build pipeline: load trees, build the graph,
// serialize records, write the output, persist to the store and optionally
// export.
type Indexer struct {
	cfg         *config.Config
	projectRoot string
	exporter    Exporter
	progress    graph.ProgressFunc
	now         func() time.Time
}

// NewIndexer creates an indexer for the given configuration.
func NewIndexer(cfg *config.Config) *Indexer {
	root, err := filepath.Abs(cfg.ProjectRoot)
	if err != nil {
		root = cfg.ProjectRoot
	}
	return &Indexer{
		cfg:         cfg,
		projectRoot: root,
		now:         time.Now,
	}
}

// SetExporter attaches an exporter run after the store is written.
func (idx *Indexer) SetExporter(e Exporter) {
	idx.exporter = e
}

// SetProgress sets a callback for per-file build progress.
func (idx *Indexer) SetProgress(fn graph.ProgressFunc) {
	idx.progress = fn
}

// Result holds the results of a build run.
type Result struct {
	RunID       string
	InputHash   string
	Files       int
	TreeNodes   int
	Nodes       int
	Edges       int
	Records     int
	Diagnostics *graph.Diagnostics
	OutputPath  string
	DBPath      string
	Exported    *export.Stats
	Duration    time.Duration
}

// Run executes the pipeline once. Every run is a full rebuild.
func (idx *Indexer) Run(ctx context.Context) (*Result, error) {
	start := idx.now()
	runID := uuid.NewString()

	ctx, span := tracer.Start(ctx, "index.Run")
	defer span.End()

	slog.Info("index.start", "run_id", runID, "input", idx.cfg.Input, "project_root", idx.projectRoot)

	set, err := tree.LoadFile(idx.cfg.Input)
	if err != nil {
		return nil, fmt.Errorf("loading trees: %w", err)
	}
	slog.Debug("index.trees.loaded", "files", len(set.Files), "input_hash", set.InputHash)

	builder := graph.NewBuilder(idx.builderOptions()...)
	built := builder.Build(ctx, set.Files)

	records := record.Serialize(built.Nodes, built.Edges)

	format := record.Format(idx.cfg.Output.Format)
	if err := record.WriteFile(idx.cfg.Output.Path, records, format); err != nil {
		return nil, fmt.Errorf("writing records: %w", err)
	}
	slog.Info("index.output.written", "path", idx.cfg.Output.Path, "records", len(records), "format", format)

	result := &Result{
		RunID:       runID,
		InputHash:   set.InputHash,
		Files:       built.Files,
		TreeNodes:   set.NodeCount(),
		Nodes:       len(built.Nodes),
		Edges:       len(built.Edges),
		Records:     len(records),
		Diagnostics: built.Diagnostics,
		OutputPath:  idx.cfg.Output.Path,
	}

	if idx.cfg.StoreEnabled() {
		dbPath, err := idx.persist(set, records, runID, start)
		if err != nil {
			return nil, err
		}
		result.DBPath = dbPath
	}

	if idx.exporter != nil {
		stats, err := idx.exporter.Export(ctx, records)
		if err != nil {
			return nil, fmt.Errorf("exporting graph: %w", err)
		}
		result.Exported = stats
	}

	result.Duration = idx.now().Sub(start)
	span.SetAttributes(
		attribute.String("index.run_id", runID),
		attribute.Int("index.records", result.Records),
	)
	slog.Info("index.done",
		"run_id", runID,
		"nodes", result.Nodes,
		"edges", result.Edges,
		"records", result.Records,
		"duration", result.Duration,
	)
	return result, nil
}

func (idx *Indexer) builderOptions() []graph.Option {
	filter := graph.NewFilter()
	if len(idx.cfg.Filter.SystemPrefixes) > 0 {
		filter.SystemPrefixes = idx.cfg.Filter.SystemPrefixes
	}
	if idx.cfg.Filter.ReservedPrefix != "" {
		filter.ReservedPrefix = idx.cfg.Filter.ReservedPrefix
	}

	opts := []graph.Option{
		graph.WithProjectRoot(idx.projectRoot),
		graph.WithFilter(filter),
		graph.WithReferences(idx.cfg.ResolveReferences()),
		graph.WithDedupEdges(idx.cfg.DedupEdges()),
		graph.WithWorkers(idx.cfg.Graph.Workers),
	}
	if idx.progress != nil {
		opts = append(opts, graph.WithProgress(idx.progress))
	}
	return opts
}

// persist replaces the store contents with this run's graph.
func (idx *Indexer) persist(set *tree.Set, records []record.Record, runID string, start time.Time) (string, error) {
	dir := idx.cfg.Store.Dir
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(idx.projectRoot, dir)
	}

	st, err := store.OpenDir(dir)
	if err != nil {
		return "", fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	if err := st.Clear(); err != nil {
		return "", fmt.Errorf("clearing store: %w", err)
	}

	batch, err := st.BeginBatch()
	if err != nil {
		return "", fmt.Errorf("beginning batch: %w", err)
	}
	if err := insertAll(batch, set, records); err != nil {
		batch.Rollback()
		return "", err
	}
	if err := batch.Commit(); err != nil {
		return "", fmt.Errorf("committing batch: %w", err)
	}

	meta := [][2]string{
		{store.MetaIndexedAt, start.UTC().Format(time.RFC3339)},
		{store.MetaProjectRoot, idx.projectRoot},
		{store.MetaRunID, runID},
		{store.MetaInputHash, set.InputHash},
	}
	for _, kv := range meta {
		if err := st.SetMetadata(kv[0], kv[1]); err != nil {
			return "", fmt.Errorf("storing metadata: %w", err)
		}
	}

	if err := st.WriteIndexJSON(); err != nil {
		return "", fmt.Errorf("writing index.json: %w", err)
	}

	slog.Debug("index.store.written", "path", st.DBPath())
	return st.DBPath(), nil
}

func insertAll(batch *store.BatchTx, set *tree.Set, records []record.Record) error {
	for _, r := range records {
		switch r.Kind {
		case record.KindNode:
			n, ok := store.NodeFromRecord(r)
			if !ok {
				return fmt.Errorf("malformed node record %q", r.ID)
			}
			if err := batch.InsertNode(&n); err != nil {
				return fmt.Errorf("inserting node %s: %w", r.ID, err)
			}
		case record.KindEdge:
			e, ok := store.EdgeFromRecord(r)
			if !ok {
				return fmt.Errorf("malformed edge record %q", r.ID)
			}
			if err := batch.InsertEdge(&e); err != nil {
				return fmt.Errorf("inserting edge %s: %w", r.ID, err)
			}
		}
	}

	for _, path := range set.Paths() {
		f := &store.File{
			Path:        path,
			Fingerprint: set.Hashes[path],
			TreeNodes:   tree.Count(set.Files[path]),
		}
		if err := batch.InsertFile(f); err != nil {
			return fmt.Errorf("inserting file %s: %w", path, err)
		}
	}
	return nil
}
