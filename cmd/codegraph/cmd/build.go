package cmd

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/abramin/codegraph/internal/config"
	"github.com/abramin/codegraph/internal/export"
	"github.com/abramin/codegraph/internal/graph"
	"github.com/abramin/codegraph/internal/index"
)

var buildFlags struct {
	input       string
	output      string
	format      string
	projectRoot string
	refs        bool
	dedup       bool
	workers     int
	noStore     bool
	neo4jURI    string
	neo4jUser   string
	neo4jPass   string
}

var buildCmd = &cobra.Command{
	Use:   "build [input]",
	Short: "Build the code graph from a syntax tree export",
	Long: `Build the code knowledge graph from a syntax tree export.

The build command:
- Loads the per-file trees exported by the front end
- Keeps project entities and drops system headers and reserved names
- Assigns one stable id per (type, name) entity
- Serializes nodes and edges to text records for GraphRAG
- Persists the graph to .codegraph/graph.db
- Replaces the Neo4j graph when a URI is configured`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		if len(args) > 0 {
			cfg.Input = args[0]
		}
		applyBuildFlags(cmd, cfg)
		if err := cfg.Validate(); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Building graph from: %s\n", cfg.Input)

		indexer := index.NewIndexer(cfg)
		if verbose {
			indexer.SetProgress(func(p graph.BuildProgress) {
				fmt.Fprintf(out, "  [%d/%d] %d nodes, %d edges\n",
					p.FilesProcessed, p.FilesTotal, p.NodesCreated, p.EdgesCreated)
			})
		}

		ctx := cmd.Context()
		if cfg.Neo4jEnabled() {
			exp, err := export.NewNeo4jExporter(ctx, export.Neo4jConfig{
				URI:      cfg.Neo4j.URI,
				User:     cfg.Neo4j.User,
				Password: cfg.Neo4j.Password,
				Database: cfg.Neo4j.Database,
			})
			if err != nil {
				return err
			}
			defer exp.Close(ctx)

			if err := exp.CreateIndexes(ctx); err != nil {
				return err
			}
			indexer.SetExporter(exp)
		}

		result, err := indexer.Run(ctx)
		if err != nil {
			return fmt.Errorf("build failed: %w", err)
		}

		printSummary(out, result)
		return nil
	},
}

// applyBuildFlags lets explicitly set flags override the config file.
func applyBuildFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("input") {
		cfg.Input = buildFlags.input
	}
	if flags.Changed("output") {
		cfg.Output.Path = buildFlags.output
	}
	if flags.Changed("format") {
		cfg.Output.Format = buildFlags.format
	}
	if flags.Changed("project-root") {
		cfg.ProjectRoot = buildFlags.projectRoot
	}
	if flags.Changed("refs") {
		cfg.Graph.ResolveReferences = &buildFlags.refs
	}
	if flags.Changed("dedup") {
		cfg.Graph.DedupEdges = &buildFlags.dedup
	}
	if flags.Changed("workers") {
		cfg.Graph.Workers = buildFlags.workers
	}
	if flags.Changed("no-store") {
		enabled := !buildFlags.noStore
		cfg.Store.Enabled = &enabled
	}
	if flags.Changed("neo4j-uri") {
		cfg.Neo4j.URI = buildFlags.neo4jURI
	}
	if flags.Changed("neo4j-user") {
		cfg.Neo4j.User = buildFlags.neo4jUser
	}
	if flags.Changed("neo4j-password") {
		cfg.Neo4j.Password = buildFlags.neo4jPass
	}
}

func printSummary(out io.Writer, result *index.Result) {
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Build complete!\n")
	fmt.Fprintf(out, "  Files:      %s\n", humanize.Comma(int64(result.Files)))
	fmt.Fprintf(out, "  Tree nodes: %s\n", humanize.Comma(int64(result.TreeNodes)))
	fmt.Fprintf(out, "  Nodes:      %s\n", humanize.Comma(int64(result.Nodes)))
	fmt.Fprintf(out, "  Edges:      %s\n", humanize.Comma(int64(result.Edges)))
	fmt.Fprintf(out, "  Records:    %s\n", humanize.Comma(int64(result.Records)))
	fmt.Fprintf(out, "  Output:     %s\n", result.OutputPath)
	if result.DBPath != "" {
		fmt.Fprintf(out, "  Database:   %s\n", result.DBPath)
	}
	if result.Exported != nil {
		fmt.Fprintf(out, "  Neo4j:      %s nodes, %s relationships\n",
			humanize.Comma(int64(result.Exported.Nodes)), humanize.Comma(int64(result.Exported.Edges)))
	}
	fmt.Fprintf(out, "  Duration:   %s\n", result.Duration.Round(time.Millisecond))

	if result.Diagnostics == nil || len(result.Diagnostics.Counts) == 0 {
		return
	}
	reasons := make([]string, 0, len(result.Diagnostics.Counts))
	for reason := range result.Diagnostics.Counts {
		reasons = append(reasons, string(reason))
	}
	sort.Strings(reasons)

	fmt.Fprintf(out, "  Skipped:\n")
	for _, reason := range reasons {
		n := result.Diagnostics.Counts[graph.SkipReason(reason)]
		fmt.Fprintf(out, "    %-22s %s\n", reason, humanize.Comma(int64(n)))
	}
}

func init() {
	rootCmd.AddCommand(buildCmd)
	f := buildCmd.Flags()
	f.StringVarP(&buildFlags.input, "input", "i", "", "syntax tree export (default ast_export.json)")
	f.StringVarP(&buildFlags.output, "output", "o", "", "record output path")
	f.StringVar(&buildFlags.format, "format", "", "record output format: json or jsonl")
	f.StringVar(&buildFlags.projectRoot, "project-root", "", "directory file nodes are named relative to")
	f.BoolVar(&buildFlags.refs, "refs", false, "add calls and uses edges from references")
	f.BoolVar(&buildFlags.dedup, "dedup", false, "drop repeated (source, target, relation) edges")
	f.IntVarP(&buildFlags.workers, "workers", "w", 1, "files built concurrently")
	f.BoolVar(&buildFlags.noStore, "no-store", false, "skip writing the SQLite store")
	f.StringVar(&buildFlags.neo4jURI, "neo4j-uri", "", "Neo4j bolt URI (enables export)")
	f.StringVar(&buildFlags.neo4jUser, "neo4j-user", "neo4j", "Neo4j user")
	f.StringVar(&buildFlags.neo4jPass, "neo4j-password", "", "Neo4j password")
}
