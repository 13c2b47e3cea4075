package graph

import (
	"context"
	"log/slog"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/abramin/codegraph/internal/tree"
)

// BuildProgress is reported after each file is merged into the graph.
type BuildProgress struct {
	FilesTotal     int
	FilesProcessed int
	NodesCreated   int
	EdgesCreated   int
}

// ProgressFunc receives build progress updates.
type ProgressFunc func(progress BuildProgress)

// Options configures a Builder.
type Options struct {
	// ProjectRoot is the directory file nodes are named relative to.
	ProjectRoot string

	// Filter decides which tree nodes become entities. Defaults to NewFilter().
	Filter *Filter

	// ResolveReferences enables the call expression and type reference pass.
	ResolveReferences bool

	// DedupEdges drops repeated (source, target, relation) triples, keeping
	// the first occurrence.
	DedupEdges bool

	// Workers bounds how many files are walked concurrently. Values below 2
	// walk files one at a time.
	Workers int

	// Progress may be nil.
	Progress ProgressFunc
}

// Option configures Options.
type Option func(*Options)

// WithProjectRoot sets the project root.
func WithProjectRoot(root string) Option {
	return func(o *Options) {
		o.ProjectRoot = root
	}
}

// WithFilter replaces the entity filter.
func WithFilter(f *Filter) Option {
	return func(o *Options) {
		o.Filter = f
	}
}

// WithReferences enables call and type-reference edges.
func WithReferences(enabled bool) Option {
	return func(o *Options) {
		o.ResolveReferences = enabled
	}
}

// WithDedupEdges enables edge deduplication.
func WithDedupEdges(enabled bool) Option {
	return func(o *Options) {
		o.DedupEdges = enabled
	}
}

// WithWorkers sets the number of concurrent file walks. Zero means
// runtime.NumCPU().
func WithWorkers(n int) Option {
	return func(o *Options) {
		if n == 0 {
			n = runtime.NumCPU()
		}
		o.Workers = n
	}
}

// WithProgress sets the progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(o *Options) {
		o.Progress = fn
	}
}

// Builder turns per-file syntax trees into a deduplicated entity graph.
type Builder struct {
	options Options
}

// NewBuilder creates a builder. Without options it walks files sequentially,
// uses the default filter, and emits no reference edges.
func NewBuilder(opts ...Option) *Builder {
	o := Options{Workers: 1}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Filter == nil {
		o.Filter = NewFilter()
	}
	if o.ProjectRoot != "" {
		o.ProjectRoot = filepath.Clean(o.ProjectRoot)
	}
	return &Builder{options: o}
}

// Result is the output of a build.
type Result struct {
	Nodes       []Node
	Edges       []Edge
	Diagnostics *Diagnostics
	Files       int
	Duration    time.Duration
}

// Build walks every file tree and returns the graph. Files are merged in
// sorted path order, so node ids and edge order do not depend on map
// iteration or on the number of workers.
func (b *Builder) Build(ctx context.Context, trees map[string]*tree.Node) *Result {
	start := time.Now()
	ctx, span := startBuildSpan(ctx, len(trees))
	defer span.End()

	paths := make([]string, 0, len(trees))
	for p := range trees {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var defs *definitions
	if b.options.ResolveReferences {
		defs = b.collectDefinitions(trees)
	}

	partials := make([]*partial, len(paths))
	if b.options.Workers > 1 && len(paths) > 1 {
		g := new(errgroup.Group)
		g.SetLimit(b.options.Workers)
		for i, p := range paths {
			g.Go(func() error {
				partials[i] = b.walkFile(p, trees[p], defs)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i, p := range paths {
			partials[i] = b.walkFile(p, trees[p], defs)
		}
	}

	table := NewTable()
	var edges []Edge
	diag := newDiagnostics()
	for i, part := range partials {
		edges = part.mergeInto(table, edges)
		diag.merge(part.diag)
		slog.Debug("graph.file", "path", paths[i], "nodes", part.table.Len(), "edges", len(part.edges))
		if b.options.Progress != nil {
			b.options.Progress(BuildProgress{
				FilesTotal:     len(paths),
				FilesProcessed: i + 1,
				NodesCreated:   table.Len(),
				EdgesCreated:   len(edges),
			})
		}
	}

	if b.options.DedupEdges {
		edges = DedupEdges(edges)
	}

	result := &Result{
		Nodes:       table.Nodes(),
		Edges:       edges,
		Diagnostics: diag,
		Files:       len(paths),
		Duration:    time.Since(start),
	}

	span.SetAttributes(
		attribute.Int("graph.nodes", len(result.Nodes)),
		attribute.Int("graph.edges", len(result.Edges)),
		attribute.Int("graph.skipped", diag.Total()),
	)
	recordBuildMetrics(ctx, result)
	slog.Info("graph.build.done",
		"files", result.Files,
		"nodes", len(result.Nodes),
		"edges", len(result.Edges),
		"skipped", diag.Total(),
		"duration", result.Duration,
	)
	return result
}

// DedupEdges returns edges with repeated triples removed, preserving the
// order of first occurrences.
func DedupEdges(edges []Edge) []Edge {
	seen := make(map[Edge]bool, len(edges))
	out := make([]Edge, 0, len(edges))
	for _, e := range edges {
		if seen[e] {
			continue
		}
		seen[e] = true
		out = append(out, e)
	}
	return out
}

// definitions indexes the names that reference edges may point at.
type definitions struct {
	functions  map[string]bool
	aggregates map[string]bool
}

// collectDefinitions scans all trees for accepted function and aggregate
// definitions. It only reads the trees.
func (b *Builder) collectDefinitions(trees map[string]*tree.Node) *definitions {
	defs := &definitions{
		functions:  make(map[string]bool),
		aggregates: make(map[string]bool),
	}
	for _, root := range trees {
		tree.Walk(root, func(n *tree.Node) bool {
			if !n.IsDefinition {
				return true
			}
			if ok, _ := b.options.Filter.Accept(n); !ok {
				return true
			}
			switch {
			case n.Kind.IsFunction():
				defs.functions[n.Spelling] = true
			case n.Kind.IsAggregate():
				defs.aggregates[n.Spelling] = true
			}
			return true
		})
	}
	return defs
}

// aggregateName strips an elaborated type keyword so that a reference
// spelled "struct Point" can be matched against the definition "Point".
func aggregateName(spelling string) string {
	for _, kw := range []string{"struct ", "class ", "union ", "enum "} {
		if strings.HasPrefix(spelling, kw) {
			return strings.TrimSpace(strings.TrimPrefix(spelling, kw))
		}
	}
	return spelling
}

const noNode NodeID = -1

// walkContext is the state handed from a node to its children.
type walkContext struct {
	// file is the relative path of the enclosing file.
	file string
	// aggregate is the struct whose direct children are being walked.
	aggregate NodeID
	// owner is the innermost accepted entity, the source of uses edges.
	owner NodeID
	// function is the innermost accepted function, the source of calls edges.
	function NodeID
}

// partial is the graph of a single file, built against its own identity
// table and merged into the shared one afterwards.
type partial struct {
	table *Table
	edges []Edge
	diag  *Diagnostics
}

func (p *partial) addEdge(src, dst NodeID, rel Relation) {
	p.edges = append(p.edges, Edge{Source: src, Target: dst, Relation: rel})
}

// mergeInto resolves the partial's nodes against table in local creation
// order and appends its remapped edges.
func (p *partial) mergeInto(table *Table, edges []Edge) []Edge {
	local := p.table.Nodes()
	remap := make([]NodeID, len(local))
	for _, n := range local {
		remap[n.ID] = table.Resolve(n.Type, n.Name)
	}
	for _, e := range p.edges {
		edges = append(edges, Edge{
			Source:   remap[e.Source],
			Target:   remap[e.Target],
			Relation: e.Relation,
		})
	}
	return edges
}

func (b *Builder) walkFile(path string, root *tree.Node, defs *definitions) *partial {
	p := &partial{table: NewTable(), diag: newDiagnostics()}
	ctx := walkContext{
		file:      filepath.ToSlash(path),
		aggregate: noNode,
		owner:     noNode,
		function:  noNode,
	}
	b.walk(p, root, ctx, defs)
	return p
}

func (b *Builder) walk(p *partial, n *tree.Node, ctx walkContext, defs *definitions) {
	if n == nil {
		return
	}

	child := ctx
	child.aggregate = noNode

	switch {
	case n.Kind == tree.KindCallExpr && defs != nil:
		b.visitCall(p, n, ctx, defs)
	case n.Kind == tree.KindTypeRef && defs != nil:
		b.visitTypeRef(p, n, ctx, defs)
	default:
		ok, reason := b.options.Filter.Accept(n)
		switch {
		case ok:
			child = b.visitEntity(p, n, ctx)
		case IsEntityKind(n.Kind):
			p.diag.add(reason, n)
		default:
			p.diag.add(SkipUninterestingKind, n)
		}
	}

	for _, c := range n.Children {
		b.walk(p, c, child, defs)
	}
}

// visitEntity applies the per-kind node and edge rules to an accepted node
// and returns the context for its children.
func (b *Builder) visitEntity(p *partial, n *tree.Node, ctx walkContext) walkContext {
	child := ctx
	child.aggregate = noNode
	child.file = b.relativeFile(n.Location.File, ctx.file)

	fileID := p.table.Resolve(EntityFile, child.file)
	declRel := RelationDeclares
	if n.IsDefinition {
		declRel = RelationDefines
	}

	switch {
	case n.Kind.IsFunction():
		id := p.table.Resolve(EntityFunction, n.Spelling)
		p.addEdge(fileID, id, declRel)
		if n.ResultType != "" {
			p.addEdge(id, p.table.Resolve(EntityDataType, n.ResultType), RelationReturns)
		}
		child.owner = id
		child.function = id

	case n.Kind.IsAggregate():
		id := p.table.Resolve(EntityStruct, n.Spelling)
		p.addEdge(fileID, id, declRel)
		child.aggregate = id
		child.owner = id

	case n.Kind == tree.KindVarDecl:
		id := p.table.Resolve(EntityVariable, n.Spelling)
		p.addEdge(fileID, id, RelationDefines)
		if n.Type != "" {
			p.addEdge(id, p.table.Resolve(EntityDataType, n.Type), RelationHasType)
		}
		child.owner = id

	case n.Kind == tree.KindFieldDecl:
		id := p.table.Resolve(EntityField, n.Spelling)
		if ctx.aggregate == noNode {
			p.diag.add(SkipNoEnclosingStruct, n)
		} else {
			p.addEdge(ctx.aggregate, id, RelationHasField)
		}
		child.owner = id

	case n.Kind == tree.KindInclusionDirective:
		if strings.HasPrefix(n.Spelling, "<") || b.options.Filter.IsSystemPath(n.Spelling) {
			p.diag.add(SkipSystemInclude, n)
			break
		}
		included := p.table.Resolve(EntityFile, filepath.ToSlash(n.Spelling))
		p.addEdge(fileID, included, RelationIncludes)
	}
	return child
}

func (b *Builder) visitCall(p *partial, n *tree.Node, ctx walkContext, defs *definitions) {
	if ctx.function == noNode {
		p.diag.add(SkipNoEnclosingFunc, n)
		return
	}
	if n.Spelling == "" || !defs.functions[n.Spelling] {
		p.diag.add(SkipUnresolvedCall, n)
		return
	}
	callee := p.table.Resolve(EntityFunction, n.Spelling)
	p.addEdge(ctx.function, callee, RelationCalls)
}

func (b *Builder) visitTypeRef(p *partial, n *tree.Node, ctx walkContext, defs *definitions) {
	if ctx.owner == noNode {
		p.diag.add(SkipNoEnclosingEntity, n)
		return
	}
	if n.Spelling == "" || !defs.aggregates[aggregateName(n.Spelling)] {
		p.diag.add(SkipUnresolvedTypeRef, n)
		return
	}
	typ := p.table.Resolve(EntityDataType, n.Spelling)
	p.addEdge(ctx.owner, typ, RelationUses)
}

// relativeFile names a location file relative to the project root. Paths
// that cannot be made relative fall back to the enclosing file.
func (b *Builder) relativeFile(file, enclosing string) string {
	if !filepath.IsAbs(file) || b.options.ProjectRoot == "" {
		return filepath.ToSlash(filepath.Clean(file))
	}
	rel, err := filepath.Rel(b.options.ProjectRoot, file)
	if err != nil {
		return enclosing
	}
	return filepath.ToSlash(rel)
}

func startBuildSpan(ctx context.Context, files int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "graph.Build",
		trace.WithAttributes(attribute.Int("graph.files", files)),
	)
}
