package graph

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abramin/codegraph/internal/tree"
)

const testRoot = "/proj"

func at(file string, line int) *tree.Location {
	return &tree.Location{File: testRoot + "/" + file, Line: line, Column: 1, IsProjectFile: true}
}

func tu(file string, children ...*tree.Node) *tree.Node {
	return &tree.Node{ID: "1", Kind: tree.KindTranslationUnit, Spelling: file, Children: children}
}

func decl(kind tree.Kind, name, file string, def bool, children ...*tree.Node) *tree.Node {
	return &tree.Node{Kind: kind, Spelling: name, IsDefinition: def, Location: at(file, 1), Children: children}
}

func fieldDecl(name, typ, file string) *tree.Node {
	n := decl(tree.KindFieldDecl, name, file, true)
	n.Type = typ
	return n
}

func funcDecl(name, result, file string, def bool, children ...*tree.Node) *tree.Node {
	n := decl(tree.KindFunctionDecl, name, file, def, children...)
	n.ResultType = result
	return n
}

func varDecl(name, typ, file string, children ...*tree.Node) *tree.Node {
	n := decl(tree.KindVarDecl, name, file, true, children...)
	n.Type = typ
	return n
}

func ref(kind tree.Kind, name, file string) *tree.Node {
	return &tree.Node{Kind: kind, Spelling: name, Location: at(file, 1)}
}

// labels renders nodes as "type:name" and edges as "src -rel-> dst".
func labels(r *Result) (nodes []string, edges []string) {
	byID := make(map[NodeID]Node, len(r.Nodes))
	for _, n := range r.Nodes {
		byID[n.ID] = n
		nodes = append(nodes, fmt.Sprintf("%s:%s", n.Type, n.Name))
	}
	for _, e := range r.Edges {
		src, dst := byID[e.Source], byID[e.Target]
		edges = append(edges, fmt.Sprintf("%s:%s -%s-> %s:%s", src.Type, src.Name, e.Relation, dst.Type, dst.Name))
	}
	return nodes, edges
}

func build(t *testing.T, trees map[string]*tree.Node, opts ...Option) *Result {
	t.Helper()
	opts = append([]Option{WithProjectRoot(testRoot)}, opts...)
	return NewBuilder(opts...).Build(context.Background(), trees)
}

func TestBuild_StructWithFields(t *testing.T) {
	trees := map[string]*tree.Node{
		"a.c": tu("a.c",
			decl(tree.KindStructDecl, "Point", "a.c", true,
				fieldDecl("x", "int", "a.c"),
				fieldDecl("y", "int", "a.c"),
			),
		),
	}

	r := build(t, trees)
	nodes, edges := labels(r)

	assert.Equal(t, []string{"file:a.c", "struct:Point", "field:x", "field:y"}, nodes)
	assert.Equal(t, []string{
		"file:a.c -defines-> struct:Point",
		"struct:Point -has_field-> field:x",
		"struct:Point -has_field-> field:y",
	}, edges)
	for i, n := range r.Nodes {
		assert.Equal(t, NodeID(i), n.ID, "ids are dense and assigned in creation order")
	}
}

func TestBuild_IdentityDedupAcrossFiles(t *testing.T) {
	trees := map[string]*tree.Node{
		"util.h": tu("util.h", funcDecl("add", "int", "util.h", false)),
		"util.c": tu("util.c", funcDecl("add", "int", "util.c", true)),
		"main.c": tu("main.c", funcDecl("add", "int", "main.c", false)),
	}

	r := build(t, trees)
	nodes, edges := labels(r)

	count := 0
	for _, n := range nodes {
		if n == "function:add" {
			count++
		}
	}
	assert.Equal(t, 1, count, "function:add must be a single node")
	assert.Contains(t, nodes, "type:int")

	assert.Equal(t, []string{
		"file:main.c -declares-> function:add",
		"function:add -returns-> type:int",
		"file:util.c -defines-> function:add",
		"function:add -returns-> type:int",
		"file:util.h -declares-> function:add",
		"function:add -returns-> type:int",
	}, edges)
}

func TestBuild_DefinitionVersusDeclaration(t *testing.T) {
	tests := []struct {
		name string
		kind tree.Kind
		def  bool
		want string
	}{
		{"function definition", tree.KindFunctionDecl, true, "file:x.c -defines-> function:f"},
		{"function declaration", tree.KindFunctionDecl, false, "file:x.c -declares-> function:f"},
		{"method definition", tree.KindCXXMethod, true, "file:x.c -defines-> function:f"},
		{"struct declaration", tree.KindStructDecl, false, "file:x.c -declares-> struct:f"},
		{"class definition", tree.KindClassDecl, true, "file:x.c -defines-> struct:f"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := build(t, map[string]*tree.Node{"x.c": tu("x.c", decl(tt.kind, "f", "x.c", tt.def))})
			_, edges := labels(r)
			require.Len(t, edges, 1)
			assert.Equal(t, tt.want, edges[0])
		})
	}
}

func TestBuild_FilteredNodesProduceNothing(t *testing.T) {
	system := decl(tree.KindFunctionDecl, "printf", "x.c", false)
	system.Location = &tree.Location{File: "/usr/include/stdio.h", IsProjectFile: true}
	outside := decl(tree.KindFunctionDecl, "puts", "x.c", false)
	outside.Location.IsProjectFile = false
	noLoc := decl(tree.KindVarDecl, "g", "x.c", true)
	noLoc.Location = nil

	trees := map[string]*tree.Node{
		"x.c": tu("x.c",
			system,
			outside,
			noLoc,
			decl(tree.KindFunctionDecl, "", "x.c", true),
			decl(tree.KindFunctionDecl, "_reserved", "x.c", true),
			decl(tree.KindStructDecl, "__impl", "x.c", true),
		),
	}

	r := build(t, trees)
	assert.Empty(t, r.Nodes)
	assert.Empty(t, r.Edges)

	counts := r.Diagnostics.Counts
	assert.Equal(t, 1, counts[SkipSystemHeader])
	assert.Equal(t, 1, counts[SkipNotProjectFile])
	assert.Equal(t, 1, counts[SkipNoLocation])
	assert.Equal(t, 1, counts[SkipEmptyName])
	assert.Equal(t, 2, counts[SkipReservedName])
	assert.Len(t, r.Diagnostics.Skips, 6)
}

func TestBuild_DescendsIntoRejectedNodes(t *testing.T) {
	namespace := &tree.Node{Kind: "NAMESPACE", Spelling: "ns", Location: at("x.cpp", 1), Children: []*tree.Node{
		decl(tree.KindStructDecl, "_Hidden", "x.cpp", true,
			fieldDecl("secret", "int", "x.cpp"),
			funcDecl("visible", "void", "x.cpp", true),
		),
	}}

	r := build(t, map[string]*tree.Node{"x.cpp": tu("x.cpp", namespace)})
	nodes, edges := labels(r)

	assert.NotContains(t, nodes, "struct:_Hidden")
	assert.Contains(t, nodes, "function:visible")
	assert.Contains(t, nodes, "field:secret")
	assert.NotContains(t, edges, "struct:_Hidden -has_field-> field:secret")
	assert.Equal(t, 1, r.Diagnostics.Counts[SkipNoEnclosingStruct])
}

func TestBuild_FieldWithoutStruct(t *testing.T) {
	r := build(t, map[string]*tree.Node{"x.c": tu("x.c", fieldDecl("orphan", "int", "x.c"))})
	nodes, edges := labels(r)

	assert.Equal(t, []string{"file:x.c", "field:orphan"}, nodes)
	assert.Empty(t, edges)
	require.Len(t, r.Diagnostics.Skips, 1)
	assert.Equal(t, SkipNoEnclosingStruct, r.Diagnostics.Skips[0].Reason)
	assert.Equal(t, "orphan", r.Diagnostics.Skips[0].Name)
}

func TestBuild_FieldsAttachToNearestStruct(t *testing.T) {
	trees := map[string]*tree.Node{
		"shapes.h": tu("shapes.h",
			decl(tree.KindStructDecl, "Outer", "shapes.h", true,
				fieldDecl("id", "int", "shapes.h"),
				decl(tree.KindStructDecl, "Inner", "shapes.h", true,
					fieldDecl("id", "long", "shapes.h"),
					fieldDecl("depth", "int", "shapes.h"),
				),
			),
		),
	}

	_, edges := labels(build(t, trees))
	assert.Equal(t, []string{
		"file:shapes.h -defines-> struct:Outer",
		"struct:Outer -has_field-> field:id",
		"file:shapes.h -defines-> struct:Inner",
		"struct:Inner -has_field-> field:id",
		"struct:Inner -has_field-> field:depth",
	}, edges)
}

func TestBuild_VariablesAndIncludes(t *testing.T) {
	trees := map[string]*tree.Node{
		"main.c": tu("main.c",
			decl(tree.KindInclusionDirective, "utils.h", "main.c", false),
			decl(tree.KindInclusionDirective, "<stdio.h>", "main.c", false),
			decl(tree.KindInclusionDirective, "/usr/include/stdlib.h", "main.c", false),
			varDecl("counter", "int", "main.c"),
			varDecl("untyped", "", "main.c"),
		),
	}

	r := build(t, trees)
	nodes, edges := labels(r)

	assert.Equal(t, []string{"file:main.c", "file:utils.h", "variable:counter", "type:int", "variable:untyped"}, nodes)
	assert.Equal(t, []string{
		"file:main.c -includes-> file:utils.h",
		"file:main.c -defines-> variable:counter",
		"variable:counter -has_type-> type:int",
		"file:main.c -defines-> variable:untyped",
	}, edges)
	assert.Equal(t, 2, r.Diagnostics.Counts[SkipSystemInclude])
}

func TestBuild_NamesAreVerbatim(t *testing.T) {
	trees := map[string]*tree.Node{
		"x.c": tu("x.c",
			varDecl("a", "struct Point *", "x.c"),
			varDecl("b", "struct Point*", "x.c"),
		),
	}

	nodes, _ := labels(build(t, trees))
	assert.Contains(t, nodes, "type:struct Point *")
	assert.Contains(t, nodes, "type:struct Point*")
}

func TestBuild_EdgesAreAMultiset(t *testing.T) {
	trees := map[string]*tree.Node{
		"x.c": tu("x.c",
			funcDecl("f", "", "x.c", false),
			funcDecl("f", "", "x.c", false),
		),
	}

	r := build(t, trees)
	_, edges := labels(r)
	assert.Equal(t, []string{"file:x.c -declares-> function:f", "file:x.c -declares-> function:f"}, edges)

	deduped := build(t, trees, WithDedupEdges(true))
	_, edges = labels(deduped)
	assert.Equal(t, []string{"file:x.c -declares-> function:f"}, edges)
}

func TestBuild_FilePathsRelativeToRoot(t *testing.T) {
	header := decl(tree.KindStructDecl, "Config", "x.c", true)
	header.Location = &tree.Location{File: testRoot + "/include/config.h", IsProjectFile: true}
	relative := decl(tree.KindVarDecl, "level", "x.c", true)
	relative.Location = &tree.Location{File: "src/./level.c", IsProjectFile: true}

	r := build(t, map[string]*tree.Node{"src/x.c": tu("src/x.c", header, relative)})
	nodes, _ := labels(r)

	assert.Contains(t, nodes, "file:include/config.h")
	assert.Contains(t, nodes, "file:src/level.c")
	assert.NotContains(t, nodes, "file:src/x.c", "files without accepted entities get no node")
}

func mainTree() map[string]*tree.Node {
	callGreet := ref(tree.KindCallExpr, "greet", "main.c")
	callPrintf := ref(tree.KindCallExpr, "printf", "main.c")
	callAdd := ref(tree.KindCallExpr, "add", "main.c")
	return map[string]*tree.Node{
		"main.c": tu("main.c",
			decl(tree.KindStructDecl, "Person", "main.c", true, fieldDecl("age", "int", "main.c")),
			funcDecl("greet", "void", "main.c", true,
				&tree.Node{Kind: "PARM_DECL", Spelling: "p", Location: at("main.c", 9), Children: []*tree.Node{
					ref(tree.KindTypeRef, "struct Person", "main.c"),
				}},
				callPrintf,
			),
			funcDecl("main", "int", "main.c", true,
				varDecl("person", "struct Person", "main.c", ref(tree.KindTypeRef, "struct Person", "main.c")),
				callGreet,
				varDecl("sum", "int", "main.c", callAdd),
				ref(tree.KindTypeRef, "struct Unknown", "main.c"),
			),
		),
		"utils.c": tu("utils.c", funcDecl("add", "int", "utils.c", true)),
	}
}

func TestBuild_ReferenceEdges(t *testing.T) {
	r := build(t, mainTree(), WithReferences(true))
	nodes, edges := labels(r)

	assert.Contains(t, edges, "function:greet -uses-> type:struct Person")
	assert.Contains(t, edges, "variable:person -uses-> type:struct Person")
	assert.Contains(t, edges, "function:main -calls-> function:greet")
	assert.Contains(t, edges, "function:main -calls-> function:add")
	assert.NotContains(t, nodes, "function:printf", "unresolved callees are not fabricated")
	assert.NotContains(t, nodes, "type:struct Unknown")

	assert.Equal(t, 1, r.Diagnostics.Counts[SkipUnresolvedCall])
	assert.Equal(t, 1, r.Diagnostics.Counts[SkipUnresolvedTypeRef])
}

func TestBuild_ReferencesDisabled(t *testing.T) {
	r := build(t, mainTree())
	_, edges := labels(r)
	for _, e := range edges {
		assert.NotContains(t, e, "-calls->")
		assert.NotContains(t, e, "-uses->")
	}
}

func TestBuild_CallOutsideFunction(t *testing.T) {
	trees := map[string]*tree.Node{
		"x.c": tu("x.c",
			funcDecl("init", "void", "x.c", true),
			ref(tree.KindCallExpr, "init", "x.c"),
			ref(tree.KindTypeRef, "struct S", "x.c"),
		),
	}
	r := build(t, trees, WithReferences(true))
	assert.Equal(t, 1, r.Diagnostics.Counts[SkipNoEnclosingFunc])
	assert.Equal(t, 1, r.Diagnostics.Counts[SkipNoEnclosingEntity])
}

func TestBuild_ConcurrentMatchesSequential(t *testing.T) {
	trees := mainTree()
	for i := 0; i < 8; i++ {
		name := fmt.Sprintf("gen%d.c", i)
		trees[name] = tu(name,
			decl(tree.KindStructDecl, "Person", name, false),
			funcDecl(fmt.Sprintf("helper%d", i%3), "int", name, i%2 == 0,
				ref(tree.KindCallExpr, "add", name),
			),
			varDecl("shared", "int", name),
		)
	}

	sequential := build(t, trees, WithReferences(true))
	for _, workers := range []int{2, 4, 16} {
		concurrent := build(t, trees, WithReferences(true), WithWorkers(workers))
		assert.Equal(t, sequential.Nodes, concurrent.Nodes, "workers=%d", workers)
		assert.Equal(t, sequential.Edges, concurrent.Edges, "workers=%d", workers)
		assert.Equal(t, sequential.Diagnostics.Counts, concurrent.Diagnostics.Counts, "workers=%d", workers)
	}
}

func TestBuild_Progress(t *testing.T) {
	var updates []BuildProgress
	build(t, mainTree(), WithProgress(func(p BuildProgress) {
		updates = append(updates, p)
	}))

	require.Len(t, updates, 2)
	assert.Equal(t, 2, updates[1].FilesTotal)
	assert.Equal(t, 2, updates[1].FilesProcessed)
	assert.Positive(t, updates[1].NodesCreated)
	assert.Positive(t, updates[1].EdgesCreated)
}

func TestBuild_Empty(t *testing.T) {
	r := build(t, nil)
	assert.Empty(t, r.Nodes)
	assert.Empty(t, r.Edges)
	assert.Zero(t, r.Files)
}

func TestDedupEdges(t *testing.T) {
	in := []Edge{
		{Source: 0, Target: 1, Relation: RelationDefines},
		{Source: 0, Target: 1, Relation: RelationDeclares},
		{Source: 0, Target: 1, Relation: RelationDefines},
		{Source: 1, Target: 2, Relation: RelationReturns},
	}
	out := DedupEdges(in)
	assert.Equal(t, []Edge{in[0], in[1], in[3]}, out)
}

func TestAggregateName(t *testing.T) {
	assert.Equal(t, "Point", aggregateName("struct Point"))
	assert.Equal(t, "ns::Widget", aggregateName("class ns::Widget"))
	assert.Equal(t, "Point", aggregateName("Point"))
}
