package server

import (
	"fmt"
	"testing"

	"github.com/abramin/codegraph/internal/store"
)

// openChainStore stores five functions linked a->b->c->d->e with a shortcut
// a->c.
//
//	0 a  1 b  2 c  3 d  4 e
func openChainStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	batch, err := st.BeginBatch()
	if err != nil {
		t.Fatal(err)
	}
	for i, name := range []string{"a", "b", "c", "d", "e"} {
		n := &store.Node{ID: int64(i), Type: "function", Name: name, Text: "Function: " + name}
		if err := batch.InsertNode(n); err != nil {
			t.Fatal(err)
		}
	}
	links := [][2]int64{{0, 1}, {1, 2}, {2, 3}, {3, 4}, {0, 2}}
	for i, l := range links {
		e := &store.Edge{ID: fmt.Sprintf("e%d", i), Seq: i, SourceID: l[0], TargetID: l[1], Relation: "calls"}
		if err := batch.InsertEdge(e); err != nil {
			t.Fatal(err)
		}
	}
	if err := batch.Commit(); err != nil {
		t.Fatal(err)
	}
	return st
}

func TestBuildFromRootShortestDepth(t *testing.T) {
	st := openChainStore(t)

	resp, err := NewGraphBuilder(st, DefaultGraphFilter()).BuildFromRoot(0, 3)
	if err != nil {
		t.Fatalf("BuildFromRoot failed: %v", err)
	}

	want := map[string]int{"a": 0, "b": 1, "c": 1, "d": 2, "e": 3}
	if len(resp.Nodes) != len(want) {
		t.Fatalf("expected %d nodes, got %d: %+v", len(want), len(resp.Nodes), resp.Nodes)
	}
	for _, n := range resp.Nodes {
		if n.Depth != want[n.Name] {
			t.Errorf("%s: expected depth %d, got %d", n.Name, want[n.Name], n.Depth)
		}
		if wantExpanded := n.Depth < 3; n.Expanded != wantExpanded {
			t.Errorf("%s: expected expanded=%v", n.Name, wantExpanded)
		}
	}
	if len(resp.Edges) != 5 {
		t.Errorf("expected all 5 edges, got %d", len(resp.Edges))
	}
}

func TestBuildFromRootDepthLimit(t *testing.T) {
	st := openChainStore(t)

	resp, err := NewGraphBuilder(st, DefaultGraphFilter()).BuildFromRoot(0, 2)
	if err != nil {
		t.Fatalf("BuildFromRoot failed: %v", err)
	}

	// e is three hops away
	if len(resp.Nodes) != 4 {
		t.Fatalf("expected 4 nodes, got %d", len(resp.Nodes))
	}
	for _, n := range resp.Nodes {
		if n.Name == "e" {
			t.Error("node beyond depth should be excluded")
		}
	}
	// a->b, b->c, c->d, a->c
	if len(resp.Edges) != 4 {
		t.Errorf("expected 4 edges, got %d", len(resp.Edges))
	}
}

func TestBuildFromRootBothDirections(t *testing.T) {
	st := openChainStore(t)

	filter := DefaultGraphFilter()
	filter.Direction = DirectionBoth
	resp, err := NewGraphBuilder(st, filter).BuildFromRoot(3, 1)
	if err != nil {
		t.Fatalf("BuildFromRoot failed: %v", err)
	}

	// c calls d, d calls e
	if len(resp.Nodes) != 3 || len(resp.Edges) != 2 {
		t.Errorf("expected 3 nodes and 2 edges, got %d and %d", len(resp.Nodes), len(resp.Edges))
	}
}
