package server

import (
	"sort"

	"github.com/abramin/codegraph/internal/store"
)

// Direction selects which edges a traversal follows.
type Direction string

const (
	DirectionOut  Direction = "out"
	DirectionIn   Direction = "in"
	DirectionBoth Direction = "both"
)

// GraphFilter specifies filters for graph traversal.
type GraphFilter struct {
	// Relations limits traversal to these relations. Empty means all.
	Relations []string `json:"relations"`
	// HideTypes drops nodes of these entity types from the result.
	HideTypes []string  `json:"hide_types"`
	Direction Direction `json:"direction"`
	MaxDepth  int       `json:"max_depth"`
}

// DefaultGraphFilter returns sensible defaults for graph filtering.
func DefaultGraphFilter() GraphFilter {
	return GraphFilter{
		Direction: DirectionOut,
		MaxDepth:  6,
	}
}

// GraphNode represents a node in the graph response.
type GraphNode struct {
	store.Node
	Expanded bool `json:"expanded"`
	Depth    int  `json:"depth"`
}

// GraphResponse is the response format for graph endpoints.
type GraphResponse struct {
	Nodes    []GraphNode  `json:"nodes"`
	Edges    []store.Edge `json:"edges"`
	RootID   int64        `json:"root_id"`
	MaxDepth int          `json:"max_depth"`
	// Filtered counts distinct nodes dropped by HideTypes.
	Filtered int `json:"filtered_count"`
}

// GraphBuilder collects the neighbourhood of a node from the store.
type GraphBuilder struct {
	store     *store.Store
	filter    GraphFilter
	relations map[string]bool
	hidden    map[string]bool
	hiddenIDs map[int64]bool
	nodes     map[int64]*GraphNode
	edges     []store.Edge
	seenEdges map[string]bool
	filtered  int
}

// NewGraphBuilder creates a new graph builder.
func NewGraphBuilder(s *store.Store, filter GraphFilter) *GraphBuilder {
	if filter.Direction == "" {
		filter.Direction = DirectionOut
	}
	gb := &GraphBuilder{
		store:     s,
		filter:    filter,
		relations: make(map[string]bool),
		hidden:    make(map[string]bool),
		hiddenIDs: make(map[int64]bool),
		nodes:     make(map[int64]*GraphNode),
		edges:     []store.Edge{},
		seenEdges: make(map[string]bool),
	}
	for _, r := range filter.Relations {
		gb.relations[r] = true
	}
	for _, t := range filter.HideTypes {
		gb.hidden[t] = true
	}
	return gb
}

// BuildFromRoot builds the graph reachable from rootID within depth hops.
// Each node carries its shortest distance from the root.
func (gb *GraphBuilder) BuildFromRoot(rootID int64, depth int) (*GraphResponse, error) {
	if gb.filter.MaxDepth > 0 && depth > gb.filter.MaxDepth {
		depth = gb.filter.MaxDepth
	}

	root, err := gb.store.GetNode(rootID)
	if err != nil {
		return nil, err
	}
	gb.nodes[rootID] = &GraphNode{Node: *root}

	if err := gb.expand(rootID, depth); err != nil {
		return nil, err
	}

	return gb.buildResponse(rootID, depth), nil
}

// addNode adds a node to the graph if it passes filters. It reports whether
// the node is present afterwards.
func (gb *GraphBuilder) addNode(id int64, depth int) (bool, error) {
	if _, exists := gb.nodes[id]; exists {
		return true, nil
	}
	if gb.hiddenIDs[id] {
		return false, nil
	}

	n, err := gb.store.GetNode(id)
	if err != nil {
		return false, err
	}

	if gb.hidden[n.Type] {
		gb.hiddenIDs[id] = true
		gb.filtered++
		return false, nil
	}

	gb.nodes[id] = &GraphNode{Node: *n, Depth: depth}
	return true, nil
}

func (gb *GraphBuilder) neighbours(id int64) ([]store.Edge, error) {
	var edges []store.Edge
	if gb.filter.Direction == DirectionOut || gb.filter.Direction == DirectionBoth {
		out, err := gb.store.GetOutgoingEdges(id)
		if err != nil {
			return nil, err
		}
		edges = append(edges, out...)
	}
	if gb.filter.Direction == DirectionIn || gb.filter.Direction == DirectionBoth {
		in, err := gb.store.GetIncomingEdges(id)
		if err != nil {
			return nil, err
		}
		edges = append(edges, in...)
	}
	return edges, nil
}

// expand walks the graph level by level from the root, so a node is first
// reached along a shortest path and expanded at most once.
func (gb *GraphBuilder) expand(rootID int64, maxDepth int) error {
	frontier := []int64{rootID}
	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		var next []int64
		for _, id := range frontier {
			edges, err := gb.neighbours(id)
			if err != nil {
				return err
			}

			for _, e := range edges {
				if len(gb.relations) > 0 && !gb.relations[e.Relation] {
					continue
				}

				other := e.TargetID
				if other == id {
					other = e.SourceID
				}

				_, known := gb.nodes[other]
				ok, err := gb.addNode(other, depth+1)
				if err != nil {
					return err
				}
				if !ok {
					continue
				}
				if !known {
					next = append(next, other)
				}

				if !gb.seenEdges[e.ID] {
					gb.seenEdges[e.ID] = true
					gb.edges = append(gb.edges, e)
				}
			}

			gb.nodes[id].Expanded = true
		}
		frontier = next
	}
	return nil
}

// buildResponse constructs the final response with nodes ordered by id and
// edges in build order.
func (gb *GraphBuilder) buildResponse(rootID int64, maxDepth int) *GraphResponse {
	nodes := make([]GraphNode, 0, len(gb.nodes))
	for _, node := range gb.nodes {
		nodes = append(nodes, *node)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	sort.Slice(gb.edges, func(i, j int) bool { return gb.edges[i].Seq < gb.edges[j].Seq })

	return &GraphResponse{
		Nodes:    nodes,
		Edges:    gb.edges,
		RootID:   rootID,
		MaxDepth: maxDepth,
		Filtered: gb.filtered,
	}
}
