package store

import (
	"strconv"

	"github.com/abramin/codegraph/internal/record"
)

// Metadata keys written by the indexer.
const (
	MetaIndexedAt   = "indexed_at"
	MetaProjectRoot = "project_root"
	MetaRunID       = "run_id"
	MetaInputHash   = "input_hash"
)

// Node is a persisted graph node.
type Node struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
	Name string `json:"name"`
	Text string `json:"text"`
}

// Edge is a persisted graph edge. ID is the edge record id ("e12").
type Edge struct {
	ID       string `json:"id"`
	Seq      int    `json:"seq"`
	SourceID int64  `json:"source_id"`
	TargetID int64  `json:"target_id"`
	Relation string `json:"relation"`
	Text     string `json:"text"`
}

// File is an input file with its tree fingerprint.
type File struct {
	Path        string `json:"path"`
	Fingerprint string `json:"fingerprint"`
	TreeNodes   int    `json:"tree_nodes"`
}

// NodeFilter narrows node listings.
type NodeFilter struct {
	Type   string
	Limit  int
	Offset int
}

// NodeFromRecord converts a node record. ok is false for edge records or
// non-numeric ids.
func NodeFromRecord(r record.Record) (Node, bool) {
	if r.Kind != record.KindNode {
		return Node{}, false
	}
	id, err := strconv.ParseInt(r.ID, 10, 64)
	if err != nil {
		return Node{}, false
	}
	return Node{ID: id, Type: r.Type, Name: r.Name, Text: r.Text}, true
}

// EdgeFromRecord converts an edge record.
func EdgeFromRecord(r record.Record) (Edge, bool) {
	if r.Kind != record.KindEdge || len(r.ID) < 2 {
		return Edge{}, false
	}
	seq, err := strconv.Atoi(r.ID[1:])
	if err != nil {
		return Edge{}, false
	}
	src, err := strconv.ParseInt(r.SourceID, 10, 64)
	if err != nil {
		return Edge{}, false
	}
	dst, err := strconv.ParseInt(r.TargetID, 10, 64)
	if err != nil {
		return Edge{}, false
	}
	return Edge{ID: r.ID, Seq: seq, SourceID: src, TargetID: dst, Relation: r.Relation, Text: r.Text}, true
}

// Record returns the node as a serialized record.
func (n Node) Record() record.Record {
	return record.Record{
		Kind: record.KindNode,
		ID:   strconv.FormatInt(n.ID, 10),
		Text: n.Text,
		Type: n.Type,
		Name: n.Name,
	}
}

// Record returns the edge as a serialized record.
func (e Edge) Record() record.Record {
	return record.Record{
		Kind:     record.KindEdge,
		ID:       e.ID,
		Text:     e.Text,
		SourceID: strconv.FormatInt(e.SourceID, 10),
		TargetID: strconv.FormatInt(e.TargetID, 10),
		Relation: e.Relation,
	}
}
