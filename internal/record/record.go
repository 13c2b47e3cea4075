// Package record renders a built graph as a flat stream of self-describing
// text records for a downstream text-embedding index.
package record

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Kind distinguishes node records from edge records.
type Kind string

const (
	KindNode Kind = "node"
	KindEdge Kind = "edge"
)

// Record is one unit of the serialized stream. Node records carry Type and
// Name, edge records carry SourceID, TargetID and Relation.
type Record struct {
	Kind     Kind
	ID       string
	Text     string
	Type     string
	Name     string
	SourceID string
	TargetID string
	Relation string
}

type nodeJSON struct {
	ID   string `json:"id"`
	Text string `json:"text"`
	Type string `json:"type"`
	Name string `json:"name"`
}

type edgeJSON struct {
	ID       string `json:"id"`
	Text     string `json:"text"`
	SourceID string `json:"source_id"`
	TargetID string `json:"target_id"`
	Relation string `json:"relation"`
}

// MarshalJSON emits the node or edge wire shape.
func (r Record) MarshalJSON() ([]byte, error) {
	switch r.Kind {
	case KindNode:
		return marshalNoEscape(nodeJSON{ID: r.ID, Text: r.Text, Type: r.Type, Name: r.Name})
	case KindEdge:
		return marshalNoEscape(edgeJSON{
			ID:       r.ID,
			Text:     r.Text,
			SourceID: r.SourceID,
			TargetID: r.TargetID,
			Relation: r.Relation,
		})
	default:
		return nil, fmt.Errorf("record %q: unknown kind %q", r.ID, r.Kind)
	}
}

// UnmarshalJSON reads either wire shape; records with a source_id are edges.
func (r *Record) UnmarshalJSON(data []byte) error {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	if _, isEdge := probe["source_id"]; isEdge {
		var e edgeJSON
		if err := json.Unmarshal(data, &e); err != nil {
			return err
		}
		*r = Record{Kind: KindEdge, ID: e.ID, Text: e.Text, SourceID: e.SourceID, TargetID: e.TargetID, Relation: e.Relation}
		return nil
	}
	var n nodeJSON
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*r = Record{Kind: KindNode, ID: n.ID, Text: n.Text, Type: n.Type, Name: n.Name}
	return nil
}

// marshalNoEscape keeps '<', '>' and '&' literal, as in C++ type spellings.
func marshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
