package tree

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Kind is a cursor kind tag as exported by the front end.
type Kind string

const (
	KindFunctionDecl       Kind = "FUNCTION_DECL"
	KindStructDecl         Kind = "STRUCT_DECL"
	KindClassDecl          Kind = "CLASS_DECL"
	KindVarDecl            Kind = "VAR_DECL"
	KindFieldDecl          Kind = "FIELD_DECL"
	KindCXXMethod          Kind = "CXX_METHOD"
	KindInclusionDirective Kind = "INCLUSION_DIRECTIVE"
	KindCallExpr           Kind = "CALL_EXPR"
	KindTypeRef            Kind = "TYPE_REF"
	KindTranslationUnit    Kind = "TRANSLATION_UNIT"
)

// IsFunction reports whether k declares a function or method.
func (k Kind) IsFunction() bool {
	return k == KindFunctionDecl || k == KindCXXMethod
}

// IsAggregate reports whether k declares a struct or class.
func (k Kind) IsAggregate() bool {
	return k == KindStructDecl || k == KindClassDecl
}

// NodeID is the tree-local identifier of a node. The front end emits it as a
// string, older exports use plain numbers; both decode to the same value.
type NodeID string

// UnmarshalJSON accepts both "12" and 12.
func (id *NodeID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = NodeID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	if _, err := strconv.ParseInt(n.String(), 10, 64); err != nil {
		return err
	}
	*id = NodeID(n.String())
	return nil
}

// Location is the source position of a node.
type Location struct {
	File          string `json:"file"`
	Line          int    `json:"line"`
	Column        int    `json:"column"`
	IsProjectFile bool   `json:"is_project_file"`
}

// Node is one cursor of a per-file syntax tree.
type Node struct {
	ID           NodeID    `json:"id"`
	Kind         Kind      `json:"kind"`
	Spelling     string    `json:"spelling"`
	ParentID     *NodeID   `json:"parent_id"`
	Children     []*Node   `json:"children"`
	IsDefinition bool      `json:"is_definition"`
	Location     *Location `json:"location"`
	Type         string    `json:"type,omitempty"`
	ResultType   string    `json:"result_type,omitempty"`
}

// File returns the location file, or "" when the node has no location.
func (n *Node) File() string {
	if n.Location == nil {
		return ""
	}
	return n.Location.File
}

// Line returns the location line, or 0 when the node has no location.
func (n *Node) Line() int {
	if n.Location == nil {
		return 0
	}
	return n.Location.Line
}

// Walk visits n and its descendants depth-first in child order. Returning
// false from fn skips the children of the current node.
func Walk(n *Node, fn func(*Node) bool) {
	if n == nil {
		return
	}
	if !fn(n) {
		return
	}
	for _, c := range n.Children {
		Walk(c, fn)
	}
}

// Count returns the number of nodes in the tree rooted at n.
func Count(n *Node) int {
	total := 0
	Walk(n, func(*Node) bool {
		total++
		return true
	})
	return total
}
