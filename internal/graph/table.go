package graph

import "sync"

// Table maps (entity type, name) pairs to dense node ids. It is the only
// shared mutable state of a build and is safe for concurrent use; ids are
// assigned in call order, so callers that need reproducible ids must
// serialize the order of Resolve calls themselves.
type Table struct {
	mu    sync.Mutex
	ids   map[key]NodeID
	nodes []Node
}

// NewTable creates an empty identity table.
func NewTable() *Table {
	return &Table{ids: make(map[key]NodeID)}
}

// Resolve returns the id of the (typ, name) node, creating it if absent.
func (t *Table) Resolve(typ EntityType, name string) NodeID {
	t.mu.Lock()
	defer t.mu.Unlock()

	k := key{typ: typ, name: name}
	if id, ok := t.ids[k]; ok {
		return id
	}
	id := NodeID(len(t.nodes))
	t.ids[k] = id
	t.nodes = append(t.nodes, Node{ID: id, Type: typ, Name: name})
	return id
}

// Lookup returns the id of an existing node.
func (t *Table) Lookup(typ EntityType, name string) (NodeID, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id, ok := t.ids[key{typ: typ, name: name}]
	return id, ok
}

// Node returns the node with the given id.
func (t *Table) Node(id NodeID) (Node, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id < 0 || int(id) >= len(t.nodes) {
		return Node{}, false
	}
	return t.nodes[id], true
}

// Len returns the number of nodes created so far.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.nodes)
}

// Nodes returns a snapshot of all nodes in id order.
func (t *Table) Nodes() []Node {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Node, len(t.nodes))
	copy(out, t.nodes)
	return out
}
