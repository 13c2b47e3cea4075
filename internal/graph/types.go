package graph

// NodeID is the dense identifier of a graph node, assigned on first creation.
type NodeID int

// EntityType is the kind of entity a graph node represents. The builder
// never emits EntityMethod or EntityClass; methods become functions and
// classes become structs. Both remain so records from other producers
// serialize with their own labels.
type EntityType string

const (
	EntityFile     EntityType = "file"
	EntityFunction EntityType = "function"
	EntityMethod   EntityType = "method"
	EntityStruct   EntityType = "struct"
	EntityClass    EntityType = "class"
	EntityVariable EntityType = "variable"
	EntityField    EntityType = "field"
	EntityDataType EntityType = "type"
)

// Relation is the label of a graph edge.
type Relation string

const (
	RelationDefines  Relation = "defines"
	RelationDeclares Relation = "declares"
	RelationHasType  Relation = "has_type"
	RelationHasField Relation = "has_field"
	RelationReturns  Relation = "returns"
	RelationIncludes Relation = "includes"
	RelationContains Relation = "contains"
	RelationCalls    Relation = "calls"
	RelationUses     Relation = "uses"
)

// Relations lists every edge label in a stable order.
var Relations = []Relation{
	RelationDefines,
	RelationDeclares,
	RelationHasType,
	RelationHasField,
	RelationReturns,
	RelationIncludes,
	RelationContains,
	RelationCalls,
	RelationUses,
}

// Node is a deduplicated graph entity. Two occurrences with the same
// (Type, Name) always resolve to the same Node.
type Node struct {
	ID   NodeID     `json:"id"`
	Type EntityType `json:"type"`
	Name string     `json:"name"`
}

// Edge is a typed relationship between two nodes. Edges form an ordered
// multiset: the same triple may appear more than once.
type Edge struct {
	Source   NodeID   `json:"source"`
	Target   NodeID   `json:"target"`
	Relation Relation `json:"relation"`
}

// key identifies a node in the identity table.
type key struct {
	typ  EntityType
	name string
}
