package record

import (
	"strconv"
	"strings"

	"github.com/abramin/codegraph/internal/graph"
)

// relationPhrases maps relations to their prose form. Relations not listed
// are written as their raw name.
var relationPhrases = map[graph.Relation]string{
	graph.RelationDefines:  "defines",
	graph.RelationIncludes: "includes",
	graph.RelationHasField: "has field",
	graph.RelationHasType:  "has type",
	graph.RelationReturns:  "returns",
}

// RelationPhrase returns the prose form of rel.
func RelationPhrase(rel graph.Relation) string {
	if phrase, ok := relationPhrases[rel]; ok {
		return phrase
	}
	return string(rel)
}

// Serialize renders one record per node followed by one record per edge.
// Edges whose endpoints are not in nodes are dropped; their index is still
// consumed, so edge ids keep matching positions in the edge list.
func Serialize(nodes []graph.Node, edges []graph.Edge) []Record {
	byID := make(map[graph.NodeID]graph.Node, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}
	outgoing := make(map[graph.NodeID][]graph.Edge)
	for _, e := range edges {
		outgoing[e.Source] = append(outgoing[e.Source], e)
	}

	records := make([]Record, 0, len(nodes)+len(edges))
	for _, n := range nodes {
		records = append(records, Record{
			Kind: KindNode,
			ID:   strconv.Itoa(int(n.ID)),
			Text: nodeText(n, outgoing[n.ID], byID),
			Type: string(n.Type),
			Name: n.Name,
		})
	}

	for i, e := range edges {
		src, ok := byID[e.Source]
		if !ok {
			continue
		}
		dst, ok := byID[e.Target]
		if !ok {
			continue
		}
		records = append(records, Record{
			Kind:     KindEdge,
			ID:       "e" + strconv.Itoa(i),
			Text:     EdgeText(src, dst, e.Relation),
			SourceID: strconv.Itoa(int(e.Source)),
			TargetID: strconv.Itoa(int(e.Target)),
			Relation: string(e.Relation),
		})
	}
	return records
}

// EdgeText describes an edge as "<type> '<name>' <phrase> <type> '<name>'".
func EdgeText(src, dst graph.Node, rel graph.Relation) string {
	var sb strings.Builder
	sb.WriteString(string(src.Type))
	sb.WriteString(" '")
	sb.WriteString(src.Name)
	sb.WriteString("' ")
	sb.WriteString(RelationPhrase(rel))
	sb.WriteString(" ")
	sb.WriteString(string(dst.Type))
	sb.WriteString(" '")
	sb.WriteString(dst.Name)
	sb.WriteString("'")
	return sb.String()
}

func nodeText(n graph.Node, out []graph.Edge, byID map[graph.NodeID]graph.Node) string {
	text := capitalize(string(n.Type)) + ": " + n.Name

	switch n.Type {
	case graph.EntityFile:
		var defines []string
		for _, e := range out {
			if e.Relation != graph.RelationDefines {
				continue
			}
			if target, ok := byID[e.Target]; ok {
				defines = append(defines, string(target.Type)+" "+target.Name)
			}
		}
		if len(defines) > 0 {
			text += "\nDefines: " + strings.Join(defines, ", ")
		}

	case graph.EntityFunction, graph.EntityMethod:
		for _, e := range out {
			if e.Relation != graph.RelationReturns {
				continue
			}
			if target, ok := byID[e.Target]; ok {
				text += " returns " + target.Name
			}
		}

	case graph.EntityStruct, graph.EntityClass:
		var fields []string
		for _, e := range out {
			if e.Relation != graph.RelationHasField {
				continue
			}
			if target, ok := byID[e.Target]; ok {
				fields = append(fields, target.Name)
			}
		}
		if len(fields) > 0 {
			text += "\nFields: " + strings.Join(fields, ", ")
		}
	}
	return text
}

// capitalize upper-cases the first letter and lower-cases the rest.
func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}
