package tree

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleExport = `{
  "src/main.c": {
    "id": "1",
    "kind": "TRANSLATION_UNIT",
    "spelling": "src/main.c",
    "parent_id": null,
    "is_definition": false,
    "location": null,
    "children": [
      {
        "id": "2",
        "kind": "STRUCT_DECL",
        "spelling": "Person",
        "parent_id": "1",
        "is_definition": true,
        "location": {"file": "/proj/src/main.c", "line": 4, "column": 8, "is_project_file": true},
        "type": "struct Person",
        "children": [
          {
            "id": 3,
            "kind": "FIELD_DECL",
            "spelling": "age",
            "parent_id": 2,
            "is_definition": true,
            "location": {"file": "/proj/src/main.c", "line": 6, "column": 9, "is_project_file": true},
            "type": "int",
            "children": []
          }
        ]
      }
    ]
  }
}`

func TestDecode(t *testing.T) {
	set, err := Decode(strings.NewReader(sampleExport))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	root, ok := set.Files["src/main.c"]
	if !ok {
		t.Fatal("expected src/main.c in export")
	}
	if root.Kind != KindTranslationUnit {
		t.Errorf("expected root kind %s, got %s", KindTranslationUnit, root.Kind)
	}
	if root.Location != nil {
		t.Error("expected nil root location")
	}
	if root.ParentID != nil {
		t.Errorf("expected nil parent id, got %q", *root.ParentID)
	}

	if len(root.Children) != 1 || len(root.Children[0].Children) != 1 {
		t.Fatal("expected struct with one field")
	}
	field := root.Children[0].Children[0]
	if field.ID != "3" {
		t.Errorf("expected numeric id 3 to decode as \"3\", got %q", field.ID)
	}
	if field.ParentID == nil || *field.ParentID != "2" {
		t.Errorf("expected parent id 2, got %v", field.ParentID)
	}
	if field.Type != "int" {
		t.Errorf("expected type int, got %q", field.Type)
	}
	if field.File() != "/proj/src/main.c" || field.Line() != 6 {
		t.Errorf("unexpected location %s:%d", field.File(), field.Line())
	}

	if set.NodeCount() != 3 {
		t.Errorf("expected 3 nodes, got %d", set.NodeCount())
	}
	if set.InputHash == "" || set.Hashes["src/main.c"] == "" {
		t.Error("expected fingerprints to be populated")
	}
}

func TestDecodeFingerprintStable(t *testing.T) {
	a, err := Decode(strings.NewReader(sampleExport))
	if err != nil {
		t.Fatal(err)
	}
	b, err := Decode(strings.NewReader(sampleExport))
	if err != nil {
		t.Fatal(err)
	}
	if a.InputHash != b.InputHash {
		t.Error("expected identical input to hash identically")
	}

	c, err := Decode(strings.NewReader(strings.Replace(sampleExport, "Person", "People", 1)))
	if err != nil {
		t.Fatal(err)
	}
	if c.Hashes["src/main.c"] == a.Hashes["src/main.c"] {
		t.Error("expected changed tree to change its fingerprint")
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		empty bool
	}{
		{"empty object", `{}`, true},
		{"not json", `nope`, false},
		{"bad node", `{"a.c": {"id": true}}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.input))
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.empty && !errors.Is(err, ErrEmptyInput) {
				t.Errorf("expected ErrEmptyInput, got %v", err)
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ast_output.json")
	if err := os.WriteFile(path, []byte(sampleExport), 0644); err != nil {
		t.Fatal(err)
	}

	set, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if got := set.Paths(); len(got) != 1 || got[0] != "src/main.c" {
		t.Errorf("unexpected paths %v", got)
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestWalkSkipsChildren(t *testing.T) {
	root := &Node{ID: "1", Children: []*Node{
		{ID: "2", Children: []*Node{{ID: "3"}}},
		{ID: "4"},
	}}

	var seen []NodeID
	Walk(root, func(n *Node) bool {
		seen = append(seen, n.ID)
		return n.ID != "2"
	})

	want := []NodeID{"1", "2", "4"}
	if len(seen) != len(want) {
		t.Fatalf("expected %v, got %v", want, seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], seen[i])
		}
	}
}

func TestKindPredicates(t *testing.T) {
	if !KindCXXMethod.IsFunction() || !KindFunctionDecl.IsFunction() {
		t.Error("expected function kinds to report IsFunction")
	}
	if KindStructDecl.IsFunction() {
		t.Error("struct is not a function")
	}
	if !KindClassDecl.IsAggregate() || KindFieldDecl.IsAggregate() {
		t.Error("unexpected IsAggregate result")
	}
}
