package graph

import (
	"testing"

	"github.com/abramin/codegraph/internal/tree"
)

func TestFilterAccept(t *testing.T) {
	project := func(file string) *tree.Location {
		return &tree.Location{File: file, Line: 1, Column: 1, IsProjectFile: true}
	}

	tests := []struct {
		name   string
		node   *tree.Node
		want   bool
		reason SkipReason
	}{
		{
			name: "project function",
			node: &tree.Node{Kind: tree.KindFunctionDecl, Spelling: "greet", Location: project("/proj/main.c")},
			want: true,
		},
		{
			name:   "empty name",
			node:   &tree.Node{Kind: tree.KindStructDecl, Spelling: "", Location: project("/proj/main.c")},
			reason: SkipEmptyName,
		},
		{
			name:   "missing location",
			node:   &tree.Node{Kind: tree.KindVarDecl, Spelling: "count"},
			reason: SkipNoLocation,
		},
		{
			name:   "location without file",
			node:   &tree.Node{Kind: tree.KindVarDecl, Spelling: "count", Location: &tree.Location{IsProjectFile: true}},
			reason: SkipNoLocation,
		},
		{
			name: "outside project",
			node: &tree.Node{Kind: tree.KindFunctionDecl, Spelling: "printf", Location: &tree.Location{
				File: "/opt/sdk/stdio.h", IsProjectFile: false,
			}},
			reason: SkipNotProjectFile,
		},
		{
			name:   "system header",
			node:   &tree.Node{Kind: tree.KindFunctionDecl, Spelling: "printf", Location: project("/usr/include/stdio.h")},
			reason: SkipSystemHeader,
		},
		{
			name:   "single underscore",
			node:   &tree.Node{Kind: tree.KindFunctionDecl, Spelling: "_internal", Location: project("/proj/main.c")},
			reason: SkipReservedName,
		},
		{
			name:   "double underscore",
			node:   &tree.Node{Kind: tree.KindVarDecl, Spelling: "__errno", Location: project("/proj/main.c")},
			reason: SkipReservedName,
		},
		{
			name:   "call expression is not an entity",
			node:   &tree.Node{Kind: tree.KindCallExpr, Spelling: "greet", Location: project("/proj/main.c")},
			reason: SkipUninterestingKind,
		},
		{
			name: "inclusion directive",
			node: &tree.Node{Kind: tree.KindInclusionDirective, Spelling: "utils.h", Location: project("/proj/main.c")},
			want: true,
		},
	}

	f := NewFilter()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, reason := f.Accept(tt.node)
			if got != tt.want {
				t.Errorf("Accept() = %v, want %v", got, tt.want)
			}
			if reason != tt.reason {
				t.Errorf("reason = %q, want %q", reason, tt.reason)
			}
		})
	}
}

func TestFilterIsSystemPath(t *testing.T) {
	f := &Filter{SystemPrefixes: []string{"/usr/include/", "/opt/toolchain"}}

	tests := []struct {
		path string
		want bool
	}{
		{"/usr/include/stdio.h", true},
		{"/usr/include", true},
		{"/usr/includes/stdio.h", false},
		{"/opt/toolchain/lib/x.h", true},
		{"/home/dev/proj/main.c", false},
		{"utils.h", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := f.IsSystemPath(tt.path); got != tt.want {
				t.Errorf("IsSystemPath(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestFilterReservedPrefixDisabled(t *testing.T) {
	f := &Filter{}
	if f.IsReserved("_x") {
		t.Error("expected empty reserved prefix to accept every name")
	}
}

func TestIsEntityKind(t *testing.T) {
	for _, k := range []tree.Kind{
		tree.KindFunctionDecl, tree.KindStructDecl, tree.KindClassDecl, tree.KindVarDecl,
		tree.KindFieldDecl, tree.KindCXXMethod, tree.KindInclusionDirective,
	} {
		if !IsEntityKind(k) {
			t.Errorf("expected %s to be an entity kind", k)
		}
	}
	for _, k := range []tree.Kind{tree.KindCallExpr, tree.KindTypeRef, tree.KindTranslationUnit, "PARM_DECL"} {
		if IsEntityKind(k) {
			t.Errorf("expected %s not to be an entity kind", k)
		}
	}
}
