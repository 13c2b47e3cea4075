package graph

import (
	"path/filepath"
	"strings"

	"github.com/abramin/codegraph/internal/tree"
)

// DefaultSystemPrefixes are the include trees treated as system headers.
var DefaultSystemPrefixes = []string{
	"/usr/include",
	"/usr/local/include",
	"/usr/lib",
}

// DefaultReservedPrefix marks implementation-reserved names.
const DefaultReservedPrefix = "_"

// entityKinds are the cursor kinds that can become graph entities.
var entityKinds = map[tree.Kind]bool{
	tree.KindFunctionDecl:       true,
	tree.KindStructDecl:         true,
	tree.KindClassDecl:          true,
	tree.KindVarDecl:            true,
	tree.KindFieldDecl:          true,
	tree.KindCXXMethod:          true,
	tree.KindInclusionDirective: true,
}

// IsEntityKind reports whether k is subject to the entity filter.
func IsEntityKind(k tree.Kind) bool {
	return entityKinds[k]
}

// Filter decides whether a tree node denotes a project-owned entity.
type Filter struct {
	SystemPrefixes []string
	ReservedPrefix string
}

// NewFilter returns a filter with the default system prefixes and
// reserved-name prefix.
func NewFilter() *Filter {
	return &Filter{
		SystemPrefixes: append([]string(nil), DefaultSystemPrefixes...),
		ReservedPrefix: DefaultReservedPrefix,
	}
}

// Accept reports whether n should become a graph node. When it should not,
// the returned reason says why.
func (f *Filter) Accept(n *tree.Node) (bool, SkipReason) {
	if n.Spelling == "" {
		return false, SkipEmptyName
	}
	if n.Location == nil || n.Location.File == "" {
		return false, SkipNoLocation
	}
	if !n.Location.IsProjectFile {
		return false, SkipNotProjectFile
	}
	if f.IsSystemPath(n.Location.File) {
		return false, SkipSystemHeader
	}
	if f.IsReserved(n.Spelling) {
		return false, SkipReservedName
	}
	if !IsEntityKind(n.Kind) {
		return false, SkipUninterestingKind
	}
	return true, SkipNone
}

// IsSystemPath reports whether path lies under one of the system prefixes.
func (f *Filter) IsSystemPath(path string) bool {
	p := filepath.ToSlash(path)
	for _, prefix := range f.SystemPrefixes {
		prefix = strings.TrimSuffix(filepath.ToSlash(prefix), "/")
		if prefix == "" {
			continue
		}
		if p == prefix || strings.HasPrefix(p, prefix+"/") {
			return true
		}
	}
	return false
}

// IsReserved reports whether name starts with the reserved prefix.
func (f *Filter) IsReserved(name string) bool {
	return f.ReservedPrefix != "" && strings.HasPrefix(name, f.ReservedPrefix)
}
