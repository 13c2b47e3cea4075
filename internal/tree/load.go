package tree

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/zeebo/xxh3"
)

// ErrEmptyInput is returned when an export contains no file trees.
var ErrEmptyInput = errors.New("tree export contains no files")

// Set is the decoded front-end export: one root node per source file,
// keyed by the path the front end recorded for it.
type Set struct {
	Files map[string]*Node
	// Hashes holds an xxh3 fingerprint of each file's raw tree JSON.
	Hashes map[string]string
	// InputHash fingerprints the whole export.
	InputHash string
}

// Paths returns the file keys in sorted order.
func (s *Set) Paths() []string {
	paths := make([]string, 0, len(s.Files))
	for p := range s.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// NodeCount returns the total number of nodes across all files.
func (s *Set) NodeCount() int {
	total := 0
	for _, root := range s.Files {
		total += Count(root)
	}
	return total
}

// LoadFile reads and decodes an export written by the front end.
func LoadFile(path string) (*Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening tree export: %w", err)
	}
	defer f.Close()

	set, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return set, nil
}

// Decode reads an export of the form {"<file>": <root node>, ...}.
func Decode(r io.Reader) (*Set, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading tree export: %w", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing tree export: %w", err)
	}
	if len(raw) == 0 {
		return nil, ErrEmptyInput
	}

	set := &Set{
		Files:     make(map[string]*Node, len(raw)),
		Hashes:    make(map[string]string, len(raw)),
		InputHash: fingerprint(data),
	}
	for path, msg := range raw {
		var root Node
		if err := json.Unmarshal(msg, &root); err != nil {
			return nil, fmt.Errorf("parsing tree for %s: %w", path, err)
		}
		set.Files[path] = &root
		set.Hashes[path] = fingerprint(msg)
	}
	return set, nil
}

func fingerprint(data []byte) string {
	sum := xxh3.Hash128(data).Bytes()
	return hex.EncodeToString(sum[:])
}
