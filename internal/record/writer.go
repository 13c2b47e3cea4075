package record

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Format selects the on-disk layout of a record stream.
type Format string

const (
	// FormatJSON writes a single indented JSON array.
	FormatJSON Format = "json"
	// FormatJSONL writes one compact record per line.
	FormatJSONL Format = "jsonl"
)

// ErrUnknownFormat is returned for formats other than json and jsonl.
var ErrUnknownFormat = errors.New("unknown record format")

// Write encodes records to w in the given format.
func Write(w io.Writer, records []Record, format Format) error {
	switch format {
	case FormatJSON, "":
		if records == nil {
			records = []Record{}
		}
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		if err := enc.Encode(records); err != nil {
			return fmt.Errorf("encoding records: %w", err)
		}
		return nil

	case FormatJSONL:
		bw := bufio.NewWriter(w)
		enc := json.NewEncoder(bw)
		enc.SetEscapeHTML(false)
		for _, r := range records {
			if err := enc.Encode(r); err != nil {
				return fmt.Errorf("encoding record %s: %w", r.ID, err)
			}
		}
		return bw.Flush()

	default:
		return fmt.Errorf("%w: %s", ErrUnknownFormat, format)
	}
}

// WriteFile writes records to path, creating parent directories.
func WriteFile(path string, records []Record, format Format) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := Write(f, records, format); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Read decodes a record stream in either format.
func Read(r io.Reader) ([]Record, error) {
	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}

	var records []Record
	if first == '[' {
		if err := json.NewDecoder(br).Decode(&records); err != nil {
			return nil, fmt.Errorf("decoding record array: %w", err)
		}
		return records, nil
	}

	dec := json.NewDecoder(br)
	for {
		var rec Record
		if err := dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				return records, nil
			}
			return nil, fmt.Errorf("decoding record %d: %w", len(records), err)
		}
		records = append(records, rec)
	}
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		}
		return b, br.UnreadByte()
	}
}
