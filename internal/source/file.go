package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/rshade/cohort/internal/record"
)

// Encodings understood by file and reader sources.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// FileSource reads a JSON or YAML sequence of records from disk on every Load.
type FileSource struct {
	path   string
	format string
}

// NewFileSource returns a source for path; the encoding follows its extension.
func NewFileSource(path string) (*FileSource, error) {
	format, err := FormatFor(path)
	if err != nil {
		return nil, err
	}
	return &FileSource{path: path, format: format}, nil
}

// Path returns the file the source reads.
func (s *FileSource) Path() string {
	return s.path
}

// Load implements Source.
func (s *FileSource) Load(_ context.Context) ([]record.Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("reading records from %s: %w", s.path, err)
	}
	records, err := Decode(data, s.format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.path, err)
	}
	return records, nil
}

// Close implements Source.
func (s *FileSource) Close() error {
	return nil
}

// ReaderSource decodes records from a stream. The stream is consumed by the first
// Load; later calls return the same records or error. It is safe for concurrent use.
type ReaderSource struct {
	r      io.Reader
	format string

	once    sync.Once
	records []record.Record
	err     error
}

// NewReaderSource returns a source decoding r with the given format.
func NewReaderSource(r io.Reader, format string) *ReaderSource {
	return &ReaderSource{r: r, format: format}
}

// Load implements Source.
func (s *ReaderSource) Load(_ context.Context) ([]record.Record, error) {
	s.once.Do(func() {
		data, err := io.ReadAll(s.r)
		if err != nil {
			s.err = fmt.Errorf("reading records: %w", err)
			return
		}
		s.records, s.err = Decode(data, s.format)
	})
	if s.err != nil {
		return nil, s.err
	}
	return s.records, nil
}

// Close implements Source.
func (s *ReaderSource) Close() error {
	if c, ok := s.r.(io.Closer); ok && s.r != os.Stdin {
		return c.Close()
	}
	return nil
}

// Decode parses data as a sequence of records. JSON numbers are kept as json.Number
// so integer measures stay exact.
func Decode(data []byte, format string) ([]record.Record, error) {
	var records []record.Record

	switch format {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&records); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedRecords, err)
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedRecords, err)
		}
	default:
		return nil, fmt.Errorf("%w: format %q", ErrUnsupportedSource, format)
	}

	return records, nil
}

// DecodePatients parses data as a sequence of typed patients.
func DecodePatients(data []byte, format string) ([]record.Patient, error) {
	var patients []record.Patient

	switch format {
	case FormatJSON:
		if err := json.Unmarshal(data, &patients); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedRecords, err)
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &patients); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedRecords, err)
		}
	default:
		return nil, fmt.Errorf("%w: format %q", ErrUnsupportedSource, format)
	}

	return patients, nil
}

// FormatFor returns the encoding implied by path's extension.
func FormatFor(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("%w: %q (want .json, .yaml, .yml or postgres://)", ErrUnsupportedSource, path)
	}
}
