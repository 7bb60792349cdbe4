package scenario

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Loader reads one scenario per file from a directory. YAML (.yaml, .yml)
// and JSON with comments (.json, .jsonc) are accepted; other files are
// ignored.
type Loader struct {
	fsys fs.FS
	dir  string
}

// NewLoader reads scenarios from the directory dir on disk.
func NewLoader(dir string) *Loader {
	return &Loader{fsys: os.DirFS(dir), dir: "."}
}

// NewLoaderFS reads scenarios from dir within fsys.
func NewLoaderFS(fsys fs.FS, dir string) *Loader {
	return &Loader{fsys: fsys, dir: dir}
}

// LoadAll decodes every scenario file, sorted by file name.
func (l *Loader) LoadAll() ([]Definition, error) {
	entries, err := fs.ReadDir(l.fsys, l.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: reading scenarios directory: %w", ErrInvalidSource, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || decoderFor(e.Name()) == nil {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	defs := make([]Definition, 0, len(names))
	for _, name := range names {
		path := filepath.ToSlash(filepath.Join(l.dir, name))
		data, err := fs.ReadFile(l.fsys, path)
		if err != nil {
			return nil, fmt.Errorf("%w: reading %s: %w", ErrInvalidSource, name, err)
		}
		def, err := Decode(name, data)
		if err != nil {
			return nil, err
		}
		defs = append(defs, *def)
	}
	return defs, nil
}

// Decode parses one scenario source. name selects the format by extension.
func Decode(name string, data []byte) (*Definition, error) {
	decode := decoderFor(name)
	if decode == nil {
		return nil, fmt.Errorf("%w: %s: unsupported file type", ErrInvalidSource, name)
	}
	var def Definition
	if err := decode(data, &def); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidSource, name, err)
	}
	def.Source = name
	return &def, nil
}

type decodeFunc func(data []byte, def *Definition) error

func decoderFor(name string) decodeFunc {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		return decodeYAML
	case ".json", ".jsonc":
		return decodeJSONC
	default:
		return nil
	}
}

func decodeYAML(data []byte, def *Definition) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	return dec.Decode(def)
}

func decodeJSONC(data []byte, def *Definition) error {
	dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
	dec.DisallowUnknownFields()
	return dec.Decode(def)
}
