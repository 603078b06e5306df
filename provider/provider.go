// Package provider supplies externally loaded data rows for data-driven
// scenarios. The engine calls LoadFromTag with the scenario's @DataProvider
// tag argument; skipping rows flagged _execute:false is the engine's job,
// not the provider's.
package provider

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/log"
	"gopkg.in/yaml.v3"

	"github.com/stepflow-dev/stepflow/types"
)

// ExecuteFlag is the reserved row key controlling whether a row runs.
const ExecuteFlag = "_execute"

// Row is one data row. Values are strings; placeholder substitution works on
// text, so providers normalize scalar cells to their string form.
type Row map[string]string

// Execute reports whether the engine should run this row. Absent flag means
// run; only an explicit false/0/no value disables the row.
func (r Row) Execute() bool {
	v, ok := r[ExecuteFlag]
	if !ok {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "false", "0", "no":
		return false
	default:
		return true
	}
}

// DataProvider loads rows for a @DataProvider tag argument.
type DataProvider interface {
	LoadFromTag(tag string) ([]Row, error)
}

// DataTag extracts the @DataProvider(...) argument from a tag list.
func DataTag(tags []string) (string, bool) {
	return types.TagArg(tags, "DataProvider")
}

// FileProvider loads data rows from YAML files in a directory. The tag
// argument names the file, with or without extension.
type FileProvider struct {
	dir string
	log log.Logger
}

// NewFileProvider creates a provider rooted at dir.
func NewFileProvider(dir string, logger log.Logger) *FileProvider {
	if logger == nil {
		logger = log.New()
	}
	return &FileProvider{dir: dir, log: logger.New("component", "data-provider")}
}

// LoadFromTag reads the named file and returns its rows. The file holds a
// YAML sequence of maps; scalar values are normalized to strings.
func (p *FileProvider) LoadFromTag(tag string) ([]Row, error) {
	path := filepath.Join(p.dir, tag)
	if filepath.Ext(path) == "" {
		path += ".yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read data file for tag %q: %w", tag, err)
	}

	var raw []map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse data file %s: %w", path, err)
	}

	rows := make([]Row, 0, len(raw))
	for _, m := range raw {
		row := make(Row, len(m))
		for k, v := range m {
			row[k] = fmt.Sprint(v)
		}
		rows = append(rows, row)
	}
	p.log.Debug("Loaded data rows", "tag", tag, "rows", len(rows))
	return rows, nil
}
