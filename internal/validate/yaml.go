// Package validate checks a local config tree for YAML syntax errors.
//
// Files are parsed into yaml.Node values, which accepts the Home Assistant
// custom tags (!include, !include_dir_*, !secret, !env_var) without
// resolving them: only syntax is checked here, full semantic validation
// happens remotely after deploy.
package validate

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	apperrors "github.com/hadeploy/hadeploy/internal/errors"
)

// FileResult is the validation outcome for a single file.
type FileResult struct {
	File  string `json:"file"`
	Path  string `json:"path"`
	Valid bool   `json:"valid"`
	Line  int    `json:"line,omitempty"`
	Error string `json:"error,omitempty"`
}

// TreeResult aggregates the validation of a config tree.
type TreeResult struct {
	Valid   bool         `json:"valid"`
	Files   []FileResult `json:"files"`
	Checked int          `json:"checked"`
}

// Errors returns the failed file results.
func (r TreeResult) Errors() []FileResult {
	var failed []FileResult
	for _, f := range r.Files {
		if !f.Valid {
			failed = append(failed, f)
		}
	}
	return failed
}

// yamlLinePattern extracts the line number yaml.v3 embeds in its errors,
// e.g. "yaml: line 12: found a tab character that violates indentation".
var yamlLinePattern = regexp.MustCompile(`line (\d+)`)

// Tree validates every top-level *.yaml and *.yml file under localPath.
// secrets.yaml is skipped: it never leaves production and is not expected
// to exist locally. A non-nil error is returned only when the tree itself
// cannot be read; per-file syntax errors are reported in the result.
func Tree(localPath string) (TreeResult, error) {
	if _, err := os.Stat(localPath); err != nil {
		return TreeResult{}, fmt.Errorf("%w: %s", apperrors.ErrConfigPathNotFound, localPath)
	}

	var files []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(localPath, pattern))
		if err != nil {
			return TreeResult{}, fmt.Errorf("failed to list config files: %w", err)
		}
		files = append(files, matches...)
	}
	sort.Strings(files)

	result := TreeResult{Valid: true}
	for _, path := range files {
		if filepath.Base(path) == "secrets.yaml" {
			continue
		}
		fr := File(path)
		result.Files = append(result.Files, fr)
		result.Checked++
		if !fr.Valid {
			result.Valid = false
		}
	}

	return result, nil
}

// File validates a single YAML file for syntax errors.
func File(path string) FileResult {
	result := FileResult{
		File: filepath.Base(path),
		Path: path,
	}

	f, err := os.Open(path)
	if err != nil {
		result.Error = fmt.Sprintf("read error: %v", err)
		return result
	}
	defer f.Close()

	// Multi-document files are legal, parse every document.
	dec := yaml.NewDecoder(f)
	for {
		var node yaml.Node
		err := dec.Decode(&node)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			result.Error = strings.TrimPrefix(err.Error(), "yaml: ")
			result.Line = errorLine(err)
			return result
		}
	}

	result.Valid = true
	return result
}

// errorLine extracts the first line number mentioned in a yaml error,
// or 0 when the error carries none.
func errorLine(err error) int {
	m := yamlLinePattern.FindStringSubmatch(err.Error())
	if len(m) != 2 {
		return 0
	}
	var line int
	fmt.Sscanf(m[1], "%d", &line) //nolint:errcheck // digits by construction
	return line
}
