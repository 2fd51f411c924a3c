package dataload

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"tabula/core/ir"
)

// MapSource loads a table from CSV files matched by the glob or directory
// pattern in its load annotation. Matching files are read in
// case-insensitive alphabetical path order and their rows concatenated;
// a primary key appearing in two files fails the whole load.
type MapSource struct {
	// Root anchors relative patterns.
	Root string
}

func (s *MapSource) Load(ctx context.Context, table *ir.Table) ([]Row, error) {
	src := table.Annotations.Load
	if src == nil || src.Kind != ir.SourceMap {
		return nil, fmt.Errorf("table %s has no Map load source", table.FQN)
	}
	paths, err := s.matchFiles(src.Path)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("pattern %q matches no files for table %s", src.Path, table.FQN)
	}

	tracker := newKeyTracker(table)
	var rows []Row
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fileRows, err := readCSV(p)
		if err != nil {
			return nil, err
		}
		for _, row := range fileRows {
			if err := tracker.add(row, p); err != nil {
				return nil, err
			}
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// matchFiles expands the pattern: a directory matches every .csv inside
// it, anything else goes through filepath.Glob. Order is case-insensitive
// alphabetical by path.
func (s *MapSource) matchFiles(pattern string) ([]string, error) {
	full := pattern
	if s.Root != "" && !filepath.IsAbs(pattern) {
		full = filepath.Join(s.Root, pattern)
	}

	var paths []string
	if info, err := os.Stat(full); err == nil && info.IsDir() {
		entries, err := os.ReadDir(full)
		if err != nil {
			return nil, fmt.Errorf("read data directory %s: %w", full, err)
		}
		for _, entry := range entries {
			if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".csv") {
				continue
			}
			paths = append(paths, filepath.Join(full, entry.Name()))
		}
	} else {
		paths, err = filepath.Glob(full)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", pattern, err)
		}
	}

	sort.Slice(paths, func(i, j int) bool {
		a, b := strings.ToLower(paths[i]), strings.ToLower(paths[j])
		if a != b {
			return a < b
		}
		return paths[i] < paths[j]
	})
	return paths, nil
}

func readCSV(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("read header of %s: %w", path, err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var rows []Row
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		row := make(Row, len(header))
		for i, col := range header {
			if i < len(record) {
				row[col] = record[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Save writes every row to the single file named by the save annotation.
// Glob patterns are not writable targets.
func (s *MapSource) Save(ctx context.Context, table *ir.Table, rows []Row) error {
	src := table.Annotations.Save
	if src == nil || src.Kind != ir.SourceMap {
		return fmt.Errorf("table %s has no Map save target", table.FQN)
	}
	if strings.ContainsAny(src.Path, "*?[") {
		return fmt.Errorf("save target %q for table %s is a pattern, not a file", src.Path, table.FQN)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	full := src.Path
	if s.Root != "" && !filepath.IsAbs(full) {
		full = filepath.Join(s.Root, full)
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	f, err := os.Create(full)
	if err != nil {
		return fmt.Errorf("create %s: %w", full, err)
	}
	defer f.Close()

	header := make([]string, len(table.Fields))
	for i, field := range table.Fields {
		header[i] = field.Name
	}
	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write %s: %w", full, err)
	}
	record := make([]string, len(header))
	for _, row := range rows {
		for i, col := range header {
			record[i] = row[col]
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("write %s: %w", full, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("write %s: %w", full, err)
	}
	return f.Close()
}
