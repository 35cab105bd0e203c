package sink

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// PriorOutput lists the record IDs found in CSV files written by earlier
// runs. It satisfies ingestion.IDSource.
type PriorOutput struct {
	Dirs []string
}

// Name identifies the source in logs.
func (p PriorOutput) Name() string {
	return "prior-output"
}

// KnownIDs scans every *.csv file directly under each directory. Missing
// directories are skipped.
func (p PriorOutput) KnownIDs(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	for _, dir := range p.Dirs {
		matches, err := filepath.Glob(filepath.Join(dir, "*.csv"))
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", dir, err)
		}
		for _, path := range matches {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if err := scanCSVForIDs(path, seen); err != nil {
				return nil, err
			}
		}
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	return ids, nil
}

// scanCSVForIDs adds the values of the id column of path to out. Files
// without an id column are ignored.
func scanCSVForIDs(path string, out map[string]struct{}) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	// skip BOM if present
	br := bufio.NewReader(f)
	if first3, _ := br.Peek(3); len(first3) == 3 && first3[0] == 0xEF && first3[1] == 0xBB && first3[2] == 0xBF {
		br.Discard(3)
	}
	r := csv.NewReader(br)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("read header of %s: %w", path, err)
	}
	idx := -1
	for i, h := range header {
		if strings.TrimSpace(h) == IDColumn {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}

	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		if len(row) <= idx {
			continue
		}
		if id := strings.TrimSpace(row[idx]); id != "" {
			out[id] = struct{}{}
		}
	}
}
