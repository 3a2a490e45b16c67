package source

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	errs "subsidy-recon/internal/errors"
)

// CSVDir serves ranges from a directory of exported sheets. A ref's sheet
// name (the part before "!") selects <dir>/<sheet>.csv; the cell range is
// ignored and the whole file is returned.
type CSVDir struct {
	dir string
}

// NewCSVDir creates a CSV directory source
func NewCSVDir(dir string) (*CSVDir, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, errs.Wrap(errs.TypeConfig, "csv directory not readable", err)
	}
	if !info.IsDir() {
		return nil, errs.Config(fmt.Sprintf("%s is not a directory", dir))
	}
	return &CSVDir{dir: dir}, nil
}

// SheetName returns the sheet part of an A1 ref, unquoted
func SheetName(ref string) string {
	name := ref
	if i := strings.LastIndex(ref, "!"); i >= 0 {
		name = ref[:i]
	}
	name = strings.TrimSpace(name)
	if len(name) >= 2 && name[0] == '\'' && name[len(name)-1] == '\'' {
		name = strings.ReplaceAll(name[1:len(name)-1], "''", "'")
	}
	return name
}

func (c *CSVDir) Get(ctx context.Context, ref string) ([][]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name := SheetName(ref)
	if name == "" || strings.ContainsAny(name, `/\`) {
		return nil, errs.MalformedRange(ref, "no usable sheet name")
	}

	f, err := os.Open(filepath.Join(c.dir, name+".csv"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errs.NotFound("range", ref)
		}
		if errors.Is(err, fs.ErrPermission) {
			return nil, errs.PermissionDenied(ref, err)
		}
		return nil, errs.Transient("failed to open csv", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	var rows [][]any
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errs.MalformedRange(ref, err.Error())
		}
		row := make([]any, len(rec))
		for i, cell := range rec {
			row[i] = cell
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// BatchGet reads each ref in turn. The first failure fails the batch.
func (c *CSVDir) BatchGet(ctx context.Context, refs []string) ([][][]any, error) {
	out := make([][][]any, len(refs))
	for i, ref := range refs {
		rows, err := c.Get(ctx, ref)
		if err != nil {
			return nil, err
		}
		out[i] = rows
	}
	return out, nil
}
