package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// readColumns reads the named float columns from a CSV file with a header row.
// The result has one slice per requested column. Every cell must parse.
func readColumns(path string, names ...string) ([][]float64, error) {
	return readCSV(path, false, names...)
}

// readSparseColumns is readColumns for gappy exports: blank, missing and NaN
// cells are dropped, so columns may differ in length.
func readSparseColumns(path string, names ...string) ([][]float64, error) {
	return readCSV(path, true, names...)
}

func readCSV(path string, sparse bool, names ...string) ([][]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.ReuseRecord = true
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%s: missing header", path)
		}
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	idx := make([]int, len(names))
	for i, n := range names {
		idx[i] = -1
		for j, h := range header {
			if strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")) == n {
				idx[i] = j
				break
			}
		}
		if idx[i] < 0 {
			return nil, fmt.Errorf("%s: no %q column", path, n)
		}
	}

	cols := make([][]float64, len(names))
	line := 1
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("%s: line %d: %w", path, line, err)
		}
		for i, j := range idx {
			if j >= len(rec) {
				if sparse {
					continue
				}
				return nil, fmt.Errorf("%s: line %d: short record", path, line)
			}
			cell := strings.TrimSpace(rec[j])
			if sparse && cell == "" {
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, fmt.Errorf("%s: line %d column %q: %w", path, line, names[i], err)
			}
			if sparse && math.IsNaN(v) {
				continue
			}
			cols[i] = append(cols[i], v)
		}
	}
	return cols, nil
}
