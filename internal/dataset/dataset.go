// Package dataset reads delimited numeric point data and writes cluster
// labels, one per line.
package dataset

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// Options controls how point data is parsed.
type Options struct {
	// Comma is the field delimiter. Default: ','.
	Comma rune
	// HasLabels marks the last column of every row as a ground-truth label.
	HasLabels bool
}

// Dataset is a parsed point file.
type Dataset struct {
	Points [][]float64
	// Labels holds the ground-truth labels when Options.HasLabels is set.
	Labels []int
}

// Read parses point rows from r. Blank lines and lines starting with '#'
// are skipped; every row must have the same number of columns.
func Read(r io.Reader, opts Options) (*Dataset, error) {
	cr := csv.NewReader(r)
	cr.Comma = opts.Comma
	if cr.Comma == 0 {
		cr.Comma = ','
	}
	cr.Comment = '#'
	cr.TrimLeadingSpace = true

	ds := &Dataset{}
	width := -1
	for line := 1; ; line++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse row %d: %w", line, err)
		}
		if width == -1 {
			width = len(record)
			if opts.HasLabels && width < 2 {
				return nil, fmt.Errorf("row %d: need at least one coordinate and a label column", line)
			}
		}

		cols := record
		if opts.HasLabels {
			cols = record[:len(record)-1]
			label, err := parseLabel(record[len(record)-1])
			if err != nil {
				return nil, fmt.Errorf("row %d: %w", line, err)
			}
			ds.Labels = append(ds.Labels, label)
		}

		row := make([]float64, len(cols))
		for j, field := range cols {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, fmt.Errorf("row %d column %d: %w", line, j, err)
			}
			row[j] = v
		}
		ds.Points = append(ds.Points, row)
	}

	if len(ds.Points) == 0 {
		return nil, errors.New("no data rows found")
	}
	return ds, nil
}

// ReadFile opens path and parses it with Read.
func ReadFile(path string, opts Options) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input: %w", err)
	}
	defer f.Close()
	return Read(f, opts)
}

// parseLabel accepts integer labels, also when written as floats ("2.0").
func parseLabel(field string) (int, error) {
	field = strings.TrimSpace(field)
	if v, err := strconv.Atoi(field); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(field, 64)
	if err != nil || f != math.Trunc(f) {
		return 0, fmt.Errorf("invalid label %q", field)
	}
	return int(f), nil
}

// WriteLabels writes one label per line.
func WriteLabels(w io.Writer, labels []int) error {
	bw := bufio.NewWriter(w)
	for _, l := range labels {
		if _, err := bw.WriteString(strconv.Itoa(l) + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteLabelsFile writes labels to path, replacing any existing file.
func WriteLabelsFile(path string, labels []int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output: %w", err)
	}
	if err := WriteLabels(f, labels); err != nil {
		f.Close()
		return fmt.Errorf("failed to write labels: %w", err)
	}
	return f.Close()
}
