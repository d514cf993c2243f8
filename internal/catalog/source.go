package catalog

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ErrIngestion reports that the raw catalog could not be obtained at all.
var ErrIngestion = errors.New("catalog source unavailable")

// Source supplies raw catalog rows in catalog order.
type Source interface {
	Rows(ctx context.Context) ([]Row, error)
}

// CSVSource reads rows from a CSV file with a header line. Columns are
// located by header name, ignoring case and surrounding space.
type CSVSource struct {
	Path       string
	CodeColumn string
	DescColumn string
}

func (s CSVSource) Rows(ctx context.Context) ([]Row, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIngestion, err)
	}
	defer f.Close()
	return s.read(ctx, f)
}

func (s CSVSource) read(ctx context.Context, r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: read header: %w", ErrIngestion, err)
	}
	codeIdx, descIdx := -1, -1
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		switch name {
		case strings.ToLower(s.CodeColumn):
			codeIdx = i
		case strings.ToLower(s.DescColumn):
			descIdx = i
		}
	}
	if codeIdx < 0 || descIdx < 0 {
		return nil, fmt.Errorf("%w: columns %q and %q required, header is %v", ErrIngestion, s.CodeColumn, s.DescColumn, header)
	}

	var rows []Row
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrIngestion, err)
		}
		rows = append(rows, Row{Code: field(rec, codeIdx), Description: field(rec, descIdx)})
	}
	return rows, nil
}

// field returns rec[i], or "" when the line is short.
func field(rec []string, i int) string {
	if i < len(rec) {
		return rec[i]
	}
	return ""
}
