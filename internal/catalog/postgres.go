package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"
)

// PostgresSource reads catalog rows from a table. The code column is cast
// to text so numeric codes arrive in string form; NULLs become blanks and
// are dropped by Build.
type PostgresSource struct {
	db    *sql.DB
	query string
}

// NewPostgresSource opens a pgx-backed pool. No connection is made until
// Rows is called.
func NewPostgresSource(dsn, table, codeColumn, descColumn string) (*PostgresSource, error) {
	if dsn == "" {
		return nil, fmt.Errorf("dsn required")
	}
	q, err := rowsQuery(table, codeColumn, descColumn)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &PostgresSource{db: db, query: q}, nil
}

func (s *PostgresSource) Rows(ctx context.Context) ([]Row, error) {
	rows, err := s.db.QueryContext(ctx, s.query)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIngestion, err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var code, desc sql.NullString
		if err := rows.Scan(&code, &desc); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrIngestion, err)
		}
		out = append(out, Row{Code: code.String, Description: desc.String})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIngestion, err)
	}
	return out, nil
}

// Close releases the connection pool.
func (s *PostgresSource) Close() error {
	return s.db.Close()
}

// rowsQuery builds the select statement with quoted identifiers. The table
// may be schema qualified.
func rowsQuery(table, codeColumn, descColumn string) (string, error) {
	if table == "" || codeColumn == "" || descColumn == "" {
		return "", fmt.Errorf("table, code column and description column are required")
	}
	parts := strings.Split(table, ".")
	for i, p := range parts {
		if p == "" {
			return "", fmt.Errorf("invalid table name %q", table)
		}
		parts[i] = pq.QuoteIdentifier(p)
	}
	code := pq.QuoteIdentifier(codeColumn)
	desc := pq.QuoteIdentifier(descColumn)
	return fmt.Sprintf(`SELECT %s::text, %s::text FROM %s ORDER BY %s`,
		code, desc, strings.Join(parts, "."), code), nil
}
