package sqlgateway

import (
	"context"
	"fmt"
	"time"

	"github.com/tranhaiminh/docvault/pkg/config"
	"github.com/tranhaiminh/docvault/pkg/postgres"
)

// Result is the gateway's query response payload.
type Result struct {
	Data            []map[string]any `json:"data"`
	RowCount        int              `json:"rowCount"`
	ExecutionTimeMs int64            `json:"executionTimeMs"`
}

// Executor runs validated queries against PostgreSQL with a per-query
// timeout and a hard row cap.
type Executor struct {
	db  *postgres.Client
	cfg config.GatewayConfig
}

// NewExecutor creates an Executor.
func NewExecutor(db *postgres.Client, cfg config.GatewayConfig) *Executor {
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = 500
	}
	return &Executor{db: db, cfg: cfg}
}

// Execute runs a single already-validated query and returns its rows as
// generic column→value maps, truncated at the configured row cap.
func (e *Executor) Execute(ctx context.Context, query string) (*Result, error) {
	if e.cfg.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.QueryTimeout)
		defer cancel()
	}
	start := time.Now()

	rows, err := e.db.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("reading result columns: %w", err)
	}

	data := make([]map[string]any, 0)
	values := make([]any, len(columns))
	scanArgs := make([]any, len(columns))
	for i := range values {
		scanArgs[i] = &values[i]
	}

	for rows.Next() {
		if len(data) >= e.cfg.MaxRows {
			break
		}
		if err := rows.Scan(scanArgs...); err != nil {
			return nil, fmt.Errorf("scanning result row: %w", err)
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = normalizeValue(values[i])
		}
		data = append(data, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating result rows: %w", err)
	}

	return &Result{
		Data:            data,
		RowCount:        len(data),
		ExecutionTimeMs: time.Since(start).Milliseconds(),
	}, nil
}

// normalizeValue makes driver values JSON-friendly; lib/pq returns []byte
// for text-ish columns.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case []byte:
		return string(val)
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	default:
		return v
	}
}
