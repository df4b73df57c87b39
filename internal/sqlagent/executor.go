package sqlagent

import (
	"context"
	"database/sql"
	"log/slog"
	"math"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/microsoft/go-mssqldb"
	_ "modernc.org/sqlite"

	"github.com/emmi-yeo/vendor-intelligence/internal/metrics"
)

const (
	defaultConnectTimeout   = 5 * time.Second
	defaultStatementTimeout = 15 * time.Second
	defaultMaxRows          = 100
)

// Result reports one query execution. Rows hold values in Columns order.
type Result struct {
	Success        bool     `json:"success"`
	Columns        []string `json:"columns"`
	Rows           [][]any  `json:"rows"`
	RowCount       int      `json:"row_count"`
	ElapsedSeconds float64  `json:"elapsed_seconds"`
	Error          string   `json:"error,omitempty"`
}

// ExecutorConfig configures connections to the structured store.
type ExecutorConfig struct {
	Driver           string // "sqlserver", "postgres" or "sqlite"
	DSN              string
	ConnectTimeout   time.Duration
	StatementTimeout time.Duration
}

// Executor runs validated queries. Each call opens its own connection and
// closes it before returning.
type Executor struct {
	cfg ExecutorConfig
}

func NewExecutor(cfg ExecutorConfig) *Executor {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.StatementTimeout <= 0 {
		cfg.StatementTimeout = defaultStatementTimeout
	}
	return &Executor{cfg: cfg}
}

// Execute runs query and returns at most maxRows rows, whatever the query's
// own limit. Errors are reported in the Result, never returned.
func (e *Executor) Execute(ctx context.Context, query string, maxRows int) Result {
	if maxRows <= 0 {
		maxRows = defaultMaxRows
	}
	start := time.Now()

	res, err := e.run(ctx, query, maxRows)
	res.ElapsedSeconds = roundMillis(time.Since(start))
	if err != nil {
		slog.Warn("executor: query failed", "error", err, "elapsed", res.ElapsedSeconds)
		metrics.QueryDuration.WithLabelValues("error").Observe(res.ElapsedSeconds)
		return Result{Error: err.Error(), ElapsedSeconds: res.ElapsedSeconds}
	}

	metrics.QueryDuration.WithLabelValues("success").Observe(res.ElapsedSeconds)
	res.Success = true
	return res
}

func (e *Executor) run(ctx context.Context, query string, maxRows int) (Result, error) {
	db, err := sql.Open(e.cfg.Driver, e.cfg.DSN)
	if err != nil {
		return Result{}, err
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	connCtx, cancel := context.WithTimeout(ctx, e.cfg.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(connCtx); err != nil {
		return Result{}, err
	}

	stmtCtx, cancel := context.WithTimeout(ctx, e.cfg.StatementTimeout)
	defer cancel()
	rows, err := db.QueryContext(stmtCtx, query)
	if err != nil {
		return Result{}, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return Result{}, err
	}

	out := Result{Columns: cols, Rows: [][]any{}}
	for len(out.Rows) < maxRows && rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return Result{}, err
		}
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				vals[i] = string(b)
			}
		}
		out.Rows = append(out.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return Result{}, err
	}
	out.RowCount = len(out.Rows)
	return out, nil
}

func roundMillis(d time.Duration) float64 {
	return math.Round(d.Seconds()*1000) / 1000
}
