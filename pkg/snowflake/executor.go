// Package snowflake provides the serialized query-execution surface the
// import pipeline consumes. Connection acquisition, pooling lifetime and
// driver details stay inside this package; callers only see rows or an error.
package snowflake

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	// Snowflake driver
	_ "github.com/snowflakedb/gosnowflake"

	"github.com/crestline-io/snowcap/pkg/config"
	"github.com/crestline-io/snowcap/pkg/errors"
	"github.com/crestline-io/snowcap/pkg/logger"
	"github.com/crestline-io/snowcap/pkg/models"
)

// Executor runs a parameterized query and returns rows or an error. The core
// never passes values any other way than as bound parameters.
type Executor interface {
	Execute(ctx context.Context, query string, args ...interface{}) ([]*models.RawRow, error)
}

// Client is the Snowflake-backed Executor. The underlying pool is sized for
// exactly one concurrent connection, so no two batches ever execute their
// fetch concurrently.
type Client struct {
	db  *sql.DB
	log *zap.Logger
}

// NewClient opens a Snowflake connection pool from the import configuration
// and verifies connectivity.
func NewClient(ctx context.Context, cfg *config.ImportConfig) (*Client, error) {
	// DSN format: username:password@account/database/schema?warehouse=wh&role=role
	dsn := fmt.Sprintf("%s:%s@%s/%s/%s",
		cfg.Username, cfg.Password, cfg.Account, cfg.Database, cfg.Schema)

	params := []string{}
	if cfg.Warehouse != "" {
		params = append(params, "warehouse="+cfg.Warehouse)
	}
	if cfg.Role != "" {
		params = append(params, "role="+cfg.Role)
	}
	params = append(params, "ocspFailOpen=true")
	params = append(params, "clientSessionKeepAlive=true")
	dsn += "?" + strings.Join(params, "&")

	db, err := sql.Open("snowflake", dsn)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to open Snowflake connection")
	}

	// One connection, serialized by construction.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to ping Snowflake")
	}

	log := logger.With(
		zap.String("component", "snowflake"),
		zap.String("account", cfg.Account),
		zap.String("database", cfg.Database),
		zap.String("schema", cfg.Schema))

	log.Info("connected to Snowflake", zap.String("warehouse", cfg.Warehouse))

	return &Client{db: db, log: log}, nil
}

// Execute runs the query with bound values and materializes every row as an
// ordered column→value mapping.
func (c *Client) Execute(ctx context.Context, query string, args ...interface{}) ([]*models.RawRow, error) {
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "query execution failed")
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "failed to read result columns")
	}

	var result []*models.RawRow
	for rows.Next() {
		values := make([]interface{}, len(columns))
		ptrs := make([]interface{}, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}

		if err := rows.Scan(ptrs...); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to scan row")
		}

		row := models.NewRawRow(columns)
		for i, col := range columns {
			row.Values[col] = normalizeValue(values[i])
		}
		result = append(result, row)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "row iteration failed")
	}

	return result, nil
}

// CountRows returns the current row count of the table, used once to capture
// the historical watermark.
func (c *Client) CountRows(ctx context.Context, table string) (int64, error) {
	query := "SELECT COUNT(*) FROM " + SanitizeIdentifier(table)

	var total int64
	if err := c.db.QueryRowContext(ctx, query).Scan(&total); err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeQuery, "failed to count table rows")
	}

	return total, nil
}

// Close releases the connection pool. Callers must persist the checkpoint
// before closing.
func (c *Client) Close() error {
	return c.db.Close()
}

// normalizeValue converts driver byte slices to strings so transforms work
// with plain scalars.
func normalizeValue(v interface{}) interface{} {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
