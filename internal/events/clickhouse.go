package events

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	_ "github.com/ClickHouse/clickhouse-go/v2"
)

// ErrUnavailable is returned when the event sink has no backing connection.
var ErrUnavailable = fmt.Errorf("event sink unavailable")

// ClickHouse writes marketplace events to a ClickHouse table.
type ClickHouse struct {
	DB *sql.DB
}

const createTableSQL = `CREATE TABLE IF NOT EXISTS marketplace_events (
    timestamp     DateTime,
    event_type    String,
    campaign_id   String,
    submission_id String,
    creator_id    String,
    payout_id     String,
    amount        Decimal(18, 4),
    views         Int64
) ENGINE=MergeTree() ORDER BY (event_type, timestamp)`

// InitClickHouse connects to ClickHouse with the given pool settings and
// ensures the events table exists.
func InitClickHouse(dsn string, maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) (*ClickHouse, error) {
	db, err := sql.Open("clickhouse", dsn)
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)
	db.SetConnMaxIdleTime(connMaxIdleTime)
	if err := db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}
	if _, err := db.ExecContext(context.Background(), createTableSQL); err != nil {
		return nil, fmt.Errorf("clickhouse create table: %w", err)
	}
	zap.L().Info("Connected to ClickHouse")
	return &ClickHouse{DB: db}, nil
}

// Record inserts a single event row.
func (c *ClickHouse) Record(ctx context.Context, rec Record) error {
	if c == nil || c.DB == nil {
		return ErrUnavailable
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	stmt := `INSERT INTO marketplace_events (timestamp, event_type, campaign_id, submission_id, creator_id, payout_id, amount, views) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := c.DB.ExecContext(ctx, stmt,
		rec.Timestamp, rec.EventType, rec.CampaignID, rec.SubmissionID,
		rec.CreatorID, rec.PayoutID, rec.Amount, rec.Views); err != nil {
		zap.L().Error("clickhouse insert failed", zap.Error(err), zap.String("event_type", rec.EventType))
		return fmt.Errorf("insert %s event: %w", rec.EventType, err)
	}
	return nil
}

// Close shuts down the ClickHouse connection.
func (c *ClickHouse) Close() {
	if c != nil && c.DB != nil {
		if err := c.DB.Close(); err != nil {
			zap.L().Error("clickhouse close", zap.Error(err))
		}
	}
}
