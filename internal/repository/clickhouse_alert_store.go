package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"SignalPulse/internal/domain/models"
	domrepo "SignalPulse/internal/domain/repository"
	applogger "SignalPulse/pkg/logger"
)

// DispatchLogSchema returns the DDL of the alert audit table in database.
func DispatchLogSchema(database string) []string {
	return []string{
		fmt.Sprintf(`CREATE DATABASE IF NOT EXISTS %s`, database),
		fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s.dispatch_log (
            event_id      String,
            symbol        LowCardinality(String),
            strategy      LowCardinality(String),
            signal        LowCardinality(String),
            confidence    Float64,
            price         Float64,
            title         String,
            notification  LowCardinality(String),
            tone          LowCardinality(String),
            tone_name     LowCardinality(String),
            event_at      DateTime64(3, 'UTC'),
            dispatched_at DateTime64(3, 'UTC')
        )
        ENGINE = ReplacingMergeTree(dispatched_at)
        PARTITION BY toYYYYMM(dispatched_at)
        ORDER BY (symbol, event_id)
        TTL toDateTime(dispatched_at) + INTERVAL 90 DAY
    `, database),
	}
}

// CHAlertStore records dispatched alerts in ClickHouse and serves them back.
type CHAlertStore struct {
	db    *sql.DB
	table string
	l     *applogger.Logger
}

var (
	_ domrepo.AlertSink    = (*CHAlertStore)(nil)
	_ domrepo.AlertHistory = (*CHAlertStore)(nil)
)

// NewCHAlertStore creates a store over database.dispatch_log.
func NewCHAlertStore(db *sql.DB, database string, l *applogger.Logger) *CHAlertStore {
	return &CHAlertStore{db: db, table: database + ".dispatch_log", l: l}
}

func (s *CHAlertStore) Record(ctx context.Context, rec models.AlertRecord) error {
	q := fmt.Sprintf(`INSERT INTO %s
        (event_id, symbol, strategy, signal, confidence, price, title, notification, tone, tone_name, event_at, dispatched_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.table)
	_, err := s.db.ExecContext(ctx, q,
		rec.EventID, rec.Symbol, rec.Strategy, string(rec.Signal), rec.Confidence, rec.Price,
		rec.Title, rec.Notification, rec.Tone, rec.ToneName,
		rec.EventAt.UTC(), rec.DispatchedAt.UTC(),
	)
	if err != nil {
		s.l.Error("clickhouse record_alert error",
			applogger.String("table", s.table),
			applogger.String("event_id", rec.EventID),
			applogger.Error(err),
		)
		return fmt.Errorf("record alert: %w", err)
	}
	return nil
}

// Recent returns alerts newest first. Empty symbol and zero since disable those filters.
func (s *CHAlertStore) Recent(ctx context.Context, symbol string, since time.Time, limit int) ([]models.AlertRecord, error) {
	start := time.Now()
	q, args := s.recentQuery(symbol, since, limit)
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		s.l.Error("clickhouse recent_alerts query error", applogger.String("symbol", symbol), applogger.Error(err))
		return nil, fmt.Errorf("recent alerts: %w", err)
	}
	defer rows.Close()

	out := make([]models.AlertRecord, 0, limit)
	for rows.Next() {
		var (
			r      models.AlertRecord
			signal string
		)
		if err := rows.Scan(&r.EventID, &r.Symbol, &r.Strategy, &signal, &r.Confidence, &r.Price,
			&r.Title, &r.Notification, &r.Tone, &r.ToneName, &r.EventAt, &r.DispatchedAt); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		r.Signal = models.SignalKind(signal)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	s.l.Debug("clickhouse recent_alerts ok",
		applogger.String("symbol", symbol),
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return out, nil
}

func (s *CHAlertStore) recentQuery(symbol string, since time.Time, limit int) (string, []any) {
	var (
		where []string
		args  []any
	)
	if symbol != "" {
		where = append(where, "symbol = ?")
		args = append(args, symbol)
	}
	if !since.IsZero() {
		where = append(where, "dispatched_at >= ?")
		args = append(args, since.UTC())
	}

	var b strings.Builder
	fmt.Fprintf(&b, `SELECT event_id, symbol, strategy, signal, confidence, price, title,
        notification, tone, tone_name, event_at, dispatched_at
        FROM %s FINAL`, s.table)
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY dispatched_at DESC LIMIT ?")
	args = append(args, limit)
	return b.String(), args
}
