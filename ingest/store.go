// Package ingest persists fetched report rows and computes the aggregate
// totals the parity check compares between engines.
package ingest

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/arcline/adsync/ads"
	"github.com/arcline/adsync/errors"
	"github.com/arcline/adsync/syncstate"
)

// Store handles persistence of report rows
type Store struct {
	db *sql.DB
}

// NewStore creates a new ingest store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Totals are the aggregate metrics for one engine's rows over a window
type Totals struct {
	RowCount         int64
	Impressions      int64
	Clicks           int64
	CostMicros       int64
	Conversions      float64
	ConversionsValue float64
}

// ReplaceRows replaces one report type's rows for a tenant account and
// window in a single transaction. Either every row of the batch lands or
// none do; a failed fetch never leaves a partially written report type.
func (s *Store) ReplaceRows(ctx context.Context, tenantID, accountID string, rt ads.ReportType, engine syncstate.Engine, w ads.Window, rows []ads.Row) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin ingest transaction")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		DELETE FROM report_rows
		WHERE tenant_id = ? AND account_id = ? AND report_type = ? AND source_engine = ?
			AND row_date >= ? AND row_date <= ?
	`, tenantID, accountID, rt, engine, w.Start.Format("2006-01-02"), w.End.Format("2006-01-02"))
	if err != nil {
		return errors.Wrapf(err, "failed to clear %s rows", rt)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO report_rows (
			tenant_id, account_id, report_type, source_engine, entity_id, row_date,
			impressions, clicks, cost_micros, conversions, conversions_value,
			request_id, attrs
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, account_id, report_type, source_engine, entity_id, row_date)
		DO UPDATE SET
			impressions = excluded.impressions,
			clicks = excluded.clicks,
			cost_micros = excluded.cost_micros,
			conversions = excluded.conversions,
			conversions_value = excluded.conversions_value,
			request_id = excluded.request_id,
			attrs = excluded.attrs
	`)
	if err != nil {
		return errors.Wrap(err, "failed to prepare row insert")
	}
	defer stmt.Close()

	for _, row := range rows {
		var attrs []byte
		if len(row.Attrs) > 0 {
			attrs, err = json.Marshal(row.Attrs)
			if err != nil {
				return errors.Wrapf(err, "failed to marshal attrs for entity %s", row.EntityID)
			}
		}

		_, err = stmt.ExecContext(ctx,
			tenantID, accountID, rt, engine, row.EntityID, row.Date.Format("2006-01-02"),
			row.Impressions, row.Clicks, row.CostMicros, row.Conversions, row.ConversionsValue,
			row.RequestID, nullableString(attrs),
		)
		if err != nil {
			return errors.Wrapf(err, "failed to insert row for entity %s", row.EntityID)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrapf(err, "failed to commit %s rows", rt)
	}

	return nil
}

// AggregateTotals sums one report type's metrics for an engine over a
// window. Feeds the parity comparison between the SDK and pipeline rows.
func (s *Store) AggregateTotals(ctx context.Context, tenantID, accountID string, rt ads.ReportType, engine syncstate.Engine, w ads.Window) (Totals, error) {
	var t Totals
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(impressions), 0),
			COALESCE(SUM(clicks), 0),
			COALESCE(SUM(cost_micros), 0),
			COALESCE(SUM(conversions), 0),
			COALESCE(SUM(conversions_value), 0)
		FROM report_rows
		WHERE tenant_id = ? AND account_id = ? AND report_type = ? AND source_engine = ?
			AND row_date >= ? AND row_date <= ?
	`, tenantID, accountID, rt, engine, w.Start.Format("2006-01-02"), w.End.Format("2006-01-02")).Scan(
		&t.RowCount,
		&t.Impressions,
		&t.Clicks,
		&t.CostMicros,
		&t.Conversions,
		&t.ConversionsValue,
	)
	if err != nil {
		return Totals{}, errors.Wrap(err, "failed to aggregate totals")
	}

	return t, nil
}

func nullableString(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
