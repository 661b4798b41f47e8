// Package storage provides SQLite-backed persistence for synthetic ATM IV
// history and delivered alerts.
package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"ivsentinel/internal/models"
)

// Storage wraps a SQLite database for all persistence operations.
type Storage struct {
	db *sql.DB
}

// New opens or creates the SQLite database at dbPath.
// An empty dbPath defaults to $TMPDIR/ivsentinel/atm_iv.db.
func New(dbPath string) (*Storage, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "ivsentinel", "atm_iv.db")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	s := &Storage{db: db}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS atm_iv_history (
			id               INTEGER PRIMARY KEY AUTOINCREMENT,
			expiry_date      TEXT NOT NULL,
			timestamp        INTEGER NOT NULL,
			synthetic_atm_iv REAL NOT NULL,
			spot_price       REAL NOT NULL,
			perp_price       REAL,
			basis            REAL,
			basis_pct        REAL,
			funding_rate     REAL,
			atm_strike       REAL,
			call_25d_iv      REAL,
			put_25d_iv       REAL,
			UNIQUE(expiry_date, timestamp)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_atm_history_expiry_ts
			ON atm_iv_history(expiry_date, timestamp DESC)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id             TEXT PRIMARY KEY,
			kind           TEXT NOT NULL,
			underlying     TEXT NOT NULL,
			expiry_date    TEXT NOT NULL,
			days_to_expiry INTEGER NOT NULL,
			threshold_iv   REAL NOT NULL DEFAULT 0,
			max_iv         REAL NOT NULL,
			previous_iv    REAL NOT NULL DEFAULT 0,
			z_score        REAL NOT NULL DEFAULT 0,
			percentile     REAL NOT NULL DEFAULT 0,
			spot_price     REAL NOT NULL DEFAULT 0,
			details        TEXT NOT NULL DEFAULT '{}',
			created_at     INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_created_at ON alerts(created_at DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// InsertRecord appends one synthetic ATM IV observation. A record landing on
// an existing (expiry, timestamp) pair replaces that row's values.
func (s *Storage) InsertRecord(rec *models.HistoricalRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO atm_iv_history
			(expiry_date, timestamp, synthetic_atm_iv, spot_price, perp_price,
			 basis, basis_pct, funding_rate, atm_strike, call_25d_iv, put_25d_iv)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(expiry_date, timestamp) DO UPDATE SET
			synthetic_atm_iv = excluded.synthetic_atm_iv,
			spot_price       = excluded.spot_price,
			perp_price       = excluded.perp_price,
			basis            = excluded.basis,
			basis_pct        = excluded.basis_pct,
			funding_rate     = excluded.funding_rate,
			atm_strike       = excluded.atm_strike,
			call_25d_iv      = excluded.call_25d_iv,
			put_25d_iv       = excluded.put_25d_iv`,
		rec.Expiry, rec.Timestamp.UnixNano(), rec.SyntheticATMIV, rec.SpotPrice, rec.PerpetualPrice,
		rec.Basis, rec.BasisPct, rec.FundingRate, rec.ATMStrike, rec.Call25dIV, rec.Put25dIV,
	)
	if err != nil {
		return fmt.Errorf("failed to insert ATM record: %w", err)
	}
	return nil
}

// History returns an expiry's observations at or after since, oldest first.
func (s *Storage) History(expiry string, since time.Time) ([]models.HistoricalRecord, error) {
	rows, err := s.db.Query(`
		SELECT `+recordCols+`
		FROM atm_iv_history
		WHERE expiry_date = ? AND timestamp >= ?
		ORDER BY timestamp ASC`,
		expiry, since.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("failed to query ATM history: %w", err)
	}
	defer rows.Close()

	records := []models.HistoricalRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ATM record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// IVPercentile positions currentIV within the expiry's observed IV range
// since the cutoff, 0-100. ok is false when no history exists; a flat range
// reports 50.
func (s *Storage) IVPercentile(expiry string, currentIV float64, since time.Time) (float64, bool, error) {
	row := s.db.QueryRow(`
		SELECT MIN(synthetic_atm_iv), MAX(synthetic_atm_iv)
		FROM atm_iv_history
		WHERE expiry_date = ? AND timestamp >= ?`,
		expiry, since.UnixNano())

	var low, high sql.NullFloat64
	if err := row.Scan(&low, &high); err != nil {
		return 0, false, fmt.Errorf("failed to query IV range: %w", err)
	}
	if !low.Valid || !high.Valid {
		return 0, false, nil
	}

	ivRange := high.Float64 - low.Float64
	if ivRange < 1e-6 {
		return 50, true, nil
	}
	pct := (currentIV - low.Float64) / ivRange * 100
	if pct < 0 {
		pct = 0
	} else if pct > 100 {
		pct = 100
	}
	return pct, true, nil
}

// Cleanup deletes history rows older than the retention window and returns
// how many were removed.
func (s *Storage) Cleanup(retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention)
	res, err := s.db.Exec(`DELETE FROM atm_iv_history WHERE timestamp < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to clean up history: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count cleaned rows: %w", err)
	}
	return n, nil
}

// RecordCount returns the number of history rows for one expiry, or for all
// expiries when expiry is empty.
func (s *Storage) RecordCount(expiry string) (int64, error) {
	var row *sql.Row
	if expiry == "" {
		row = s.db.QueryRow(`SELECT COUNT(*) FROM atm_iv_history`)
	} else {
		row = s.db.QueryRow(`SELECT COUNT(*) FROM atm_iv_history WHERE expiry_date = ?`, expiry)
	}
	var n int64
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return n, nil
}

// Expiries returns the distinct expiries present in the history, ordered.
func (s *Storage) Expiries() ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT expiry_date FROM atm_iv_history ORDER BY expiry_date`)
	if err != nil {
		return nil, fmt.Errorf("failed to query expiries: %w", err)
	}
	defer rows.Close()

	expiries := []string{}
	for rows.Next() {
		var e string
		if err := rows.Scan(&e); err != nil {
			return nil, fmt.Errorf("failed to scan expiry: %w", err)
		}
		expiries = append(expiries, e)
	}
	return expiries, rows.Err()
}

// alertDetails is the JSON payload stored alongside an alert's scalar
// columns, preserving the nested parts of the alert in full.
type alertDetails struct {
	Triggered     []models.TriggeredQuote `json:"triggered,omitempty"`
	Stats         *models.IVStatistics    `json:"stats,omitempty"`
	Skew          *models.SkewComparison  `json:"skew,omitempty"`
	Opportunities []models.Opportunity    `json:"opportunities,omitempty"`
	Context       models.MarketContext    `json:"context"`
}

// AddAlert records a delivered alert. An empty alert ID is assigned a fresh
// UUID, visible to the caller.
func (s *Storage) AddAlert(alert *models.Alert) error {
	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}

	details, err := json.Marshal(alertDetails{
		Triggered:     alert.Triggered,
		Stats:         alert.Stats,
		Skew:          alert.Skew,
		Opportunities: alert.Opportunities,
		Context:       alert.Context,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal alert details: %w", err)
	}

	var zScore, percentile float64
	if alert.Stats != nil {
		zScore = alert.Stats.ZScore
		percentile = alert.Stats.Percentile
	}

	_, err = s.db.Exec(`
		INSERT INTO alerts
			(id, kind, underlying, expiry_date, days_to_expiry, threshold_iv,
			 max_iv, previous_iv, z_score, percentile, spot_price, details, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		alert.ID, string(alert.Kind), alert.Underlying, alert.Expiry, alert.DaysToExpiry,
		alert.ThresholdIV, alert.MaxIV, alert.PreviousIV, zScore, percentile,
		alert.Context.SpotPrice, string(details), alert.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	return nil
}

// RecentAlerts returns the newest alerts first, at most limit of them.
func (s *Storage) RecentAlerts(limit int) ([]models.Alert, error) {
	rows, err := s.db.Query(`
		SELECT id, kind, underlying, expiry_date, days_to_expiry, threshold_iv,
		       max_iv, previous_iv, details, created_at
		FROM alerts ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	alerts := []models.Alert{}
	for rows.Next() {
		var a models.Alert
		var kind, detailsJSON string
		var createdAtNano int64

		err := rows.Scan(
			&a.ID, &kind, &a.Underlying, &a.Expiry, &a.DaysToExpiry, &a.ThresholdIV,
			&a.MaxIV, &a.PreviousIV, &detailsJSON, &createdAtNano,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}

		var details alertDetails
		if err := json.Unmarshal([]byte(detailsJSON), &details); err != nil {
			return nil, fmt.Errorf("failed to unmarshal alert details: %w", err)
		}

		a.Kind = models.AlertKind(kind)
		a.Triggered = details.Triggered
		a.Stats = details.Stats
		a.Skew = details.Skew
		a.Opportunities = details.Opportunities
		a.Context = details.Context
		a.CreatedAt = time.Unix(0, createdAtNano).UTC()
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

const recordCols = `expiry_date, timestamp, synthetic_atm_iv, spot_price, perp_price,
	basis, basis_pct, funding_rate, atm_strike, call_25d_iv, put_25d_iv`

func scanRecord(scan func(...any) error) (models.HistoricalRecord, error) {
	var rec models.HistoricalRecord
	var timestampNano int64
	err := scan(
		&rec.Expiry, &timestampNano, &rec.SyntheticATMIV, &rec.SpotPrice, &rec.PerpetualPrice,
		&rec.Basis, &rec.BasisPct, &rec.FundingRate, &rec.ATMStrike, &rec.Call25dIV, &rec.Put25dIV,
	)
	if err != nil {
		return models.HistoricalRecord{}, err
	}
	rec.Timestamp = time.Unix(0, timestampNano).UTC()
	return rec, nil
}
