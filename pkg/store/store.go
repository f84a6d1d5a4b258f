// Package store persists catalog records per retailer and applies sync plans to them.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"shelf-sync/pkg/models"
)

var ErrUnsupportedDriver = errors.New("unsupported database driver")

type dialect struct {
	name   string
	schema []string
	// upsert is appended to the insert statement of catalog_records.
	upsert string
}

var recordColumns = []string{
	"source", "identity", "url", "sku", "name", "name_en", "brand", "unit_text", "unit_qty", "unit_type",
	"current_price", "regular_price", "promotion_label", "valid_from", "valid_to", "available", "updated_at",
}

func upsertClause(driver string) string {
	var sets []string
	for _, col := range recordColumns[2:] {
		if driver == "mysql" {
			sets = append(sets, fmt.Sprintf("%s = VALUES(%s)", col, col))
		} else {
			sets = append(sets, fmt.Sprintf("%s = excluded.%s", col, col))
		}
	}
	if driver == "mysql" {
		return " ON DUPLICATE KEY UPDATE " + strings.Join(sets, ", ")
	}
	return " ON CONFLICT(source, identity) DO UPDATE SET " + strings.Join(sets, ", ")
}

var dialects = map[string]dialect{
	"sqlite": {
		name: "sqlite",
		schema: []string{`
			CREATE TABLE IF NOT EXISTS catalog_records (
				source TEXT NOT NULL,
				identity TEXT NOT NULL,
				url TEXT,
				sku TEXT,
				name TEXT,
				name_en TEXT,
				brand TEXT,
				unit_text TEXT,
				unit_qty REAL,
				unit_type TEXT,
				current_price REAL,
				regular_price REAL,
				promotion_label TEXT,
				valid_from TEXT,
				valid_to TEXT,
				available BOOLEAN,
				updated_at DATETIME NOT NULL,
				PRIMARY KEY (source, identity)
			)`, `
			CREATE TABLE IF NOT EXISTS sync_runs (
				id TEXT PRIMARY KEY,
				source TEXT NOT NULL,
				unavailable INTEGER NOT NULL,
				updates INTEGER NOT NULL,
				inserts INTEGER NOT NULL,
				applied_at DATETIME NOT NULL
			)`,
		},
		upsert: upsertClause("sqlite"),
	},
	"mysql": {
		name: "mysql",
		schema: []string{`
			CREATE TABLE IF NOT EXISTS catalog_records (
				source VARCHAR(32) NOT NULL,
				identity VARCHAR(512) NOT NULL,
				url TEXT,
				sku VARCHAR(64),
				name TEXT,
				name_en TEXT,
				brand VARCHAR(255),
				unit_text VARCHAR(255),
				unit_qty DOUBLE,
				unit_type VARCHAR(8),
				current_price DECIMAL(10,2),
				regular_price DECIMAL(10,2),
				promotion_label VARCHAR(255),
				valid_from VARCHAR(10),
				valid_to VARCHAR(10),
				available TINYINT(1),
				updated_at DATETIME NOT NULL,
				PRIMARY KEY (source, identity)
			)`, `
			CREATE TABLE IF NOT EXISTS sync_runs (
				id CHAR(36) PRIMARY KEY,
				source VARCHAR(32) NOT NULL,
				unavailable INT NOT NULL,
				updates INT NOT NULL,
				inserts INT NOT NULL,
				applied_at DATETIME NOT NULL
			)`,
		},
		upsert: upsertClause("mysql"),
	},
}

type Store struct {
	db      *sql.DB
	dialect dialect
	now     func() time.Time
}

// Open connects with driver "sqlite" or "mysql" and creates the tables when missing.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	d, ok := dialects[driver]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	if driver == "sqlite" {
		// A single connection serializes writers on the file.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	for _, stmt := range d.schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}

	log.Printf("[STORE] Connected to %s database", driver)
	return &Store{db: db, dialect: d, now: time.Now}, nil
}

// MySQLDSN builds a DSN for the mysql driver.
func MySQLDSN(user, password, addr, database string) string {
	cfg := mysql.NewConfig()
	cfg.User = user
	cfg.Passwd = password
	cfg.Net = "tcp"
	cfg.Addr = addr
	cfg.DBName = database
	cfg.ParseTime = true
	return cfg.FormatDSN()
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Records loads every persisted record of source, ordered by identity.
func (s *Store) Records(ctx context.Context, source string) ([]models.CatalogRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT identity, url, sku, name, name_en, brand, unit_text, unit_qty, unit_type,
		       current_price, regular_price, promotion_label, valid_from, valid_to, available
		FROM catalog_records
		WHERE source = ?
		ORDER BY identity`, source)
	if err != nil {
		return nil, fmt.Errorf("query records of %s: %w", source, err)
	}
	defer rows.Close()

	var records []models.CatalogRecord
	for rows.Next() {
		var (
			url, sku, name, nameEN, brand, unitText, unitType sql.NullString
			label, validFrom, validTo                         sql.NullString
			unitQty, current, regular                         sql.NullFloat64
			available                                         sql.NullBool
		)
		r := models.CatalogRecord{Source: source}
		if err := rows.Scan(&r.Identity, &url, &sku, &name, &nameEN, &brand, &unitText, &unitQty, &unitType,
			&current, &regular, &label, &validFrom, &validTo, &available); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		r.URL, r.SKU, r.Name, r.NameEN = url.String, sku.String, name.String, nameEN.String
		r.Brand, r.UnitText, r.UnitType = brand.String, unitText.String, models.UnitType(unitType.String)
		r.PromotionLabel, r.ValidFrom, r.ValidTo = label.String, validFrom.String, validTo.String
		r.UnitQty = floatPtr(unitQty)
		r.CurrentPrice = floatPtr(current)
		r.RegularPrice = floatPtr(regular)
		if available.Valid {
			r.Available = models.Bool(available.Bool)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Apply writes plan in one transaction: unavailability first, then price updates, then inserts. It
// returns the id of the recorded sync run.
func (s *Store) Apply(ctx context.Context, source string, plan *models.SyncPlan) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	now := s.now().UTC()
	for _, w := range plan.Unavailable {
		if _, err := tx.ExecContext(ctx,
			`UPDATE catalog_records SET available = ?, updated_at = ? WHERE source = ? AND identity = ?`,
			w.Available, now, source, w.Identity,
		); err != nil {
			return "", fmt.Errorf("mark %s unavailable: %w", w.Identity, err)
		}
	}

	for _, w := range plan.Updates {
		if _, err := tx.ExecContext(ctx, `
			UPDATE catalog_records
			SET current_price = ?, regular_price = ?, promotion_label = ?, valid_from = ?, valid_to = ?,
			    available = ?, updated_at = ?
			WHERE source = ? AND identity = ?`,
			w.CurrentPrice, nullFloat(w.RegularPrice), nullString(w.PromotionLabel),
			nullString(w.ValidFrom), nullString(w.ValidTo), w.Available, now, source, w.Identity,
		); err != nil {
			return "", fmt.Errorf("update %s: %w", w.Identity, err)
		}
	}

	if err := s.insert(ctx, tx, source, plan.Inserts, now); err != nil {
		return "", err
	}

	runID := uuid.NewString()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sync_runs (id, source, unavailable, updates, inserts, applied_at) VALUES (?, ?, ?, ?, ?, ?)`,
		runID, source, len(plan.Unavailable), len(plan.Updates), len(plan.Inserts), now,
	); err != nil {
		return "", fmt.Errorf("record sync run: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	log.Printf("[STORE] Applied %s run %s: %d unavailable, %d updates, %d inserts",
		source, runID, len(plan.Unavailable), len(plan.Updates), len(plan.Inserts))
	return runID, nil
}

func (s *Store) insert(ctx context.Context, tx *sql.Tx, source string, records []models.CatalogRecord, now time.Time) error {
	if len(records) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(recordColumns)), ", ")
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO catalog_records (%s) VALUES (%s)%s",
		strings.Join(recordColumns, ", "), placeholders, s.dialect.upsert))
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		var available any
		if r.Available != nil {
			available = *r.Available
		}
		if _, err := stmt.ExecContext(ctx,
			source, r.Identity, nullString(r.URL), nullString(r.SKU), nullString(r.Name), nullString(r.NameEN),
			nullString(r.Brand), nullString(r.UnitText), nullFloat(r.UnitQty), nullString(string(r.UnitType)),
			nullFloat(r.CurrentPrice), nullFloat(r.RegularPrice), nullString(r.PromotionLabel),
			nullString(r.ValidFrom), nullString(r.ValidTo), available, now,
		); err != nil {
			return fmt.Errorf("insert %s: %w", r.Identity, err)
		}
	}
	return nil
}

// Run is one applied sync plan.
type Run struct {
	ID          string    `json:"id"`
	Source      string    `json:"source"`
	Unavailable int       `json:"unavailable"`
	Updates     int       `json:"updates"`
	Inserts     int       `json:"inserts"`
	AppliedAt   time.Time `json:"applied_at"`
}

// Runs returns the latest runs of source, newest first.
func (s *Store) Runs(ctx context.Context, source string, limit int) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source, unavailable, updates, inserts, applied_at
		FROM sync_runs
		WHERE source = ?
		ORDER BY applied_at DESC
		LIMIT ?`, source, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs of %s: %w", source, err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Source, &r.Unavailable, &r.Updates, &r.Inserts, &r.AppliedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func floatPtr(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	return models.Float(f.Float64)
}
