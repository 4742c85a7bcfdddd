package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/zegonz1/housing-tbs/dataset"
)

const schema = `
    CREATE TABLE IF NOT EXISTS estimates (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        inputs TEXT NOT NULL,
        price REAL NOT NULL,
        cached INTEGER DEFAULT 0,
        created_at DATETIME NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_estimates_created ON estimates(created_at);
    CREATE TABLE IF NOT EXISTS training_log (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        dataset TEXT NOT NULL,
        rows INTEGER NOT NULL,
        features INTEGER NOT NULL,
        trees INTEGER NOT NULL,
        r2 REAL,
        duration_ms INTEGER NOT NULL,
        trained_at DATETIME NOT NULL
    );
    `

// Storage keeps the history of served estimates and training runs.
type Storage struct {
	path string
	db   *sql.DB
}

// EstimateRecord is one served estimate.
type EstimateRecord struct {
	ID        int64          `json:"id"`
	Inputs    dataset.Record `json:"inputs"`
	Price     float64        `json:"price"`
	Cached    bool           `json:"cached"`
	CreatedAt time.Time      `json:"created_at"`
}

// TrainingLog is one pipeline fit.
type TrainingLog struct {
	ID         int64     `json:"id"`
	Dataset    string    `json:"dataset"`
	Rows       int       `json:"rows"`
	Features   int       `json:"features"`
	Trees      int       `json:"trees"`
	R2         float64   `json:"r2"`
	DurationMS int64     `json:"duration_ms"`
	TrainedAt  time.Time `json:"trained_at"`
}

// NewStorage opens (or creates) the SQLite file at path and its tables.
func NewStorage(path string) (*Storage, error) {
	if path == "" {
		return nil, errors.New("database path is empty")
	}
	dsn := path + "?_busy_timeout=5000"
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, errors.WithStack(err)
			}
		}
		dsn += "&_journal_mode=WAL"
	}
	database, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}
	if path == ":memory:" {
		database.SetMaxOpenConns(1)
	} else {
		database.SetMaxOpenConns(10)
		database.SetMaxIdleConns(5)
	}
	if _, err := database.Exec(schema); err != nil {
		database.Close()
		return nil, errors.Wrap(err, "create tables")
	}
	return &Storage{path: path, db: database}, nil
}

// Path returns the database file.
func (s *Storage) Path() string { return s.path }

// Close releases the connection pool.
func (s *Storage) Close() error {
	return s.db.Close()
}

// SaveEstimate appends an estimate and returns its id.
func (s *Storage) SaveEstimate(ctx context.Context, rec EstimateRecord) (int64, error) {
	inputs, err := json.Marshal(rec.Inputs)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
        INSERT INTO estimates (inputs, price, cached, created_at)
        VALUES (?, ?, ?, ?)`,
		string(inputs), rec.Price, rec.Cached, rec.CreatedAt)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	return res.LastInsertId()
}

// RecentEstimates returns up to limit estimates, newest first.
func (s *Storage) RecentEstimates(ctx context.Context, limit int) ([]EstimateRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, inputs, price, cached, created_at
        FROM estimates
        ORDER BY id DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer rows.Close()

	records := make([]EstimateRecord, 0)
	for rows.Next() {
		var (
			rec    EstimateRecord
			inputs string
		)
		if err := rows.Scan(&rec.ID, &inputs, &rec.Price, &rec.Cached, &rec.CreatedAt); err != nil {
			return nil, errors.WithStack(err)
		}
		if err := json.Unmarshal([]byte(inputs), &rec.Inputs); err != nil {
			return nil, errors.Wrapf(err, "estimate %d inputs", rec.ID)
		}
		records = append(records, rec)
	}
	return records, errors.WithStack(rows.Err())
}

// SaveTrainingLog appends a training run.
func (s *Storage) SaveTrainingLog(ctx context.Context, log TrainingLog) (int64, error) {
	if log.TrainedAt.IsZero() {
		log.TrainedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
        INSERT INTO training_log (dataset, rows, features, trees, r2, duration_ms, trained_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)`,
		log.Dataset, log.Rows, log.Features, log.Trees, log.R2, log.DurationMS, log.TrainedAt)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	return res.LastInsertId()
}

// LoadTrainingLog returns up to limit training runs, newest first.
func (s *Storage) LoadTrainingLog(ctx context.Context, limit int) ([]TrainingLog, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, dataset, rows, features, trees, r2, duration_ms, trained_at
        FROM training_log
        ORDER BY id DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer rows.Close()

	logs := make([]TrainingLog, 0)
	for rows.Next() {
		var (
			log TrainingLog
			r2  sql.NullFloat64
		)
		if err := rows.Scan(&log.ID, &log.Dataset, &log.Rows, &log.Features, &log.Trees, &r2, &log.DurationMS, &log.TrainedAt); err != nil {
			return nil, errors.WithStack(err)
		}
		log.R2 = r2.Float64
		logs = append(logs, log)
	}
	return logs, errors.WithStack(rows.Err())
}
