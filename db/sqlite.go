package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/goccy/go-json"
	_ "github.com/mattn/go-sqlite3"
	"recyclerate/feature"
)

var ErrNotInitialized = errors.New("database not initialized")

// Store persists served predictions and training runs in SQLite.
type Store struct {
	db *sql.DB
}

// Open initializes the SQLite database at path and creates missing tables.
func Open(path string) (*Store, error) {
	database, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}
	database.SetMaxOpenConns(1)

	query := `
    CREATE TABLE IF NOT EXISTS predictions (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        request_id TEXT,
        city TEXT NOT NULL,
        waste_type TEXT NOT NULL,
        input TEXT NOT NULL,
        prediction REAL NOT NULL,
        model_version TEXT,
        unseen TEXT,
        created_at DATETIME NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_predictions_created ON predictions(created_at);
    CREATE TABLE IF NOT EXISTS training_log (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        model_version TEXT NOT NULL,
        baseline_rmse REAL,
        baseline_r2 REAL,
        tuned_rmse REAL,
        tuned_mae REAL,
        tuned_r2 REAL,
        best_params TEXT,
        best_score REAL,
        train_rows INTEGER,
        test_rows INTEGER,
        duration_ms INTEGER,
        trained_at DATETIME NOT NULL
    );
    `
	if _, err := database.Exec(query); err != nil {
		database.Close()
		return nil, err
	}
	return &Store{db: database}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type PredictionRecord struct {
	ID           int64              `json:"id"`
	RequestID    string             `json:"request_id,omitempty"`
	Input        feature.WasteInput `json:"input"`
	Prediction   float64            `json:"prediction"`
	ModelVersion string             `json:"model_version,omitempty"`
	Unseen       []feature.Unseen   `json:"unseen_categories,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
}

func (s *Store) SavePrediction(ctx context.Context, rec *PredictionRecord) error {
	if s == nil || s.db == nil {
		return ErrNotInitialized
	}
	input, err := json.Marshal(rec.Input)
	if err != nil {
		return err
	}
	unseen, err := json.Marshal(rec.Unseen)
	if err != nil {
		return err
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
        INSERT INTO predictions (request_id, city, waste_type, input, prediction, model_version, unseen, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RequestID, rec.Input.City, rec.Input.WasteType, string(input), rec.Prediction, rec.ModelVersion, string(unseen), rec.CreatedAt)
	if err != nil {
		return err
	}
	rec.ID, err = res.LastInsertId()
	return err
}

// RecentPredictions returns up to limit predictions, newest first.
func (s *Store) RecentPredictions(ctx context.Context, limit int) ([]PredictionRecord, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotInitialized
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, request_id, input, prediction, model_version, unseen, created_at
        FROM predictions
        ORDER BY created_at DESC, id DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]PredictionRecord, 0)
	for rows.Next() {
		var rec PredictionRecord
		var requestID, version, unseen sql.NullString
		var input string
		if err := rows.Scan(&rec.ID, &requestID, &input, &rec.Prediction, &version, &unseen, &rec.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(input), &rec.Input); err != nil {
			return nil, err
		}
		if unseen.Valid && unseen.String != "" {
			if err := json.Unmarshal([]byte(unseen.String), &rec.Unseen); err != nil {
				return nil, err
			}
		}
		rec.RequestID = requestID.String
		rec.ModelVersion = version.String
		records = append(records, rec)
	}
	return records, rows.Err()
}

type TrainingLog struct {
	ModelVersion string    `json:"model_version"`
	BaselineRMSE float64   `json:"baseline_rmse"`
	BaselineR2   float64   `json:"baseline_r2"`
	TunedRMSE    float64   `json:"tuned_rmse"`
	TunedMAE     float64   `json:"tuned_mae"`
	TunedR2      float64   `json:"tuned_r2"`
	BestParams   string    `json:"best_params"`
	BestScore    float64   `json:"best_score"`
	TrainRows    int       `json:"train_rows"`
	TestRows     int       `json:"test_rows"`
	DurationMS   int64     `json:"duration_ms"`
	TrainedAt    time.Time `json:"trained_at"`
}

func (s *Store) SaveTrainingLog(ctx context.Context, log TrainingLog) error {
	if s == nil || s.db == nil {
		return ErrNotInitialized
	}
	if log.ModelVersion == "" {
		return errors.New("model version required")
	}
	if log.TrainedAt.IsZero() {
		log.TrainedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO training_log (
            model_version, baseline_rmse, baseline_r2, tuned_rmse, tuned_mae, tuned_r2,
            best_params, best_score, train_rows, test_rows, duration_ms, trained_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		log.ModelVersion, log.BaselineRMSE, log.BaselineR2, log.TunedRMSE, log.TunedMAE, log.TunedR2,
		log.BestParams, log.BestScore, log.TrainRows, log.TestRows, log.DurationMS, log.TrainedAt)
	return err
}

func (s *Store) LoadTrainingLog(ctx context.Context) ([]TrainingLog, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotInitialized
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT model_version, baseline_rmse, baseline_r2, tuned_rmse, tuned_mae, tuned_r2,
               best_params, best_score, train_rows, test_rows, duration_ms, trained_at
        FROM training_log
        ORDER BY trained_at DESC, id DESC
    `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]TrainingLog, 0)
	for rows.Next() {
		var log TrainingLog
		if err := rows.Scan(&log.ModelVersion, &log.BaselineRMSE, &log.BaselineR2, &log.TunedRMSE, &log.TunedMAE, &log.TunedR2,
			&log.BestParams, &log.BestScore, &log.TrainRows, &log.TestRows, &log.DurationMS, &log.TrainedAt); err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}
	return logs, rows.Err()
}
