package IO

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/manningwu07/grokking/params"
)

// RunStore records runs and their per-epoch losses in sqlite.
type RunStore struct {
	db *sql.DB
}

type LossRow struct {
	Epoch     int
	TrainLoss float64
	TestLoss  float64
}

type RunRow struct {
	ID         int64
	Name       string
	FnName     string
	Started    time.Time
	FinalEpoch int
	TrainLoss  float64
	TestLoss   float64
	Finished   bool
}

func OpenRunStore(path string) (*RunStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("IO: open run store %s: %w", path, err)
	}
	for _, stmt := range []string{`
		CREATE TABLE IF NOT EXISTS runs(
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			fn TEXT NOT NULL,
			started REAL NOT NULL,
			config TEXT NOT NULL,
			final_epoch INTEGER,
			train_loss REAL,
			test_loss REAL
		)`, `
		CREATE TABLE IF NOT EXISTS losses(
			run_id INTEGER NOT NULL REFERENCES runs(id),
			epoch INTEGER NOT NULL,
			train_loss REAL NOT NULL,
			test_loss REAL NOT NULL,
			PRIMARY KEY(run_id, epoch)
		)`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("IO: open run store %s: %w", path, err)
		}
	}
	return &RunStore{db: db}, nil
}

func (s *RunStore) Close() error { return s.db.Close() }

// StartRun inserts a run and returns its id.
func (s *RunStore) StartRun(ctx context.Context, name, fnName string, cfg params.TrainingConfig) (int64, error) {
	blob, err := json.Marshal(cfg)
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO runs(name, fn, started, config) VALUES(?,?,?,?)",
		name, fnName, float64(time.Now().UnixMilli())/1000.0, string(blob))
	if err != nil {
		return 0, fmt.Errorf("IO: start run %s: %w", name, err)
	}
	return res.LastInsertId()
}

// LogLosses writes rows in one transaction.
func (s *RunStore) LogLosses(ctx context.Context, runID int64, rows []LossRow) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("IO: log losses: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, "INSERT OR REPLACE INTO losses(run_id, epoch, train_loss, test_loss) VALUES(?,?,?,?)")
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("IO: log losses: %w", err)
	}
	defer stmt.Close()
	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, runID, r.Epoch, r.TrainLoss, r.TestLoss); err != nil {
			tx.Rollback()
			return fmt.Errorf("IO: log losses: epoch %d: %w", r.Epoch, err)
		}
	}
	return tx.Commit()
}

func (s *RunStore) FinishRun(ctx context.Context, runID int64, finalEpoch int, trainLoss, testLoss float64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE runs SET final_epoch = ?, train_loss = ?, test_loss = ? WHERE id = ?",
		finalEpoch, trainLoss, testLoss, runID)
	if err != nil {
		return fmt.Errorf("IO: finish run %d: %w", runID, err)
	}
	return nil
}

// Losses returns a run's losses by epoch.
func (s *RunStore) Losses(ctx context.Context, runID int64) ([]LossRow, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT epoch, train_loss, test_loss FROM losses WHERE run_id = ? ORDER BY epoch", runID)
	if err != nil {
		return nil, fmt.Errorf("IO: losses of run %d: %w", runID, err)
	}
	defer rows.Close()
	var out []LossRow
	for rows.Next() {
		var r LossRow
		if err := rows.Scan(&r.Epoch, &r.TrainLoss, &r.TestLoss); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Runs lists every run, newest first.
func (s *RunStore) Runs(ctx context.Context) ([]RunRow, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, fn, started, final_epoch, train_loss, test_loss FROM runs ORDER BY id DESC")
	if err != nil {
		return nil, fmt.Errorf("IO: list runs: %w", err)
	}
	defer rows.Close()
	var out []RunRow
	for rows.Next() {
		var (
			r         RunRow
			started   float64
			epoch     sql.NullInt64
			trainLoss sql.NullFloat64
			testLoss  sql.NullFloat64
		)
		if err := rows.Scan(&r.ID, &r.Name, &r.FnName, &started, &epoch, &trainLoss, &testLoss); err != nil {
			return nil, err
		}
		r.Started = time.UnixMilli(int64(started * 1000))
		r.Finished = epoch.Valid
		r.FinalEpoch = int(epoch.Int64)
		r.TrainLoss = trainLoss.Float64
		r.TestLoss = testLoss.Float64
		out = append(out, r)
	}
	return out, rows.Err()
}
