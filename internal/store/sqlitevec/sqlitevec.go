// Package sqlitevec is the pipeline's SQLite store: the windowed dataset
// cache (one float32 vector per window) and the history of training runs.
package sqlitevec

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	_ "modernc.org/sqlite"

	"workoutnet/internal/activity"
	"workoutnet/internal/dataset"
)

// ErrNotFound is returned when a run id is unknown.
var ErrNotFound = errors.New("not found")

// DB wraps a SQLite database used as a vector store.
type DB struct{ sql *sql.DB }

func Open(path string) (*DB, error) {
	d, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if path == ":memory:" {
		// every pooled connection would otherwise see its own empty database
		d.SetMaxOpenConns(1)
	}
	if _, err := d.Exec(`PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;`); err != nil {
		_ = d.Close()
		return nil, err
	}
	db := &DB{sql: d}
	if err := db.migrate(); err != nil {
		_ = d.Close()
		return nil, err
	}
	return db, nil
}

func (d *DB) Close() error { return d.sql.Close() }

func (d *DB) migrate() error {
	_, err := d.sql.Exec(`
	CREATE TABLE IF NOT EXISTS windows (
	  id INTEGER PRIMARY KEY AUTOINCREMENT,
	  activity INTEGER NOT NULL,
	  session TEXT NOT NULL,
	  idx INTEGER NOT NULL,
	  steps INTEGER NOT NULL,
	  vector BLOB NOT NULL
	);
	CREATE TABLE IF NOT EXISTS runs (
	  id TEXT PRIMARY KEY,
	  started_at INTEGER NOT NULL,
	  finished_at INTEGER,
	  status TEXT NOT NULL,
	  config TEXT,
	  train_size INTEGER NOT NULL DEFAULT 0,
	  val_size INTEGER NOT NULL DEFAULT 0,
	  epochs INTEGER NOT NULL DEFAULT 0,
	  best_epoch INTEGER NOT NULL DEFAULT 0,
	  best_acc REAL NOT NULL DEFAULT 0,
	  early_stopped INTEGER NOT NULL DEFAULT 0,
	  half_acc REAL NOT NULL DEFAULT 0,
	  full_bytes INTEGER NOT NULL DEFAULT 0,
	  half_bytes INTEGER NOT NULL DEFAULT 0,
	  error TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	CREATE TABLE IF NOT EXISTS epochs (
	  run_id TEXT NOT NULL REFERENCES runs(id),
	  epoch INTEGER NOT NULL,
	  train_loss REAL NOT NULL,
	  train_acc REAL NOT NULL,
	  val_loss REAL NOT NULL,
	  val_acc REAL NOT NULL,
	  lr REAL NOT NULL,
	  PRIMARY KEY (run_id, epoch)
	);
	`)
	return err
}

// ReplaceWindows swaps the cached dataset for ds.
func (d *DB) ReplaceWindows(ctx context.Context, ds *dataset.Dataset) error {
	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM windows`); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO windows(activity, session, idx, steps, vector) VALUES(?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, s := range ds.Samples {
		if _, err := stmt.ExecContext(ctx, int(s.Label), s.Session, s.Index, ds.Steps, encodeF32(s.X)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// LoadWindows returns the cached dataset in insertion order.
func (d *DB) LoadWindows(ctx context.Context) (*dataset.Dataset, error) {
	rows, err := d.sql.QueryContext(ctx, `SELECT activity, session, idx, steps, vector FROM windows ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ds *dataset.Dataset
	for rows.Next() {
		var lbl, idx, steps int
		var session string
		var vb []byte
		if err := rows.Scan(&lbl, &session, &idx, &steps, &vb); err != nil {
			return nil, err
		}
		if ds == nil {
			ds = dataset.New(steps)
		}
		a, err := activity.FromLabel(lbl)
		if err != nil {
			return nil, fmt.Errorf("cached window %s/%d: %w", session, idx, err)
		}
		x := decodeF32(vb)
		if steps != ds.Steps || len(x) != steps*dataset.FeatureCount {
			return nil, fmt.Errorf("corrupt cached window %s/%d", session, idx)
		}
		ds.Append(dataset.Sample{X: x, Label: a, Session: session, Index: idx})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if ds == nil {
		return nil, errors.New("no cached windows; run build first")
	}
	return ds, nil
}

// Run is one training run.
type Run struct {
	ID           string     `json:"id"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	Status       string     `json:"status"`
	Config       string     `json:"config,omitempty"`
	TrainSize    int        `json:"train_size"`
	ValSize      int        `json:"val_size"`
	Epochs       int        `json:"epochs"`
	BestEpoch    int        `json:"best_epoch"`
	BestAcc      float64    `json:"best_acc"`
	EarlyStopped bool       `json:"early_stopped"`
	HalfAcc      float64    `json:"half_acc"`
	FullBytes    int64      `json:"full_bytes"`
	HalfBytes    int64      `json:"half_bytes"`
	Error        string     `json:"error,omitempty"`
}

// Run statuses.
const (
	StatusRunning  = "running"
	StatusComplete = "completed"
	StatusFailed   = "failed"
)

// CreateRun records a run as started.
func (d *DB) CreateRun(ctx context.Context, id string, started time.Time, config string, trainSize, valSize int) error {
	_, err := d.sql.ExecContext(ctx, `INSERT INTO runs(id, started_at, status, config, train_size, val_size) VALUES(?,?,?,?,?,?)`,
		id, started.UnixMilli(), StatusRunning, config, trainSize, valSize)
	return err
}

// FinishRun stores the outcome of a completed run.
func (d *DB) FinishRun(ctx context.Context, r Run) error {
	res, err := d.sql.ExecContext(ctx, `UPDATE runs SET finished_at=?, status=?, epochs=?, best_epoch=?, best_acc=?, early_stopped=?, half_acc=?, full_bytes=?, half_bytes=? WHERE id=?`,
		time.Now().UTC().UnixMilli(), StatusComplete, r.Epochs, r.BestEpoch, r.BestAcc, r.EarlyStopped, r.HalfAcc, r.FullBytes, r.HalfBytes, r.ID)
	return affected(res, err)
}

// FailRun marks a run as failed with cause.
func (d *DB) FailRun(ctx context.Context, id string, cause error) error {
	res, err := d.sql.ExecContext(ctx, `UPDATE runs SET finished_at=?, status=?, error=? WHERE id=?`,
		time.Now().UTC().UnixMilli(), StatusFailed, cause.Error(), id)
	return affected(res, err)
}

func affected(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

const runColumns = `id, started_at, finished_at, status, COALESCE(config, ''), train_size, val_size, epochs, best_epoch, best_acc, early_stopped, half_acc, full_bytes, half_bytes, COALESCE(error, '')`

type scanner interface{ Scan(dest ...any) error }

func scanRun(s scanner) (Run, error) {
	var r Run
	var started int64
	var finished sql.NullInt64
	if err := s.Scan(&r.ID, &started, &finished, &r.Status, &r.Config, &r.TrainSize, &r.ValSize,
		&r.Epochs, &r.BestEpoch, &r.BestAcc, &r.EarlyStopped, &r.HalfAcc, &r.FullBytes, &r.HalfBytes, &r.Error); err != nil {
		return r, err
	}
	r.StartedAt = time.UnixMilli(started).UTC()
	if finished.Valid {
		t := time.UnixMilli(finished.Int64).UTC()
		r.FinishedAt = &t
	}
	return r, nil
}

// GetRun returns one run, or ErrNotFound.
func (d *DB) GetRun(ctx context.Context, id string) (Run, error) {
	r, err := scanRun(d.sql.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return r, ErrNotFound
	}
	return r, err
}

// ListRuns returns up to limit runs, newest first. limit<=0 means all.
func (d *DB) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := d.sql.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Epoch is one stored epoch of a run.
type Epoch struct {
	Epoch     int     `json:"epoch"`
	TrainLoss float64 `json:"train_loss"`
	TrainAcc  float64 `json:"train_acc"`
	ValLoss   float64 `json:"val_loss"`
	ValAcc    float64 `json:"val_acc"`
	LR        float64 `json:"lr"`
}

func (d *DB) PutEpoch(ctx context.Context, runID string, e Epoch) error {
	_, err := d.sql.ExecContext(ctx, `INSERT INTO epochs(run_id, epoch, train_loss, train_acc, val_loss, val_acc, lr) VALUES(?,?,?,?,?,?,?)
	ON CONFLICT(run_id, epoch) DO UPDATE SET train_loss=excluded.train_loss, train_acc=excluded.train_acc, val_loss=excluded.val_loss, val_acc=excluded.val_acc, lr=excluded.lr`,
		runID, e.Epoch, e.TrainLoss, e.TrainAcc, e.ValLoss, e.ValAcc, e.LR)
	return err
}

// LoadEpochs returns a run's epochs in order.
func (d *DB) LoadEpochs(ctx context.Context, runID string) ([]Epoch, error) {
	rows, err := d.sql.QueryContext(ctx, `SELECT epoch, train_loss, train_acc, val_loss, val_acc, lr FROM epochs WHERE run_id=? ORDER BY epoch`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Epoch{}
	for rows.Next() {
		var e Epoch
		if err := rows.Scan(&e.Epoch, &e.TrainLoss, &e.TrainAcc, &e.ValLoss, &e.ValAcc, &e.LR); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func encodeF32(v []float32) []byte {
	b := make([]byte, 4*len(v))
	for i := range v {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(v[i]))
	}
	return b
}

func decodeF32(b []byte) []float32 {
	n := len(b) / 4
	v := make([]float32, n)
	for i := 0; i < n; i++ {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v
}
