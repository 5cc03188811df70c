package storage

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/umputun/sms-spam/app/storage/engine"
	"github.com/umputun/sms-spam/lib/smsspam"
)

// Predictions is a storage for the history of served predictions
type Predictions struct {
	*engine.SQL
	engine.RWLocker
}

// PredictionInfo represents a single served prediction
type PredictionInfo struct {
	ID         string        `db:"id"`
	GID        string        `db:"gid"`
	Text       string        `db:"text"`
	Label      smsspam.Label `db:"label"`
	Normalized string        `db:"normalized"`
	Timestamp  time.Time     `db:"timestamp"`
}

// LabelCount is a number of predictions with the label
type LabelCount struct {
	Label smsspam.Label `db:"label" json:"label"`
	Count int           `db:"count" json:"count"`
}

// predictions-related command constants
const (
	CmdCreatePredictionsTable engine.DBCmd = iota + 100
	CmdCreatePredictionsIndexes
	CmdAddPrediction
	CmdReadPredictions
	CmdPredictionStats
	CmdAddNormalizedColumn
)

// predictionsQueries holds all predictions-related queries
var predictionsQueries = engine.NewQueryMap().
	Add(CmdCreatePredictionsTable, engine.Query{
		Sqlite: `CREATE TABLE IF NOT EXISTS predictions (
			id TEXT PRIMARY KEY,
			gid TEXT NOT NULL DEFAULT '',
			text TEXT NOT NULL,
			label TEXT NOT NULL,
			normalized TEXT NOT NULL DEFAULT '',
			timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		Postgres: `CREATE TABLE IF NOT EXISTS predictions (
			id TEXT PRIMARY KEY,
			gid TEXT NOT NULL DEFAULT '',
			text TEXT NOT NULL,
			label TEXT NOT NULL,
			normalized TEXT NOT NULL DEFAULT '',
			timestamp TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
	}).
	AddSame(CmdCreatePredictionsIndexes, `
		CREATE INDEX IF NOT EXISTS idx_predictions_gid_ts ON predictions(gid, timestamp DESC);
		CREATE INDEX IF NOT EXISTS idx_predictions_gid_label ON predictions(gid, label)`).
	AddSame(CmdAddPrediction, `INSERT INTO predictions (id, gid, text, label, normalized, timestamp)
		VALUES (:id, :gid, :text, :label, :normalized, :timestamp)`).
	AddSame(CmdReadPredictions, `SELECT id, gid, text, label, normalized, timestamp FROM predictions
		WHERE gid = ? ORDER BY timestamp DESC, id LIMIT ?`).
	AddSame(CmdPredictionStats, `SELECT label, COUNT(*) AS count FROM predictions
		WHERE gid = ? GROUP BY label ORDER BY label`).
	Add(CmdAddNormalizedColumn, engine.Query{
		Sqlite:   `ALTER TABLE predictions ADD COLUMN normalized TEXT NOT NULL DEFAULT ''`,
		Postgres: `ALTER TABLE predictions ADD COLUMN IF NOT EXISTS normalized TEXT NOT NULL DEFAULT ''`,
	})

// NewPredictions creates a new Predictions storage
func NewPredictions(ctx context.Context, db *engine.SQL) (*Predictions, error) {
	if db == nil {
		return nil, errors.New("db connection is nil")
	}
	res := &Predictions{SQL: db, RWLocker: db.MakeLock()}
	cfg := engine.TableConfig{
		Name:          "predictions",
		CreateTable:   CmdCreatePredictionsTable,
		CreateIndexes: CmdCreatePredictionsIndexes,
		MigrateFunc:   res.migrate,
		QueriesMap:    predictionsQueries,
	}
	if err := engine.InitTable(ctx, db, cfg); err != nil {
		return nil, fmt.Errorf("failed to init predictions storage: %w", err)
	}
	return res, nil
}

// Add stores the prediction. Empty id and zero timestamp are filled in.
func (p *Predictions) Add(ctx context.Context, info PredictionInfo) error {
	if info.ID == "" {
		info.ID = uuid.NewString()
	}
	if info.Timestamp.IsZero() {
		info.Timestamp = time.Now()
	}
	info.GID = p.GID()

	query, err := p.Pick(predictionsQueries, CmdAddPrediction)
	if err != nil {
		return fmt.Errorf("failed to get add query: %w", err)
	}

	p.Lock()
	defer p.Unlock()
	if _, err := p.NamedExecContext(ctx, query, info); err != nil {
		return fmt.Errorf("failed to add prediction %s: %w", info.ID, err)
	}
	log.Printf("[DEBUG] prediction %s stored, label %s", info.ID, info.Label)
	return nil
}

// Read returns up to limit latest predictions, newest first
func (p *Predictions) Read(ctx context.Context, limit int) ([]PredictionInfo, error) {
	if limit <= 0 {
		return []PredictionInfo{}, nil
	}
	query, err := p.Pick(predictionsQueries, CmdReadPredictions)
	if err != nil {
		return nil, fmt.Errorf("failed to get read query: %w", err)
	}

	p.RLock()
	defer p.RUnlock()
	res := []PredictionInfo{}
	if err := p.SelectContext(ctx, &res, query, p.GID(), limit); err != nil {
		return nil, fmt.Errorf("failed to read predictions: %w", err)
	}
	for i := range res {
		res[i].Timestamp = res[i].Timestamp.Local()
	}
	return res, nil
}

// Stats returns number of predictions per label, labels sorted
func (p *Predictions) Stats(ctx context.Context) ([]LabelCount, error) {
	query, err := p.Pick(predictionsQueries, CmdPredictionStats)
	if err != nil {
		return nil, fmt.Errorf("failed to get stats query: %w", err)
	}

	p.RLock()
	defer p.RUnlock()
	res := []LabelCount{}
	if err := p.SelectContext(ctx, &res, query, p.GID()); err != nil {
		return nil, fmt.Errorf("failed to get prediction stats: %w", err)
	}
	return res, nil
}

// migrate adds normalized column to tables made before it was introduced
func (p *Predictions) migrate(ctx context.Context, tx *sqlx.Tx, _ string) error {
	var exists bool
	var err error
	switch p.Type() {
	case engine.Sqlite:
		err = tx.GetContext(ctx, &exists, `SELECT COUNT(*) > 0 FROM pragma_table_info('predictions') WHERE name = 'normalized'`)
	case engine.Postgres:
		err = tx.GetContext(ctx, &exists, `SELECT COUNT(*) > 0 FROM information_schema.columns
			WHERE table_name = 'predictions' AND column_name = 'normalized'`)
	}
	if err != nil {
		return fmt.Errorf("failed to check normalized column: %w", err)
	}
	if exists {
		return nil
	}

	query, err := p.Pick(predictionsQueries, CmdAddNormalizedColumn)
	if err != nil {
		return fmt.Errorf("failed to get migration query: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to add normalized column: %w", err)
	}
	log.Printf("[INFO] predictions table migrated, normalized column added")
	return nil
}
