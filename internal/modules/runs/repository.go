// Package runs archives completed backtests in backtests.db.
package runs

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/backtester/internal/modules/backtest"
)

// DefaultListLimit caps List when a non-positive limit is given.
const DefaultListLimit = 50

// payload is the msgpack-encoded part of a run row.
type payload struct {
	Index      backtest.Series      `msgpack:"index"`
	Rebalances []backtest.Rebalance `msgpack:"rebalances"`
}

// Repository handles run archive operations
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new run repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "runs").Logger(),
	}
}

// Save inserts rec. An empty ID is replaced with a new UUID and a zero
// CreatedAt with the current time; both are written back to rec.
func (r *Repository) Save(rec *backtest.Record) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	summary, err := json.Marshal(rec.Summary)
	if err != nil {
		return fmt.Errorf("failed to encode run summary: %w", err)
	}

	body, err := msgpack.Marshal(payload{Index: rec.Index, Rebalances: rec.Rebalances})
	if err != nil {
		return fmt.Errorf("failed to encode run payload: %w", err)
	}

	_, err = r.db.Exec(`
		INSERT INTO runs
		(id, created_at, signal_mode, first_date, last_date, final_value, rebalances, summary, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.ID,
		rec.CreatedAt.Unix(),
		string(rec.Summary.SignalMode),
		rec.Summary.FirstDate.Unix(),
		rec.Summary.LastDate.Unix(),
		rec.Summary.FinalValue,
		rec.Summary.Rebalances,
		string(summary),
		body,
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	r.log.Info().
		Str("id", rec.ID).
		Str("signal_mode", string(rec.Summary.SignalMode)).
		Float64("final_value", rec.Summary.FinalValue).
		Int("payload_bytes", len(body)).
		Msg("Run saved")

	return nil
}

// Get retrieves a run with its full series and rebalance log.
func (r *Repository) Get(id string) (*backtest.Record, error) {
	var (
		createdAt int64
		summary   string
		body      []byte
	)
	err := r.db.QueryRow("SELECT created_at, summary, payload FROM runs WHERE id = ?", id).
		Scan(&createdAt, &summary, &body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", backtest.ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	rec := &backtest.Record{
		ID:        id,
		CreatedAt: time.Unix(createdAt, 0).UTC(),
	}
	if err := json.Unmarshal([]byte(summary), &rec.Summary); err != nil {
		return nil, fmt.Errorf("failed to decode run summary: %w", err)
	}

	var p payload
	if err := msgpack.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("failed to decode run payload: %w", err)
	}
	p.toUTC()
	rec.Index = p.Index
	rec.Rebalances = p.Rebalances

	return rec, nil
}

// toUTC restores the UTC location msgpack drops when decoding timestamps.
func (p *payload) toUTC() {
	for i := range p.Index {
		p.Index[i].Date = p.Index[i].Date.UTC()
	}
	for i := range p.Rebalances {
		p.Rebalances[i].Date = p.Rebalances[i].Date.UTC()
		p.Rebalances[i].Universe.CapDate = p.Rebalances[i].Universe.CapDate.UTC()
	}
}

// List returns the most recent runs first, without payloads.
func (r *Repository) List(limit int) ([]backtest.RunInfo, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := r.db.Query(`
		SELECT id, created_at, signal_mode, first_date, last_date, final_value, rebalances
		FROM runs
		ORDER BY created_at DESC, id ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	infos := make([]backtest.RunInfo, 0)
	for rows.Next() {
		var (
			info                       backtest.RunInfo
			mode                       string
			createdAt, first, lastDate int64
		)
		if err := rows.Scan(&info.ID, &createdAt, &mode, &first, &lastDate, &info.FinalValue, &info.Rebalances); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		info.SignalMode = backtest.SignalMode(mode)
		info.CreatedAt = time.Unix(createdAt, 0).UTC()
		info.FirstDate = time.Unix(first, 0).UTC()
		info.LastDate = time.Unix(lastDate, 0).UTC()
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return infos, nil
}

// Delete removes a run.
func (r *Repository) Delete(id string) error {
	result, err := r.db.Exec("DELETE FROM runs WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", backtest.ErrRunNotFound, id)
	}

	r.log.Info().Str("id", id).Msg("Run deleted")
	return nil
}
