// Package history stores the dated observation panels a backtest reads:
// daily prices and market capitalizations.
package history

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/backtester/internal/database"
	"github.com/aristath/backtester/internal/modules/panels"
)

// Kind identifies a stored panel.
type Kind string

const (
	KindPrice     Kind = "price"
	KindMarketCap Kind = "market_cap"
)

var (
	// ErrNoData is returned when a panel has no stored observations.
	ErrNoData = errors.New("no observations stored")
	// ErrUnknownKind is returned for panel kinds other than price and market_cap.
	ErrUnknownKind = errors.New("unknown panel kind")
)

// ParseKind validates a panel kind name.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindPrice, KindMarketCap:
		return Kind(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// PanelName is the display name used for loaded panels and error messages.
func (k Kind) PanelName() string {
	if k == KindMarketCap {
		return "market caps"
	}
	return "prices"
}

// Stats describes a stored panel.
type Stats struct {
	Kind         Kind       `json:"kind"`
	Observations int        `json:"observations"`
	Missing      int        `json:"missing"`
	Dates        int        `json:"dates"`
	Symbols      int        `json:"symbols"`
	FirstDate    *time.Time `json:"first_date,omitempty"`
	LastDate     *time.Time `json:"last_date,omitempty"`
}

// Repository handles observation storage in history.db
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new history repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "history").Logger(),
	}
}

// SavePanel upserts every cell of p under kind in a single transaction.
// Null cells are stored as NULL so a later load restores them as missing.
// Returns the number of cells written.
func (r *Repository) SavePanel(kind Kind, p *panels.Panel) (int, error) {
	return r.writePanel(kind, p, false)
}

// ReplacePanel swaps the stored panel for kind with p. The delete and the
// insert share one transaction, so dates and symbols absent from p are gone
// afterwards and a failed write leaves the previous panel intact.
func (r *Repository) ReplacePanel(kind Kind, p *panels.Panel) (int, error) {
	return r.writePanel(kind, p, true)
}

func (r *Repository) writePanel(kind Kind, p *panels.Panel, replace bool) (int, error) {
	if _, err := ParseKind(string(kind)); err != nil {
		return 0, err
	}

	var (
		written int
		removed int64
	)
	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		if replace {
			result, err := tx.Exec("DELETE FROM observations WHERE panel = ?", string(kind))
			if err != nil {
				return fmt.Errorf("failed to clear stored observations: %w", err)
			}
			if removed, err = result.RowsAffected(); err != nil {
				return fmt.Errorf("failed to count cleared observations: %w", err)
			}
		}

		stmt, err := tx.Prepare(`
			INSERT INTO observations (panel, date, symbol, value)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(panel, date, symbol) DO UPDATE SET value = excluded.value
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare observation insert: %w", err)
		}
		defer stmt.Close()

		columns := p.Columns()
		for i := 0; i < p.Len(); i++ {
			date := p.Date(i).Unix()
			for j, symbol := range columns {
				var value interface{}
				if v, ok := p.At(i, j).Get(); ok {
					value = v
				}
				if _, err := stmt.Exec(string(kind), date, symbol, value); err != nil {
					return fmt.Errorf("failed to insert %s %s on %s: %w",
						kind, symbol, panels.FormatDate(p.Date(i)), err)
				}
				written++
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to save %s panel: %w", kind, err)
	}

	r.log.Info().
		Str("kind", string(kind)).
		Bool("replace", replace).
		Int64("removed", removed).
		Int("dates", p.Len()).
		Int("symbols", p.Width()).
		Int("observations", written).
		Msg("Panel saved")

	return written, nil
}

// LoadPanel rebuilds the stored panel for kind with dates and symbols in
// ascending order. Cells never written are null.
func (r *Repository) LoadPanel(kind Kind) (*panels.Panel, error) {
	rows, err := r.db.Query(`
		SELECT date, symbol, value FROM observations
		WHERE panel = ?
		ORDER BY date ASC, symbol ASC
	`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("failed to load %s panel: %w", kind, err)
	}
	defer rows.Close()

	type cell struct {
		row    int
		symbol string
		value  panels.Value
	}

	var (
		dates   []time.Time
		cells   []cell
		symbols = make(map[string]struct{})
		last    int64
	)
	for rows.Next() {
		var (
			unix   int64
			symbol string
			value  sql.NullFloat64
		)
		if err := rows.Scan(&unix, &symbol, &value); err != nil {
			return nil, fmt.Errorf("failed to scan observation: %w", err)
		}
		if len(dates) == 0 || unix != last {
			dates = append(dates, time.Unix(unix, 0).UTC())
			last = unix
		}
		symbols[symbol] = struct{}{}

		v := panels.Null
		if value.Valid {
			v = panels.Clean(value.Float64)
		}
		cells = append(cells, cell{row: len(dates) - 1, symbol: symbol, value: v})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating observations: %w", err)
	}

	if len(dates) == 0 {
		return nil, fmt.Errorf("%s: %w", kind, ErrNoData)
	}

	columns := make([]string, 0, len(symbols))
	for s := range symbols {
		columns = append(columns, s)
	}
	sort.Strings(columns)

	p := panels.New(kind.PanelName(), dates, columns)
	for _, c := range cells {
		col, _ := p.ColumnIndex(c.symbol)
		p.Set(c.row, col, c.value)
	}

	return p, nil
}

// Stats summarizes the stored panel for kind. An empty panel yields zero
// counts and nil dates.
func (r *Repository) Stats(kind Kind) (*Stats, error) {
	var (
		first, lastDate sql.NullInt64
		stats           = Stats{Kind: kind}
	)

	err := r.db.QueryRow(`
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN value IS NULL THEN 1 ELSE 0 END), 0),
		       COUNT(DISTINCT date),
		       COUNT(DISTINCT symbol),
		       MIN(date),
		       MAX(date)
		FROM observations WHERE panel = ?
	`, string(kind)).Scan(&stats.Observations, &stats.Missing, &stats.Dates, &stats.Symbols, &first, &lastDate)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s stats: %w", kind, err)
	}

	if first.Valid {
		t := time.Unix(first.Int64, 0).UTC()
		stats.FirstDate = &t
	}
	if lastDate.Valid {
		t := time.Unix(lastDate.Int64, 0).UTC()
		stats.LastDate = &t
	}

	return &stats, nil
}

// Delete removes every observation of kind and returns the number removed.
func (r *Repository) Delete(kind Kind) (int64, error) {
	result, err := r.db.Exec("DELETE FROM observations WHERE panel = ?", string(kind))
	if err != nil {
		return 0, fmt.Errorf("failed to delete %s panel: %w", kind, err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted observations: %w", err)
	}

	r.log.Info().
		Str("kind", string(kind)).
		Int64("deleted", deleted).
		Msg("Panel deleted")

	return deleted, nil
}
