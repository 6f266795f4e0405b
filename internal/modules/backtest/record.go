package backtest

import (
	"errors"
	"time"

	"github.com/aristath/backtester/internal/modules/history"
	"github.com/aristath/backtester/internal/modules/panels"
)

// ErrRunNotFound is returned by a RunStore for an unknown run ID.
var ErrRunNotFound = errors.New("backtest run not found")

// Record is an archived run.
type Record struct {
	ID         string      `json:"id"`
	CreatedAt  time.Time   `json:"created_at"`
	Summary    Summary     `json:"summary"`
	Index      Series      `json:"index,omitempty"`
	Rebalances []Rebalance `json:"rebalances,omitempty"`
}

// RunInfo is the list view of an archived run, without the series.
type RunInfo struct {
	ID         string     `json:"id"`
	CreatedAt  time.Time  `json:"created_at"`
	SignalMode SignalMode `json:"signal_mode"`
	FirstDate  time.Time  `json:"first_date"`
	LastDate   time.Time  `json:"last_date"`
	FinalValue float64    `json:"final_value"`
	Rebalances int        `json:"rebalances"`
}

// NewRecord builds an unsaved record from a run result.
func NewRecord(result *Result, summary Summary) *Record {
	return &Record{
		Summary:    summary,
		Index:      result.Index,
		Rebalances: result.Rebalances,
	}
}

// PanelStore loads and stores observation panels.
// Implemented by history.Repository.
type PanelStore interface {
	LoadPanel(kind history.Kind) (*panels.Panel, error)
	SavePanel(kind history.Kind, p *panels.Panel) (int, error)
	ReplacePanel(kind history.Kind, p *panels.Panel) (int, error)
	Delete(kind history.Kind) (int64, error)
}

// RunStore archives completed runs. Implemented by runs.Repository.
type RunStore interface {
	Save(rec *Record) error
	Get(id string) (*Record, error)
	List(limit int) ([]RunInfo, error)
	Delete(id string) error
}
