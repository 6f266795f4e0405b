package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/backtester/internal/modules/history"
	"github.com/aristath/backtester/internal/modules/panels"
	"github.com/aristath/backtester/internal/observability"
	"github.com/aristath/backtester/internal/utils"
)

// RunOptions configures a single run.
type RunOptions struct {
	// SignalMode overrides the service default when set.
	SignalMode SignalMode `json:"signal_mode,omitempty"`
	// Observer, if set, receives every rebalance as it happens.
	Observer Observer `json:"-"`
}

// Service orchestrates panel storage, the engine and the run archive.
type Service struct {
	store       PanelStore
	runs        RunStore
	metrics     *observability.Metrics
	defaultMode SignalMode
	log         zerolog.Logger
}

// NewService creates a new backtest service. runs and metrics may be nil.
func NewService(store PanelStore, runs RunStore, metrics *observability.Metrics, defaultMode SignalMode, log zerolog.Logger) *Service {
	if defaultMode == "" {
		defaultMode = SignalLagged20
	}
	return &Service{
		store:       store,
		runs:        runs,
		metrics:     metrics,
		defaultMode: defaultMode,
		log:         log.With().Str("service", "backtest").Logger(),
	}
}

// DefaultSignalMode returns the mode used when RunOptions leaves it empty.
func (s *Service) DefaultSignalMode() SignalMode {
	return s.defaultMode
}

func (s *Service) resolve(opts RunOptions) (RunOptions, error) {
	if opts.SignalMode == "" {
		opts.SignalMode = s.defaultMode
		return opts, nil
	}
	mode, err := ParseSignalMode(string(opts.SignalMode))
	if err != nil {
		return opts, err
	}
	opts.SignalMode = mode
	return opts, nil
}

// RunPanels runs the engine over aligned panels without persisting anything.
func (s *Service) RunPanels(ctx context.Context, prices, caps *panels.Panel, opts RunOptions) (*Result, Summary, error) {
	opts, err := s.resolve(opts)
	if err != nil {
		return nil, Summary{}, err
	}
	if err := ctx.Err(); err != nil {
		return nil, Summary{}, err
	}

	observer := opts.Observer
	if s.metrics != nil {
		observer = func(r Rebalance) {
			s.metrics.RecordRebalance(string(r.Weighting))
			if opts.Observer != nil {
				opts.Observer(r)
			}
		}
	}

	stop := utils.ObservedTimer("backtest_run", s.log, nil)
	result, err := NewEngine(Config{SignalMode: opts.SignalMode, Observer: observer}, s.log).Run(prices, caps)
	elapsed := stop()

	if err != nil {
		s.record(opts.SignalMode, elapsed, 0, err)
		return nil, Summary{}, err
	}

	summary := Summarize(result)
	s.record(opts.SignalMode, elapsed, summary.FinalValue, nil)

	return result, summary, nil
}

func (s *Service) record(mode SignalMode, elapsed time.Duration, final float64, err error) {
	if s.metrics != nil {
		s.metrics.RecordRun(string(mode), elapsed, final, err)
	}
}

// RunStored loads both stored panels, runs the engine and archives the run.
// The returned record carries the assigned ID.
func (s *Service) RunStored(ctx context.Context, opts RunOptions) (*Record, error) {
	defer utils.OperationTimer("backtest_run_stored", s.log)()

	prices, err := s.store.LoadPanel(history.KindPrice)
	if err != nil {
		return nil, fmt.Errorf("failed to load prices: %w", err)
	}
	caps, err := s.store.LoadPanel(history.KindMarketCap)
	if err != nil {
		return nil, fmt.Errorf("failed to load market caps: %w", err)
	}

	result, summary, err := s.RunPanels(ctx, prices, caps, opts)
	if err != nil {
		return nil, err
	}

	rec := NewRecord(result, summary)
	if s.runs == nil {
		return rec, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.runs.Save(rec); err != nil {
		return nil, fmt.Errorf("failed to archive run: %w", err)
	}

	s.log.Info().
		Str("id", rec.ID).
		Str("signal_mode", string(summary.SignalMode)).
		Float64("final_value", summary.FinalValue).
		Int("rebalances", summary.Rebalances).
		Msg("Stored-panel backtest archived")

	return rec, nil
}

// Import normalizes raw and upserts it into the kind panel. Stored dates and
// symbols missing from raw are kept. Returns the number of observations written.
func (s *Service) Import(kind history.Kind, raw panels.RawPanel) (int, error) {
	defer utils.OperationTimer("history_import", s.log)()
	return s.importPanel(kind, raw, s.store.SavePanel)
}

// ReplaceHistory normalizes raw and makes it the whole kind panel, dropping
// every previously stored observation of that kind.
func (s *Service) ReplaceHistory(kind history.Kind, raw panels.RawPanel) (int, error) {
	defer utils.OperationTimer("history_replace", s.log)()
	return s.importPanel(kind, raw, s.store.ReplacePanel)
}

// DeleteHistory removes the stored kind panel and returns the number of
// observations removed.
func (s *Service) DeleteHistory(kind history.Kind) (int64, error) {
	if _, err := history.ParseKind(string(kind)); err != nil {
		return 0, err
	}
	return s.store.Delete(kind)
}

func (s *Service) importPanel(kind history.Kind, raw panels.RawPanel, save func(history.Kind, *panels.Panel) (int, error)) (int, error) {
	if raw.Name == "" {
		raw.Name = kind.PanelName()
	}

	written, err := normalizeAndSave(kind, raw, save)
	if s.metrics != nil {
		s.metrics.RecordImport(string(kind), written, err)
	}
	return written, err
}

func normalizeAndSave(kind history.Kind, raw panels.RawPanel, save func(history.Kind, *panels.Panel) (int, error)) (int, error) {
	if _, err := history.ParseKind(string(kind)); err != nil {
		return 0, err
	}

	p, err := panels.Normalize(raw)
	if err != nil {
		return 0, err
	}

	return save(kind, p)
}

// Get returns an archived run.
func (s *Service) Get(id string) (*Record, error) {
	if s.runs == nil {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return s.runs.Get(id)
}

// List returns archived runs, newest first.
func (s *Service) List(limit int) ([]RunInfo, error) {
	if s.runs == nil {
		return []RunInfo{}, nil
	}
	return s.runs.List(limit)
}

// Delete removes an archived run.
func (s *Service) Delete(id string) error {
	if s.runs == nil {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return s.runs.Delete(id)
}
