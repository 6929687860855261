// Package backtest replays price history through a strategy, the position
// ledger and the compliance tracker.
package backtest

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"strategy-lab/internal/compliance"
	"strategy-lab/internal/domain"
	"strategy-lab/internal/history"
	"strategy-lab/internal/indicators"
	"strategy-lab/internal/ledger"
	"strategy-lab/internal/metrics"
	"strategy-lab/internal/strategy"
)

var (
	// ErrStrategyFault is returned when the strategy fails on too many
	// consecutive ticks. It aborts the run.
	ErrStrategyFault = errors.New("strategy fault")

	// ErrNilStrategy is returned by NewSimulator without a strategy.
	ErrNilStrategy = errors.New("nil strategy")
)

// DefaultMaxStrategyFaults is the consecutive failing ticks tolerated per run.
const DefaultMaxStrategyFaults = 50

// State is the lifecycle state of a simulation.
type State string

const (
	StateLoading  State = "LOADING"
	StateRunning  State = "RUNNING"
	StateHalted   State = "HALTED" // terminal compliance state, no new positions
	StateComplete State = "COMPLETE"
)

// Options configures a simulation.
type Options struct {
	Limits            compliance.Limits
	HaltPolicy        compliance.HaltPolicy
	MaxStrategyFaults int // consecutive failing ticks before abort; 0 uses the default
	TimeLimitBars     int // close positions held this many bars; 0 disables
	RunKey            string
	Logger            logrus.FieldLogger
}

// DefaultOptions returns options with default limits.
func DefaultOptions() Options {
	return Options{
		Limits:            compliance.DefaultLimits(),
		HaltPolicy:        compliance.HaltLetResolve,
		MaxStrategyFaults: DefaultMaxStrategyFaults,
	}
}

// Simulator runs one strategy over one history store.
// A Simulator is single-threaded; the store may be shared between
// simulators running concurrently.
type Simulator struct {
	store *history.Store
	strat strategy.Strategy
	opts  Options
	log   logrus.FieldLogger
	state State
}

// NewSimulator validates the options and returns a simulator in LOADING state.
func NewSimulator(store *history.Store, strat strategy.Strategy, opts Options) (*Simulator, error) {
	if store == nil {
		return nil, history.ErrEmptySeries
	}
	if strat == nil {
		return nil, ErrNilStrategy
	}
	if err := opts.Limits.Validate(); err != nil {
		return nil, err
	}
	policy, err := compliance.ParseHaltPolicy(string(opts.HaltPolicy))
	if err != nil {
		return nil, err
	}
	opts.HaltPolicy = policy
	if opts.MaxStrategyFaults <= 0 {
		opts.MaxStrategyFaults = DefaultMaxStrategyFaults
	}
	if opts.TimeLimitBars < 0 {
		return nil, fmt.Errorf("negative time limit %d", opts.TimeLimitBars)
	}

	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Simulator{
		store: store,
		strat: strat,
		opts:  opts,
		log:   log.WithField("strategy", strat.ID()),
		state: StateLoading,
	}, nil
}

// State returns the state reached by the last Run.
func (s *Simulator) State() State {
	return s.state
}

// run holds the mutable state of a single simulation pass.
type run struct {
	view       *history.View
	ledger     *ledger.Ledger
	tracker    *compliance.Tracker
	lastQuotes map[string]domain.Quote
	result     *domain.RunResult
	peakEquity float64
	faults     int
}

// Run executes the simulation. Each call starts from a clean account, so
// repeated runs over the same inputs produce identical results.
//
// Within a tick the order is fixed: exits, compliance update, equity
// point, then signal generation and entries.
func (s *Simulator) Run() (*domain.RunResult, error) {
	tracker, err := compliance.NewTracker(s.opts.Limits)
	if err != nil {
		return nil, err
	}
	r := &run{
		view:       history.NewView(s.store),
		ledger:     ledger.New(s.opts.RunKey),
		tracker:    tracker,
		lastQuotes: make(map[string]domain.Quote),
		result:     &domain.RunResult{},
	}

	s.state = StateRunning
	timeline := s.store.Timeline()
	var lastTs int64
	for _, ts := range timeline {
		lastTs = ts
		snap := s.advance(r, ts)
		r.result.TicksProcessed++
		r.tracker.AdvanceTo(ts)

		s.resolveExits(r, snap)

		if s.state == StateRunning && r.tracker.Status().IsTerminal() {
			s.halt(r)
		}

		s.recordEquity(r, snap)

		if s.state == StateRunning {
			if err := s.generate(r, snap); err != nil {
				s.state = StateComplete
				return nil, err
			}
		}

		if s.state == StateHalted && r.ledger.OpenCount() == 0 {
			break
		}
	}

	s.state = StateComplete
	if remaining := r.ledger.ForceCloseAll(domain.ExitReasonEndOfData, r.lastQuotes); len(remaining) > 0 {
		for _, t := range remaining {
			r.tracker.OnTradeClosed(t.RealizedPnL, t.IsWin(), t.ExitTimeMs)
		}
		s.appendEquity(r, lastTs, 0)
	}

	return s.finish(r), nil
}

// advance exposes the bars at ts and builds the snapshot from them.
func (s *Simulator) advance(r *run, ts int64) domain.MarketSnapshot {
	updated := r.view.Advance(ts)
	candles := make([]domain.Candle, 0, len(updated))
	for _, inst := range updated {
		c, _ := r.view.Last(inst)
		candles = append(candles, c)
	}
	snap := domain.NewMarketSnapshot(ts, candles)
	for _, inst := range updated {
		q, _ := snap.Quote(inst)
		r.lastQuotes[inst] = q
	}
	return snap
}

// resolveExits checks stops, targets and the time limit for every
// quoted instrument and books the closes with the tracker.
func (s *Simulator) resolveExits(r *run, snap domain.MarketSnapshot) {
	for _, inst := range snap.Instruments() {
		trade, ok := r.ledger.TryClose(inst, snap)
		if !ok {
			trade, ok = r.ledger.TryTimeExit(inst, snap, s.opts.TimeLimitBars)
		}
		if ok {
			s.book(r, trade)
		}
	}
}

func (s *Simulator) book(r *run, t domain.ClosedTrade) {
	r.tracker.OnTradeClosed(t.RealizedPnL, t.IsWin(), t.ExitTimeMs)
	s.log.WithFields(logrus.Fields{
		"instrument":  t.Instrument,
		"exit_reason": t.ExitReason,
		"pnl":         t.RealizedPnL,
	}).Debug("trade closed")
}

// halt stops new entries and, under HaltForceClose, closes open positions
// at their latest quotes.
func (s *Simulator) halt(r *run) {
	s.state = StateHalted
	state := r.tracker.State()
	s.log.WithFields(logrus.Fields{
		"status": state.Status,
		"reason": state.BreachReason,
		"open":   r.ledger.OpenCount(),
	}).Info("compliance terminal state reached, halting entries")

	if s.opts.HaltPolicy == compliance.HaltForceClose {
		for _, t := range r.ledger.ForceCloseAll(domain.ExitReasonHalted, r.lastQuotes) {
			s.book(r, t)
		}
	}
}

func (s *Simulator) recordEquity(r *run, snap domain.MarketSnapshot) {
	s.appendEquity(r, snap.TimestampMs, r.ledger.MarkToMarket(snap))
}

func (s *Simulator) appendEquity(r *run, ts int64, unrealized float64) {
	balance := r.tracker.State().CurrentBalance
	equity := balance + unrealized
	if equity > r.peakEquity {
		r.peakEquity = equity
	}
	var dd float64
	if r.peakEquity > 0 {
		dd = (r.peakEquity - equity) / r.peakEquity * 100
	}
	r.result.Equity = append(r.result.Equity, domain.EquityPoint{
		TimestampMs: ts,
		Balance:     balance,
		Equity:      equity,
		DrawdownPct: dd,
	})
}

// generate asks the strategy for signals on the warmed-up instruments and
// opens the ones that pass validation and compliance.
func (s *Simulator) generate(r *run, snap domain.MarketSnapshot) error {
	ready := snap.Filter(func(inst string) bool {
		return r.view.Len(inst) >= s.strat.WarmUp(inst)
	})
	if ready.Len() == 0 {
		return nil
	}

	signals, err := s.callStrategy(ready, r.view)
	if err != nil {
		if errors.Is(err, indicators.ErrInsufficientHistory) {
			return nil
		}
		r.result.StrategyErrors++
		r.faults++
		s.log.WithFields(logrus.Fields{
			"ts":     snap.TimestampMs,
			"faults": r.faults,
		}).WithError(err).Warn("strategy failed on tick")
		if r.faults >= s.opts.MaxStrategyFaults {
			s.log.WithField("faults", r.faults).Error("aborting run")
			return fmt.Errorf("%w: %d consecutive failing ticks: %v", ErrStrategyFault, r.faults, err)
		}
		return nil
	}
	r.faults = 0

	for _, sig := range signals {
		s.enter(r, ready, sig)
	}
	return nil
}

func (s *Simulator) callStrategy(snap domain.MarketSnapshot, view *history.View) (signals []domain.Signal, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("strategy panic: %v", p)
		}
	}()
	return s.strat.OnTick(snap, view)
}

func (s *Simulator) enter(r *run, snap domain.MarketSnapshot, sig domain.Signal) {
	fields := logrus.Fields{"instrument": sig.Instrument, "ts": snap.TimestampMs}

	err := sig.Validate()
	if err == nil && !snap.Has(sig.Instrument) {
		err = fmt.Errorf("%w: %s not quoted at this tick", domain.ErrInvalidSignal, sig.Instrument)
	}
	if err != nil {
		r.result.InvalidSignals++
		s.log.WithFields(fields).WithError(err).Warn("dropping invalid signal")
		return
	}

	if r.ledger.Has(sig.Instrument) {
		r.result.IgnoredSignals++
		return
	}

	d := r.tracker.ValidateTrade(sig.EntryPrice, sig.StopLoss, sig.TakeProfit, sig.Instrument, r.ledger.OpenCount())
	if !d.Accepted {
		r.result.RejectedSignals++
		s.log.WithFields(fields).WithField("reason", d.Reason).Debug("signal rejected by compliance")
		return
	}

	if _, err := r.ledger.Open(sig, d.Units, snap.TimestampMs); err != nil {
		r.result.InvalidSignals++
		s.log.WithFields(fields).WithError(err).Warn("dropping invalid signal")
	}
}

func (s *Simulator) finish(r *run) *domain.RunResult {
	res := r.result
	res.Trades = r.ledger.Closed()
	res.Compliance = r.tracker.State()
	res.FinalBalance = res.Compliance.CurrentBalance
	metrics.Summarize(res.Trades).Apply(res)
	res.MaxDrawdownPct = metrics.MaxDrawdownPct(res.Equity)
	return res
}
