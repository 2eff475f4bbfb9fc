package persistence

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/0022papa/kiwoom-bot/internal/models"
)

// ErrNoSignals rejects a backtest request with an empty signal sequence.
// The store is never touched in that case.
var ErrNoSignals = errors.New("backtest request needs at least one signal")

// RequestBacktest runs the control side of the backtest handshake:
// validate, invalidate the previous result, then enqueue the request. The
// invalidate-before-enqueue ordering guarantees a poller can never mistake
// a stale result for the answer to this request.
func (r *Repository) RequestBacktest(signals []models.BacktestSignal) error {
	if len(signals) == 0 {
		return ErrNoSignals
	}

	if err := r.store.Delete(keyBacktestResult); err != nil {
		return fmt.Errorf("failed to clear previous backtest result: %w", err)
	}

	payload, err := json.Marshal(models.BacktestPayload{Signals: signals})
	if err != nil {
		return err
	}
	id, err := r.store.EnqueueCommand(models.CmdBacktestReq, payload)
	if err != nil {
		return fmt.Errorf("failed to enqueue backtest request: %w", err)
	}
	r.logger.Infow("backtest request enqueued", "command_id", id, "signals", len(signals))
	return nil
}

// BacktestResult returns the stored result and whether one is present.
// Absent (or undecodable) means the bot is still processing.
func (r *Repository) BacktestResult() (json.RawMessage, bool, error) {
	value, _, err := r.store.Get(keyBacktestResult)
	if err != nil {
		if isAbsent(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read backtest result: %w", err)
	}
	if !json.Valid(value) {
		r.logger.Warn("stored backtest result is not valid JSON, treating as absent")
		return nil, false, nil
	}
	return json.RawMessage(value), true, nil
}

// SaveBacktestResult persists a finished simulation. This is the bot
// process's half of the handshake.
func (r *Repository) SaveBacktestResult(results json.RawMessage) error {
	if err := r.store.Set(keyBacktestResult, results); err != nil {
		return fmt.Errorf("failed to persist backtest result: %w", err)
	}
	return nil
}
