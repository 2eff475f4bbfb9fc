// Package persistence is the typed repository the control process uses to
// talk to the bot through the shared store. Read paths are maximally
// defensive: a missing or malformed persisted artifact resolves to a
// documented default and never becomes an error. Write paths normalize or
// reject at the boundary and rely on the store's atomic replace.
package persistence

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/0022papa/kiwoom-bot/internal/store"
	"go.uber.org/zap"
)

// KV keys shared with the bot process.
const (
	keySettings          = "settings"
	keyStatus            = "status"
	keyConditions        = "conditions"
	keyCurrentConditions = "current_conditions"
	keyMasterStocks      = "master_stocks"
	keyBacktestResult    = "backtest_result"
)

// Bounded history sizes for the dashboard's log views.
const (
	TradeHistoryLimit = 100
	SystemLogLimit    = 200
)

// Repository wraps a store.Store with the domain contracts: settings
// normalization, status freshness, the command queue and the backtest
// handshake.
type Repository struct {
	store  store.Store
	logger *zap.SugaredLogger
	now    func() time.Time
}

// NewRepository creates a repository over the given store.
func NewRepository(s store.Store, logger *zap.SugaredLogger) *Repository {
	return &Repository{
		store:  s,
		logger: logger,
		now:    time.Now,
	}
}

// readRef reads a full-replace reference blob, falling back to the given
// default when the key is absent or the stored blob is not valid JSON.
func (r *Repository) readRef(key string, fallback json.RawMessage) (json.RawMessage, error) {
	value, _, err := r.store.Get(key)
	if err != nil {
		if isAbsent(err) {
			return fallback, nil
		}
		return nil, err
	}
	if !json.Valid(value) {
		r.logger.Warnf("stored %s blob is not valid JSON, serving default", key)
		return fallback, nil
	}
	return json.RawMessage(value), nil
}

// Conditions returns the bot's condition list, or an empty list.
func (r *Repository) Conditions() (json.RawMessage, error) {
	return r.readRef(keyConditions, json.RawMessage(`[]`))
}

// CurrentConditions returns the currently active conditions, or an empty list.
func (r *Repository) CurrentConditions() (json.RawMessage, error) {
	return r.readRef(keyCurrentConditions, json.RawMessage(`[]`))
}

// MasterStocks returns the code-to-name master stock map, or an empty map.
func (r *Repository) MasterStocks() (json.RawMessage, error) {
	return r.readRef(keyMasterStocks, json.RawMessage(`{}`))
}

func isAbsent(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}
