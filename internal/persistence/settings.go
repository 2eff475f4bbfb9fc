package persistence

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/0022papa/kiwoom-bot/internal/models"
)

// Settings returns the persisted settings, or the documented defaults when
// none were ever written or the stored blob cannot be decoded.
func (r *Repository) Settings() (models.Settings, error) {
	value, _, err := r.store.Get(keySettings)
	if err != nil {
		if isAbsent(err) {
			return models.DefaultSettings(), nil
		}
		return models.Settings{}, fmt.Errorf("failed to read settings: %w", err)
	}

	settings := models.DefaultSettings()
	if err := json.Unmarshal(value, &settings); err != nil {
		r.logger.Warnf("stored settings blob is not decodable, serving defaults: %v", err)
		return models.DefaultSettings(), nil
	}
	return settings, nil
}

// SaveSettings normalizes the raw field map and persists the resulting
// complete record wholesale. Malformed numeric input is silently replaced by
// the field's default rather than rejected, so the bot never reads an
// unparseable configuration. The normalized settings are returned.
func (r *Repository) SaveSettings(raw map[string]any) (models.Settings, error) {
	settings := NormalizeSettings(raw)

	data, err := json.Marshal(settings)
	if err != nil {
		return models.Settings{}, err
	}
	if err := r.store.Set(keySettings, data); err != nil {
		return models.Settings{}, fmt.Errorf("failed to persist settings: %w", err)
	}
	return settings, nil
}

// NormalizeSettings coerces a raw field map into a complete, well-typed
// settings record. Every numeric field resolves to a finite number; absent
// or malformed fields fall back to their defaults. Unknown fields are
// dropped: the persisted record always has exactly the documented shape.
func NormalizeSettings(raw map[string]any) models.Settings {
	def := models.DefaultSettings()

	return models.Settings{
		BotStatus:   strField(raw, "BOT_STATUS", def.BotStatus),
		MockTrade:   boolField(raw, "MOCK_TRADE", def.MockTrade),
		ConditionID: strField(raw, "CONDITION_ID", def.ConditionID),

		OrderAmount:        numField(raw, "ORDER_AMOUNT", def.OrderAmount),
		StopLossRate:       numField(raw, "STOP_LOSS_RATE", def.StopLossRate),
		TrailingStartRate:  numField(raw, "TRAILING_START_RATE", def.TrailingStartRate),
		TrailingStopRate:   numField(raw, "TRAILING_STOP_RATE", def.TrailingStopRate),
		ReEntryCooldownMin: numField(raw, "RE_ENTRY_COOLDOWN_MIN", def.ReEntryCooldownMin),
		MinBuySellRatio:    numField(raw, "MIN_BUY_SELL_RATIO", def.MinBuySellRatio),
		RSILimit:           numField(raw, "RSI_LIMIT", def.RSILimit),
		TimeCutMin:         numField(raw, "TIME_CUT_MIN", def.TimeCutMin),
		AIStopLossLimit:    numField(raw, "AI_STOP_LOSS_LIMIT", def.AIStopLossLimit),

		OvernightCondIDs: strField(raw, "OVERNIGHT_COND_IDS", def.OvernightCondIDs),

		UseMarketTime: boolField(raw, "USE_MARKET_TIME", def.UseMarketTime),
		UseAutoSell:   boolField(raw, "USE_AUTO_SELL", def.UseAutoSell),
		UseTelegram:   boolField(raw, "USE_TELEGRAM", def.UseTelegram),
		UseAIStopLoss: boolField(raw, "USE_AI_STOP_LOSS", def.UseAIStopLoss),
		UseHogaFilter: boolField(raw, "USE_HOGA_FILTER", def.UseHogaFilter),
		UseScheduler:  boolField(raw, "USE_SCHEDULER", def.UseScheduler),
		DebugMode:     boolField(raw, "DEBUG_MODE", def.DebugMode),

		MorningStart:   strField(raw, "MORNING_START", def.MorningStart),
		MorningCond:    strField(raw, "MORNING_COND", def.MorningCond),
		LunchStart:     strField(raw, "LUNCH_START", def.LunchStart),
		LunchCond:      strField(raw, "LUNCH_COND", def.LunchCond),
		AfternoonStart: strField(raw, "AFTERNOON_START", def.AfternoonStart),
		AfternoonCond:  strField(raw, "AFTERNOON_COND", def.AfternoonCond),
	}
}

// numField parses raw[key] as a number. Anything that does not resolve to a
// finite float falls back to def.
func numField(raw map[string]any, key string, def float64) float64 {
	v, ok := raw[key]
	if !ok {
		return def
	}
	var n float64
	switch val := v.(type) {
	case float64:
		n = val
	case json.Number:
		parsed, err := val.Float64()
		if err != nil {
			return def
		}
		n = parsed
	case string:
		parsed, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return def
		}
		n = parsed
	default:
		return def
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return def
	}
	return n
}

func boolField(raw map[string]any, key string, def bool) bool {
	v, ok := raw[key]
	if !ok {
		return def
	}
	switch val := v.(type) {
	case bool:
		return val
	case string:
		parsed, err := strconv.ParseBool(val)
		if err != nil {
			return def
		}
		return parsed
	case float64:
		return val != 0
	default:
		return def
	}
}

func strField(raw map[string]any, key string, def string) string {
	v, ok := raw[key]
	if !ok || v == nil {
		return def
	}
	switch val := v.(type) {
	case string:
		return val
	case float64:
		// The dashboard occasionally submits condition ids as numbers.
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return def
	}
}
