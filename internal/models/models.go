package models

import (
	"encoding/json"
	"time"
)

// Config holds all configuration for the control process.
type Config struct {
	Addr        string      `json:"addr"`         // HTTP listen address, e.g. ":8080"
	Password    string      `json:"password"`     // dashboard password; empty disables auth
	CleanupDays int         `json:"cleanup_days"` // log retention in days, 0 disables cleanup
	Store       StoreConfig `json:"store"`
	LogConfig   LogConfig   `json:"log"`
}

// StoreConfig selects and locates the persistent store backend.
type StoreConfig struct {
	Backend string `json:"backend"` // "file", "sqlite" or "badger"
	Path    string `json:"path"`    // directory (file/badger) or database file (sqlite)
}

// LogConfig defines logging behaviour.
type LogConfig struct {
	Level      string `json:"level"`       // log level, e.g. "debug", "info", "warn", "error"
	Output     string `json:"output"`      // output mode: "console", "file", "both"
	File       string `json:"file"`        // log file path
	MaxSize    int    `json:"max_size"`    // max size of a single log file (MB)
	MaxBackups int    `json:"max_backups"` // max number of rotated files to keep
	MaxAge     int    `json:"max_age"`     // max age of rotated files (days)
	Compress   bool   `json:"compress"`    // compress rotated files
}

// Settings is the full strategy configuration shared with the bot process.
// It is always persisted as a complete, normalized record: every numeric
// field holds a finite number and every optional field is back-filled with
// its default before the blob is written.
type Settings struct {
	BotStatus   string `json:"BOT_STATUS"`
	MockTrade   bool   `json:"MOCK_TRADE"`
	ConditionID string `json:"CONDITION_ID"`

	OrderAmount        float64 `json:"ORDER_AMOUNT"`
	StopLossRate       float64 `json:"STOP_LOSS_RATE"`
	TrailingStartRate  float64 `json:"TRAILING_START_RATE"`
	TrailingStopRate   float64 `json:"TRAILING_STOP_RATE"`
	ReEntryCooldownMin float64 `json:"RE_ENTRY_COOLDOWN_MIN"`
	MinBuySellRatio    float64 `json:"MIN_BUY_SELL_RATIO"`
	RSILimit           float64 `json:"RSI_LIMIT"`
	TimeCutMin         float64 `json:"TIME_CUT_MIN"`
	AIStopLossLimit    float64 `json:"AI_STOP_LOSS_LIMIT"`

	OvernightCondIDs string `json:"OVERNIGHT_COND_IDS"`

	UseMarketTime bool `json:"USE_MARKET_TIME"`
	UseAutoSell   bool `json:"USE_AUTO_SELL"`
	UseTelegram   bool `json:"USE_TELEGRAM"`
	UseAIStopLoss bool `json:"USE_AI_STOP_LOSS"`
	UseHogaFilter bool `json:"USE_HOGA_FILTER"`
	UseScheduler  bool `json:"USE_SCHEDULER"`
	DebugMode     bool `json:"DEBUG_MODE"`

	MorningStart   string `json:"MORNING_START"`
	MorningCond    string `json:"MORNING_COND"`
	LunchStart     string `json:"LUNCH_START"`
	LunchCond      string `json:"LUNCH_COND"`
	AfternoonStart string `json:"AFTERNOON_START"`
	AfternoonCond  string `json:"AFTERNOON_COND"`
}

// DefaultSettings returns the documented defaults for every settings field.
func DefaultSettings() Settings {
	return Settings{
		BotStatus:   "STOPPED",
		MockTrade:   false,
		ConditionID: "0",

		OrderAmount:        100000,
		StopLossRate:       -1.5,
		TrailingStartRate:  1.5,
		TrailingStopRate:   -1.0,
		ReEntryCooldownMin: 30,
		MinBuySellRatio:    0.5,
		RSILimit:           70,
		TimeCutMin:         30,
		AIStopLossLimit:    -4.0,

		OvernightCondIDs: "2",

		UseMarketTime: true,
		UseAutoSell:   true,
		UseTelegram:   true,
		UseAIStopLoss: false,
		UseHogaFilter: true,
		UseScheduler:  true,
		DebugMode:     false,

		MorningStart:   "08:50",
		MorningCond:    "0",
		LunchStart:     "10:30",
		LunchCond:      "1",
		AfternoonStart: "15:10",
		AfternoonCond:  "2",
	}
}

// Command types understood by the bot process.
const (
	CmdBulkSell    = "BULK_SELL"
	CmdBacktestReq = "BACKTEST_REQ"
)

// Command statuses. Only the consumer advances a command past PENDING.
const (
	CommandPending = "PENDING"
	CommandDone    = "DONE"
)

// Command is a single immutable instruction handed from the control process
// to the bot process through the store.
type Command struct {
	ID        int64           `json:"id"`
	Type      string          `json:"cmd_type"`
	Payload   json.RawMessage `json:"payload"`
	Status    string          `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
}

// BulkSellPayload is the payload of a BULK_SELL command. The timestamp lets
// the consumer deduplicate a liquidation it has already performed.
type BulkSellPayload struct {
	RequestedAt time.Time `json:"requested_at"`
}

// BacktestSignal identifies one entry point to simulate: a stock code plus
// the date (YYYYMMDD) and time (HHMMSS) of the buy signal.
type BacktestSignal struct {
	StockCode string `json:"stock_code"`
	EntryDate string `json:"entry_date"`
	EntryTime string `json:"entry_time"`
}

// BacktestPayload is the payload of a BACKTEST_REQ command.
type BacktestPayload struct {
	Signals []BacktestSignal `json:"signals"`
}

// TradeLogEntry records one executed trade. Written once by the bot, never
// mutated.
type TradeLogEntry struct {
	Timestamp  time.Time `json:"timestamp"`
	Action     string    `json:"action"`
	StockCode  string    `json:"stock_code"`
	StockName  string    `json:"stock_name"`
	Qty        int64     `json:"qty"`
	Price      float64   `json:"price"`
	Reason     string    `json:"reason"`
	ProfitRate float64   `json:"profit_rate"`
	ProfitAmt  int64     `json:"profit_amt"`
	ImagePath  string    `json:"image_path,omitempty"`
	AIReason   string    `json:"ai_reason,omitempty"`
}

// SystemLogEntry is one bot-internal log line surfaced to the dashboard.
type SystemLogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Module    string    `json:"module"`
	Message   string    `json:"message"`
}

// StatusReport is the bot status snapshot plus the freshness signal derived
// by the control process.
type StatusReport struct {
	Snapshot    map[string]any `json:"snapshot"`
	IsOffline   bool           `json:"is_offline"`
	LastSyncAgo int64          `json:"last_sync_ago"` // seconds since last status write
}
