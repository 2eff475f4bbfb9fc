package persistence

import (
	"fmt"
	"testing"
	"time"

	"github.com/0022papa/kiwoom-bot/internal/models"
	"github.com/0022papa/kiwoom-bot/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecentTradesEmpty(t *testing.T) {
	repo, _ := newTestRepo()

	trades, err := repo.RecentTrades()
	require.NoError(t, err)
	assert.NotNil(t, trades)
	assert.Empty(t, trades)
}

func TestRecentTradesNewestFirstAndSkipsCorrupt(t *testing.T) {
	repo, mem := newTestRepo()

	for i := 0; i < 9; i++ {
		require.NoError(t, repo.AppendTrade(models.TradeLogEntry{
			Timestamp: time.Now(),
			Action:    "BUY",
			StockCode: fmt.Sprintf("%06d", i),
			Qty:       10,
			Price:     71000,
		}))
		if i == 4 {
			// One corrupt record in the middle of the log.
			require.NoError(t, mem.AppendLog(store.TableTrades, []byte("%%garbage%%")))
		}
	}

	trades, err := repo.RecentTrades()
	require.NoError(t, err)
	require.Len(t, trades, 9, "the corrupt record is skipped, the rest survive")
	assert.Equal(t, "000008", trades[0].StockCode, "newest first")
	assert.Equal(t, "000000", trades[8].StockCode)
}

func TestRecentTradesBounded(t *testing.T) {
	repo, _ := newTestRepo()

	for i := 0; i < TradeHistoryLimit+20; i++ {
		require.NoError(t, repo.AppendTrade(models.TradeLogEntry{
			Timestamp: time.Now(),
			Action:    "SELL",
			StockCode: fmt.Sprintf("%06d", i),
		}))
	}

	trades, err := repo.RecentTrades()
	require.NoError(t, err)
	assert.Len(t, trades, TradeHistoryLimit)
	assert.Equal(t, fmt.Sprintf("%06d", TradeHistoryLimit+19), trades[0].StockCode)
}

func TestRecentSystemLogs(t *testing.T) {
	repo, _ := newTestRepo()

	logs, err := repo.RecentSystemLogs()
	require.NoError(t, err)
	assert.Empty(t, logs)

	require.NoError(t, repo.AppendSystemLog(models.SystemLogEntry{
		Timestamp: time.Now(),
		Level:     "INFO",
		Module:    "Strategy",
		Message:   "condition scan started",
	}))
	require.NoError(t, repo.AppendSystemLog(models.SystemLogEntry{
		Timestamp: time.Now(),
		Level:     "ERROR",
		Module:    "API",
		Message:   "order rejected",
	}))

	logs, err = repo.RecentSystemLogs()
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "ERROR", logs[0].Level, "newest first")
	assert.Equal(t, "INFO", logs[1].Level)
}

func TestReferenceBlobDefaults(t *testing.T) {
	repo, mem := newTestRepo()

	conditions, err := repo.Conditions()
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(conditions))

	stocks, err := repo.MasterStocks()
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(stocks))

	require.NoError(t, mem.Set("master_stocks", []byte(`{"005930":"삼성전자"}`)))
	stocks, err = repo.MasterStocks()
	require.NoError(t, err)
	assert.JSONEq(t, `{"005930":"삼성전자"}`, string(stocks))

	// A corrupt blob reads as the default, never as an error.
	require.NoError(t, mem.Set("conditions", []byte("{oops")))
	conditions, err = repo.Conditions()
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(conditions))
}
