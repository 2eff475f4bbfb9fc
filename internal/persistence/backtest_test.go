package persistence

import (
	"encoding/json"
	"testing"

	"github.com/0022papa/kiwoom-bot/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestBacktestRejectsEmptySignals(t *testing.T) {
	repo, mem := newTestRepo()

	err := repo.RequestBacktest(nil)
	assert.ErrorIs(t, err, ErrNoSignals)

	// Validation failure must not touch the store at all.
	assert.Zero(t, mem.SetCalls)
	rec, err := mem.NextPendingCommand()
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestRequestBacktestInvalidatesPriorResult(t *testing.T) {
	repo, _ := newTestRepo()
	require.NoError(t, repo.SaveBacktestResult(json.RawMessage(`[{"stock_code":"005930"}]`)))

	signals := []models.BacktestSignal{{StockCode: "000660", EntryDate: "20260828", EntryTime: "091500"}}
	require.NoError(t, repo.RequestBacktest(signals))

	// Immediately after submission the old result is gone: pollers see
	// "processing", never the previous request's answer.
	_, present, err := repo.BacktestResult()
	require.NoError(t, err)
	assert.False(t, present)
}

func TestRequestBacktestEnqueuesSignalPayload(t *testing.T) {
	repo, mem := newTestRepo()

	signals := []models.BacktestSignal{
		{StockCode: "005930", EntryDate: "20260827", EntryTime: "090300"},
		{StockCode: "000660", EntryDate: "20260827", EntryTime: "101200"},
	}
	require.NoError(t, repo.RequestBacktest(signals))

	rec, err := mem.NextPendingCommand()
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, models.CmdBacktestReq, rec.Type)

	var payload models.BacktestPayload
	require.NoError(t, json.Unmarshal(rec.Payload, &payload))
	assert.Equal(t, signals, payload.Signals)
}

func TestBacktestResultRoundTrip(t *testing.T) {
	repo, _ := newTestRepo()

	_, present, err := repo.BacktestResult()
	require.NoError(t, err)
	assert.False(t, present, "no result yet means processing")

	results := json.RawMessage(`[{"stock_code":"005930","profit_rate":1.8}]`)
	require.NoError(t, repo.SaveBacktestResult(results))

	loaded, present, err := repo.BacktestResult()
	require.NoError(t, err)
	assert.True(t, present)
	assert.JSONEq(t, string(results), string(loaded))
}

func TestCommandsAreConsumedFIFO(t *testing.T) {
	repo, _ := newTestRepo()

	require.NoError(t, repo.EnqueueBulkSell())
	require.NoError(t, repo.RequestBacktest([]models.BacktestSignal{{StockCode: "005930", EntryDate: "20260827", EntryTime: "090000"}}))
	require.NoError(t, repo.EnqueueBulkSell())

	var order []string
	for {
		cmd, err := repo.NextPendingCommand()
		require.NoError(t, err)
		if cmd == nil {
			break
		}
		order = append(order, cmd.Type)
		assert.Equal(t, models.CommandPending, cmd.Status)
		require.NoError(t, repo.MarkCommandDone(cmd.ID))
	}
	assert.Equal(t, []string{models.CmdBulkSell, models.CmdBacktestReq, models.CmdBulkSell}, order)
}
