package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/0022papa/kiwoom-bot/internal/models"
	"github.com/0022papa/kiwoom-bot/internal/persistence"
	"github.com/0022papa/kiwoom-bot/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestServer(password string) (http.Handler, *store.MemStore) {
	mem := store.NewMemStore()
	repo := persistence.NewRepository(mem, zap.NewNop().Sugar())
	return NewRouter(zap.NewNop().Sugar(), repo, NewSessionManager(password)), mem
}

func doJSON(t *testing.T, handler http.Handler, method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestAuthDisabledWithoutPassword(t *testing.T) {
	handler, _ := newTestServer("")

	w := doJSON(t, handler, http.MethodGet, "/api/settings", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthFlow(t *testing.T) {
	handler, _ := newTestServer("secret")

	w := doJSON(t, handler, http.MethodGet, "/api/status", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(t, handler, http.MethodPost, "/api/login", `{"password":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(t, handler, http.MethodPost, "/api/login", `{"password":"secret"}`)
	require.Equal(t, http.StatusOK, w.Code)
	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies)
	session := cookies[0]
	require.Equal(t, "session", session.Name)

	w = doJSON(t, handler, http.MethodGet, "/api/status", "", session)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, handler, http.MethodPost, "/api/logout", "", session)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, handler, http.MethodGet, "/api/status", "", session)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHealthzSkipsAuth(t *testing.T) {
	handler, _ := newTestServer("secret")

	w := doJSON(t, handler, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestStatusMergesStalenessFields(t *testing.T) {
	handler, mem := newTestServer("")

	require.NoError(t, mem.Set("status", []byte(`{"balance":1234567,"positions":2}`)))

	w := doJSON(t, handler, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, float64(1234567), body["balance"])
	assert.Equal(t, false, body["is_offline"])
	assert.Equal(t, float64(0), body["last_sync_ago"])
}

func TestStatusAbsentReportsOffline(t *testing.T) {
	handler, _ := newTestServer("")

	w := doJSON(t, handler, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, true, body["is_offline"])
	assert.Equal(t, float64(9999999), body["last_sync_ago"])
}

func TestSettingsNormalizedOverHTTP(t *testing.T) {
	handler, _ := newTestServer("")

	w := doJSON(t, handler, http.MethodPost, "/api/settings",
		`{"ORDER_AMOUNT":"250000","STOP_LOSS_RATE":"junk","UNKNOWN_FIELD":1}`)
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, float64(250000), body["ORDER_AMOUNT"], "numeric string parsed")
	assert.Equal(t, float64(-1.5), body["STOP_LOSS_RATE"], "malformed value falls back to default")
	assert.NotContains(t, body, "UNKNOWN_FIELD")

	w = doJSON(t, handler, http.MethodGet, "/api/settings", "")
	require.Equal(t, http.StatusOK, w.Code)
	body = decodeBody(t, w)
	assert.Equal(t, float64(250000), body["ORDER_AMOUNT"], "write survives the round trip")
}

func TestSettingsRejectsBadBody(t *testing.T) {
	handler, _ := newTestServer("")

	w := doJSON(t, handler, http.MethodPost, "/api/settings", `{broken`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBulkSellEnqueues(t *testing.T) {
	handler, mem := newTestServer("")

	w := doJSON(t, handler, http.MethodPost, "/api/bulk_sell", "")
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "queued", decodeBody(t, w)["status"])

	rec, err := mem.NextPendingCommand()
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, models.CmdBulkSell, rec.Type)
}

func TestBacktestRejectsEmptySignals(t *testing.T) {
	handler, mem := newTestServer("")

	w := doJSON(t, handler, http.MethodPost, "/api/backtest/request", `{"signals":[]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, mem.SetCalls, "a rejected request never touches the store")

	rec, err := mem.NextPendingCommand()
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestBacktestHandshake(t *testing.T) {
	handler, mem := newTestServer("")
	repo := persistence.NewRepository(mem, zap.NewNop().Sugar())

	body := `{"signals":[{"stock_code":"005930","entry_date":"20260830","entry_time":"100000"}]}`
	w := doJSON(t, handler, http.MethodPost, "/api/backtest/request", body)
	require.Equal(t, http.StatusAccepted, w.Code)

	rec, err := mem.NextPendingCommand()
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, models.CmdBacktestReq, rec.Type)

	w = doJSON(t, handler, http.MethodGet, "/api/backtest/result", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "processing", decodeBody(t, w)["status"])
	assert.Contains(t, w.Header().Get("Cache-Control"), "no-store")

	require.NoError(t, repo.SaveBacktestResult(json.RawMessage(`[{"stock_code":"005930","profit_rate":2.1}]`)))

	w = doJSON(t, handler, http.MethodGet, "/api/backtest/result", "")
	require.Equal(t, http.StatusOK, w.Code)
	result := decodeBody(t, w)
	assert.Equal(t, "complete", result["status"])
	require.NotNil(t, result["results"])

	// A new request invalidates the stored result before re-queueing.
	w = doJSON(t, handler, http.MethodPost, "/api/backtest/request", body)
	require.Equal(t, http.StatusAccepted, w.Code)

	w = doJSON(t, handler, http.MethodGet, "/api/backtest/result", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "processing", decodeBody(t, w)["status"])
}

func TestTradesAndLogsWrapped(t *testing.T) {
	handler, mem := newTestServer("")
	repo := persistence.NewRepository(mem, zap.NewNop().Sugar())

	require.NoError(t, repo.AppendTrade(models.TradeLogEntry{
		Timestamp: time.Now(),
		Action:    "BUY",
		StockCode: "005930",
		Qty:       10,
		Price:     71000,
	}))

	w := doJSON(t, handler, http.MethodGet, "/api/trades", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	items, ok := body["items"].([]any)
	require.True(t, ok)
	assert.Len(t, items, 1)

	w = doJSON(t, handler, http.MethodGet, "/api/logs", "")
	require.Equal(t, http.StatusOK, w.Code)
	body = decodeBody(t, w)
	assert.Contains(t, body, "items")
}

func TestReferenceEndpoints(t *testing.T) {
	handler, mem := newTestServer("")

	w := doJSON(t, handler, http.MethodGet, "/api/conditions", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	require.NoError(t, mem.Set("conditions", []byte(`[{"id":"2","name":"momentum"}]`)))
	w = doJSON(t, handler, http.MethodGet, "/api/conditions", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[{"id":"2","name":"momentum"}]`, w.Body.String())

	w = doJSON(t, handler, http.MethodGet, "/api/master_stocks", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{}`, w.Body.String())
}

func TestStoreFailureReturns500(t *testing.T) {
	handler, mem := newTestServer("")
	mem.FailReads = assert.AnError

	w := doJSON(t, handler, http.MethodGet, "/api/settings", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	w = doJSON(t, handler, http.MethodGet, "/api/trades", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
