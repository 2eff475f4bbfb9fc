// Package server exposes the control process's HTTP surface: status and
// settings for the dashboard, reference-data reads, the command endpoints
// and the backtest handshake. All state flows through the repository; no
// handler keeps anything in process memory besides sessions.
package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/0022papa/kiwoom-bot/internal/metrics"
	"github.com/0022papa/kiwoom-bot/internal/models"
	"github.com/0022papa/kiwoom-bot/internal/persistence"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// loginRequest is the POST /api/login payload.
type loginRequest struct {
	Password string `json:"password"`
}

// backtestRequest is the POST /api/backtest/request payload.
type backtestRequest struct {
	Signals []models.BacktestSignal `json:"signals"`
}

// statusRecorder captures the status code a handler wrote so the request
// can be counted per route.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func instrument(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		metrics.IncRequest(route, rec.status)
	}
}

// NewRouter wires the control-process HTTP handlers.
func NewRouter(logger *zap.SugaredLogger, repo *persistence.Repository, sessions *SessionManager) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /api/login", instrument("login", func(w http.ResponseWriter, r *http.Request) {
		var payload loginRequest
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if !sessions.Enabled() {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
			return
		}
		token, ok := sessions.Login(payload.Password)
		if !ok {
			writeError(w, http.StatusUnauthorized, "wrong password")
			return
		}
		http.SetCookie(w, &http.Cookie{
			Name:     sessionCookie,
			Value:    token,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}))

	mux.HandleFunc("POST /api/logout", instrument("logout", func(w http.ResponseWriter, r *http.Request) {
		if cookie, err := r.Cookie(sessionCookie); err == nil {
			sessions.Logout(cookie.Value)
		}
		http.SetCookie(w, &http.Cookie{
			Name:     sessionCookie,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
		})
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}))

	mux.HandleFunc("GET /api/status", instrument("status", sessions.require(func(w http.ResponseWriter, r *http.Request) {
		report, err := repo.Status()
		if err != nil {
			logger.Errorw("failed to read status", "error", err)
			metrics.IncStoreError()
			writeError(w, http.StatusInternalServerError, "failed to read status")
			return
		}
		metrics.SetBotOffline(report.IsOffline)

		response := make(map[string]any, len(report.Snapshot)+2)
		for k, v := range report.Snapshot {
			response[k] = v
		}
		response["is_offline"] = report.IsOffline
		response["last_sync_ago"] = report.LastSyncAgo
		writeJSON(w, http.StatusOK, response)
	})))

	mux.HandleFunc("GET /api/settings", instrument("settings_read", sessions.require(func(w http.ResponseWriter, r *http.Request) {
		settings, err := repo.Settings()
		if err != nil {
			logger.Errorw("failed to read settings", "error", err)
			metrics.IncStoreError()
			writeError(w, http.StatusInternalServerError, "failed to read settings")
			return
		}
		writeJSON(w, http.StatusOK, settings)
	})))

	mux.HandleFunc("POST /api/settings", instrument("settings_write", sessions.require(func(w http.ResponseWriter, r *http.Request) {
		var raw map[string]any
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		settings, err := repo.SaveSettings(raw)
		if err != nil {
			logger.Errorw("failed to save settings", "error", err)
			metrics.IncStoreError()
			writeError(w, http.StatusInternalServerError, "failed to save settings")
			return
		}
		writeJSON(w, http.StatusOK, settings)
	})))

	refRoutes := []struct {
		route string
		path  string
		read  func() (json.RawMessage, error)
	}{
		{"conditions", "/api/conditions", repo.Conditions},
		{"current_conditions", "/api/current_conditions", repo.CurrentConditions},
		{"master_stocks", "/api/master_stocks", repo.MasterStocks},
	}
	for _, ref := range refRoutes {
		read := ref.read
		route := ref.route
		mux.HandleFunc("GET "+ref.path, instrument(route, sessions.require(func(w http.ResponseWriter, r *http.Request) {
			blob, err := read()
			if err != nil {
				logger.Errorw("failed to read reference data", "key", route, "error", err)
				metrics.IncStoreError()
				writeError(w, http.StatusInternalServerError, "failed to read "+route)
				return
			}
			writeJSON(w, http.StatusOK, blob)
		})))
	}

	mux.HandleFunc("GET /api/trades", instrument("trades", sessions.require(func(w http.ResponseWriter, r *http.Request) {
		trades, err := repo.RecentTrades()
		if err != nil {
			logger.Errorw("failed to read trades", "error", err)
			metrics.IncStoreError()
			writeError(w, http.StatusInternalServerError, "failed to read trades")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": trades})
	})))

	mux.HandleFunc("GET /api/logs", instrument("logs", sessions.require(func(w http.ResponseWriter, r *http.Request) {
		logs, err := repo.RecentSystemLogs()
		if err != nil {
			logger.Errorw("failed to read system logs", "error", err)
			metrics.IncStoreError()
			writeError(w, http.StatusInternalServerError, "failed to read logs")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": logs})
	})))

	mux.HandleFunc("POST /api/bulk_sell", instrument("bulk_sell", sessions.require(func(w http.ResponseWriter, r *http.Request) {
		if err := repo.EnqueueBulkSell(); err != nil {
			logger.Errorw("failed to enqueue bulk sell", "error", err)
			metrics.IncStoreError()
			writeError(w, http.StatusInternalServerError, "failed to enqueue bulk sell")
			return
		}
		metrics.IncCommand(models.CmdBulkSell)
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
	})))

	mux.HandleFunc("POST /api/backtest/request", instrument("backtest_request", sessions.require(func(w http.ResponseWriter, r *http.Request) {
		var payload backtestRequest
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		err := repo.RequestBacktest(payload.Signals)
		if errors.Is(err, persistence.ErrNoSignals) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err != nil {
			logger.Errorw("failed to request backtest", "error", err)
			metrics.IncStoreError()
			writeError(w, http.StatusInternalServerError, "failed to request backtest")
			return
		}
		metrics.IncCommand(models.CmdBacktestReq)
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
	})))

	mux.HandleFunc("GET /api/backtest/result", instrument("backtest_result", sessions.require(func(w http.ResponseWriter, r *http.Request) {
		noCache(w)
		results, present, err := repo.BacktestResult()
		if err != nil {
			logger.Errorw("failed to read backtest result", "error", err)
			metrics.IncStoreError()
			writeError(w, http.StatusInternalServerError, "failed to read backtest result")
			return
		}
		if !present {
			writeJSON(w, http.StatusOK, map[string]any{"status": "processing"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "complete", "results": results})
	})))

	return mux
}
