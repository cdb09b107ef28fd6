package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/cors"
	"go.uber.org/zap"

	"signal-backtest/internal/history"
)

const (
	defaultRunsLimit = 50
	maxRunsLimit     = 500
)

// newHandler 构建回测历史查询接口。
func newHandler(svc *history.Service, allowedOrigins []string, logger *zap.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := svc.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, err)
			return
		}
		writeJSON(w, logger, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("GET /runs", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		limit := defaultRunsLimit
		if qs := q.Get("limit"); qs != "" {
			if v, err := strconv.Atoi(qs); err == nil && v > 0 {
				limit = min(v, maxRunsLimit)
			}
		}

		runs, err := svc.ListRuns(r.Context(), strings.TrimSpace(q.Get("symbol")), limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if runs == nil {
			runs = []history.Run{}
		}
		writeJSON(w, logger, http.StatusOK, runs)
	})

	mux.HandleFunc("GET /runs/{id}", func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseRunID(w, r)
		if !ok {
			return
		}
		run, err := svc.GetRun(r.Context(), id)
		if err != nil {
			writeLookupError(w, err)
			return
		}
		writeJSON(w, logger, http.StatusOK, run)
	})

	mux.HandleFunc("GET /runs/{id}/trades", func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseRunID(w, r)
		if !ok {
			return
		}
		run, err := svc.GetRun(r.Context(), id)
		if err != nil {
			writeLookupError(w, err)
			return
		}
		writeJSON(w, logger, http.StatusOK, run.Trades)
	})

	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
	}).Handler(mux)
}

// startServer 在后台启动接口服务，ctx 结束时优雅关闭。返回的 channel 在服务退出后关闭。
func startServer(ctx context.Context, handler http.Handler, port int, logger *zap.Logger) <-chan struct{} {
	addr := fmt.Sprintf(":%d", port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	done := make(chan struct{})

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("关闭查询服务失败", zap.Error(err))
		}
	}()

	go func() {
		defer close(done)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("查询服务异常", zap.Error(err))
		}
	}()

	logger.Info("回测查询接口已启动", zap.String("addr", addr))
	return done
}

func parseRunID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, fmt.Errorf("非法的 run id %q", r.PathValue("id")))
		return 0, false
	}
	return id, true
}

func writeLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, history.ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeError(w, http.StatusInternalServerError, err)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, logger *zap.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("写入响应失败", zap.Error(err))
	}
}
