package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/warp/invest-engine/invest"
)

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "invest",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by route pattern, method and status code.",
	}, []string{"route", "method", "status"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "invest",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by route pattern.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method"})
)

type logInfoKey struct{}

// logInfo is filled in by handlers and read back by RequestLogger once the
// handler returns.
type logInfo struct {
	userID invest.UserID
	err    error
}

func setLogUser(r *http.Request, id invest.UserID) {
	if info, ok := r.Context().Value(logInfoKey{}).(*logInfo); ok && id != "" {
		info.userID = id
	}
}

func setLogError(r *http.Request, err error) {
	if info, ok := r.Context().Value(logInfoKey{}).(*logInfo); ok {
		info.err = err
	}
}

// RequestLogger logs every API request with zap, records a transaction log
// entry and updates the HTTP metrics. A failed log write never fails the
// request.
func RequestLogger(logger *zap.Logger, logs invest.RequestLog) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			info := &logInfo{}
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			r = r.WithContext(context.WithValue(r.Context(), logInfoKey{}, info))

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			elapsed := time.Since(start)
			httpRequests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
			httpDuration.WithLabelValues(route, r.Method).Observe(elapsed.Seconds())

			fields := []zap.Field{
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Duration("elapsed", elapsed),
			}
			if info.userID != "" {
				fields = append(fields, zap.String("user_id", string(info.userID)))
			}
			if info.err != nil {
				fields = append(fields, zap.Error(info.err))
			}
			if status >= http.StatusInternalServerError {
				logger.Error("request failed", fields...)
			} else {
				logger.Info("request", fields...)
			}

			if logs == nil {
				return
			}
			entry := invest.LogEntry{
				ID:         uuid.NewString(),
				UserID:     info.userID,
				Endpoint:   r.URL.Path,
				Method:     r.Method,
				StatusCode: status,
				CreatedAt:  start.UTC(),
			}
			if info.err != nil {
				entry.Error = info.err.Error()
			}
			if err := logs.AppendLog(context.WithoutCancel(r.Context()), entry); err != nil {
				logger.Warn("append transaction log", zap.Error(err))
			}
		})
	}
}
