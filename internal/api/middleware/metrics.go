// metrics.go — Prometheus HTTP метрики Personal Cloud API.
// Регистрирует метрики: pc_http_requests_total,
// pc_http_request_duration_seconds. Бизнес-метрики (pc_operations_total,
// pc_storage_bytes) обновляются из handlers и сервисного слоя.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP метрики
var (
	// httpRequestsTotal — общее количество HTTP-запросов.
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pc_http_requests_total",
			Help: "Общее количество HTTP-запросов к Personal Cloud API",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration — гистограмма длительности HTTP-запросов.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pc_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к Personal Cloud API в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// Бизнес-метрики (экспортируются для обновления из handlers/сервисов)
var (
	// OperationsTotal — количество файловых операций по типу и результату.
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pc_operations_total",
			Help: "Общее количество файловых операций",
		},
		[]string{"operation", "result"},
	)

	// StorageBytes — объём занятого дискового пространства (gauge).
	StorageBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pc_storage_bytes",
			Help: "Объём занятого дискового пространства в байтах",
		},
	)
)

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus
// метрик: количество запросов и длительность для каждого endpoint.
// publicPrefix — настроенный префикс статики (PC_PUBLIC_PREFIX).
func MetricsMiddleware(publicPrefix string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Нормализуем путь для лейблов (имена файлов под префиксом
			// статики схлопываются, иначе кардинальность растёт с числом файлов)
			normalizedPath := normalizePath(r.URL.Path, publicPrefix)

			wrapped := newStatusResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(wrapped.statusCode)

			httpRequestsTotal.WithLabelValues(r.Method, normalizedPath, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, normalizedPath).Observe(duration)
		})
	}
}

// normalizePath схлопывает переменные сегменты пути.
// Все API-маршруты статичны (имена передаются query-параметрами);
// переменная часть есть только у статики под publicPrefix.
func normalizePath(path, publicPrefix string) string {
	if publicPrefix != "" && strings.HasPrefix(path, publicPrefix+"/") {
		return publicPrefix + "/{file}"
	}
	return path
}
