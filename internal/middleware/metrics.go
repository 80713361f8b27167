package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "auth_service",
		Name:      "http_requests_total",
		Help:      "Количество HTTP-запросов по методу, пути и коду ответа.",
	}, []string{"method", "path", "code"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "auth_service",
		Name:      "http_request_duration_seconds",
		Help:      "Длительность обработки HTTP-запросов.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path"})
)

// Metrics собирает счётчик и гистограмму длительности по каждому запросу.
// Метка path — шаблон сматченного маршрута (r.Pattern), не сырой URL:
// произвольные несуществующие пути сворачиваются в "unmatched", поэтому
// кардинальность ограничена набором зарегистрированных маршрутов.
//
// Middleware должен стоять непосредственно над mux (без промежуточных
// клонов *Request через WithContext), иначе Pattern не будет виден.
func Metrics() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			// ServeMux проставляет Pattern на том же *Request.
			route := r.Pattern
			if route == "" {
				route = "unmatched"
			}

			httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
			httpRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}
