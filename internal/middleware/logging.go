// middleware содержит HTTP-обвязку сервера: контекстное логирование,
// перехват паник, таймауты запросов и метрики Prometheus.
package middleware

import (
	"auth-service/internal/pkg/log"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// statusRecorder запоминает код ответа, отданный обработчиком.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Logging реализует логирование HTTP-запросов с контекстным логгером.
//
// Поведение и формат логов:
//   - Вытягивает X-Request-Id из заголовков, иначе генерирует UUID;
//   - Кладёт обогащённый *slog.Logger в context (pkg/log), чтобы он был
//     доступен глубже по стеку;
//   - После выполнения обработчика пишет одну строку уровня Info: msg="http",
//     status=<код ответа>, dur=<время выполнения>.
//
// Безопасность: логи не содержат тел запросов и токенов — только
// метод/путь/peer/request_id.
func Logging(base *slog.Logger) func(http.Handler) http.Handler {
	if base == nil {
		base = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rid := r.Header.Get("X-Request-Id")
			if rid == "" {
				rid = uuid.NewString()
			}

			l := base.With(
				slog.String("request_id", rid),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("peer", r.RemoteAddr),
			)

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r.WithContext(log.Into(r.Context(), l)))

			l.Info("http",
				slog.Int("status", rec.status),
				slog.Duration("dur", time.Since(start)),
			)
		})
	}
}
