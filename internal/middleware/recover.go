// recover.go реализует перехват паник в HTTP-обработчиках.
package middleware

import (
	"auth-service/internal/pkg/log"
	"log/slog"
	"net/http"
	"runtime/debug"
)

// Recover возвращает middleware, который перехватывает паники в обработчиках,
// логирует их и отвечает клиенту нейтральной ошибкой 500.
//
// Поведение:
//   - Паника в любом месте стека запроса приводит к логзаписи уровня Error
//     с методом, путём и стеком;
//   - В ответ клиенту уходит "internal server error" без раскрытия
//     внутренних деталей;
//   - Если в контексте уже есть логгер (см. pkg/log), будет использован он;
//     иначе — переданный base (если не nil), либо slog.Default().
func Recover(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			l := log.From(r.Context())
			if l == slog.Default() && base != nil {
				l = base
			}

			defer func() {
				if rec := recover(); rec != nil {
					l.Error("panic_recovered",
						slog.String("method", r.Method),
						slog.String("path", r.URL.Path),
						slog.Any("panic", rec),
						slog.String("stack", string(debug.Stack())),
					)

					http.Error(w, "internal server error", http.StatusInternalServerError)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
