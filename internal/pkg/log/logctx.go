// log передаёт обогащённый *slog.Logger через context.Context: middleware
// привязывает к запросу логгер с request_id, сервисный слой достаёт его
// через From и пишет в тот же поток атрибутов.
package log

import (
	"context"
	"log/slog"
)

type ctxKey struct{}

// Into возвращает контекст с привязанным логгером l.
func Into(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// From возвращает логгер запроса из ctx. Если логгера там нет (или лежит
// nil), возвращается slog.Default() — вызывающему всегда достаётся рабочий
// логгер.
func From(ctx context.Context) *slog.Logger {
	l, ok := ctx.Value(ctxKey{}).(*slog.Logger)
	if !ok || l == nil {
		return slog.Default()
	}

	return l
}
