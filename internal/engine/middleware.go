package engine

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/xela07ax/spaceai-taskgate/internal/infra"
)

// TracingMiddleware инициализирует Trace-ID для каждого запроса
func TracingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 1. Пытаемся достать ID из заголовка (если пришел от UI/прокси)
		traceID := r.Header.Get(infra.TraceHeader)

		// 2. Если его нет: генерируем новый
		if traceID == "" {
			traceID = uuid.New().String()
		}

		// 3. Добавляем в ответ, чтобы клиент тоже знал ID своего запроса
		w.Header().Set(infra.TraceHeader, traceID)

		next.ServeHTTP(w, r.WithContext(infra.WithTraceID(r.Context(), traceID)))
	})
}
