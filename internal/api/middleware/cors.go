package middleware

import (
	"net/http"

	"copytrade/internal/websocket"
)

// CORS возвращает middleware Cross-Origin Resource Sharing.
//
// Список origins общий с WebSocket (ALLOWED_ORIGINS): пустой список или "*"
// разрешает любой origin. Для разрешённого origin возвращается он сам
// с Allow-Credentials, для остальных заголовки не ставятся и браузер
// блокирует ответ.
//
// Preflight (OPTIONS) обрабатывается здесь и до handlers не доходит.
func CORS(origins []string) func(http.Handler) http.Handler {
	checker := websocket.NewOriginChecker(origins)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			if origin != "" && checker.Check(origin) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Add("Vary", "Origin")
			}

			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
			w.Header().Set("Access-Control-Max-Age", "86400") // 24 часа кеширования preflight

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
