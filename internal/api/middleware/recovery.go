package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"copytrade/pkg/utils"
)

// Recovery - middleware для восстановления после паники в handlers.
//
// Паника логируется вместе со stack trace, клиент получает 500 без деталей.
// http.ErrAbortHandler пробрасывается дальше: это штатный способ net/http
// оборвать ответ.
func Recovery(next http.Handler) http.Handler {
	logger := utils.L().WithComponent("http")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			logger.Error("panic in http handler",
				utils.String("method", r.Method),
				utils.String("path", r.URL.Path),
				utils.String("panic", fmt.Sprint(rec)),
				utils.String("stack", string(debug.Stack())),
			)

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"Internal server error"}`))
		}()

		next.ServeHTTP(w, r)
	})
}
