package api

import (
	"net/http"

	"copytrade/internal/api/handlers"
	"copytrade/internal/api/middleware"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dependencies содержит все зависимости для API handlers.
// Nil поле отключает соответствующую группу маршрутов.
type Dependencies struct {
	Dispatcher  handlers.SignalDispatcher
	Credentials handlers.CredentialManager
	Sync        *handlers.SyncHandler
	Audit       handlers.AuditReader

	// WebSocket - обработчик /ws/stream (websocket.Hub.ServeWS)
	WebSocket http.HandlerFunc

	// WebhookSecretHash - bcrypt хэш passphrase вебхука; пусто - без проверки
	WebhookSecretHash string
	AllowedOrigins    []string
}

// SetupRoutes настраивает все HTTP маршруты приложения
//
// Структура маршрутов:
//
// /api/v1/
//
//	├── /webhook/signal
//	│   └── POST - торговый сигнал
//	├── /users/{id}/
//	│   ├── GET /exchanges - привязки бирж
//	│   ├── PUT /exchanges/{exchange}?type= - сохранить ключи
//	│   ├── DELETE /exchanges/{exchange}?type= - удалить ключи
//	│   ├── POST /sync - синхронизировать пользователя
//	│   └── GET /audit - журнал событий
//	└── /sync
//	    └── POST - синхронизировать всех
//
// /ws/stream?user_id= - WebSocket уведомления
// /metrics - Prometheus
// /health
//
// Middleware применяется в следующем порядке:
// 1. Recovery
// 2. Logging
// 3. CORS
func SetupRoutes(deps *Dependencies) *mux.Router {
	router := mux.NewRouter()
	if deps == nil {
		deps = &Dependencies{}
	}

	router.Use(middleware.Recovery)
	router.Use(middleware.Logging)
	router.Use(middleware.CORS(deps.AllowedOrigins))

	api := router.PathPrefix("/api/v1").Subrouter()

	if deps.Dispatcher != nil {
		webhookHandler := handlers.NewWebhookHandler(deps.Dispatcher, deps.WebhookSecretHash)
		api.HandleFunc("/webhook/signal", webhookHandler.ReceiveSignal).Methods("POST", "OPTIONS")
	}

	if deps.Credentials != nil {
		credentialHandler := handlers.NewCredentialHandler(deps.Credentials)
		api.HandleFunc("/users/{id:[0-9]+}/exchanges", credentialHandler.ListCredentials).Methods("GET", "OPTIONS")
		api.HandleFunc("/users/{id:[0-9]+}/exchanges/{exchange}", credentialHandler.SaveCredentials).Methods("PUT", "OPTIONS")
		api.HandleFunc("/users/{id:[0-9]+}/exchanges/{exchange}", credentialHandler.DeleteCredentials).Methods("DELETE")
	}

	if deps.Sync != nil {
		api.HandleFunc("/users/{id:[0-9]+}/sync", deps.Sync.SyncUser).Methods("POST", "OPTIONS")
		api.HandleFunc("/sync", deps.Sync.SyncAll).Methods("POST", "OPTIONS")
	}

	if deps.Audit != nil {
		auditHandler := handlers.NewAuditHandler(deps.Audit)
		api.HandleFunc("/users/{id:[0-9]+}/audit", auditHandler.GetAudit).Methods("GET", "OPTIONS")
	}

	if deps.WebSocket != nil {
		router.HandleFunc("/ws/stream", deps.WebSocket).Methods("GET")
	}

	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}).Methods("GET")

	return router
}
