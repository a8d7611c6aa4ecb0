package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/handlers"

	"github.com/sparkmatch/sparkd/internal/config"
	"github.com/sparkmatch/sparkd/internal/database"
	"github.com/sparkmatch/sparkd/internal/server"
	"github.com/sparkmatch/sparkd/internal/stats"
)

// SparkApp is the HTTP surface: account lifecycle, likes, history reads and
// the websocket handshake. Realtime work is delegated to the gateway.
type SparkApp struct {
	log            *log.Logger
	db             database.SparkRepository
	mux            *http.Server
	gw             *server.Gateway
	stats          stats.StatsProvider
	signingKey     []byte
	allowedOrigins []string
}

func NewSparkApp(mux *http.ServeMux, logger *log.Logger, gw *server.Gateway,
	db database.SparkRepository, su stats.StatsProvider, cfg *config.Config) *SparkApp {
	s := &SparkApp{
		log:            logger,
		db:             db,
		gw:             gw,
		stats:          su,
		signingKey:     cfg.SigningKey,
		allowedOrigins: cfg.AllowedOrigins,
	}

	mux.HandleFunc("GET /healthz", s.healthCheck)
	mux.HandleFunc("POST /api/auth/register", s.createAccount)
	mux.HandleFunc("POST /api/auth/login", s.login)
	mux.HandleFunc("GET /api/auth/verify", s.verifyEmail)
	mux.Handle("GET /api/auth/session", s.authMiddleware(s.session))
	mux.Handle("GET /api/auth/logout", s.authMiddleware(s.logout))
	mux.Handle("GET /api/account", s.authMiddleware(s.account))
	mux.Handle("POST /api/likes", s.authMiddleware(s.createLike))
	mux.Handle("DELETE /api/likes", s.authMiddleware(s.deleteLike))
	mux.Handle("GET /api/messages", s.authMiddleware(s.getMessages))
	mux.Handle("GET /api/notifications", s.authMiddleware(s.getNotifications))
	mux.Handle("GET /ws", s.authMiddleware(s.serveWs))

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	s.mux = srv
	return s
}

func (s *SparkApp) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *SparkApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
