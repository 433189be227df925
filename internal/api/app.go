package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/npezzotti/go-commhub/internal/config"
	"github.com/npezzotti/go-commhub/internal/database"
	"github.com/npezzotti/go-commhub/internal/message"
	"github.com/npezzotti/go-commhub/internal/notification"
	"github.com/npezzotti/go-commhub/internal/server"
	"github.com/rs/zerolog"
)

type CommHubApp struct {
	log            zerolog.Logger
	db             database.CommHubRepository
	mux            *http.Server
	registry       *server.ConnectionRegistry
	calls          *server.CallCoordinator
	messages       *message.Service
	notifications  *notification.Service
	signingKey     []byte
	allowedOrigins []string
}

func NewCommHubApp(mux *http.ServeMux, logger zerolog.Logger, registry *server.ConnectionRegistry,
	calls *server.CallCoordinator, messages *message.Service, notifications *notification.Service,
	db database.CommHubRepository, cfg *config.Config) *CommHubApp {
	s := &CommHubApp{
		log:            logger,
		db:             db,
		registry:       registry,
		calls:          calls,
		messages:       messages,
		notifications:  notifications,
		signingKey:     cfg.SigningKey,
		allowedOrigins: cfg.AllowedOrigins,
	}

	mux.HandleFunc("GET /healthz", s.healthCheck)
	mux.Handle("POST /api/messages", s.authMiddleware(s.createMessage))
	mux.Handle("GET /api/messages", s.authMiddleware(s.listMessages))
	mux.Handle("GET /api/conversations/{partnerId}", s.authMiddleware(s.getConversation))
	mux.Handle("GET /api/conversations/{partnerId}/unread", s.authMiddleware(s.getUnreadCount))
	mux.Handle("POST /api/messages/mark-read", s.authMiddleware(s.markMessagesRead))
	mux.Handle("DELETE /api/messages/{id}", s.authMiddleware(s.deleteMessage))
	mux.Handle("GET /api/notifications", s.authMiddleware(s.listNotifications))
	mux.Handle("PATCH /api/notifications/{id}/read", s.authMiddleware(s.markNotificationRead))
	mux.Handle("GET /ws", s.authMiddleware(s.serveWs))

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept", "Authorization"}),
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

func (s *CommHubApp) Start() error {
	s.log.Info().Str("addr", s.mux.Addr).Msg("starting server")
	return s.mux.ListenAndServe()
}

func (s *CommHubApp) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
