package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-commhub/internal/message"
	"github.com/npezzotti/go-commhub/internal/notification"
	"github.com/npezzotti/go-commhub/internal/server"
	"github.com/npezzotti/go-commhub/internal/types"
)

type SendMessageRequest struct {
	RecipientId string          `json:"recipient_id"`
	Content     string          `json:"content"`
	MediaRef    string          `json:"media_ref"`
	MediaKind   types.MediaKind `json:"media_kind"`
}

type MarkReadRequest struct {
	FromId string `json:"from_id"`
}

func (s *CommHubApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("json encode")
	}
}

func (s *CommHubApp) healthCheck(w http.ResponseWriter, _ *http.Request) {
	if err := s.db.Ping(); err != nil {
		s.log.Error().Err(err).Msg("health check")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *CommHubApp) createMessage(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.RecipientId == "" || (req.Content == "" && req.MediaRef == "") {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	msg, err := s.messages.Send(identity.Id, req.RecipientId, req.Content, req.MediaRef, req.MediaKind)
	if err != nil {
		var errResp *ApiError
		switch {
		case errors.Is(err, message.ErrInvalidRecipient):
			errResp = NewInvalidRecipientError()
		case errors.Is(err, message.ErrInvalidMediaKind):
			errResp = NewBadRequestError()
		default:
			s.log.Error().Err(err).Msg("send message")
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, msg)
}

func (s *CommHubApp) listMessages(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var (
		msgs []types.Message
		err  error
	)
	if identity.Admin {
		msgs, err = s.messages.ListAll()
	} else {
		msgs, err = s.messages.ListFor(identity.Id)
	}
	if err != nil {
		s.log.Error().Err(err).Msg("list messages")
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, msgs)
}

func (s *CommHubApp) getConversation(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	partnerId := r.PathValue("partnerId")
	if partnerId == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	msgs, err := s.messages.ConversationBetween(identity.Id, partnerId)
	if err != nil {
		s.log.Error().Err(err).Msg("get conversation")
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, msgs)
}

func (s *CommHubApp) getUnreadCount(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	partnerId := r.PathValue("partnerId")
	if partnerId == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	count, err := s.messages.UnreadCountFrom(partnerId, identity.Id)
	if err != nil {
		s.log.Error().Err(err).Msg("unread count")
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, map[string]int{"unread_count": count})
}

func (s *CommHubApp) markMessagesRead(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req MarkReadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.FromId == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.messages.MarkRead(identity.Id, req.FromId); err != nil {
		s.log.Error().Err(err).Msg("mark messages read")
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusNoContent, nil)
}

func (s *CommHubApp) deleteMessage(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if !identity.Admin {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	id := r.PathValue("id")
	if id == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.messages.Delete(id); err != nil {
		var errResp *ApiError
		if errors.Is(err, message.ErrNotFound) {
			errResp = NewNotFoundError()
		} else {
			s.log.Error().Err(err).Msg("delete message")
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusNoContent, nil)
}

func (s *CommHubApp) listNotifications(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var limit int
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		n, err := parsePositiveInt(limitStr)
		if err != nil {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
		limit = n
	}

	notifications, err := s.notifications.ListFor(identity.Id, limit)
	if err != nil {
		s.log.Error().Err(err).Msg("list notifications")
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, notifications)
}

func (s *CommHubApp) markNotificationRead(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	id := r.PathValue("id")
	if id == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.notifications.MarkRead(identity.Id, id); err != nil {
		var errResp *ApiError
		if errors.Is(err, notification.ErrNotFoundOrForbidden) {
			errResp = NewNotFoundError()
		} else {
			s.log.Error().Err(err).Msg("mark notification read")
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, map[string]bool{"read": true})
}

func (s *CommHubApp) serveWs(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			// only allow connections from allowed origins
			origin := r.Header.Get("Origin")
			if origin == "" {
				// if no origin header, allow the request
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error().Err(err).Msg("error upgrading connection")
		return
	}

	client := server.NewClient(identity, conn, s.registry, s.calls, s.log)

	s.registry.Register(client)
	go client.Write()
	go client.Read()
}

func parsePositiveInt(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, errors.New("must be positive")
	}
	return n, nil
}
