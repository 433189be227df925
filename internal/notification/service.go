package notification

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/npezzotti/go-commhub/internal/database"
	"github.com/npezzotti/go-commhub/internal/server"
	"github.com/npezzotti/go-commhub/internal/types"
	"github.com/rs/zerolog"
)

var (
	ErrNotFoundOrForbidden = errors.New("notification not found or forbidden")
	ErrInvalidKind         = errors.New("invalid notification kind")
)

// Deliverer pushes an event to every open connection of an identity.
type Deliverer interface {
	Deliver(identity string, msg *server.ServerMessage) int
}

// Service implements the record-then-push pattern: every notification is
// persisted first, then pushed best-effort to the recipient's live
// connections. No ordering guarantee is made between the write and the
// push; clients must treat the list endpoint as authoritative.
type Service struct {
	log      zerolog.Logger
	db       database.CommHubRepository
	registry Deliverer
	limit    int
}

func NewService(logger zerolog.Logger, db database.CommHubRepository, registry Deliverer, limit int) *Service {
	if limit <= 0 {
		limit = 50
	}
	return &Service{
		log:      logger,
		db:       db,
		registry: registry,
		limit:    limit,
	}
}

// Notify persists a notification and pushes it to the recipient. The
// persisted write always happens, even when the recipient has no open
// connections; an offline recipient sees the notification on its next
// fetch.
func (s *Service) Notify(recipientId string, kind types.NotificationKind, text, fromId, subjectRef string) (types.Notification, error) {
	if !kind.Valid() {
		return types.Notification{}, ErrInvalidKind
	}

	dbNotification, err := s.db.CreateNotification(database.CreateNotificationParams{
		Id:          uuid.NewString(),
		RecipientId: recipientId,
		Kind:        string(kind),
		Text:        text,
		FromId:      fromId,
		SubjectRef:  subjectRef,
		CreatedAt:   server.Now(),
	})
	if err != nil {
		return types.Notification{}, fmt.Errorf("create notification: %w", err)
	}

	notification := toTypesNotification(dbNotification)

	delivered := s.registry.Deliver(recipientId, server.NewNotificationEvent(notification))
	if delivered == 0 {
		s.log.Debug().
			Str("recipient", recipientId).
			Str("notification_id", notification.Id).
			Msg("recipient offline, push dropped")
	}

	return notification, nil
}

// ListFor returns the recipient's most recent notifications, newest first,
// capped at the service limit.
func (s *Service) ListFor(identity string, limit int) ([]types.Notification, error) {
	if limit <= 0 || limit > s.limit {
		limit = s.limit
	}

	dbNotifications, err := s.db.ListNotificationsFor(identity, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}

	notifications := make([]types.Notification, len(dbNotifications))
	for i, n := range dbNotifications {
		notifications[i] = toTypesNotification(n)
	}

	return notifications, nil
}

// MarkRead idempotently sets read=true on a notification owned by identity.
func (s *Service) MarkRead(identity, notificationId string) error {
	if err := s.db.MarkNotificationRead(identity, notificationId); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFoundOrForbidden
		}
		return fmt.Errorf("mark notification read: %w", err)
	}

	return nil
}

func toTypesNotification(n database.Notification) types.Notification {
	return types.Notification{
		Id:          n.Id,
		RecipientId: n.RecipientId,
		Kind:        types.NotificationKind(n.Kind),
		Text:        n.Text,
		FromId:      n.FromId,
		SubjectRef:  n.SubjectRef,
		Read:        n.Read,
		CreatedAt:   n.CreatedAt,
	}
}
