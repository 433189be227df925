package message

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
	ErrInvalidRecipient = errors.New("invalid recipient")
	ErrInvalidMediaKind = errors.New("invalid media kind")
	ErrNotFound         = errors.New("message not found")
)

const notificationPreviewLen = 80

// Notifier triggers a notification for an asynchronous user-facing event.
type Notifier interface {
	Notify(recipientId string, kind types.NotificationKind, text, fromId, subjectRef string) (types.Notification, error)
}

// Service is the durable conversation store adapter: message persistence,
// conversation queries and unread accounting.
type Service struct {
	log      zerolog.Logger
	db       database.CommHubRepository
	notifier Notifier
}

func NewService(logger zerolog.Logger, db database.CommHubRepository, notifier Notifier) *Service {
	return &Service{
		log:      logger,
		db:       db,
		notifier: notifier,
	}
}

// Send persists a message and triggers a message notification for the
// receiver. The message write is fatal on failure; a failed notification
// write is logged and does not fail the send, since the message list is the
// authoritative source and the push is a freshness hint.
func (s *Service) Send(senderId, receiverId, content, mediaRef string, mediaKind types.MediaKind) (types.Message, error) {
	if receiverId == "" || receiverId == senderId {
		return types.Message{}, ErrInvalidRecipient
	}
	if mediaKind == "" {
		mediaKind = types.MediaNone
	}
	if !mediaKind.Valid() {
		return types.Message{}, ErrInvalidMediaKind
	}

	exists, err := s.db.IdentityExists(receiverId)
	if err != nil {
		return types.Message{}, fmt.Errorf("check recipient: %w", err)
	}
	if !exists {
		return types.Message{}, ErrInvalidRecipient
	}

	dbMsg, err := s.db.CreateMessage(database.CreateMessageParams{
		Id:         uuid.NewString(),
		SenderId:   senderId,
		ReceiverId: receiverId,
		Content:    content,
		MediaRef:   mediaRef,
		MediaKind:  string(mediaKind),
		CreatedAt:  server.Now(),
	})
	if err != nil {
		return types.Message{}, fmt.Errorf("create message: %w", err)
	}

	if _, err := s.notifier.Notify(receiverId, types.KindMessage, preview(content), senderId, dbMsg.Id); err != nil {
		s.log.Error().Err(err).Str("message_id", dbMsg.Id).Msg("failed to notify receiver")
	}

	return toTypesMessage(dbMsg), nil
}

// ListFor returns every message where identity is sender or receiver,
// oldest first with a stable id tie-break. Grouping into per-partner
// conversations is the caller's concern.
func (s *Service) ListFor(identity string) ([]types.Message, error) {
	dbMsgs, err := s.db.ListMessagesFor(identity)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	return toTypesMessages(dbMsgs), nil
}

// ListAll returns every message in the store. Privileged callers only.
func (s *Service) ListAll() ([]types.Message, error) {
	dbMsgs, err := s.db.ListAllMessages()
	if err != nil {
		return nil, fmt.Errorf("list all messages: %w", err)
	}

	return toTypesMessages(dbMsgs), nil
}

// ConversationBetween returns the pair's messages with the same ordering
// guarantee as ListFor.
func (s *Service) ConversationBetween(a, b string) ([]types.Message, error) {
	dbMsgs, err := s.db.ConversationBetween(a, b)
	if err != nil {
		return nil, fmt.Errorf("conversation: %w", err)
	}

	return toTypesMessages(dbMsgs), nil
}

// UnreadCountFrom counts messages from sender to receiver the receiver has
// not read.
func (s *Service) UnreadCountFrom(senderId, receiverId string) (int, error) {
	count, err := s.db.UnreadCountFrom(senderId, receiverId)
	if err != nil {
		return 0, fmt.Errorf("unread count: %w", err)
	}

	return count, nil
}

// MarkRead adds identity to the read set of every message it received from
// fromId. Safe to call repeatedly.
func (s *Service) MarkRead(identity, fromId string) error {
	if err := s.db.MarkMessagesRead(identity, fromId); err != nil {
		return fmt.Errorf("mark messages read: %w", err)
	}

	return nil
}

// Delete removes a message. Moderation hook; privileged callers only.
func (s *Service) Delete(id string) error {
	if err := s.db.DeleteMessage(id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("delete message: %w", err)
	}

	return nil
}

func preview(content string) string {
	runes := []rune(content)
	if len(runes) <= notificationPreviewLen {
		return content
	}

	return string(runes[:notificationPreviewLen])
}

func toTypesMessage(m database.Message) types.Message {
	readBy := m.ReadBy
	if readBy == nil {
		readBy = []string{}
	}
	return types.Message{
		Id:         m.Id,
		SenderId:   m.SenderId,
		ReceiverId: m.ReceiverId,
		Content:    m.Content,
		MediaRef:   m.MediaRef,
		MediaKind:  types.MediaKind(m.MediaKind),
		ReadBy:     readBy,
		CreatedAt:  m.CreatedAt,
	}
}

func toTypesMessages(dbMsgs []database.Message) []types.Message {
	msgs := make([]types.Message, len(dbMsgs))
	for i, m := range dbMsgs {
		msgs[i] = toTypesMessage(m)
	}
	return msgs
}
