package types

import (
	"time"
)

// Identity is the hub's view of an authenticated principal. The record is
// owned by the external identity provider; the hub only mirrors it for
// recipient lookups and never changes the id.
type Identity struct {
	Id        string    `json:"id"`
	Username  string    `json:"username"`
	Admin     bool      `json:"-"`
	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// MediaKind classifies the optional media attachment of a message.
type MediaKind string

const (
	MediaNone  MediaKind = "none"
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
)

func (k MediaKind) Valid() bool {
	switch k {
	case MediaNone, MediaImage, MediaVideo:
		return true
	}
	return false
}

type Message struct {
	Id         string    `json:"id"`
	SenderId   string    `json:"sender_id"`
	ReceiverId string    `json:"receiver_id"`
	Content    string    `json:"content"`
	MediaRef   string    `json:"media_ref,omitempty"`
	MediaKind  MediaKind `json:"media_kind"`
	ReadBy     []string  `json:"read_by"`
	CreatedAt  time.Time `json:"created_at"`
}

// NotificationKind names the event that produced a notification.
type NotificationKind string

const (
	KindMessage NotificationKind = "message"
	KindComment NotificationKind = "comment"
	KindLike    NotificationKind = "like"
)

func (k NotificationKind) Valid() bool {
	switch k {
	case KindMessage, KindComment, KindLike:
		return true
	}
	return false
}

type Notification struct {
	Id          string           `json:"id"`
	RecipientId string           `json:"recipient_id"`
	Kind        NotificationKind `json:"kind"`
	Text        string           `json:"text"`
	FromId      string           `json:"from_id"`
	// SubjectRef is an opaque pointer to the message, video or comment
	// the notification is about.
	SubjectRef string    `json:"subject_ref,omitempty"`
	Read       bool      `json:"read"`
	CreatedAt  time.Time `json:"created_at"`
}
