package database

import "time"

type Identity struct {
	Id        string
	Username  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Message struct {
	Id         string
	SenderId   string
	ReceiverId string
	Content    string
	MediaRef   string
	MediaKind  string
	ReadBy     []string
	CreatedAt  time.Time
}

type Notification struct {
	Id          string
	RecipientId string
	Kind        string
	Text        string
	FromId      string
	SubjectRef  string
	Read        bool
	CreatedAt   time.Time
}

type EnsureIdentityParams struct {
	Id       string
	Username string
}

type CreateMessageParams struct {
	Id         string
	SenderId   string
	ReceiverId string
	Content    string
	MediaRef   string
	MediaKind  string
	CreatedAt  time.Time
}

type CreateNotificationParams struct {
	Id          string
	RecipientId string
	Kind        string
	Text        string
	FromId      string
	SubjectRef  string
	CreatedAt   time.Time
}
