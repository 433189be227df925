package database

type CommHubRepository interface {
	Ping() error
	EnsureIdentity(params EnsureIdentityParams) (Identity, error)
	GetIdentity(id string) (Identity, error)
	IdentityExists(id string) (bool, error)
	CreateMessage(params CreateMessageParams) (Message, error)
	GetMessage(id string) (Message, error)
	ListMessagesFor(identity string) ([]Message, error)
	ListAllMessages() ([]Message, error)
	ConversationBetween(a, b string) ([]Message, error)
	UnreadCountFrom(sender, receiver string) (int, error)
	MarkMessagesRead(identity, fromId string) error
	DeleteMessage(id string) error
	CreateNotification(params CreateNotificationParams) (Notification, error)
	ListNotificationsFor(identity string, limit int) ([]Notification, error)
	MarkNotificationRead(identity, notificationId string) error
}
