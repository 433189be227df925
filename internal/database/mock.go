package database

import (
	"github.com/stretchr/testify/mock"
)

type MockCommHubRepository struct {
	mock.Mock
}

func (m *MockCommHubRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockCommHubRepository) EnsureIdentity(params EnsureIdentityParams) (Identity, error) {
	args := m.Called(params)
	return args.Get(0).(Identity), args.Error(1)
}
func (m *MockCommHubRepository) GetIdentity(id string) (Identity, error) {
	args := m.Called(id)
	return args.Get(0).(Identity), args.Error(1)
}
func (m *MockCommHubRepository) IdentityExists(id string) (bool, error) {
	args := m.Called(id)
	return args.Bool(0), args.Error(1)
}
func (m *MockCommHubRepository) CreateMessage(params CreateMessageParams) (Message, error) {
	args := m.Called(params)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockCommHubRepository) GetMessage(id string) (Message, error) {
	args := m.Called(id)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockCommHubRepository) ListMessagesFor(identity string) ([]Message, error) {
	args := m.Called(identity)
	return args.Get(0).([]Message), args.Error(1)
}
func (m *MockCommHubRepository) ListAllMessages() ([]Message, error) {
	args := m.Called()
	return args.Get(0).([]Message), args.Error(1)
}
func (m *MockCommHubRepository) ConversationBetween(a, b string) ([]Message, error) {
	args := m.Called(a, b)
	return args.Get(0).([]Message), args.Error(1)
}
func (m *MockCommHubRepository) UnreadCountFrom(sender, receiver string) (int, error) {
	args := m.Called(sender, receiver)
	return args.Int(0), args.Error(1)
}
func (m *MockCommHubRepository) MarkMessagesRead(identity, fromId string) error {
	args := m.Called(identity, fromId)
	return args.Error(0)
}
func (m *MockCommHubRepository) DeleteMessage(id string) error {
	args := m.Called(id)
	return args.Error(0)
}
func (m *MockCommHubRepository) CreateNotification(params CreateNotificationParams) (Notification, error) {
	args := m.Called(params)
	return args.Get(0).(Notification), args.Error(1)
}
func (m *MockCommHubRepository) ListNotificationsFor(identity string, limit int) ([]Notification, error) {
	args := m.Called(identity, limit)
	return args.Get(0).([]Notification), args.Error(1)
}
func (m *MockCommHubRepository) MarkNotificationRead(identity, notificationId string) error {
	args := m.Called(identity, notificationId)
	return args.Error(0)
}
